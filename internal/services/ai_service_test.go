package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/llm"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// fakeProvider 记录请求并返回预设结果
type fakeProvider struct {
	text     string
	textErr  error
	imageURL string
	imageErr error
	requests []llm.CompletionRequest
	images   []llm.ImageRequest
	closed   bool
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) Close() error { f.closed = true; return nil }
func (f *fakeProvider) GetName() string { return "fake" }
func (f *fakeProvider) GetSupportedModels() []string { return nil }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.textErr != nil {
		return nil, f.textErr
	}
	return &llm.CompletionResponse{Text: f.text}, nil
}

func (f *fakeProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	f.images = append(f.images, req)
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &llm.ImageResponse{URL: f.imageURL}, nil
}

func newTestAIService(provider llm.Provider) (*AIService, *utils.StudioMetrics) {
	metrics := utils.NewStudioMetrics(utils.NewMetricsCollector())
	s := createBaseAIService(metrics)
	s.SetVideoDelays(0, 0)
	s.randIntn = func(int) int { return 42 }
	if provider != nil {
		s.SetProvider("fake", provider)
	}
	return s, metrics
}

func TestPolishPromptWithoutCredentials(t *testing.T) {
	s, metrics := newTestAIService(nil)

	out, err := s.PolishPrompt(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "(Polished) a cat, highly detailed, cinematic lighting, 8k resolution, photorealistic texture.", out)
	assert.EqualValues(t, 1, metrics.Collector().GetCounterValue("genai.fallback.polish"))
	assert.False(t, s.IsReady())
}

func TestPolishPromptFailureReturnsOriginal(t *testing.T) {
	p := &fakeProvider{textErr: errors.New("quota")}
	s, _ := newTestAIService(p)

	out, err := s.PolishPrompt(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)
	require.Len(t, p.requests, 1)
	assert.Contains(t, p.requests[0].Prompt, `Input: "a cat"`)
}

func TestPolishPromptSuccess(t *testing.T) {
	s, _ := newTestAIService(&fakeProvider{text: "a fluffy cat"})

	out, err := s.PolishPrompt(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "a fluffy cat", out)
}

func TestGenerateImagePlaceholders(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		s, _ := newTestAIService(nil)
		first, err := s.GenerateImage(context.Background(), "p", models.ImageConfig{})
		require.NoError(t, err)
		second, err := s.GenerateImage(context.Background(), "p", models.ImageConfig{})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(first, "https://picsum.photos/seed/"))
		assert.True(t, strings.HasSuffix(first, "/800/450"))
		assert.NotEqual(t, first, second)
	})

	t.Run("provider failure", func(t *testing.T) {
		s, _ := newTestAIService(&fakeProvider{imageErr: llm.ErrNoImageData})
		url, err := s.GenerateImage(context.Background(), "p", models.ImageConfig{})
		require.NoError(t, err)
		assert.Equal(t, "https://picsum.photos/seed/42/1024/576?grayscale&blur=1", url)
	})
}

func TestGenerateImagePassesConfig(t *testing.T) {
	p := &fakeProvider{imageURL: "data:image/png;base64,AAA"}
	s, _ := newTestAIService(p)

	url, err := s.GenerateImage(context.Background(), "p", models.ImageConfig{ReferenceImage: "data:image/png;base64,QUJD"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAA", url)
	require.Len(t, p.images, 1)
	assert.Equal(t, "16:9", p.images[0].AspectRatio)
	assert.Equal(t, "data:image/png;base64,QUJD", p.images[0].ReferenceImage)
}

func TestGenerateImageCancelled(t *testing.T) {
	s, _ := newTestAIService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GenerateImage(ctx, "p", models.ImageConfig{})
	assert.True(t, appErrors.IsTimeoutError(err))
}

func TestGenerateVideoByType(t *testing.T) {
	s, _ := newTestAIService(nil)

	url, err := s.GenerateVideo(context.Background(), "p", models.VideoConfig{StartFrameImage: "x"})
	require.NoError(t, err)
	assert.Equal(t, SampleVideoImageToVideo, url)

	url, err = s.GenerateVideo(context.Background(), "p", models.VideoConfig{})
	require.NoError(t, err)
	assert.Equal(t, SampleVideoTextToVideo, url)

	url, err = s.GenerateVideoFromImage(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, SampleVideoFromKeyframe, url)
}

func TestGenerateVideoHonoursCancellation(t *testing.T) {
	s, _ := newTestAIService(nil)
	s.SetVideoDelays(time.Hour, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.GenerateVideo(ctx, "p", models.VideoConfig{})
	assert.True(t, appErrors.IsTimeoutError(err))
}

func TestSegmentEpisodes(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		s, _ := newTestAIService(nil)
		res, err := s.SegmentEpisodes(context.Background(), "0123456789")
		require.NoError(t, err)
		require.Len(t, res.Episodes, 2)
		assert.Equal(t, "第一集：开端 (Mock)", res.Episodes[0].Title)
		assert.Equal(t, "01234...", res.Episodes[0].Content)
		assert.Equal(t, []string{"遗嘱", "芯片"}, res.Episodes[1].Assets.Props)
	})

	t.Run("parses fenced json", func(t *testing.T) {
		p := &fakeProvider{text: "```json\n{\"episodes\":[{\"title\":\"E1\",\"content\":\"c\",\"assets\":{\"characters\":[\"A\"]}}]}\n```"}
		s, _ := newTestAIService(p)
		res, err := s.SegmentEpisodes(context.Background(), "script")
		require.NoError(t, err)
		require.Len(t, res.Episodes, 1)
		assert.Equal(t, []string{"A"}, res.Episodes[0].Assets.Characters)
		assert.True(t, p.requests[0].JSON)
	})

	t.Run("bad json falls back", func(t *testing.T) {
		s, _ := newTestAIService(&fakeProvider{text: "not json"})
		res, err := s.SegmentEpisodes(context.Background(), "script")
		require.NoError(t, err)
		assert.Equal(t, "第二集：发展 (Mock)", res.Episodes[1].Title)
	})
}

func TestAnalyzeScriptDefaults(t *testing.T) {
	p := &fakeProvider{text: `[{"title":"","tasks":[{"prompt":"p1","breakdown":{"subject":"Hero"},"extractedAssets":{"characters":["杰克"]}},{"title":"Shot 2: Close","duration":"5s","cameraMovement":"pan"}]}]`}
	s, _ := newTestAIService(p)

	scenes, err := s.AnalyzeScript(context.Background(), "script")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	sc := scenes[0]
	assert.True(t, strings.HasPrefix(sc.ID, "sc_"))
	assert.Equal(t, "未命名场景", sc.Title)
	require.Len(t, sc.Tasks, 2)

	first := sc.Tasks[0]
	assert.Equal(t, "Shot 1: Unnamed", first.Title)
	assert.Equal(t, models.TaskStatusQueued, first.Status)
	assert.Equal(t, "Hero", first.Breakdown.Subject)
	assert.Equal(t, "-", first.Breakdown.Mood)
	assert.Equal(t, "3s", first.Duration)
	assert.Equal(t, "static", first.CameraMovement)
	assert.Equal(t, "1", first.ShotNumber)
	assert.Equal(t, "Eye-level", first.CameraAngle)
	assert.Equal(t, []string{"杰克"}, first.ExtractedTags.Characters)

	second := sc.Tasks[1]
	assert.Equal(t, "5s", second.Duration)
	assert.Equal(t, "pan", second.CameraMovement)
	assert.Equal(t, "2", second.ShotNumber)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAnalyzeScriptRemintsDuplicateIDs(t *testing.T) {
	p := &fakeProvider{text: `[{"id":"sA","tasks":[{"id":"shot_1"},{"id":"shot_2"}]},{"id":"sA","tasks":[{"id":"shot_1"}]}]`}
	s, _ := newTestAIService(p)

	scenes, err := s.AnalyzeScript(context.Background(), "script")
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	assert.Equal(t, "sA", scenes[0].ID)
	assert.NotEqual(t, "sA", scenes[1].ID)
	assert.Equal(t, "shot_1", scenes[0].Tasks[0].ID)
	assert.Equal(t, "shot_2", scenes[0].Tasks[1].ID)
	assert.True(t, strings.HasPrefix(scenes[1].Tasks[0].ID, "t_"), scenes[1].Tasks[0].ID)
}

func TestAnalyzeScriptFallback(t *testing.T) {
	for name, p := range map[string]llm.Provider{
		"no credentials": nil,
		"provider error": &fakeProvider{textErr: errors.New("500")},
	} {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestAIService(p)
			scenes, err := s.AnalyzeScript(context.Background(), "script")
			require.NoError(t, err)
			require.Len(t, scenes, 1)
			assert.Equal(t, "sc_fallback_01", scenes[0].ID)
			assert.Equal(t, "1A", scenes[0].Tasks[0].ShotNumber)
			assert.Equal(t, []string{"示例场景"}, scenes[0].Tasks[0].ExtractedTags.Scenes)
		})
	}
}

func TestAnalyzeScene(t *testing.T) {
	t.Run("no credentials yields nothing", func(t *testing.T) {
		s, _ := newTestAIService(nil)
		tasks, err := s.AnalyzeScene(context.Background(), "scene")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("error yields fallback shot", func(t *testing.T) {
		s, _ := newTestAIService(&fakeProvider{textErr: errors.New("boom")})
		tasks, err := s.AnalyzeScene(context.Background(), "scene")
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.True(t, strings.HasPrefix(tasks[0].ID, "t_err_"))
		assert.Equal(t, "Shot 1: Fallback", tasks[0].Title)
	})

	t.Run("parsed", func(t *testing.T) {
		s, _ := newTestAIService(&fakeProvider{text: `Here you go: [{"id":"shot_1","script":"s","prompt":"p"}] hope it helps`})
		tasks, err := s.AnalyzeScene(context.Background(), "scene")
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.NotEqual(t, "shot_1", tasks[0].ID)
		assert.True(t, strings.HasPrefix(tasks[0].ID, "t_"))
		assert.Equal(t, "Shot 1: Detail", tasks[0].Title)
		assert.Equal(t, "p", tasks[0].Prompt)
	})
}

func TestCleanJSONString(t *testing.T) {
	assert.Equal(t, `{"a":"}"}`, cleanJSONString("noise {\"a\":\"}\"} trailing }"))
	assert.Equal(t, `[1,[2]]`, cleanJSONString("```json\n[1,[2]]\n```"))
	assert.Equal(t, "plain", cleanJSONString("plain"))
}

func TestUpdateProviderWithoutKeyReturnsToMock(t *testing.T) {
	s, _ := newTestAIService(&fakeProvider{})
	require.True(t, s.IsReady())

	require.NoError(t, s.UpdateProvider("google", map[string]string{}))
	ready, _, state := s.GetProviderStatus()
	assert.False(t, ready)
	assert.Equal(t, "API key not configured", state)

	assert.ErrorIs(t, s.UpdateProvider("nope", map[string]string{"api_key": "k"}), llm.ErrUnknownProvider)
}

func TestCloseReleasesProvider(t *testing.T) {
	p := &fakeProvider{}
	s, _ := newTestAIService(p)
	require.True(t, s.IsReady())

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
	assert.False(t, s.IsReady())

	s, _ = newTestAIService(nil)
	assert.NoError(t, s.Close())
}
