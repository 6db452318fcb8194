package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/tree"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// stubAnalyzer 返回预设结果并记录输入
type stubAnalyzer struct {
	breakdown models.BreakdownResult
	scenes    []*models.Scene
	tasks     []*models.Task
	err       error
	inputs    []string
}

func (s *stubAnalyzer) PolishPrompt(ctx context.Context, text string) (string, error) {
	s.inputs = append(s.inputs, text)
	return text + " (polished)", s.err
}

func (s *stubAnalyzer) SegmentEpisodes(ctx context.Context, script string) (models.BreakdownResult, error) {
	s.inputs = append(s.inputs, script)
	return s.breakdown, s.err
}

func (s *stubAnalyzer) AnalyzeScript(ctx context.Context, script string) ([]*models.Scene, error) {
	s.inputs = append(s.inputs, script)
	return s.scenes, s.err
}

func (s *stubAnalyzer) AnalyzeScene(ctx context.Context, content string) ([]*models.Task, error) {
	s.inputs = append(s.inputs, content)
	return s.tasks, s.err
}

func newTestScriptService(t *testing.T, ai ScriptAnalyzer) (*ScriptService, *ProjectStore) {
	t.Helper()
	store := newFixtureStore(t)
	svc := NewScriptService(store, ai, NewLockManager())
	fixed := time.UnixMilli(1_700_000_000_000)
	svc.SetClock(utils.NewClock(func() time.Time { return fixed }))
	return svc, store
}

func strPtr(s string) *string { return &s }

func TestDraftLifecycle(t *testing.T) {
	svc, store := newTestScriptService(t, &stubAnalyzer{})

	draft, err := svc.CreateDraft("p1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(draft.ID, "sd_"))
	assert.Equal(t, "新剧本项目", draft.Title)
	assert.Equal(t, models.DraftStatusDraft, draft.Status)

	updated, err := svc.UpdateDraft("p1", draft.ID, DraftPatch{Title: strPtr("终稿"), Status: strPtr(models.DraftStatusFinalized)})
	require.NoError(t, err)
	assert.Equal(t, "终稿", updated.Title)
	assert.Greater(t, updated.UpdatedAt, draft.UpdatedAt)

	_, err = svc.UpdateDraft("p1", draft.ID, DraftPatch{Status: strPtr("published")})
	assert.True(t, errors.IsValidationError(err))

	require.NoError(t, svc.DeleteDraft("p1", draft.ID))
	p, _ := store.Get("p1")
	assert.Len(t, p.Scripts, 1)

	err = svc.DeleteDraft("p1", draft.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddEpisodeNumbersTitle(t *testing.T) {
	svc, store := newTestScriptService(t, &stubAnalyzer{})

	ep, err := svc.AddEpisode("p1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "第 3 集", ep.Title)
	assert.Equal(t, models.EpisodeStatusDraft, ep.Status)
	require.NotNil(t, ep.ExtractedAssets)
	assert.Empty(t, ep.ExtractedAssets.Flatten())

	p, _ := store.Get("p1")
	assert.Len(t, p.Scripts[0].Episodes, 3)
	assert.NotZero(t, p.Scripts[0].UpdatedAt)

	_, err = svc.AddEpisode("p1", "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestBreakdownRequiresConfirmationWhenEpisodesExist(t *testing.T) {
	ai := &stubAnalyzer{}
	svc, _ := newTestScriptService(t, ai)

	_, err := svc.BreakdownScript(context.Background(), BreakdownRequest{ProjectID: "p1", DraftID: "d1", Text: "长剧本"})
	assert.True(t, errors.IsConflictError(err))
	assert.Empty(t, ai.inputs, "no AI call before confirmation")
}

func TestBreakdownArchivesAndSyncsAssets(t *testing.T) {
	ai := &stubAnalyzer{breakdown: models.BreakdownResult{Episodes: []models.EpisodeBreakdown{
		{Title: "第一集：开端", Content: "夜。暗巷。", Assets: models.AssetNames{
			Characters: []string{"杰克", "苏瑶"},
			Scenes:     []string{"暗巷", "屋顶"},
		}},
		{Content: "白天。", Assets: models.AssetNames{
			Characters: []string{"苏瑶"},
			Props:      []string{"芯片"},
		}},
	}}}
	svc, store := newTestScriptService(t, ai)
	_, err := svc.UpdateEpisode("p1", "d1", "e1", EpisodePatch{Content: strPtr("旧的第一集")})
	require.NoError(t, err)
	before, _ := store.Get("p1")

	outcome, err := svc.BreakdownScript(context.Background(), BreakdownRequest{ProjectID: "p1", DraftID: "d1", Text: "长剧本", Confirm: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"长剧本"}, ai.inputs)
	assert.True(t, outcome.Archived)
	assert.Equal(t, 3, outcome.NewAssets, "苏瑶, 屋顶, 芯片")

	p, _ := store.Get("p1")
	require.Len(t, p.Scripts[0].Episodes, 2)
	assert.Equal(t, "第一集：开端", p.Scripts[0].Episodes[0].Title)
	assert.Equal(t, "第 2 集", p.Scripts[0].Episodes[1].Title)
	assert.True(t, strings.HasPrefix(p.Scripts[0].Episodes[0].ID, "ep_"))

	require.Len(t, p.Archives, 1)
	assert.Equal(t, "旧的第一集\n\n", p.Archives[0].Content)
	assert.Equal(t, "AI 拆解前存档 (2 集)", p.Archives[0].Note)

	require.Len(t, p.Assets.Characters, 2)
	suyao := p.Assets.Characters[1]
	assert.Equal(t, "苏瑶", suyao.Name)
	assert.Equal(t, models.AssetTypeCharacter, suyao.Type)
	assert.Equal(t, "AI Extracted", suyao.Description)
	assert.True(t, strings.HasPrefix(suyao.Img, "https://picsum.photos/seed/"))
	assert.Len(t, p.Assets.Scenes, 2)
	require.Len(t, p.Assets.Props, 1)
	assert.Equal(t, models.AssetTypeProp, p.Assets.Props[0].Type)

	assert.Len(t, before.Assets.Characters, 1, "previous tree untouched")
	assert.Empty(t, before.Archives)
}

func TestBreakdownFallsBackToFirstEpisodeContent(t *testing.T) {
	ai := &stubAnalyzer{breakdown: models.BreakdownResult{Episodes: []models.EpisodeBreakdown{{Title: "唯一一集"}}}}
	svc, _ := newTestScriptService(t, ai)
	_, err := svc.UpdateEpisode("p1", "d1", "e1", EpisodePatch{Content: strPtr("第一集正文")})
	require.NoError(t, err)

	_, err = svc.BreakdownScript(context.Background(), BreakdownRequest{ProjectID: "p1", DraftID: "d1", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"第一集正文"}, ai.inputs)
}

func TestBreakdownEmptySourceRejected(t *testing.T) {
	svc, _ := newTestScriptService(t, &stubAnalyzer{})
	draft, err := svc.CreateDraft("p1")
	require.NoError(t, err)

	_, err = svc.BreakdownScript(context.Background(), BreakdownRequest{ProjectID: "p1", DraftID: draft.ID, Text: "  "})
	assert.True(t, errors.IsValidationError(err))
}

func TestManualSplitByBlankLines(t *testing.T) {
	svc, store := newTestScriptService(t, &stubAnalyzer{})
	_, err := svc.UpdateEpisode("p1", "d1", "e2", EpisodePatch{Content: strPtr("场一\n\n  \n场二\n继续\n \n场三")})
	require.NoError(t, err)

	scenes, err := svc.ManualSplit("p1", "d1", "e2")
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	assert.Equal(t, "第 1 场", scenes[0].Title)
	assert.Equal(t, "场二\n继续", scenes[1].Content)
	assert.Equal(t, "第 3 场", scenes[2].Title)
	assert.True(t, strings.HasPrefix(scenes[0].ID, "sc_manual_"))

	p, _ := store.Get("p1")
	ep, _ := p.FindEpisode("d1", "e2")
	assert.Len(t, ep.Scenes, 3)
}

func TestAISplitMarksEpisodeAnalyzed(t *testing.T) {
	ai := &stubAnalyzer{scenes: []*models.Scene{{ID: "sa", Title: "场次1", Tasks: []*models.Task{}}}}
	svc, store := newTestScriptService(t, ai)

	_, err := svc.AISplit(context.Background(), "p1", "d1", "e2")
	assert.True(t, errors.IsValidationError(err), "empty content")

	_, err = svc.UpdateEpisode("p1", "d1", "e2", EpisodePatch{Content: strPtr("夜，雨。")})
	require.NoError(t, err)
	scenes, err := svc.AISplit(context.Background(), "p1", "d1", "e2")
	require.NoError(t, err)
	assert.Len(t, scenes, 1)

	p, _ := store.Get("p1")
	ep, _ := p.FindEpisode("d1", "e2")
	assert.Equal(t, models.EpisodeStatusAnalyzed, ep.Status)
	assert.NotZero(t, ep.LastAnalysisTime)
	assert.Equal(t, "sa", ep.Scenes[0].ID)
}

func TestGenerateShotsReplacesSceneTasks(t *testing.T) {
	ai := &stubAnalyzer{tasks: []*models.Task{{ID: "n1", Title: "Shot 1", Status: models.TaskStatusQueued}}}
	svc, store := newTestScriptService(t, ai)
	scenePath := pathT1.Scene()

	_, err := svc.GenerateShots(context.Background(), "p1", scenePath)
	assert.True(t, errors.IsValidationError(err), "scene content empty")

	_, err = store.Update("p1", "test", func(p *models.Project) (*models.Project, error) {
		next, _ := tree.UpdateScene(p, scenePath, func(sc *models.Scene) { sc.Content = "雨夜追逐" })
		return next, nil
	})
	require.NoError(t, err)

	tasks, err := svc.GenerateShots(context.Background(), "p1", scenePath)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	p, _ := store.Get("p1")
	scene, _ := p.FindScene(scenePath)
	assert.Equal(t, "n1", scene.Tasks[0].ID)
	ep, _ := p.FindEpisode("d1", "e1")
	assert.Equal(t, models.EpisodeStatusAnalyzed, ep.Status)

	_, err = svc.GenerateShots(context.Background(), "p1", models.ScenePath{DraftID: "d1", EpisodeID: "e1", SceneID: "nope"})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddAndRemoveScene(t *testing.T) {
	svc, store := newTestScriptService(t, &stubAnalyzer{})

	scene, err := svc.AddScene("p1", "d1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "新场次 2", scene.Title)
	assert.True(t, strings.HasPrefix(scene.ID, "sc_new_"))

	task, err := svc.AddTask("p1", models.ScenePath{DraftID: "d1", EpisodeID: "e1", SceneID: scene.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, "Shot 1", task.Title)
	assert.Equal(t, models.TaskStatusQueued, task.Status)

	require.NoError(t, svc.RemoveScene("p1", models.ScenePath{DraftID: "d1", EpisodeID: "e1", SceneID: scene.ID}))
	p, _ := store.Get("p1")
	ep, _ := p.FindEpisode("d1", "e1")
	assert.Len(t, ep.Scenes, 1)

	err = svc.RemoveScene("p1", models.ScenePath{DraftID: "d1", EpisodeID: "e1", SceneID: scene.ID})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateAndPolishTask(t *testing.T) {
	ai := &stubAnalyzer{}
	svc, _ := newTestScriptService(t, ai)

	_, err := svc.PolishTaskPrompt(context.Background(), "p1", pathT1)
	assert.True(t, errors.IsValidationError(err), "empty prompt rejected")
	assert.Empty(t, ai.inputs)

	task, err := svc.UpdateTask("p1", pathT1, models.TaskPatch{Prompt: strPtr("neon rain")})
	require.NoError(t, err)
	assert.Equal(t, "neon rain", task.Prompt)

	task, err = svc.PolishTaskPrompt(context.Background(), "p1", pathT1)
	require.NoError(t, err)
	assert.Equal(t, "neon rain (polished)", task.Prompt)

	_, err = svc.UpdateTask("p1", pathT1, models.TaskPatch{})
	assert.True(t, errors.IsValidationError(err))

	bad := models.TaskStatus("unknown")
	_, err = svc.UpdateTask("p1", pathT1, models.TaskPatch{Status: &bad})
	assert.True(t, errors.IsValidationError(err))
}
