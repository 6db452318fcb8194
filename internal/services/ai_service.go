// internal/services/ai_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/Corphon/StoryboardStudio/internal/config"
	appErrors "github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/llm"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 模拟视频地址
const (
	sampleVideoBase           = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/"
	SampleVideoImageToVideo   = sampleVideoBase + "ElephantsDream.mp4"
	SampleVideoTextToVideo    = sampleVideoBase + "ForBiggerBlazes.mp4"
	SampleVideoFromKeyframe   = sampleVideoBase + "TearsOfSteel.mp4"
	defaultImageAspectRatio   = "16:9"
	defaultSceneTitle         = "未命名场景"
	defaultAnalyzedTaskTitle  = "Shot 1: Unnamed"
	defaultSceneShotTitle     = "Shot 1: Detail"
	defaultCameraMovement     = "static"
	defaultCameraAngle        = "Eye-level"
	defaultBreakdownFieldText = "-"
)

// AIService 外部生成与分析服务。除上下文取消外从不返回错误，失败时降级为模拟结果
type AIService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	isReady       bool
	readyState    string

	videoDelay      time.Duration
	frameVideoDelay time.Duration
	clock           *utils.Clock
	randIntn        func(n int) int
	metrics         *utils.StudioMetrics
}

// NewAIService 根据配置创建服务，未配置密钥时以模拟模式运行
func NewAIService(cfg *config.AppConfig, metrics *utils.StudioMetrics) *AIService {
	service := createBaseAIService(metrics)
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service
	}

	service.videoDelay = cfg.VideoDelay
	service.frameVideoDelay = cfg.FrameVideoDelay

	if !cfg.HasCredentials() {
		service.readyState = "API key not configured"
		return service
	}

	if err := service.UpdateProvider(cfg.GenAIProvider, cfg.GenAIConfig); err != nil {
		utils.GetLogger().Warn("生成服务初始化失败，使用模拟模式", map[string]interface{}{
			"provider": cfg.GenAIProvider,
			"error":    err.Error(),
		})
	}
	return service
}

// NewEmptyAIService 创建未连接任何提供者的服务
func NewEmptyAIService() *AIService {
	service := createBaseAIService(nil)
	service.providerName = "mock"
	service.readyState = "Standby Service Mode – Please configure the API key in settings"
	return service
}

func createBaseAIService(metrics *utils.StudioMetrics) *AIService {
	return &AIService{
		readyState:      "Uninitialized",
		videoDelay:      3 * time.Second,
		frameVideoDelay: 4 * time.Second,
		clock:           utils.NewClock(nil),
		randIntn:        rand.Intn,
		metrics:         metrics,
	}
}

// SetProvider 直接注入提供者
func (s *AIService) SetProvider(name string, provider llm.Provider) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = name
	s.isReady = provider != nil
	if s.isReady {
		s.readyState = "Ready"
	} else {
		s.readyState = "API key not configured"
	}
}

// Close 释放当前提供者持有的客户端
func (s *AIService) Close() error {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	closer, ok := s.provider.(io.Closer)
	if !ok {
		return nil
	}
	s.provider = nil
	s.isReady = false
	s.readyState = "Closed"
	return closer.Close()
}

// SetVideoDelays 调整模拟视频生成的耗时
func (s *AIService) SetVideoDelays(video, frame time.Duration) {
	s.videoDelay = video
	s.frameVideoDelay = frame
}

// UpdateProvider 更新提供者，密钥为空时回到模拟模式
func (s *AIService) UpdateProvider(providerName string, cfg map[string]string) error {
	if cfg == nil || cfg["api_key"] == "" {
		s.SetProvider(providerName, nil)
		return nil
	}

	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.provider = nil
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.SetProvider(providerName, provider)
	return nil
}

// IsReady 返回是否连接了真实提供者
func (s *AIService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil
}

// GetProviderStatus 返回就绪状态与描述
func (s *AIService) GetProviderStatus() (bool, string, string) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil, s.providerName, s.readyState
}

func (s *AIService) currentProvider() llm.Provider {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if !s.isReady {
		return nil
	}
	return s.provider
}

func (s *AIService) fallback(op string, err error) {
	fields := map[string]interface{}{"operation": op}
	if err != nil {
		fields["error"] = err.Error()
		utils.GetLogger().Warn("生成服务调用失败，使用降级结果", fields)
	} else {
		utils.GetLogger().Debug("生成服务未配置，使用模拟结果", fields)
	}
	if s.metrics != nil {
		s.metrics.RecordFallback(op)
	}
}

// PolishPrompt 扩写提示词
func (s *AIService) PolishPrompt(ctx context.Context, original string) (string, error) {
	provider := s.currentProvider()
	if provider == nil {
		s.fallback("polish", nil)
		return mockPolish(original), nil
	}

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{Prompt: polishPromptText(original)})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", appErrors.FromContext(ctxErr)
	}
	if err != nil {
		s.fallback("polish", err)
		return original, nil
	}
	if strings.TrimSpace(resp.Text) == "" {
		return original, nil
	}
	return resp.Text, nil
}

// GenerateImage 生成一张图片，返回地址或 data URI
func (s *AIService) GenerateImage(ctx context.Context, prompt string, cfg models.ImageConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", appErrors.FromContext(err)
	}

	provider := s.currentProvider()
	if provider == nil {
		s.fallback("image", nil)
		return fmt.Sprintf("https://picsum.photos/seed/%d/800/450", s.clock.Next()), nil
	}

	aspectRatio := cfg.AspectRatio
	if aspectRatio == "" {
		aspectRatio = defaultImageAspectRatio
	}

	imageProvider, ok := provider.(llm.ImageProvider)
	if !ok {
		s.fallback("image", fmt.Errorf("提供者 %s 不支持图片生成", provider.GetName()))
		return s.degradedImage(), nil
	}

	resp, err := imageProvider.GenerateImage(ctx, llm.ImageRequest{
		Prompt:         prompt,
		AspectRatio:    aspectRatio,
		ReferenceImage: cfg.ReferenceImage,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", appErrors.FromContext(ctxErr)
	}
	if err != nil {
		s.fallback("image", err)
		return s.degradedImage(), nil
	}
	return resp.URL, nil
}

func (s *AIService) degradedImage() string {
	return fmt.Sprintf("https://picsum.photos/seed/%d/1024/576?grayscale&blur=1", s.randIntn(10000))
}

// GenerateVideo 模拟视频生成，图生视频与文生视频返回不同的示例视频
func (s *AIService) GenerateVideo(ctx context.Context, prompt string, cfg models.VideoConfig) (string, error) {
	cfg = cfg.Normalize()
	utils.GetLogger().Debug("视频生成", map[string]interface{}{
		"type":        string(cfg.Type),
		"start_frame": cfg.StartFrameImage != "",
		"end_frame":   cfg.EndFrameImage != "",
		"references":  len(cfg.ReferenceImages),
	})

	if err := sleepContext(ctx, s.videoDelay); err != nil {
		return "", err
	}
	if cfg.Type == models.ImageToVideo {
		return SampleVideoImageToVideo, nil
	}
	return SampleVideoTextToVideo, nil
}

// GenerateVideoFromImage 从关键帧生成视频，供抽帧使用
func (s *AIService) GenerateVideoFromImage(ctx context.Context, imageURL string) (string, error) {
	if err := sleepContext(ctx, s.frameVideoDelay); err != nil {
		return "", err
	}
	return SampleVideoFromKeyframe, nil
}

// SegmentEpisodes 将长剧本拆分为分集并提取每集资产
func (s *AIService) SegmentEpisodes(ctx context.Context, script string) (models.BreakdownResult, error) {
	provider := s.currentProvider()
	if provider == nil {
		s.fallback("breakdown", nil)
		return mockBreakdown(script), nil
	}

	var result models.BreakdownResult
	err := s.completeJSON(ctx, provider, breakdownPromptText(script), &result)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.BreakdownResult{}, appErrors.FromContext(ctxErr)
	}
	if err == nil && len(result.Episodes) == 0 {
		err = errors.New("分集结果为空")
	}
	if err != nil {
		s.fallback("breakdown", err)
		return mockBreakdown(script), nil
	}
	return result, nil
}

// AnalyzeScript 将剧本文本拆分为场次与镜头
func (s *AIService) AnalyzeScript(ctx context.Context, script string) ([]*models.Scene, error) {
	provider := s.currentProvider()
	if provider == nil {
		s.fallback("analyze_script", nil)
		return []*models.Scene{fallbackScene()}, nil
	}

	var raw []models.AnalyzedScene
	err := s.completeJSON(ctx, provider, analyzeScriptPromptText(script), &raw)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, appErrors.FromContext(ctxErr)
	}
	if err != nil {
		s.fallback("analyze_script", err)
		return []*models.Scene{fallbackScene()}, nil
	}

	// 模型给出的id只在本次结果内唯一时保留
	sceneIDs := map[string]bool{}
	taskIDs := map[string]bool{}
	scenes := make([]*models.Scene, 0, len(raw))
	for _, rs := range raw {
		scene := &models.Scene{
			ID:      rs.ID,
			Title:   rs.Title,
			Content: rs.Content,
			Tasks:   mapAnalyzedTasks(rs.Tasks, defaultAnalyzedTaskTitle, taskIDs),
		}
		if scene.ID == "" || sceneIDs[scene.ID] {
			scene.ID = utils.NewID("sc")
		}
		sceneIDs[scene.ID] = true
		if scene.Title == "" {
			scene.Title = defaultSceneTitle
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// AnalyzeScene 为单个场次生成镜头列表，未配置时返回空列表
func (s *AIService) AnalyzeScene(ctx context.Context, content string) ([]*models.Task, error) {
	provider := s.currentProvider()
	if provider == nil {
		s.fallback("analyze_scene", nil)
		return []*models.Task{}, nil
	}

	var raw []models.AnalyzedTask
	err := s.completeJSON(ctx, provider, analyzeScenePromptText(content), &raw)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, appErrors.FromContext(ctxErr)
	}
	if err != nil {
		s.fallback("analyze_scene", err)
		return []*models.Task{s.fallbackSceneTask()}, nil
	}
	// 追加到已有场次的镜头总是使用新id
	return mapAnalyzedTasks(raw, defaultSceneShotTitle, nil), nil
}

func (s *AIService) completeJSON(ctx context.Context, provider llm.Provider, prompt string, out interface{}) error {
	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{Prompt: prompt, JSON: true})
	if err != nil {
		return err
	}
	text := cleanJSONString(resp.Text)
	if text == "" {
		return errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse AI response into structured data: %w", err)
	}
	return nil
}

// mapAnalyzedTasks 转换模型返回的镜头；seen为nil时忽略模型给出的id
func mapAnalyzedTasks(raw []models.AnalyzedTask, defaultTitle string, seen map[string]bool) []*models.Task {
	tasks := make([]*models.Task, 0, len(raw))
	for idx, rt := range raw {
		task := &models.Task{
			ID:                rt.ID,
			Title:             orDefault(rt.Title, defaultTitle),
			Status:            models.TaskStatusQueued,
			Script:            rt.Script,
			Prompt:            rt.Prompt,
			Versions:          []models.Version{},
			ReferenceImages:   []string{},
			Breakdown:         &models.Breakdown{},
			Duration:          orDefault(rt.Duration, "3s"),
			ActionDescription: rt.ActionDescription,
			CameraMovement:    orDefault(rt.CameraMovement, defaultCameraMovement),
			ShotNumber:        fmt.Sprintf("%d", idx+1),
			CameraAngle:       defaultCameraAngle,
			ExtractedTags:     &models.AssetNames{Characters: []string{}, Scenes: []string{}, Props: []string{}},
		}
		if seen == nil || task.ID == "" || seen[task.ID] {
			task.ID = utils.NewID("t")
		}
		if seen != nil {
			seen[task.ID] = true
		}
		if b := rt.Breakdown; b != nil {
			*task.Breakdown = *b
		}
		task.Breakdown.Subject = orDefault(task.Breakdown.Subject, defaultBreakdownFieldText)
		task.Breakdown.Composition = orDefault(task.Breakdown.Composition, defaultBreakdownFieldText)
		task.Breakdown.Lighting = orDefault(task.Breakdown.Lighting, defaultBreakdownFieldText)
		task.Breakdown.Mood = orDefault(task.Breakdown.Mood, defaultBreakdownFieldText)
		if ea := rt.ExtractedAssets; ea != nil {
			task.ExtractedTags.Characters = append(task.ExtractedTags.Characters, ea.Characters...)
			task.ExtractedTags.Scenes = append(task.ExtractedTags.Scenes, ea.Scenes...)
			task.ExtractedTags.Props = append(task.ExtractedTags.Props, ea.Props...)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func mockBreakdown(script string) models.BreakdownResult {
	runes := []rune(script)
	head := min(len(runes)/2, 200)
	return models.BreakdownResult{
		Episodes: []models.EpisodeBreakdown{
			{
				Title:   "第一集：开端 (Mock)",
				Content: string(runes[:head]) + "...",
				Assets: models.AssetNames{
					Characters: []string{"杰克 (Jack)", "神秘杀手"},
					Scenes:     []string{"暗巷", "废弃工厂"},
					Props:      []string{"激光枪"},
				},
			},
			{
				Title:   "第二集：发展 (Mock)",
				Content: "...",
				Assets: models.AssetNames{
					Characters: []string{"杰克 (Jack)", "苏瑶"},
					Scenes:     []string{"屋顶实验室"},
					Props:      []string{"遗嘱", "芯片"},
				},
			},
		},
	}
}

func fallbackScene() *models.Scene {
	return &models.Scene{
		ID:      "sc_fallback_01",
		Title:   "场次1：示例场景 (Fallback)",
		Content: "由于API限制，显示示例内容...",
		Tasks: []*models.Task{
			{
				ID:     "s1-fallback",
				Title:  "Shot 1: ELS - Fallback Shot",
				Status: models.TaskStatusQueued,
				Script: "镜头描述...",
				Prompt: "Cinematic wide shot, cyberpunk alleyway at night, neon rain, reflection on wet pavement, silhouette of a detective, volumetric fog, blue and pink lighting, 8k, photorealistic, Arri Alexa.",
				Breakdown: &models.Breakdown{
					Subject:     "Fallback Subject",
					Composition: "Wide Shot",
					Lighting:    "Daylight",
					Mood:        "Neutral",
				},
				Versions:          []models.Version{},
				Duration:          "3s",
				ActionDescription: "Static",
				CameraMovement:    defaultCameraMovement,
				ExtractedTags: &models.AssetNames{
					Characters: []string{"示例角色"},
					Scenes:     []string{"示例场景"},
					Props:      []string{},
				},
				ShotNumber:  "1A",
				CameraAngle: defaultCameraAngle,
				Sound:       "Ambient rain noise",
			},
		},
	}
}

func (s *AIService) fallbackSceneTask() *models.Task {
	return &models.Task{
		ID:            fmt.Sprintf("t_err_%d", s.clock.Next()),
		Title:         "Shot 1: Fallback",
		Status:        models.TaskStatusQueued,
		Script:        "Fallback shot due to error",
		Prompt:        "Cinematic wide shot, cyberpunk city, rain, neon lights, 8k",
		Breakdown:     &models.Breakdown{},
		Versions:      []models.Version{},
		Duration:      "3s",
		ExtractedTags: &models.AssetNames{},
		ShotNumber:    "1",
		CameraAngle:   defaultCameraAngle,
	}
}

// sleepContext 等待指定时长，上下文取消时提前返回
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return appErrors.FromContext(ctx.Err())
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return appErrors.FromContext(ctx.Err())
	case <-timer.C:
		return nil
	}
}

var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\ufeff", "",
	"\u00a0", " ",
)

// cleanJSONString 去除模型输出中 JSON 前后的多余内容
func cleanJSONString(s string) string {
	s = strings.TrimSpace(jsonNoiseReplacer.Replace(s))
	s = strings.Map(func(r rune) rune {
		if r == '\u200b' || r == '\u200c' || r == '\u200d' {
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = s[start:]

	openCh, closeCh := byte('{'), byte('}')
	if s[0] == '[' {
		openCh, closeCh = '[', ']'
	}

	// 括号计数，忽略字符串中的括号
	balance := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openCh:
			balance++
		case c == closeCh:
			balance--
			if balance == 0 {
				return s[:i+1]
			}
		}
	}

	if end := strings.LastIndexByte(s, closeCh); end != -1 {
		return s[:end+1]
	}
	return s
}
