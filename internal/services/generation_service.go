// internal/services/generation_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/resolve"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// Generator 生成服务的最小接口，由 AIService 实现
type Generator interface {
	GenerateImage(ctx context.Context, prompt string, cfg models.ImageConfig) (string, error)
	GenerateVideo(ctx context.Context, prompt string, cfg models.VideoConfig) (string, error)
}

// GenerateRequest 一次批量生成请求
type GenerateRequest struct {
	ProjectID          string                `json:"-" validate:"required"`
	Path               models.TaskPath       `json:"-"`
	Mode               models.GenerationMode `json:"mode" validate:"required,oneof=image video"`
	Prompt             string                `json:"prompt" validate:"required"`
	Count              int                   `json:"count" validate:"min=1"`
	Image              models.ImageConfig    `json:"image"`
	Video              models.VideoConfig    `json:"video"`
	ReferencedAssetIDs []string              `json:"referenced_asset_ids,omitempty"`
}

// GenerateResult 批量生成成功后的结果
type GenerateResult struct {
	Path     models.TaskPath  `json:"path"`
	Task     *models.Task     `json:"task"`
	Versions []models.Version `json:"versions"`
	Revision int64            `json:"revision"`
}

// GenerationService 生成编排：串行调用生成服务，整批一次性提交
type GenerationService struct {
	store     *ProjectStore
	generator Generator
	locks     *LockManager
	progress  *ProgressService
	metrics   *utils.StudioMetrics
	clock     *utils.Clock
	validate  *validator.Validate
	maxBatch  int
}

// NewGenerationService 创建生成编排服务
func NewGenerationService(store *ProjectStore, generator Generator, locks *LockManager, progress *ProgressService, metrics *utils.StudioMetrics, maxBatch int) *GenerationService {
	if maxBatch < 0 {
		maxBatch = 0
	}
	if locks == nil {
		locks = NewLockManager()
	}
	if progress == nil {
		progress = NewProgressService()
	}
	return &GenerationService{
		store:     store,
		generator: generator,
		locks:     locks,
		progress:  progress,
		metrics:   metrics,
		clock:     utils.NewClock(nil),
		validate:  validator.New(),
		maxBatch:  maxBatch,
	}
}

// SetClock 替换时间来源
func (s *GenerationService) SetClock(clock *utils.Clock) {
	s.clock = clock
}

func gateKey(projectID string, path models.TaskPath) string {
	return "generate:" + projectID + "/" + path.Key()
}

// IsGenerating 镜头是否有进行中的批次
func (s *GenerationService) IsGenerating(projectID string, path models.TaskPath) bool {
	return s.locks.IsHeld(gateKey(projectID, path))
}

func (s *GenerationService) check(req *GenerateRequest) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := s.validate.Struct(req); err != nil {
		return errors.NewValidationError("生成请求无效", err)
	}
	if req.Path.SceneID == "" || req.Path.TaskID == "" {
		return errors.NewValidationError("缺少镜头路径", nil)
	}
	if s.maxBatch > 0 && req.Count > s.maxBatch {
		return errors.NewValidationError(fmt.Sprintf("单次最多生成 %d 个版本", s.maxBatch), nil)
	}
	if _, _, err := s.store.Task(req.ProjectID, req.Path); err != nil {
		return err
	}
	return nil
}

// acquire 校验请求并占用镜头的生成闸门
func (s *GenerationService) acquire(req *GenerateRequest) (func(), error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	key := gateKey(req.ProjectID, req.Path)
	if !s.locks.TryAcquire(key) {
		return nil, errors.NewConflictError("该镜头正在生成中，请等待当前批次完成", nil).WithCode(errors.CodeGenerationInProgress)
	}
	return func() { s.locks.Release(key) }, nil
}

// Generate 同步执行一次批量生成
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	release, err := s.acquire(&req)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.run(ctx, req, nil)
}

// StartGenerate 异步执行批量生成，返回可通过进度服务订阅或取消的任务ID
func (s *GenerationService) StartGenerate(req GenerateRequest) (string, error) {
	release, err := s.acquire(&req)
	if err != nil {
		return "", err
	}

	jobID := utils.NewID("job")
	ctx, cancel := context.WithCancel(context.Background())
	tracker := s.progress.CreateTracker(jobID, "generate", cancel)

	go func() {
		defer cancel()
		defer release()

		result, err := s.run(ctx, req, tracker)
		switch {
		case err == nil:
			tracker.Complete(fmt.Sprintf("已生成 %d 个版本", len(result.Versions)), result)
		case errors.IsTimeoutError(err):
			tracker.Cancelled()
		default:
			tracker.Fail(err.Error())
		}
	}()

	return jobID, nil
}

func (s *GenerationService) run(ctx context.Context, req GenerateRequest, tracker *ProgressTracker) (*GenerateResult, error) {
	logger := utils.GetLogger()
	start := time.Now()
	if s.metrics != nil {
		s.metrics.GenerationStarted()
	}

	// 进入生成状态，同时记录批次开始前的状态
	var previous models.TaskStatus
	project, task, err := s.store.UpdateTask(req.ProjectID, req.Path, "generate.start", func(t *models.Task) {
		previous = t.Status
		t.Status = models.TaskStatusGenerating
	})
	if err != nil {
		s.finish(req.Mode, 0, start, false)
		return nil, err
	}

	refs := s.references(project.Assets, task, req.ReferencedAssetIDs)
	prompt := req.Prompt
	if req.Mode == models.GenerationModeImage && len(refs) > 0 {
		prompt = resolve.AugmentPrompt(req.Prompt, refs)
	}
	refIDs := resolve.IDs(refs)

	versions := make([]models.Version, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		if tracker != nil {
			tracker.UpdateProgress(i*100/req.Count, fmt.Sprintf("正在生成第 %d/%d 个版本", i+1, req.Count))
		}

		url, err := s.call(ctx, req, prompt)
		if err != nil && ctx.Err() != nil {
			err = errors.FromContext(ctx.Err())
		}
		if err != nil {
			logger.Warn("批量生成失败，丢弃本批次", map[string]interface{}{
				"project_id": req.ProjectID,
				"task":       req.Path.String(),
				"index":      i,
				"error":      err.Error(),
			})
			s.restore(req, previous)
			s.finish(req.Mode, 0, start, false)
			if errors.IsTimeoutError(err) {
				return nil, err
			}
			return nil, errors.NewProcessingError(fmt.Sprintf("第 %d 个版本生成失败", i+1), err)
		}

		versions = append(versions, s.newVersion(req, url, i, refIDs))
	}

	// 整批一次提交
	project, task, err = s.store.UpdateTask(req.ProjectID, req.Path, "generate.commit", func(t *models.Task) {
		t.AppendVersions(versions...)
		t.Status = models.TaskStatusDone
		if req.Mode == models.GenerationModeImage {
			t.SetKeyframe(versions[len(versions)-1])
		}
	})
	if err != nil {
		s.finish(req.Mode, 0, start, false)
		return nil, err
	}

	s.finish(req.Mode, len(versions), start, true)
	logger.Info("批量生成完成", map[string]interface{}{
		"project_id": req.ProjectID,
		"task":       req.Path.String(),
		"mode":       string(req.Mode),
		"versions":   len(versions),
	})

	return &GenerateResult{
		Path:     req.Path,
		Task:     task,
		Versions: versions,
		Revision: s.store.Revision(project.ID),
	}, nil
}

func (s *GenerationService) references(assets models.AssetCollection, task *models.Task, explicit []string) []models.Asset {
	if explicit != nil {
		return resolve.ResolveIDs(assets, explicit)
	}
	return resolve.References(assets, task)
}

func (s *GenerationService) call(ctx context.Context, req GenerateRequest, prompt string) (string, error) {
	if req.Mode == models.GenerationModeVideo {
		return s.generator.GenerateVideo(ctx, req.Prompt, req.Video.Normalize())
	}
	return s.generator.GenerateImage(ctx, prompt, req.Image)
}

func (s *GenerationService) newVersion(req GenerateRequest, url string, index int, refIDs []string) models.Version {
	ts := s.clock.Next()
	v := models.Version{
		ID:                 fmt.Sprintf("v_%d_%d", ts, index),
		ImgURL:             url,
		Prompt:             req.Prompt,
		Timestamp:          ts,
		Type:               models.VersionTypeImage,
		Model:              req.Image.Model,
		AspectRatio:        req.Image.AspectRatio,
		Resolution:         req.Image.Resolution,
		ReferencedAssetIDs: refIDs,
	}
	if req.Mode == models.GenerationModeVideo {
		v.Type = models.VersionTypeVideo
		v.Model = req.Video.Model
		v.AspectRatio = req.Video.AspectRatio
		v.Resolution = req.Video.Resolution
		v.Duration = req.Video.Duration
	}
	return v
}

// restore 失败后恢复批次开始前的状态，镜头已被删除时忽略
func (s *GenerationService) restore(req GenerateRequest, previous models.TaskStatus) {
	_, _, err := s.store.UpdateTask(req.ProjectID, req.Path, "generate.rollback", func(t *models.Task) {
		t.Status = previous
	})
	if err != nil {
		utils.GetLogger().Warn("恢复镜头状态失败", map[string]interface{}{
			"task":  req.Path.String(),
			"error": err.Error(),
		})
	}
}

func (s *GenerationService) finish(mode models.GenerationMode, versions int, start time.Time, ok bool) {
	if s.metrics != nil {
		s.metrics.GenerationFinished(string(mode), versions, time.Since(start), ok)
	}
}
