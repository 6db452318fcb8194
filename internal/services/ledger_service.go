// internal/services/ledger_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/utils"
	"github.com/Corphon/StoryboardStudio/internal/workbench"
)

// FrameCaptureModel 截帧产生的版本所标记的模型
const FrameCaptureModel = "Video Frame Extraction"

// FrameSource 根据静帧生成可截帧的视频
type FrameSource interface {
	GenerateVideoFromImage(ctx context.Context, imageURL string) (string, error)
}

// CaptureRequest 从视频截取的一帧
type CaptureRequest struct {
	ImageData       string `json:"image_data"`
	SourceVersionID string `json:"source_version_id,omitempty"`
}

// ExtractResult 截帧视频
type ExtractResult struct {
	Path     models.TaskPath `json:"path"`
	ImageURL string          `json:"image_url"`
	VideoURL string          `json:"video_url"`
}

// LedgerService 镜头版本记录的维护：收藏、关键帧、历史恢复、截帧与对比
type LedgerService struct {
	store    *ProjectStore
	frames   FrameSource
	progress *ProgressService
	clock    *utils.Clock
}

// NewLedgerService 创建版本服务
func NewLedgerService(store *ProjectStore, frames FrameSource, progress *ProgressService) *LedgerService {
	if progress == nil {
		progress = NewProgressService()
	}
	return &LedgerService{
		store:    store,
		frames:   frames,
		progress: progress,
		clock:    utils.NewClock(nil),
	}
}

// SetClock 替换时间来源
func (s *LedgerService) SetClock(clock *utils.Clock) {
	s.clock = clock
}

func versionNotFound(versionID string) error {
	return errors.NewNotFoundError("版本不存在: "+versionID, nil)
}

// version 读取镜头中的版本
func (s *LedgerService) version(projectID string, path models.TaskPath, versionID string) (*models.Task, models.Version, error) {
	_, task, err := s.store.Task(projectID, path)
	if err != nil {
		return nil, models.Version{}, err
	}
	v, ok := task.FindVersion(versionID)
	if !ok {
		return task, models.Version{}, versionNotFound(versionID)
	}
	return task, v, nil
}

// ToggleFavorite 切换版本的收藏标记
func (s *LedgerService) ToggleFavorite(projectID string, path models.TaskPath, versionID string) (*models.Task, error) {
	if _, _, err := s.version(projectID, path, versionID); err != nil {
		return nil, err
	}
	found := false
	_, task, err := s.store.UpdateTask(projectID, path, "version.favorite", func(t *models.Task) {
		found = t.UpdateVersion(versionID, func(v *models.Version) {
			v.IsFavorite = !v.IsFavorite
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, versionNotFound(versionID)
	}
	return task, nil
}

// keyframe 把图片版本设为关键帧
func (s *LedgerService) keyframe(projectID string, path models.TaskPath, versionID, op string) (*models.Task, error) {
	_, v, err := s.version(projectID, path, versionID)
	if err != nil {
		return nil, err
	}
	if !v.IsImage() {
		return nil, errors.NewValidationError("只有图片版本可以设为分镜图", nil)
	}
	_, task, err := s.store.UpdateTask(projectID, path, op, func(t *models.Task) {
		t.SetKeyframe(v)
	})
	return task, err
}

// SetKeyframe 将版本设为分镜图
func (s *LedgerService) SetKeyframe(projectID string, path models.TaskPath, versionID string) (*models.Task, error) {
	return s.keyframe(projectID, path, versionID, "version.keyframe")
}

// RestoreVersion 恢复历史图片版本，即重新指定关键帧
func (s *LedgerService) RestoreVersion(projectID string, path models.TaskPath, versionID string) (*models.Task, error) {
	return s.keyframe(projectID, path, versionID, "version.restore")
}

// CaptureFrame 把截取的帧追加为新的图片版本并设为关键帧
func (s *LedgerService) CaptureFrame(projectID string, path models.TaskPath, req CaptureRequest) (*models.Task, models.Version, error) {
	if strings.TrimSpace(req.ImageData) == "" {
		return nil, models.Version{}, errors.NewValidationError("截帧图片不能为空", nil)
	}

	var frame models.Version
	_, task, err := s.store.UpdateTask(projectID, path, "version.capture", func(t *models.Task) {
		prompt := t.Prompt
		sourceID := req.SourceVersionID
		if sourceID == "" {
			sourceID = workbench.ActiveVersionID(t)
		}
		if src, ok := t.FindVersion(sourceID); ok && src.Prompt != "" {
			prompt = src.Prompt
		}

		ts := s.clock.Next()
		frame = models.Version{
			ID:        fmt.Sprintf("v_frame_%d", ts),
			ImgURL:    req.ImageData,
			Prompt:    prompt,
			Timestamp: ts,
			Type:      models.VersionTypeImage,
			Model:     FrameCaptureModel,
		}
		t.AppendVersions(frame)
		t.SetKeyframe(frame)
	})
	if err != nil {
		return nil, models.Version{}, err
	}
	return task, frame, nil
}

// frameInput 截帧视频的输入静帧：指定版本或当前关键帧
func (s *LedgerService) frameInput(projectID string, path models.TaskPath, versionID string) (string, error) {
	if versionID != "" {
		_, v, err := s.version(projectID, path, versionID)
		if err != nil {
			return "", err
		}
		if !v.IsImage() {
			return "", errors.NewValidationError("只能从图片版本生成视频", nil)
		}
		return v.ImgURL, nil
	}

	_, task, err := s.store.Task(projectID, path)
	if err != nil {
		return "", err
	}
	if task.KeyframeImage == "" {
		return "", errors.NewValidationError("镜头还没有分镜图", nil)
	}
	return task.KeyframeImage, nil
}

// ExtractVideo 为截帧工具生成视频
func (s *LedgerService) ExtractVideo(ctx context.Context, projectID string, path models.TaskPath, versionID string) (*ExtractResult, error) {
	image, err := s.frameInput(projectID, path, versionID)
	if err != nil {
		return nil, err
	}
	video, err := s.frames.GenerateVideoFromImage(ctx, image)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	return &ExtractResult{Path: path, ImageURL: image, VideoURL: video}, nil
}

// StartExtractVideo 异步生成截帧视频，返回进度任务ID
func (s *LedgerService) StartExtractVideo(projectID string, path models.TaskPath, versionID string) (string, error) {
	image, err := s.frameInput(projectID, path, versionID)
	if err != nil {
		return "", err
	}

	jobID := utils.NewID("job")
	ctx, cancel := context.WithCancel(context.Background())
	tracker := s.progress.CreateTracker(jobID, "extract_video", cancel)

	go func() {
		defer cancel()
		tracker.UpdateProgress(10, "正在生成视频")
		video, err := s.frames.GenerateVideoFromImage(ctx, image)
		switch {
		case err == nil:
			tracker.Complete("视频已生成", &ExtractResult{Path: path, ImageURL: image, VideoURL: video})
		case ctx.Err() != nil:
			tracker.Cancelled()
		default:
			tracker.Fail(err.Error())
		}
	}()
	return jobID, nil
}

// Compare 取出两个版本用于对比
func (s *LedgerService) Compare(projectID string, path models.TaskPath, leftID, rightID string) (*workbench.Comparison, error) {
	if leftID == "" || rightID == "" {
		return nil, errors.NewValidationError("请选择两个版本进行对比", nil)
	}
	_, task, err := s.store.Task(projectID, path)
	if err != nil {
		return nil, err
	}
	cmp, ok := workbench.Compare(task, leftID, rightID)
	if !ok {
		return nil, errors.NewNotFoundError("对比的版本不存在", nil)
	}
	return &cmp, nil
}
