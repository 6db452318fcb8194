// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/resolve"
)

// ProjectReader 导出只需要读取项目
type ProjectReader interface {
	Get(projectID string) (*models.Project, error)
}

// ExportService 把一集的分镜导出为可分享的文档
type ExportService struct {
	store ProjectReader
	now   func() time.Time
}

// NewExportService 创建导出服务
func NewExportService(store ProjectReader) *ExportService {
	return &ExportService{store: store, now: time.Now}
}

// ExportEpisode 导出分集的镜头表
func (s *ExportService) ExportEpisode(projectID, draftID, episodeID, format string) (*models.ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = models.ExportFormatMarkdown
	}
	if format == "md" {
		format = models.ExportFormatMarkdown
	}
	switch format {
	case models.ExportFormatJSON, models.ExportFormatMarkdown, models.ExportFormatText:
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("不支持的导出格式: %s，支持的格式: json, markdown, txt", format), nil)
	}

	project, err := s.store.Get(projectID)
	if err != nil {
		return nil, errors.WrapError(err, "导出分集", errors.ErrorTypeError)
	}
	draft, ok := project.FindDraft(draftID)
	if !ok {
		return nil, draftNotFound(draftID)
	}
	episode, ok := draft.FindEpisode(episodeID)
	if !ok {
		return nil, episodeNotFound(episodeID)
	}

	shots, stats := collectShots(project.Assets, episode)
	title := fmt.Sprintf("%s - %s", draft.Title, episode.Title)

	var content string
	switch format {
	case models.ExportFormatJSON:
		content, err = formatShotsJSON(title, shots, stats)
		if err != nil {
			return nil, errors.NewProcessingError("JSON序列化失败", err)
		}
	case models.ExportFormatMarkdown:
		content = formatShotsMarkdown(title, shots, stats)
	default:
		content = formatShotsText(title, shots, stats)
	}

	return &models.ExportResult{
		ProjectID:   projectID,
		DraftID:     draftID,
		EpisodeID:   episodeID,
		Title:       title,
		Format:      format,
		Filename:    exportFilename(project.Name, episode, format),
		Content:     content,
		GeneratedAt: s.now(),
		Stats:       stats,
	}, nil
}

// collectShots 按场次顺序展开镜头并统计
func collectShots(assets models.AssetCollection, episode *models.ScriptEpisode) ([]models.ExportShot, *models.ExportStats) {
	stats := &models.ExportStats{SceneCount: len(episode.Scenes)}
	shots := make([]models.ExportShot, 0, episode.TaskCount())

	for _, sc := range episode.Scenes {
		for _, task := range sc.Tasks {
			shot := models.ExportShot{
				SceneID:    sc.ID,
				SceneTitle: sc.Title,
				TaskID:     task.ID,
				ShotNumber: task.ShotNumber,
				Title:      task.Title,
				Status:     string(task.Status),
				Duration:   task.Duration,
				Camera:     strings.TrimSpace(strings.Join(nonEmpty(task.CameraAngle, task.CameraMovement), " / ")),
				Script:     task.Script,
				Prompt:     task.Prompt,
				Keyframe:   task.KeyframeImage,
			}
			for _, ref := range resolve.References(assets, task) {
				shot.References = append(shot.References, ref.Name)
			}

			for _, v := range task.Versions {
				if v.IsImage() {
					stats.ImageVersions++
				} else {
					stats.VideoVersions++
					shot.Video = v.ImgURL
				}
				if v.IsFavorite {
					stats.Favorites++
				}
			}
			if task.Status == models.TaskStatusDone {
				stats.DoneShots++
			}
			if task.KeyframeImage != "" {
				stats.KeyframeShots++
			}
			shots = append(shots, shot)
		}
	}
	stats.ShotCount = len(shots)
	return shots, stats
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func exportFilename(projectName string, episode *models.ScriptEpisode, format string) string {
	base := slug.Make(projectName + " " + episode.Title)
	if base == "" {
		base = episode.ID
	}
	ext := format
	if format == models.ExportFormatMarkdown {
		ext = "md"
	}
	return base + "-storyboard." + ext
}

func formatShotsJSON(title string, shots []models.ExportShot, stats *models.ExportStats) (string, error) {
	data, err := json.MarshalIndent(map[string]interface{}{
		"title":      title,
		"statistics": stats,
		"shots":      shots,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatShotsMarkdown(title string, shots []models.ExportShot, stats *models.ExportStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 分镜表\n\n", title)
	fmt.Fprintf(&b, "- 场次: %d\n- 镜头: %d（完成 %d，已定关键帧 %d）\n- 版本: 图片 %d，视频 %d，收藏 %d\n\n",
		stats.SceneCount, stats.ShotCount, stats.DoneShots, stats.KeyframeShots,
		stats.ImageVersions, stats.VideoVersions, stats.Favorites)

	currentScene := ""
	for _, shot := range shots {
		if shot.SceneID != currentScene {
			currentScene = shot.SceneID
			fmt.Fprintf(&b, "## %s\n\n", shot.SceneTitle)
			b.WriteString("| 镜号 | 标题 | 状态 | 时长 | 机位 | 参考 | 关键帧 |\n")
			b.WriteString("|---|---|---|---|---|---|---|\n")
		}
		keyframe := ""
		if shot.Keyframe != "" {
			keyframe = fmt.Sprintf("![](%s)", shot.Keyframe)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(firstNonEmpty(shot.ShotNumber, shot.TaskID)), cell(shot.Title), shot.Status,
			cell(shot.Duration), cell(shot.Camera), cell(strings.Join(shot.References, "、")), keyframe)
	}
	return b.String()
}

func formatShotsText(title string, shots []models.ExportShot, stats *models.ExportStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 分镜表\n", title)
	b.WriteString(strings.Repeat("=", 40) + "\n")
	fmt.Fprintf(&b, "场次 %d  镜头 %d  完成 %d\n\n", stats.SceneCount, stats.ShotCount, stats.DoneShots)

	for i, shot := range shots {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)\n", i+1, firstNonEmpty(shot.ShotNumber, shot.TaskID), shot.Title, shot.Status)
		if shot.Script != "" {
			fmt.Fprintf(&b, "   剧本: %s\n", shot.Script)
		}
		if shot.Prompt != "" {
			fmt.Fprintf(&b, "   提示词: %s\n", shot.Prompt)
		}
		if len(shot.References) > 0 {
			fmt.Fprintf(&b, "   参考: %s\n", strings.Join(shot.References, "、"))
		}
	}
	return b.String()
}

// cell 表格单元格中不能出现换行与竖线
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
