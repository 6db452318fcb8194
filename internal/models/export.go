// internal/models/export.go
package models

import "time"

// 支持的分镜导出格式
const (
	ExportFormatJSON     = "json"
	ExportFormatMarkdown = "markdown"
	ExportFormatText     = "txt"
)

// ExportResult 分镜表导出结果
type ExportResult struct {
	ProjectID   string       `json:"project_id"`
	DraftID     string       `json:"draft_id"`
	EpisodeID   string       `json:"episode_id"`
	Title       string       `json:"title"`
	Format      string       `json:"format"`
	Filename    string       `json:"filename"`
	Content     string       `json:"content"`
	GeneratedAt time.Time    `json:"generated_at"`
	Stats       *ExportStats `json:"stats"`
}

// ExportStats 分集的生成进度统计
type ExportStats struct {
	SceneCount    int `json:"scene_count"`
	ShotCount     int `json:"shot_count"`
	DoneShots     int `json:"done_shots"`
	KeyframeShots int `json:"keyframe_shots"`
	ImageVersions int `json:"image_versions"`
	VideoVersions int `json:"video_versions"`
	Favorites     int `json:"favorites"`
}

// ExportShot 导出表中的一个镜头
type ExportShot struct {
	SceneID    string   `json:"scene_id"`
	SceneTitle string   `json:"scene_title"`
	TaskID     string   `json:"task_id"`
	ShotNumber string   `json:"shot_number,omitempty"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Duration   string   `json:"duration,omitempty"`
	Camera     string   `json:"camera,omitempty"`
	Script     string   `json:"script,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Keyframe   string   `json:"keyframe,omitempty"`
	Video      string   `json:"video,omitempty"`
	References []string `json:"references,omitempty"`
}
