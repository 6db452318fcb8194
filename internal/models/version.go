// internal/models/version.go
package models

// VersionType 生成产物类型
type VersionType string

const (
	VersionTypeImage VersionType = "image"
	VersionTypeVideo VersionType = "video"
)

// Version 镜头的一次生成结果，只追加不修改（收藏标记除外）
type Version struct {
	ID                 string      `json:"id" yaml:"id"`
	ImgURL             string      `json:"img_url" yaml:"img_url"`
	Prompt             string      `json:"prompt" yaml:"prompt"`
	Timestamp          int64       `json:"timestamp" yaml:"timestamp"` // 毫秒
	IsFavorite         bool        `json:"is_favorite" yaml:"is_favorite"`
	Type               VersionType `json:"type" yaml:"type"`
	Model              string      `json:"model,omitempty" yaml:"model,omitempty"`
	AspectRatio        string      `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Resolution         string      `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Duration           string      `json:"duration,omitempty" yaml:"duration,omitempty"`
	ReferencedAssetIDs []string    `json:"referenced_asset_ids,omitempty" yaml:"referenced_asset_ids,omitempty"`
}

// IsImage 是否为图片版本
func (v Version) IsImage() bool {
	return v.Type == VersionTypeImage
}

// GenerationMode 生成模式
type GenerationMode string

const (
	GenerationModeImage GenerationMode = "image"
	GenerationModeVideo GenerationMode = "video"
)

// WorkbenchMode 工作台视图模式
type WorkbenchMode string

const (
	WorkbenchT2I WorkbenchMode = "workbench_t2i"
	WorkbenchI2V WorkbenchMode = "workbench_i2v"
)

// GenerationMode 返回工作台模式对应的生成模式
func (m WorkbenchMode) GenerationMode() GenerationMode {
	if m == WorkbenchI2V {
		return GenerationModeVideo
	}
	return GenerationModeImage
}

// ImageConfig 图片生成配置
type ImageConfig struct {
	AspectRatio    string `json:"aspect_ratio"`
	Resolution     string `json:"resolution"`
	Model          string `json:"model"`
	ReferenceImage string `json:"reference_image,omitempty"` // data URI
}

// VideoGenerationType 视频生成方式
type VideoGenerationType string

const (
	TextToVideo  VideoGenerationType = "text_to_video"
	ImageToVideo VideoGenerationType = "image_to_video"
)

// VideoConfig 视频生成配置
type VideoConfig struct {
	Type            VideoGenerationType `json:"type"`
	Duration        string              `json:"duration"`
	AspectRatio     string              `json:"aspect_ratio"`
	Resolution      string              `json:"resolution"`
	Model           string              `json:"model"`
	Motion          string              `json:"motion"`
	StartFrameImage string              `json:"start_frame_image,omitempty"`
	EndFrameImage   string              `json:"end_frame_image,omitempty"`
	ReferenceImages []string            `json:"reference_images,omitempty"`
}

// Normalize 填充未指定的生成方式：有首帧或参考图时为图生视频
func (c VideoConfig) Normalize() VideoConfig {
	if c.Type == "" {
		if c.StartFrameImage != "" || c.EndFrameImage != "" || len(c.ReferenceImages) > 0 {
			c.Type = ImageToVideo
		} else {
			c.Type = TextToVideo
		}
	}
	return c
}
