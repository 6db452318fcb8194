// internal/models/task.go
package models

import "slices"

// TaskStatus 镜头生成状态
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusGenerating TaskStatus = "generating"
	TaskStatusDone       TaskStatus = "done"
	// TaskStatusRejected 预留给人工驳回，没有任何流程会自动进入该状态
	TaskStatusRejected TaskStatus = "t2i_reject"
)

// Valid 检查状态是否合法
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusGenerating, TaskStatusDone, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// TaskAssets 镜头的三个直接资产槽位
type TaskAssets struct {
	Char  *Asset `json:"char" yaml:"char"`
	Scene *Asset `json:"scene" yaml:"scene"`
	Prop  *Asset `json:"prop" yaml:"prop"`
}

// Slots 按 角色、场景、道具 的固定顺序返回非空槽位
func (a TaskAssets) Slots() []Asset {
	slots := make([]Asset, 0, 3)
	for _, slot := range []*Asset{a.Char, a.Scene, a.Prop} {
		if slot != nil {
			slots = append(slots, *slot)
		}
	}
	return slots
}

// With 返回替换了某个槽位的副本，asset 为 nil 表示清空
func (a TaskAssets) With(slot AssetType, asset *Asset) TaskAssets {
	switch slot {
	case AssetTypeCharacter:
		a.Char = asset
	case AssetTypeScene:
		a.Scene = asset
	case AssetTypeProp:
		a.Prop = asset
	}
	return a
}

// Breakdown 导演视角的镜头拆解
type Breakdown struct {
	Subject     string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Composition string `json:"composition,omitempty" yaml:"composition,omitempty"`
	Lighting    string `json:"lighting,omitempty" yaml:"lighting,omitempty"`
	Mood        string `json:"mood,omitempty" yaml:"mood,omitempty"`
}

// Task 一个镜头，即一次生成工作单元
type Task struct {
	ID                 string      `json:"id" yaml:"id"`
	Title              string      `json:"title" yaml:"title"`
	Status             TaskStatus  `json:"status" yaml:"status"`
	Script             string      `json:"script" yaml:"script"`
	Assets             TaskAssets  `json:"assets" yaml:"assets"`
	Prompt             string      `json:"prompt" yaml:"prompt"`
	Versions           []Version   `json:"versions" yaml:"versions"`
	ReferenceImages    []string    `json:"reference_images,omitempty" yaml:"reference_images,omitempty"`
	Breakdown          *Breakdown  `json:"breakdown,omitempty" yaml:"breakdown,omitempty"`
	Duration           string      `json:"duration,omitempty" yaml:"duration,omitempty"`
	KeyframeImage      string      `json:"keyframe_image,omitempty" yaml:"keyframe_image,omitempty"`
	KeyframeVersionID  string      `json:"keyframe_version_id,omitempty" yaml:"keyframe_version_id,omitempty"`
	ReferencedAssetIDs []string    `json:"referenced_asset_ids,omitempty" yaml:"referenced_asset_ids,omitempty"`
	ActionDescription  string      `json:"action_description,omitempty" yaml:"action_description,omitempty"`
	CameraMovement     string      `json:"camera_movement,omitempty" yaml:"camera_movement,omitempty"`
	ShotNumber         string      `json:"shot_number,omitempty" yaml:"shot_number,omitempty"`
	CameraAngle        string      `json:"camera_angle,omitempty" yaml:"camera_angle,omitempty"`
	Sound              string      `json:"sound,omitempty" yaml:"sound,omitempty"`
	ExtractedTags      *AssetNames `json:"extracted_tags,omitempty" yaml:"extracted_tags,omitempty"`
}

// Clone 浅拷贝。切片与原值共享，修改切片必须先复制
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// LatestVersion 返回最后一个版本
func (t *Task) LatestVersion() (Version, bool) {
	if len(t.Versions) == 0 {
		return Version{}, false
	}
	return t.Versions[len(t.Versions)-1], true
}

// FindVersion 按ID查找版本
func (t *Task) FindVersion(id string) (Version, bool) {
	for _, v := range t.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return Version{}, false
}

// FindVersionByURL 按地址查找版本，有多个匹配时取最早的一个
func (t *Task) FindVersionByURL(url string) (Version, bool) {
	for _, v := range t.Versions {
		if v.ImgURL == url {
			return v, true
		}
	}
	return Version{}, false
}

// AppendVersions 追加版本，总是分配新的底层数组
func (t *Task) AppendVersions(versions ...Version) {
	next := make([]Version, 0, len(t.Versions)+len(versions))
	next = append(next, t.Versions...)
	t.Versions = append(next, versions...)
}

// UpdateVersion 在复制后的版本列表上修改指定版本
func (t *Task) UpdateVersion(id string, fn func(*Version)) bool {
	for i := range t.Versions {
		if t.Versions[i].ID == id {
			t.Versions = slices.Clone(t.Versions)
			fn(&t.Versions[i])
			return true
		}
	}
	return false
}

// SetKeyframe 将版本设为关键帧
func (t *Task) SetKeyframe(v Version) {
	t.KeyframeImage = v.ImgURL
	t.KeyframeVersionID = v.ID
}

// SetKeyframeURL 按地址设置关键帧，地址能匹配到版本时同时记录版本ID
func (t *Task) SetKeyframeURL(url string) {
	t.KeyframeImage = url
	t.KeyframeVersionID = ""
	if url == "" {
		return
	}
	if v, ok := t.FindVersionByURL(url); ok {
		t.KeyframeVersionID = v.ID
	}
}

// Thumbnail 关键帧优先，否则为最新版本
func (t *Task) Thumbnail() string {
	if t.KeyframeImage != "" {
		return t.KeyframeImage
	}
	if v, ok := t.LatestVersion(); ok {
		return v.ImgURL
	}
	return ""
}

// TaskPatch 镜头的局部更新，nil 字段保持不变
type TaskPatch struct {
	Title              *string     `json:"title,omitempty"`
	Status             *TaskStatus `json:"status,omitempty"`
	Script             *string     `json:"script,omitempty"`
	Prompt             *string     `json:"prompt,omitempty"`
	Breakdown          *Breakdown  `json:"breakdown,omitempty"`
	Duration           *string     `json:"duration,omitempty"`
	KeyframeImage      *string     `json:"keyframe_image,omitempty"`
	ReferenceImages    *[]string   `json:"reference_images,omitempty"`
	ReferencedAssetIDs *[]string   `json:"referenced_asset_ids,omitempty"`
	ExtractedTags      *AssetNames `json:"extracted_tags,omitempty"`
	ActionDescription  *string     `json:"action_description,omitempty"`
	CameraMovement     *string     `json:"camera_movement,omitempty"`
	ShotNumber         *string     `json:"shot_number,omitempty"`
	CameraAngle        *string     `json:"camera_angle,omitempty"`
	Sound              *string     `json:"sound,omitempty"`
}

// Apply 将补丁写入镜头
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Script != nil {
		t.Script = *p.Script
	}
	if p.Prompt != nil {
		t.Prompt = *p.Prompt
	}
	if p.Breakdown != nil {
		b := *p.Breakdown
		t.Breakdown = &b
	}
	if p.Duration != nil {
		t.Duration = *p.Duration
	}
	if p.KeyframeImage != nil {
		t.SetKeyframeURL(*p.KeyframeImage)
	}
	if p.ReferenceImages != nil {
		t.ReferenceImages = slices.Clone(*p.ReferenceImages)
	}
	if p.ReferencedAssetIDs != nil {
		t.ReferencedAssetIDs = slices.Clone(*p.ReferencedAssetIDs)
	}
	if p.ExtractedTags != nil {
		tags := *p.ExtractedTags
		t.ExtractedTags = &tags
	}
	if p.ActionDescription != nil {
		t.ActionDescription = *p.ActionDescription
	}
	if p.CameraMovement != nil {
		t.CameraMovement = *p.CameraMovement
	}
	if p.ShotNumber != nil {
		t.ShotNumber = *p.ShotNumber
	}
	if p.CameraAngle != nil {
		t.CameraAngle = *p.CameraAngle
	}
	if p.Sound != nil {
		t.Sound = *p.Sound
	}
}

// IsEmpty 补丁是否没有任何字段
func (p TaskPatch) IsEmpty() bool {
	return p == TaskPatch{}
}
