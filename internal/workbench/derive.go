// internal/workbench/derive.go
//
// Package workbench 从项目树派生工作台的所有只读视图：当前范围、选中的场景与镜头、
// 当前显示的版本、时间线与分镜列表。这里不保存任何状态，每次都从树重新计算。
package workbench

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Corphon/StoryboardStudio/internal/models"
)

// UnmatchedKeyframe 关键帧地址在版本列表中没有对应记录时使用的版本ID
const UnmatchedKeyframe = "temp_keyframe"

// DefaultShotDuration 镜头未设置时长时的默认值
const DefaultShotDuration = "3s"

// Scope 工作台当前操作的场景列表：某一集，或旧版平铺列表
type Scope struct {
	DraftID   string
	EpisodeID string
	Episode   *models.ScriptEpisode
	Scenes    []*models.Scene
}

// Legacy 是否为旧版平铺场景列表
func (s Scope) Legacy() bool {
	return s.Episode == nil
}

// ScenePath 返回范围内某个场景的完整路径
func (s Scope) ScenePath(sceneID string) models.ScenePath {
	return models.ScenePath{DraftID: s.DraftID, EpisodeID: s.EpisodeID, SceneID: sceneID}
}

// Locate 在范围内查找镜头
func (s Scope) Locate(taskID string) (*models.Scene, *models.Task, bool) {
	if taskID == "" {
		return nil, nil, false
	}
	for _, sc := range s.Scenes {
		if t, ok := sc.FindTask(taskID); ok {
			return sc, t, true
		}
	}
	return nil, nil, false
}

// Contains 范围内是否有该镜头
func (s Scope) Contains(taskID string) bool {
	_, _, ok := s.Locate(taskID)
	return ok
}

// TaskPath 范围内镜头的完整路径
func (s Scope) TaskPath(taskID string) (models.TaskPath, bool) {
	sc, _, ok := s.Locate(taskID)
	if !ok {
		return models.TaskPath{}, false
	}
	return s.ScenePath(sc.ID).Task(taskID), true
}

// ResolveScope 选择工作台范围：指定的分集；找不到时取第一个有分集的草稿的第一集；
// 项目没有任何分集时退回旧版平铺场景列表。draftID 为空表示在所有草稿中查找
func ResolveScope(p *models.Project, draftID, episodeID string) Scope {
	if p == nil {
		return Scope{}
	}
	if episodeID != "" {
		for _, d := range p.Scripts {
			if draftID != "" && d.ID != draftID {
				continue
			}
			if ep, ok := d.FindEpisode(episodeID); ok {
				return Scope{DraftID: d.ID, EpisodeID: ep.ID, Episode: ep, Scenes: ep.Scenes}
			}
		}
	}
	for _, d := range p.Scripts {
		if len(d.Episodes) > 0 {
			ep := d.Episodes[0]
			return Scope{DraftID: d.ID, EpisodeID: ep.ID, Episode: ep, Scenes: ep.Scenes}
		}
	}
	return Scope{Scenes: p.Scenes}
}

// Reconcile 选中的镜头不在范围内时清空选择
func Reconcile(scope Scope, selectedTaskID string) string {
	if scope.Contains(selectedTaskID) {
		return selectedTaskID
	}
	return ""
}

// ActiveVersionID 当前应显示的版本：有关键帧时为与之匹配的版本，匹配不到为 UnmatchedKeyframe；
// 没有关键帧时为最新版本；都没有时为空
func ActiveVersionID(task *models.Task) string {
	if task == nil {
		return ""
	}
	if task.KeyframeImage != "" {
		if task.KeyframeVersionID != "" {
			if v, ok := task.FindVersion(task.KeyframeVersionID); ok && v.ImgURL == task.KeyframeImage {
				return v.ID
			}
		}
		if v, ok := task.FindVersionByURL(task.KeyframeImage); ok {
			return v.ID
		}
		return UnmatchedKeyframe
	}
	if v, ok := task.LatestVersion(); ok {
		return v.ID
	}
	return ""
}

// Display 视窗中显示的媒体
type Display struct {
	VersionID string             `json:"version_id"`
	URL       string             `json:"url"`
	Type      models.VersionType `json:"type"`
	Prompt    string             `json:"prompt,omitempty"`
	Unmatched bool               `json:"unmatched,omitempty"`
}

// ActiveDisplay 解析当前显示的媒体，没有可显示内容时返回 false
func ActiveDisplay(task *models.Task) (Display, bool) {
	id := ActiveVersionID(task)
	switch id {
	case "":
		return Display{}, false
	case UnmatchedKeyframe:
		return Display{VersionID: id, URL: task.KeyframeImage, Type: models.VersionTypeImage, Unmatched: true}, true
	}
	v, _ := task.FindVersion(id)
	return Display{VersionID: v.ID, URL: v.ImgURL, Type: v.Type, Prompt: v.Prompt}, true
}

var shotPrefix = regexp.MustCompile(`^Shot \d+:`)

// ShotTitle 分镜列表中的显示标题
func ShotTitle(globalIndex int, task *models.Task) string {
	summary := ""
	if task.Breakdown != nil {
		summary = task.Breakdown.Subject
	}
	if summary == "" {
		summary = strings.TrimSpace(shotPrefix.ReplaceAllString(task.Title, ""))
	}
	if summary == "" {
		summary = task.Title
	}
	return "镜头 " + strconv.Itoa(globalIndex) + ": " + summary
}

// ParseDuration 解析 "3s" 形式的时长，无法解析时按默认时长计算
func ParseDuration(d string) float64 {
	s := strings.TrimSuffix(strings.TrimSpace(d), "s")
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
		return v
	}
	v, _ := strconv.ParseFloat(strings.TrimSuffix(DefaultShotDuration, "s"), 64)
	return v
}
