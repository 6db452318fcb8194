// internal/workbench/view.go
package workbench

import (
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/resolve"
)

// ShotItem 分镜列表中的一行
type ShotItem struct {
	Index        int               `json:"index"`
	SceneID      string            `json:"scene_id"`
	SceneTitle   string            `json:"scene_title"`
	TaskID       string            `json:"task_id"`
	Title        string            `json:"title"`
	Status       models.TaskStatus `json:"status"`
	Thumbnail    string            `json:"thumbnail,omitempty"`
	VersionCount int               `json:"version_count"`
	Selected     bool              `json:"selected"`
}

// Clip 时间线上的一个片段
type Clip struct {
	Index     int     `json:"index"`
	TaskID    string  `json:"task_id"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  string  `json:"duration"`
	Start     float64 `json:"start"`
	Length    float64 `json:"length"`
	Selected  bool    `json:"selected"`
}

// View 工作台的完整派生视图
type View struct {
	DraftID         string               `json:"draft_id,omitempty"`
	EpisodeID       string               `json:"episode_id,omitempty"`
	EpisodeTitle    string               `json:"episode_title,omitempty"`
	Legacy          bool                 `json:"legacy"`
	Mode            models.WorkbenchMode `json:"mode"`
	Scenes          []*models.Scene      `json:"scenes"`
	SelectedTaskID  string               `json:"selected_task_id,omitempty"`
	SelectedSceneID string               `json:"selected_scene_id,omitempty"`
	SelectedPath    *models.TaskPath     `json:"selected_path,omitempty"`
	SelectedTask    *models.Task         `json:"selected_task,omitempty"`
	ActiveVersionID string               `json:"active_version_id,omitempty"`
	Display         *Display             `json:"display,omitempty"`
	References      []models.Asset       `json:"references"`
	ShotList        []ShotItem           `json:"shot_list"`
	Timeline        []Clip               `json:"timeline"`
	TotalDuration   float64              `json:"total_duration"`
	TaskCount       int                  `json:"task_count"`
}

// Selection 工作台会话的选择状态
type Selection struct {
	DraftID   string               `json:"draft_id"`
	EpisodeID string               `json:"episode_id"`
	TaskID    string               `json:"task_id"`
	Mode      models.WorkbenchMode `json:"mode"`
}

// Derive 计算工作台视图。选择的镜头不在范围内时视图中不包含选择
func Derive(p *models.Project, sel Selection) View {
	scope := ResolveScope(p, sel.DraftID, sel.EpisodeID)
	selected := Reconcile(scope, sel.TaskID)

	mode := sel.Mode
	if mode == "" {
		mode = models.WorkbenchT2I
	}

	v := View{
		DraftID:        scope.DraftID,
		EpisodeID:      scope.EpisodeID,
		Legacy:         scope.Legacy(),
		Mode:           mode,
		Scenes:         scope.Scenes,
		SelectedTaskID: selected,
		References:     []models.Asset{},
		ShotList:       []ShotItem{},
		Timeline:       []Clip{},
		TaskCount:      models.CountTasks(scope.Scenes),
	}
	if scope.Episode != nil {
		v.EpisodeTitle = scope.Episode.Title
	}

	if sc, task, ok := scope.Locate(selected); ok {
		path := scope.ScenePath(sc.ID).Task(task.ID)
		v.SelectedSceneID = sc.ID
		v.SelectedPath = &path
		v.SelectedTask = task
		v.ActiveVersionID = ActiveVersionID(task)
		if d, ok := ActiveDisplay(task); ok {
			v.Display = &d
		}
		v.References = resolve.References(p.Assets, task)
	}

	index := 0
	var start float64
	for _, sc := range scope.Scenes {
		for _, task := range sc.Tasks {
			index++
			thumb := task.Thumbnail()
			v.ShotList = append(v.ShotList, ShotItem{
				Index:        index,
				SceneID:      sc.ID,
				SceneTitle:   sc.Title,
				TaskID:       task.ID,
				Title:        ShotTitle(index, task),
				Status:       task.Status,
				Thumbnail:    thumb,
				VersionCount: len(task.Versions),
				Selected:     task.ID == selected,
			})

			duration := task.Duration
			if duration == "" {
				duration = DefaultShotDuration
			}
			length := ParseDuration(duration)
			v.Timeline = append(v.Timeline, Clip{
				Index:     index,
				TaskID:    task.ID,
				Title:     task.Title,
				Thumbnail: thumb,
				Duration:  duration,
				Start:     start,
				Length:    length,
				Selected:  task.ID == selected,
			})
			start += length
		}
	}
	v.TotalDuration = start
	return v
}

// Comparison 对比视图的左右两个版本
type Comparison struct {
	Left  models.Version `json:"left"`
	Right models.Version `json:"right"`
}

// CompareCandidates 可供对比的版本，最新的在前
func CompareCandidates(task *models.Task) []models.Version {
	out := make([]models.Version, 0, len(task.Versions))
	for i := len(task.Versions) - 1; i >= 0; i-- {
		out = append(out, task.Versions[i])
	}
	return out
}

// Compare 取出两个版本用于对比，任一侧为空或不存在时返回 false
func Compare(task *models.Task, leftID, rightID string) (Comparison, bool) {
	if task == nil || leftID == "" || rightID == "" {
		return Comparison{}, false
	}
	left, ok := task.FindVersion(leftID)
	if !ok {
		return Comparison{}, false
	}
	right, ok := task.FindVersion(rightID)
	if !ok {
		return Comparison{}, false
	}
	return Comparison{Left: left, Right: right}, true
}

// ImageHistory 历史版本面板只列出图片版本
func ImageHistory(task *models.Task) []models.Version {
	out := make([]models.Version, 0, len(task.Versions))
	for _, v := range task.Versions {
		if v.IsImage() {
			out = append(out, v)
		}
	}
	return out
}
