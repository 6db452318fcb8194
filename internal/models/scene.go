// internal/models/scene.go
package models

// Scene 一场戏，拥有其下所有镜头
type Scene struct {
	ID      string  `json:"id" yaml:"id"`
	Title   string  `json:"title" yaml:"title"`
	Content string  `json:"content" yaml:"content"`
	Tasks   []*Task `json:"tasks" yaml:"tasks"`
}

// Clone 浅拷贝
func (s *Scene) Clone() *Scene {
	c := *s
	return &c
}

// FindTask 按ID查找镜头
func (s *Scene) FindTask(taskID string) (*Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return nil, false
}

// HasTask 场景是否包含该镜头
func (s *Scene) HasTask(taskID string) bool {
	_, ok := s.FindTask(taskID)
	return ok
}

// ScenePath 场景的完整路径。DraftID 与 EpisodeID 同时为空时指向项目的旧版平铺场景列表
type ScenePath struct {
	DraftID   string `json:"draft_id"`
	EpisodeID string `json:"episode_id"`
	SceneID   string `json:"scene_id"`
}

// Legacy 是否指向旧版平铺场景列表
func (p ScenePath) Legacy() bool {
	return p.DraftID == "" && p.EpisodeID == ""
}

// Task 返回场景下某个镜头的路径
func (p ScenePath) Task(taskID string) TaskPath {
	return TaskPath{DraftID: p.DraftID, EpisodeID: p.EpisodeID, SceneID: p.SceneID, TaskID: taskID}
}

// TaskPath 镜头的完整路径 (draft, episode, scene, task)
type TaskPath struct {
	DraftID   string `json:"draft_id"`
	EpisodeID string `json:"episode_id"`
	SceneID   string `json:"scene_id"`
	TaskID    string `json:"task_id"`
}

// Scene 返回所在场景的路径
func (p TaskPath) Scene() ScenePath {
	return ScenePath{DraftID: p.DraftID, EpisodeID: p.EpisodeID, SceneID: p.SceneID}
}

// Key 用作锁与进度跟踪的唯一键
func (p TaskPath) Key() string {
	return p.DraftID + "/" + p.EpisodeID + "/" + p.SceneID + "/" + p.TaskID
}

func (p TaskPath) String() string {
	return p.Key()
}
