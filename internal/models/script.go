// internal/models/script.go
package models

// EpisodeStatus 分集状态
type EpisodeStatus string

const (
	EpisodeStatusDraft    EpisodeStatus = "draft"
	EpisodeStatusAnalyzed EpisodeStatus = "analyzed"
)

// 剧本草稿状态
const (
	DraftStatusDraft      = "草稿"
	DraftStatusInProgress = "进行中"
	DraftStatusFinalized  = "定稿"
	DraftStatusArchived   = "已归档"
)

// ValidDraftStatus 检查草稿状态是否合法
func ValidDraftStatus(status string) bool {
	switch status {
	case DraftStatusDraft, DraftStatusInProgress, DraftStatusFinalized, DraftStatusArchived:
		return true
	default:
		return false
	}
}

// ScriptEpisode 一集剧本
type ScriptEpisode struct {
	ID               string        `json:"id" yaml:"id"`
	Title            string        `json:"title" yaml:"title"`
	Content          string        `json:"content" yaml:"content"`
	Scenes           []*Scene      `json:"scenes" yaml:"scenes"`
	Status           EpisodeStatus `json:"status" yaml:"status"`
	LastAnalysisTime int64         `json:"last_analysis_time,omitempty" yaml:"last_analysis_time,omitempty"`
	ExtractedAssets  *AssetNames   `json:"extracted_assets,omitempty" yaml:"extracted_assets,omitempty"`
}

// Clone 浅拷贝
func (e *ScriptEpisode) Clone() *ScriptEpisode {
	c := *e
	return &c
}

// FindScene 按ID查找场景
func (e *ScriptEpisode) FindScene(sceneID string) (*Scene, bool) {
	return findScene(e.Scenes, sceneID)
}

// TaskCount 本集的镜头总数
func (e *ScriptEpisode) TaskCount() int {
	return CountTasks(e.Scenes)
}

// ScriptDraft 剧本草稿（一个项目可以有多个版本的剧本）
type ScriptDraft struct {
	ID        string           `json:"id" yaml:"id"`
	Title     string           `json:"title" yaml:"title"`
	UpdatedAt int64            `json:"updated_at" yaml:"updated_at"`
	Status    string           `json:"status" yaml:"status"`
	Episodes  []*ScriptEpisode `json:"episodes" yaml:"episodes"`
}

// Clone 浅拷贝
func (d *ScriptDraft) Clone() *ScriptDraft {
	c := *d
	return &c
}

// FindEpisode 按ID查找分集
func (d *ScriptDraft) FindEpisode(episodeID string) (*ScriptEpisode, bool) {
	for _, ep := range d.Episodes {
		if ep.ID == episodeID {
			return ep, true
		}
	}
	return nil, false
}

// ImportArchive AI拆解前对旧内容的存档
type ImportArchive struct {
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Content   string `json:"content" yaml:"content"`
	Note      string `json:"note" yaml:"note"`
}

// Project 项目，整棵树的根
type Project struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Status   string          `json:"status" yaml:"status"`
	Type     string          `json:"type" yaml:"type"`
	Cover    string          `json:"cover" yaml:"cover"`
	Assets   AssetCollection `json:"assets" yaml:"assets"`
	Scenes   []*Scene        `json:"scenes" yaml:"scenes"` // 旧版平铺场景列表
	Scripts  []*ScriptDraft  `json:"scripts" yaml:"scripts"`
	Archives []ImportArchive `json:"archives,omitempty" yaml:"archives,omitempty"`
}

// Clone 浅拷贝
func (p *Project) Clone() *Project {
	c := *p
	return &c
}

// FindDraft 按ID查找剧本草稿
func (p *Project) FindDraft(draftID string) (*ScriptDraft, bool) {
	for _, d := range p.Scripts {
		if d.ID == draftID {
			return d, true
		}
	}
	return nil, false
}

// FindEpisode 按草稿与分集ID查找
func (p *Project) FindEpisode(draftID, episodeID string) (*ScriptEpisode, bool) {
	draft, ok := p.FindDraft(draftID)
	if !ok {
		return nil, false
	}
	return draft.FindEpisode(episodeID)
}

// SceneList 返回路径所指的场景列表
func (p *Project) SceneList(path ScenePath) ([]*Scene, bool) {
	if path.Legacy() {
		return p.Scenes, true
	}
	ep, ok := p.FindEpisode(path.DraftID, path.EpisodeID)
	if !ok {
		return nil, false
	}
	return ep.Scenes, true
}

// FindScene 按完整路径查找场景
func (p *Project) FindScene(path ScenePath) (*Scene, bool) {
	scenes, ok := p.SceneList(path)
	if !ok {
		return nil, false
	}
	return findScene(scenes, path.SceneID)
}

// FindTask 按完整路径查找镜头
func (p *Project) FindTask(path TaskPath) (*Task, bool) {
	scene, ok := p.FindScene(path.Scene())
	if !ok {
		return nil, false
	}
	return scene.FindTask(path.TaskID)
}

// LocateTask 只有镜头ID时在所有草稿、分集与旧版场景中搜索，返回全部匹配的路径
func (p *Project) LocateTask(taskID string) []TaskPath {
	var paths []TaskPath
	for _, d := range p.Scripts {
		for _, ep := range d.Episodes {
			for _, sc := range ep.Scenes {
				if sc.HasTask(taskID) {
					paths = append(paths, TaskPath{DraftID: d.ID, EpisodeID: ep.ID, SceneID: sc.ID, TaskID: taskID})
				}
			}
		}
	}
	for _, sc := range p.Scenes {
		if sc.HasTask(taskID) {
			paths = append(paths, TaskPath{SceneID: sc.ID, TaskID: taskID})
		}
	}
	return paths
}

func findScene(scenes []*Scene, sceneID string) (*Scene, bool) {
	for _, sc := range scenes {
		if sc.ID == sceneID {
			return sc, true
		}
	}
	return nil, false
}

// CountTasks 统计场景列表中的镜头数
func CountTasks(scenes []*Scene) int {
	n := 0
	for _, sc := range scenes {
		n += len(sc.Tasks)
	}
	return n
}
