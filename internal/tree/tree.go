// internal/tree/tree.go
//
// Package tree 实现项目树的不可变更新：每次修改都复制从根到目标节点的路径，
// 其余子树保持同一指针。传入的 Project 永远不会被修改。
// 目标ID不存在时返回原指针与 false。
package tree

import (
	"slices"

	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// StaleHook 在更新目标不存在时被调用，默认为空
var StaleHook func(op string)

func stale(op string, fields map[string]interface{}) {
	utils.GetLogger().Warn("更新目标不存在，忽略: "+op, fields)
	if StaleHook != nil {
		StaleHook(op)
	}
}

func replaceAt[T any](list []T, i int, v T) []T {
	out := slices.Clone(list)
	out[i] = v
	return out
}

func appendCopy[T any](list []T, v ...T) []T {
	out := make([]T, 0, len(list)+len(v))
	out = append(out, list...)
	return append(out, v...)
}

func removeAt[T any](list []T, i int) []T {
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

func draftIndex(p *models.Project, draftID string) int {
	return slices.IndexFunc(p.Scripts, func(d *models.ScriptDraft) bool { return d.ID == draftID })
}

func episodeIndex(d *models.ScriptDraft, episodeID string) int {
	return slices.IndexFunc(d.Episodes, func(e *models.ScriptEpisode) bool { return e.ID == episodeID })
}

func sceneIndex(scenes []*models.Scene, sceneID string) int {
	return slices.IndexFunc(scenes, func(s *models.Scene) bool { return s.ID == sceneID })
}

func taskIndex(s *models.Scene, taskID string) int {
	return slices.IndexFunc(s.Tasks, func(t *models.Task) bool { return t.ID == taskID })
}

// AddDraft 追加剧本草稿
func AddDraft(p *models.Project, d *models.ScriptDraft) *models.Project {
	np := p.Clone()
	np.Scripts = appendCopy(p.Scripts, d)
	return np
}

// RemoveDraft 删除剧本草稿
func RemoveDraft(p *models.Project, draftID string) (*models.Project, bool) {
	i := draftIndex(p, draftID)
	if i < 0 {
		stale("RemoveDraft", map[string]interface{}{"draft_id": draftID})
		return p, false
	}
	np := p.Clone()
	np.Scripts = removeAt(p.Scripts, i)
	return np, true
}

// UpdateDraft 在草稿副本上执行 fn
func UpdateDraft(p *models.Project, draftID string, fn func(*models.ScriptDraft)) (*models.Project, bool) {
	i := draftIndex(p, draftID)
	if i < 0 {
		stale("UpdateDraft", map[string]interface{}{"draft_id": draftID})
		return p, false
	}
	d := p.Scripts[i].Clone()
	fn(d)
	np := p.Clone()
	np.Scripts = replaceAt(p.Scripts, i, d)
	return np, true
}

// AddEpisode 向草稿追加分集
func AddEpisode(p *models.Project, draftID string, ep *models.ScriptEpisode) (*models.Project, bool) {
	return UpdateDraft(p, draftID, func(d *models.ScriptDraft) {
		d.Episodes = appendCopy(d.Episodes, ep)
	})
}

// ReplaceEpisodes 用新的分集列表整体替换草稿内容
func ReplaceEpisodes(p *models.Project, draftID string, episodes []*models.ScriptEpisode) (*models.Project, bool) {
	return UpdateDraft(p, draftID, func(d *models.ScriptDraft) {
		d.Episodes = slices.Clone(episodes)
	})
}

// UpdateEpisode 在分集副本上执行 fn
func UpdateEpisode(p *models.Project, draftID, episodeID string, fn func(*models.ScriptEpisode)) (*models.Project, bool) {
	fields := map[string]interface{}{"draft_id": draftID, "episode_id": episodeID}
	di := draftIndex(p, draftID)
	if di < 0 {
		stale("UpdateEpisode", fields)
		return p, false
	}
	ei := episodeIndex(p.Scripts[di], episodeID)
	if ei < 0 {
		stale("UpdateEpisode", fields)
		return p, false
	}
	return UpdateDraft(p, draftID, func(d *models.ScriptDraft) {
		ep := d.Episodes[ei].Clone()
		fn(ep)
		d.Episodes = replaceAt(d.Episodes, ei, ep)
	})
}

// updateSceneList 替换路径所指的场景列表（分集或旧版平铺列表），调用前需确认路径存在
func updateSceneList(p *models.Project, path models.ScenePath, fn func([]*models.Scene) []*models.Scene) (*models.Project, bool) {
	if path.Legacy() {
		np := p.Clone()
		np.Scenes = fn(p.Scenes)
		return np, true
	}
	return UpdateEpisode(p, path.DraftID, path.EpisodeID, func(ep *models.ScriptEpisode) {
		ep.Scenes = fn(ep.Scenes)
	})
}

// AddScene 向分集追加场景，draftID 与 episodeID 为空时追加到旧版平铺列表
func AddScene(p *models.Project, draftID, episodeID string, scene *models.Scene) (*models.Project, bool) {
	path := models.ScenePath{DraftID: draftID, EpisodeID: episodeID}
	if _, ok := p.SceneList(path); !ok {
		stale("AddScene", map[string]interface{}{"draft_id": draftID, "episode_id": episodeID})
		return p, false
	}
	return updateSceneList(p, path, func(scenes []*models.Scene) []*models.Scene {
		return appendCopy(scenes, scene)
	})
}

// RemoveScene 删除场景及其全部镜头
func RemoveScene(p *models.Project, path models.ScenePath) (*models.Project, bool) {
	scenes, ok := p.SceneList(path)
	i := -1
	if ok {
		i = sceneIndex(scenes, path.SceneID)
	}
	if i < 0 {
		stale("RemoveScene", sceneFields(path))
		return p, false
	}
	return updateSceneList(p, path, func(scenes []*models.Scene) []*models.Scene {
		return removeAt(scenes, i)
	})
}

// UpdateScene 在场景副本上执行 fn
func UpdateScene(p *models.Project, path models.ScenePath, fn func(*models.Scene)) (*models.Project, bool) {
	scenes, ok := p.SceneList(path)
	i := -1
	if ok {
		i = sceneIndex(scenes, path.SceneID)
	}
	if i < 0 {
		stale("UpdateScene", sceneFields(path))
		return p, false
	}
	return updateSceneList(p, path, func(scenes []*models.Scene) []*models.Scene {
		sc := scenes[i].Clone()
		fn(sc)
		return replaceAt(scenes, i, sc)
	})
}

// AddTask 向场景追加镜头
func AddTask(p *models.Project, path models.ScenePath, task *models.Task) (*models.Project, bool) {
	return UpdateScene(p, path, func(sc *models.Scene) {
		sc.Tasks = appendCopy(sc.Tasks, task)
	})
}

// UpdateTask 在镜头副本上执行 fn。fn 不得原地修改副本共享的切片
func UpdateTask(p *models.Project, path models.TaskPath, fn func(*models.Task)) (*models.Project, bool) {
	scene, ok := p.FindScene(path.Scene())
	i := -1
	if ok {
		i = taskIndex(scene, path.TaskID)
	}
	if i < 0 {
		fields := sceneFields(path.Scene())
		fields["task_id"] = path.TaskID
		stale("UpdateTask", fields)
		return p, false
	}
	return UpdateScene(p, path.Scene(), func(sc *models.Scene) {
		t := sc.Tasks[i].Clone()
		fn(t)
		sc.Tasks = replaceAt(sc.Tasks, i, t)
	})
}

// PatchTask 将局部更新写入镜头
func PatchTask(p *models.Project, path models.TaskPath, patch models.TaskPatch) (*models.Project, bool) {
	return UpdateTask(p, path, patch.Apply)
}

// UpdateAssets 替换资产库
func UpdateAssets(p *models.Project, fn func(models.AssetCollection) models.AssetCollection) *models.Project {
	np := p.Clone()
	np.Assets = fn(p.Assets)
	return np
}

// AddArchive 在存档列表头部插入一条记录
func AddArchive(p *models.Project, archive models.ImportArchive) *models.Project {
	np := p.Clone()
	np.Archives = append([]models.ImportArchive{archive}, p.Archives...)
	return np
}

func sceneFields(path models.ScenePath) map[string]interface{} {
	return map[string]interface{}{
		"draft_id":   path.DraftID,
		"episode_id": path.EpisodeID,
		"scene_id":   path.SceneID,
	}
}
