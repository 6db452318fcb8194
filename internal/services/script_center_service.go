// internal/services/script_center_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/tree"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// ScriptAnalyzer 剧本中心使用的AI能力，由 AIService 实现
type ScriptAnalyzer interface {
	PolishPrompt(ctx context.Context, text string) (string, error)
	SegmentEpisodes(ctx context.Context, script string) (models.BreakdownResult, error)
	AnalyzeScript(ctx context.Context, script string) ([]*models.Scene, error)
	AnalyzeScene(ctx context.Context, content string) ([]*models.Task, error)
}

const (
	defaultDraftTitle       = "新剧本项目"
	extractedAssetNote      = "AI Extracted"
	placeholderAssetPattern = "https://picsum.photos/seed/%s/150/150"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// DraftPatch 草稿的局部更新
type DraftPatch struct {
	Title  *string `json:"title,omitempty"`
	Status *string `json:"status,omitempty"`
}

// EpisodePatch 分集的局部更新
type EpisodePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// BreakdownRequest 长剧本拆解请求
type BreakdownRequest struct {
	ProjectID string
	DraftID   string
	Text      string `json:"text"`
	Confirm   bool   `json:"confirm"` // 草稿已有分集时必须确认覆盖
}

// BreakdownOutcome 拆解结果
type BreakdownOutcome struct {
	Episodes  []*models.ScriptEpisode `json:"episodes"`
	NewAssets int                     `json:"new_assets"`
	Archived  bool                    `json:"archived"`
}

// ScriptService 剧本中心：草稿、分集、场次与镜头的编辑流程
type ScriptService struct {
	store *ProjectStore
	ai    ScriptAnalyzer
	locks *LockManager
	clock *utils.Clock
}

// NewScriptService 创建剧本服务
func NewScriptService(store *ProjectStore, ai ScriptAnalyzer, locks *LockManager) *ScriptService {
	if locks == nil {
		locks = NewLockManager()
	}
	return &ScriptService{
		store: store,
		ai:    ai,
		locks: locks,
		clock: utils.NewClock(nil),
	}
}

// SetClock 替换时间来源
func (s *ScriptService) SetClock(clock *utils.Clock) {
	s.clock = clock
}

func episodeKey(projectID, draftID, episodeID string) string {
	return "episode:" + projectID + "/" + draftID + "/" + episodeID
}

func draftNotFound(draftID string) error {
	return errors.NewNotFoundError("剧本草稿不存在: "+draftID, nil)
}

func episodeNotFound(episodeID string) error {
	return errors.NewNotFoundError("分集不存在: "+episodeID, nil)
}

func sceneNotFound(path models.ScenePath) error {
	return errors.NewNotFoundError("场次不存在: "+path.SceneID, nil)
}

// touch 刷新草稿的修改时间
func (s *ScriptService) touch(p *models.Project, draftID string) *models.Project {
	ts := s.clock.Next()
	next, _ := tree.UpdateDraft(p, draftID, func(d *models.ScriptDraft) {
		d.UpdatedAt = ts
	})
	return next
}

// updateEpisode 修改分集并刷新所属草稿的修改时间
func (s *ScriptService) updateEpisode(projectID, draftID, episodeID, op string, fn func(*models.ScriptEpisode)) (*models.ScriptEpisode, error) {
	next, err := s.store.Update(projectID, op, func(p *models.Project) (*models.Project, error) {
		np, ok := tree.UpdateEpisode(p, draftID, episodeID, fn)
		if !ok {
			return nil, episodeNotFound(episodeID)
		}
		return s.touch(np, draftID), nil
	})
	if err != nil {
		return nil, err
	}
	ep, _ := next.FindEpisode(draftID, episodeID)
	return ep, nil
}

func (s *ScriptService) episode(projectID, draftID, episodeID string) (*models.ScriptEpisode, error) {
	p, err := s.store.Get(projectID)
	if err != nil {
		return nil, err
	}
	ep, ok := p.FindEpisode(draftID, episodeID)
	if !ok {
		return nil, episodeNotFound(episodeID)
	}
	return ep, nil
}

// CreateDraft 新建空白剧本草稿
func (s *ScriptService) CreateDraft(projectID string) (*models.ScriptDraft, error) {
	draft := &models.ScriptDraft{
		ID:        utils.NewID("sd"),
		Title:     defaultDraftTitle,
		UpdatedAt: s.clock.Next(),
		Status:    models.DraftStatusDraft,
		Episodes:  []*models.ScriptEpisode{},
	}
	_, err := s.store.Update(projectID, "draft.create", func(p *models.Project) (*models.Project, error) {
		return tree.AddDraft(p, draft), nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// DeleteDraft 删除草稿及其全部分集
func (s *ScriptService) DeleteDraft(projectID, draftID string) error {
	_, err := s.store.Update(projectID, "draft.delete", func(p *models.Project) (*models.Project, error) {
		next, ok := tree.RemoveDraft(p, draftID)
		if !ok {
			return nil, draftNotFound(draftID)
		}
		return next, nil
	})
	return err
}

// UpdateDraft 修改草稿标题或状态
func (s *ScriptService) UpdateDraft(projectID, draftID string, patch DraftPatch) (*models.ScriptDraft, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, errors.NewValidationError("草稿标题不能为空", nil)
	}
	if patch.Status != nil && !models.ValidDraftStatus(*patch.Status) {
		return nil, errors.NewValidationError("无效的草稿状态: "+*patch.Status, nil)
	}

	ts := s.clock.Next()
	next, err := s.store.Update(projectID, "draft.update", func(p *models.Project) (*models.Project, error) {
		np, ok := tree.UpdateDraft(p, draftID, func(d *models.ScriptDraft) {
			if patch.Title != nil {
				d.Title = *patch.Title
			}
			if patch.Status != nil {
				d.Status = *patch.Status
			}
			d.UpdatedAt = ts
		})
		if !ok {
			return nil, draftNotFound(draftID)
		}
		return np, nil
	})
	if err != nil {
		return nil, err
	}
	draft, _ := next.FindDraft(draftID)
	return draft, nil
}

// AddEpisode 在草稿末尾追加空白分集
func (s *ScriptService) AddEpisode(projectID, draftID string) (*models.ScriptEpisode, error) {
	var ep *models.ScriptEpisode
	_, err := s.store.Update(projectID, "episode.add", func(p *models.Project) (*models.Project, error) {
		draft, ok := p.FindDraft(draftID)
		if !ok {
			return nil, draftNotFound(draftID)
		}
		ep = &models.ScriptEpisode{
			ID:              utils.NewID("ep"),
			Title:           fmt.Sprintf("第 %d 集", len(draft.Episodes)+1),
			Scenes:          []*models.Scene{},
			Status:          models.EpisodeStatusDraft,
			ExtractedAssets: emptyAssetNames(),
		}
		np, _ := tree.AddEpisode(p, draftID, ep)
		return s.touch(np, draftID), nil
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// UpdateEpisode 修改分集标题或正文
func (s *ScriptService) UpdateEpisode(projectID, draftID, episodeID string, patch EpisodePatch) (*models.ScriptEpisode, error) {
	return s.updateEpisode(projectID, draftID, episodeID, "episode.update", func(ep *models.ScriptEpisode) {
		if patch.Title != nil {
			ep.Title = *patch.Title
		}
		if patch.Content != nil {
			ep.Content = *patch.Content
		}
	})
}

// BreakdownScript 调用AI将长剧本拆为分集，替换草稿现有分集，并把提取到的资产同步到资产库。
// 草稿已有分集时需要确认，确认后先把旧内容存档
func (s *ScriptService) BreakdownScript(ctx context.Context, req BreakdownRequest) (*BreakdownOutcome, error) {
	p, err := s.store.Get(req.ProjectID)
	if err != nil {
		return nil, err
	}
	draft, ok := p.FindDraft(req.DraftID)
	if !ok {
		return nil, draftNotFound(req.DraftID)
	}

	source := req.Text
	if strings.TrimSpace(source) == "" && len(draft.Episodes) > 0 {
		source = draft.Episodes[0].Content
	}
	if strings.TrimSpace(source) == "" {
		return nil, errors.NewValidationError("暂无剧本内容可供拆解", nil)
	}
	if len(draft.Episodes) > 0 && !req.Confirm {
		return nil, errors.NewConflictError("草稿已有分集，需要确认覆盖", nil).WithCode(errors.CodeConfirmRequired)
	}

	result, err := s.ai.SegmentEpisodes(ctx, source)
	if err != nil {
		return nil, err
	}

	ts := s.clock.Next()
	episodes := make([]*models.ScriptEpisode, 0, len(result.Episodes))
	for idx, eb := range result.Episodes {
		assets := eb.Assets
		episodes = append(episodes, &models.ScriptEpisode{
			ID:              fmt.Sprintf("ep_%d_%d", ts, idx),
			Title:           orDefault(eb.Title, fmt.Sprintf("第 %d 集", idx+1)),
			Content:         eb.Content,
			Scenes:          []*models.Scene{},
			Status:          models.EpisodeStatusDraft,
			ExtractedAssets: &assets,
		})
	}

	outcome := &BreakdownOutcome{Episodes: episodes}
	_, err = s.store.Update(req.ProjectID, "draft.breakdown", func(p *models.Project) (*models.Project, error) {
		current, ok := p.FindDraft(req.DraftID)
		if !ok {
			return nil, draftNotFound(req.DraftID)
		}

		np := p
		outcome.Archived = false
		if len(current.Episodes) > 0 {
			contents := make([]string, 0, len(current.Episodes))
			for _, ep := range current.Episodes {
				contents = append(contents, ep.Content)
			}
			np = tree.AddArchive(np, models.ImportArchive{
				Timestamp: ts,
				Content:   strings.Join(contents, "\n\n"),
				Note:      fmt.Sprintf("AI 拆解前存档 (%d 集)", len(current.Episodes)),
			})
			outcome.Archived = true
		}

		var added int
		np = tree.UpdateAssets(np, func(c models.AssetCollection) models.AssetCollection {
			c, added = syncExtractedAssets(c, episodes)
			return c
		})
		outcome.NewAssets = added

		np, _ = tree.ReplaceEpisodes(np, req.DraftID, episodes)
		return s.touch(np, req.DraftID), nil
	})
	if err != nil {
		return nil, err
	}

	utils.GetLogger().Info("剧本拆解完成", map[string]interface{}{
		"project_id": req.ProjectID,
		"draft_id":   req.DraftID,
		"episodes":   len(episodes),
		"new_assets": outcome.NewAssets,
		"archived":   outcome.Archived,
	})
	return outcome, nil
}

// syncExtractedAssets 将各集提取的资产名称按类型合入资产库，名称已存在时跳过
func syncExtractedAssets(c models.AssetCollection, episodes []*models.ScriptEpisode) (models.AssetCollection, int) {
	added := 0
	for _, t := range []models.AssetType{models.AssetTypeCharacter, models.AssetTypeScene, models.AssetTypeProp} {
		list := c.ListFor(t)
		grown := false
		for _, ep := range episodes {
			for _, name := range ep.ExtractedAssets.NamesFor(t) {
				if name == "" || containsAssetName(list, name) {
					continue
				}
				if !grown {
					list = append([]models.Asset(nil), list...)
					grown = true
				}
				list = append(list, models.Asset{
					ID:          utils.NewID("ai"),
					Name:        name,
					Img:         placeholderAssetImage(name),
					Type:        t,
					Description: extractedAssetNote,
				})
				added++
			}
		}
		if grown {
			c = c.WithList(t, list)
		}
	}
	return c, added
}

func containsAssetName(list []models.Asset, name string) bool {
	for _, a := range list {
		if a.Name == name {
			return true
		}
	}
	return false
}

// placeholderAssetImage 以名称的 slug 作为占位图种子
func placeholderAssetImage(name string) string {
	seed := slug.Make(name)
	if seed == "" {
		seed = "asset"
	}
	return fmt.Sprintf(placeholderAssetPattern, seed)
}

func emptyAssetNames() *models.AssetNames {
	return &models.AssetNames{Characters: []string{}, Scenes: []string{}, Props: []string{}}
}

// ListArchives 返回导入存档，最新的在前
func (s *ScriptService) ListArchives(projectID string) ([]models.ImportArchive, error) {
	p, err := s.store.Get(projectID)
	if err != nil {
		return nil, err
	}
	if p.Archives == nil {
		return []models.ImportArchive{}, nil
	}
	return p.Archives, nil
}

// ManualSplit 按空行把分集正文切为场次，替换现有场次
func (s *ScriptService) ManualSplit(projectID, draftID, episodeID string) ([]*models.Scene, error) {
	ep, err := s.episode(projectID, draftID, episodeID)
	if err != nil {
		return nil, err
	}

	ts := s.clock.Next()
	scenes := []*models.Scene{}
	for _, chunk := range paragraphBreak.Split(ep.Content, -1) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		idx := len(scenes)
		scenes = append(scenes, &models.Scene{
			ID:      fmt.Sprintf("sc_manual_%d_%d", ts, idx),
			Title:   fmt.Sprintf("第 %d 场", idx+1),
			Content: chunk,
			Tasks:   []*models.Task{},
		})
	}

	if _, err := s.updateEpisode(projectID, draftID, episodeID, "episode.split_manual", func(ep *models.ScriptEpisode) {
		ep.Scenes = scenes
	}); err != nil {
		return nil, err
	}
	return scenes, nil
}

// AISplit 调用AI识别分集中的场次与镜头，替换现有场次
func (s *ScriptService) AISplit(ctx context.Context, projectID, draftID, episodeID string) ([]*models.Scene, error) {
	var scenes []*models.Scene
	err := s.locks.ExecuteWithLock(episodeKey(projectID, draftID, episodeID), func() error {
		ep, err := s.episode(projectID, draftID, episodeID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(ep.Content) == "" {
			return errors.NewValidationError("请先输入分集内容", nil)
		}

		scenes, err = s.ai.AnalyzeScript(ctx, ep.Content)
		if err != nil {
			return err
		}

		ts := s.clock.Next()
		_, err = s.updateEpisode(projectID, draftID, episodeID, "episode.split_ai", func(ep *models.ScriptEpisode) {
			ep.Scenes = scenes
			ep.Status = models.EpisodeStatusAnalyzed
			ep.LastAnalysisTime = ts
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return scenes, nil
}

// GenerateShots 为单个场次生成分镜，替换该场次的镜头
func (s *ScriptService) GenerateShots(ctx context.Context, projectID string, path models.ScenePath) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.locks.ExecuteWithLock(episodeKey(projectID, path.DraftID, path.EpisodeID), func() error {
		p, err := s.store.Get(projectID)
		if err != nil {
			return err
		}
		scene, ok := p.FindScene(path)
		if !ok {
			return sceneNotFound(path)
		}
		if strings.TrimSpace(scene.Content) == "" {
			return errors.NewValidationError("场景内容为空", nil)
		}

		tasks, err = s.ai.AnalyzeScene(ctx, scene.Content)
		if err != nil {
			return err
		}

		_, err = s.store.Update(projectID, "scene.generate_shots", func(p *models.Project) (*models.Project, error) {
			np, ok := tree.UpdateScene(p, path, func(sc *models.Scene) {
				sc.Tasks = tasks
			})
			if !ok {
				return nil, sceneNotFound(path)
			}
			if path.Legacy() {
				return np, nil
			}
			np, _ = tree.UpdateEpisode(np, path.DraftID, path.EpisodeID, func(ep *models.ScriptEpisode) {
				ep.Status = models.EpisodeStatusAnalyzed
			})
			return s.touch(np, path.DraftID), nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// AddScene 在分集末尾追加空白场次
func (s *ScriptService) AddScene(projectID, draftID, episodeID string) (*models.Scene, error) {
	var scene *models.Scene
	_, err := s.store.Update(projectID, "scene.add", func(p *models.Project) (*models.Project, error) {
		scenes, ok := p.SceneList(models.ScenePath{DraftID: draftID, EpisodeID: episodeID})
		if !ok {
			return nil, episodeNotFound(episodeID)
		}
		scene = &models.Scene{
			ID:    fmt.Sprintf("sc_new_%d", s.clock.Next()),
			Title: fmt.Sprintf("新场次 %d", len(scenes)+1),
			Tasks: []*models.Task{},
		}
		np, _ := tree.AddScene(p, draftID, episodeID, scene)
		if draftID == "" {
			return np, nil
		}
		return s.touch(np, draftID), nil
	})
	if err != nil {
		return nil, err
	}
	return scene, nil
}

// RemoveScene 删除场次及其全部镜头
func (s *ScriptService) RemoveScene(projectID string, path models.ScenePath) error {
	_, err := s.store.Update(projectID, "scene.remove", func(p *models.Project) (*models.Project, error) {
		np, ok := tree.RemoveScene(p, path)
		if !ok {
			return nil, sceneNotFound(path)
		}
		if path.Legacy() {
			return np, nil
		}
		return s.touch(np, path.DraftID), nil
	})
	return err
}

// AddTask 手动向场次追加一个空白镜头
func (s *ScriptService) AddTask(projectID string, path models.ScenePath, title string) (*models.Task, error) {
	var task *models.Task
	_, err := s.store.Update(projectID, "task.add", func(p *models.Project) (*models.Project, error) {
		scene, ok := p.FindScene(path)
		if !ok {
			return nil, sceneNotFound(path)
		}
		n := len(scene.Tasks) + 1
		task = &models.Task{
			ID:            fmt.Sprintf("t_manual_%d", s.clock.Next()),
			Title:         orDefault(strings.TrimSpace(title), fmt.Sprintf("Shot %d", n)),
			Status:        models.TaskStatusQueued,
			Versions:      []models.Version{},
			Breakdown:     &models.Breakdown{},
			Duration:      "3s",
			ShotNumber:    fmt.Sprintf("%d", n),
			CameraAngle:   defaultCameraAngle,
			ExtractedTags: emptyAssetNames(),
		}
		np, _ := tree.AddTask(p, path, task)
		return np, nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask 将局部更新写入镜头
func (s *ScriptService) UpdateTask(projectID string, path models.TaskPath, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return nil, errors.NewValidationError("没有需要更新的字段", nil)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, errors.NewValidationError("无效的镜头状态: "+string(*patch.Status), nil)
	}
	_, task, err := s.store.UpdateTask(projectID, path, "task.update", patch.Apply)
	return task, err
}

// PolishTaskPrompt 润色镜头当前的提示词并写回
func (s *ScriptService) PolishTaskPrompt(ctx context.Context, projectID string, path models.TaskPath) (*models.Task, error) {
	_, task, err := s.store.Task(projectID, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Prompt) == "" {
		return nil, errors.NewValidationError("提示词为空，无法润色", nil)
	}

	polished, err := s.ai.PolishPrompt(ctx, task.Prompt)
	if err != nil {
		return nil, err
	}
	_, task, err = s.store.UpdateTask(projectID, path, "task.polish", func(t *models.Task) {
		t.Prompt = polished
	})
	return task, err
}
