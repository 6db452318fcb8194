// internal/services/project_store.go
package services

import (
	"strings"
	"sync"
	"time"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/tree"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 项目事件类型
const (
	EventProjectCreated = "project_created"
	EventProjectUpdated = "project_updated"
)

// StoreEvent 项目树变更通知
type StoreEvent struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id"`
	Revision  int64  `json:"revision"`
	Operation string `json:"operation"`
	Timestamp int64  `json:"timestamp"`
}

// ProjectSummary 项目列表项
type ProjectSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Cover     string `json:"cover"`
	Drafts    int    `json:"drafts"`
	Revision  int64  `json:"revision"`
	TaskCount int    `json:"task_count"`
}

// ProjectStore 持有每个项目当前的树根。所有写入串行执行，
// 写入函数总是基于最新的树计算新树，因此并发写入不会互相覆盖
type ProjectStore struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex
	projects  map[string]*models.Project
	revisions map[string]int64
	order     []string

	listenersMu  sync.RWMutex
	listeners    map[int]func(StoreEvent)
	nextListener int
}

// NewProjectStore 创建空的项目存储
func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		projects:  make(map[string]*models.Project),
		revisions: make(map[string]int64),
		listeners: make(map[int]func(StoreEvent)),
	}
}

// Subscribe 订阅变更事件，返回取消函数。回调在写锁内执行，不能再写入存储
func (s *ProjectStore) Subscribe(fn func(StoreEvent)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *ProjectStore) emit(event StoreEvent) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, fn := range s.listeners {
		fn(event)
	}
}

// Get 返回项目当前的树根。返回值不可修改
func (s *ProjectStore) Get(projectID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, errors.NewNotFoundError("项目不存在: "+projectID, nil)
	}
	return p, nil
}

// Revision 返回项目的修订号，每次成功写入加一
func (s *ProjectStore) Revision(projectID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[projectID]
}

// List 按创建顺序返回项目摘要
func (s *ProjectStore) List() []ProjectSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProjectSummary, 0, len(s.order))
	for _, id := range s.order {
		p := s.projects[id]
		taskCount := models.CountTasks(p.Scenes)
		for _, d := range p.Scripts {
			for _, ep := range d.Episodes {
				taskCount += ep.TaskCount()
			}
		}
		out = append(out, ProjectSummary{
			ID:        p.ID,
			Name:      p.Name,
			Status:    p.Status,
			Type:      p.Type,
			Cover:     p.Cover,
			Drafts:    len(p.Scripts),
			Revision:  s.revisions[id],
			TaskCount: taskCount,
		})
	}
	return out
}

// Create 保存新项目，ID为空时自动生成
func (s *ProjectStore) Create(p *models.Project) (*models.Project, error) {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return nil, errors.NewValidationError("项目名称不能为空", nil)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if p.ID == "" {
		p = p.Clone()
		p.ID = utils.NewID("p")
	}
	if _, exists := s.projects[p.ID]; exists {
		s.mu.Unlock()
		return nil, errors.NewConflictError("项目已存在: "+p.ID, nil)
	}
	s.projects[p.ID] = p
	s.revisions[p.ID] = 1
	s.order = append(s.order, p.ID)
	s.mu.Unlock()

	s.emit(StoreEvent{
		Type:      EventProjectCreated,
		ProjectID: p.ID,
		Revision:  1,
		Operation: "create",
		Timestamp: time.Now().UnixMilli(),
	})
	return p, nil
}

// Update 基于最新的树计算并提交新树。fn 返回原指针表示没有变化
func (s *ProjectStore) Update(projectID, op string, fn func(*models.Project) (*models.Project, error)) (*models.Project, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.Get(projectID)
	if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if next == nil || next == current {
		return current, nil
	}

	s.mu.Lock()
	s.projects[projectID] = next
	s.revisions[projectID]++
	revision := s.revisions[projectID]
	s.mu.Unlock()

	// 仍持有写锁时通知，订阅者按修订号顺序收到事件
	s.emit(StoreEvent{
		Type:      EventProjectUpdated,
		ProjectID: projectID,
		Revision:  revision,
		Operation: op,
		Timestamp: time.Now().UnixMilli(),
	})
	return next, nil
}

// UpdateTask 按完整路径修改镜头，路径失效时返回未找到错误
func (s *ProjectStore) UpdateTask(projectID string, path models.TaskPath, op string, fn func(*models.Task)) (*models.Project, *models.Task, error) {
	return s.UpdateTaskWhen(projectID, path, op, nil, fn)
}

// UpdateTaskWhen 与 UpdateTask 相同，但 cond 对当前镜头不成立时不写入，也不产生新修订
func (s *ProjectStore) UpdateTaskWhen(projectID string, path models.TaskPath, op string, cond func(*models.Task) bool, fn func(*models.Task)) (*models.Project, *models.Task, error) {
	next, err := s.Update(projectID, op, func(p *models.Project) (*models.Project, error) {
		if cond != nil {
			current, ok := p.FindTask(path)
			if !ok {
				return nil, errors.NewNotFoundError("镜头不存在: "+path.String(), nil)
			}
			if !cond(current) {
				return p, nil
			}
		}
		next, ok := tree.UpdateTask(p, path, fn)
		if !ok {
			return nil, errors.NewNotFoundError("镜头不存在: "+path.String(), nil)
		}
		return next, nil
	})
	if err != nil {
		return nil, nil, err
	}
	task, _ := next.FindTask(path)
	return next, task, nil
}

// Task 读取镜头当前值
func (s *ProjectStore) Task(projectID string, path models.TaskPath) (*models.Project, *models.Task, error) {
	p, err := s.Get(projectID)
	if err != nil {
		return nil, nil, err
	}
	task, ok := p.FindTask(path)
	if !ok {
		return p, nil, errors.NewNotFoundError("镜头不存在: "+path.String(), nil)
	}
	return p, task, nil
}

// ResolveTaskPath 只有镜头ID时查找完整路径，存在多个匹配时取第一个并记录警告
func (s *ProjectStore) ResolveTaskPath(projectID, taskID string) (models.TaskPath, error) {
	p, err := s.Get(projectID)
	if err != nil {
		return models.TaskPath{}, err
	}

	paths := p.LocateTask(taskID)
	switch len(paths) {
	case 0:
		return models.TaskPath{}, errors.NewNotFoundError("镜头不存在: "+taskID, nil)
	case 1:
		return paths[0], nil
	default:
		candidates := make([]string, len(paths))
		for i, path := range paths {
			candidates[i] = path.String()
		}
		utils.GetLogger().Warn("镜头ID存在多个匹配，使用第一个", map[string]interface{}{
			"project_id": projectID,
			"task_id":    taskID,
			"candidates": strings.Join(candidates, ", "),
		})
		return paths[0], nil
	}
}
