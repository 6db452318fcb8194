// internal/services/workbench_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/workbench"
)

// DefaultSession 未指定会话时使用的会话ID
const DefaultSession = "default"

// SelectionPatch 工作台选择状态的局部更新，字段为 nil 时保持不变
type SelectionPatch struct {
	DraftID   *string               `json:"draft_id,omitempty"`
	EpisodeID *string               `json:"episode_id,omitempty"`
	TaskID    *string               `json:"task_id,omitempty"`
	Mode      *models.WorkbenchMode `json:"mode,omitempty"`
}

type session struct {
	selection workbench.Selection
	touched   time.Time
}

// WorkbenchService 保存每个会话的选择状态，每次读取都从项目树重新派生视图
type WorkbenchService struct {
	store    *ProjectStore
	mu       sync.Mutex
	sessions map[string]*session
}

// NewWorkbenchService 创建工作台服务
func NewWorkbenchService(store *ProjectStore) *WorkbenchService {
	return &WorkbenchService{
		store:    store,
		sessions: make(map[string]*session),
	}
}

func sessionKey(projectID, sessionID string) string {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	return projectID + "#" + sessionID
}

func (s *WorkbenchService) get(projectID, sessionID string) *session {
	key := sessionKey(projectID, sessionID)
	sess, ok := s.sessions[key]
	if !ok {
		sess = &session{selection: workbench.Selection{Mode: models.WorkbenchT2I}}
		s.sessions[key] = sess
	}
	sess.touched = time.Now()
	return sess
}

// Selection 返回会话当前的选择状态
func (s *WorkbenchService) Selection(projectID, sessionID string) (workbench.Selection, error) {
	if _, err := s.store.Get(projectID); err != nil {
		return workbench.Selection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(projectID, sessionID).selection, nil
}

// UpdateSelection 修改选择状态并返回新的视图。切换分集时清空镜头选择
func (s *WorkbenchService) UpdateSelection(projectID, sessionID string, patch SelectionPatch) (workbench.View, error) {
	if patch.Mode != nil && *patch.Mode != models.WorkbenchT2I && *patch.Mode != models.WorkbenchI2V {
		return workbench.View{}, errors.NewValidationError("无效的工作台模式: "+string(*patch.Mode), nil)
	}
	if _, err := s.store.Get(projectID); err != nil {
		return workbench.View{}, err
	}

	s.mu.Lock()
	sess := s.get(projectID, sessionID)
	sel := sess.selection
	if patch.DraftID != nil {
		sel.DraftID = *patch.DraftID
	}
	if patch.EpisodeID != nil {
		if *patch.EpisodeID != sel.EpisodeID {
			sel.TaskID = ""
		}
		sel.EpisodeID = *patch.EpisodeID
	}
	if patch.TaskID != nil {
		sel.TaskID = *patch.TaskID
	}
	if patch.Mode != nil {
		sel.Mode = *patch.Mode
	}
	sess.selection = sel
	s.mu.Unlock()

	return s.View(projectID, sessionID)
}

// View 基于项目当前的树派生工作台视图，并把自动选择的分集与失效的镜头选择写回会话
func (s *WorkbenchService) View(projectID, sessionID string) (workbench.View, error) {
	p, err := s.store.Get(projectID)
	if err != nil {
		return workbench.View{}, err
	}

	s.mu.Lock()
	sess := s.get(projectID, sessionID)
	view := workbench.Derive(p, sess.selection)
	sess.selection.DraftID = view.DraftID
	sess.selection.EpisodeID = view.EpisodeID
	sess.selection.TaskID = view.SelectedTaskID
	s.mu.Unlock()

	return view, nil
}

// SelectedPath 会话当前选中镜头的完整路径
func (s *WorkbenchService) SelectedPath(projectID, sessionID string) (models.TaskPath, error) {
	view, err := s.View(projectID, sessionID)
	if err != nil {
		return models.TaskPath{}, err
	}
	if view.SelectedPath == nil {
		return models.TaskPath{}, errors.NewValidationError("当前没有选中的镜头", nil)
	}
	return *view.SelectedPath, nil
}

// CleanupIdleSessions 清理长时间未访问的会话，返回清理数量
func (s *WorkbenchService) CleanupIdleSessions(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, sess := range s.sessions {
		if now.Sub(sess.touched) >= maxIdle {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// SessionCount 当前的会话数量
func (s *WorkbenchService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
