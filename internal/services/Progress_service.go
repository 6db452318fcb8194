// internal/services/Progress_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 任务状态
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	JobID    string      `json:"job_id"`
	Progress int         `json:"progress"` // 进度百分比 (0-100)
	Message  string      `json:"message"`
	Status   string      `json:"status"`
	Result   interface{} `json:"result,omitempty"`
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	JobID       string
	Kind        string // generate, extract_video ...
	Progress    int
	Message     string
	Status      string
	Result      interface{}
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	cancel      context.CancelFunc
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers  map[string]*ProgressTracker
	mutex     sync.RWMutex
	listeners []func(ProgressUpdate)
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// OnUpdate 注册全局进度监听，用于推送到 WebSocket
func (s *ProgressService) OnUpdate(fn func(ProgressUpdate)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listeners = append(s.listeners, fn)
}

// CreateTracker 创建新的进度跟踪器，cancel 可为 nil
func (s *ProgressService) CreateTracker(jobID, kind string, cancel context.CancelFunc) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[jobID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		JobID:       jobID,
		Kind:        kind,
		Message:     "任务初始化中...",
		Status:      JobStatusRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
		cancel:      cancel,
	}
	for _, fn := range s.listeners {
		tracker.listen(fn)
	}

	s.trackers[jobID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(jobID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[jobID]
	return tracker, exists
}

// Cancel 取消仍在运行的任务
func (s *ProgressService) Cancel(jobID string) bool {
	tracker, exists := s.GetTracker(jobID)
	if !exists {
		return false
	}

	tracker.mutex.Lock()
	running := tracker.Status == JobStatusRunning
	cancel := tracker.cancel
	tracker.mutex.Unlock()

	if !running || cancel == nil {
		return false
	}
	cancel()
	return true
}

// CancelAll 取消所有运行中的任务，返回取消数量
func (s *ProgressService) CancelAll() int {
	s.mutex.RLock()
	ids := make([]string, 0, len(s.trackers))
	for id := range s.trackers {
		ids = append(ids, id)
	}
	s.mutex.RUnlock()

	cancelled := 0
	for _, id := range ids {
		if s.Cancel(id) {
			cancelled++
		}
	}
	return cancelled
}

// listen 监听函数作为带缓冲的订阅者挂载，任务结束时随通道关闭退出
func (t *ProgressTracker) listen(fn func(ProgressUpdate)) {
	ch := make(chan ProgressUpdate, 16)
	t.Subscribers[ch] = true
	go func() {
		for update := range ch {
			fn(update)
		}
	}()
}

func (t *ProgressTracker) snapshot() ProgressUpdate {
	return ProgressUpdate{
		JobID:    t.JobID,
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
		Result:   t.Result,
	}
}

// broadcast 调用方必须持有 t.mutex
func (t *ProgressTracker) broadcast() {
	update := t.snapshot()
	for subscriber := range t.Subscribers {
		// 非阻塞发送，如果通道已满则跳过
		select {
		case subscriber <- update:
		default:
		}
	}
}

// UpdateProgress 更新任务进度，进度只增不减
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != JobStatusRunning {
		return
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcast()
}

func (t *ProgressTracker) finish(status, message string, result interface{}) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != JobStatusRunning {
		return
	}
	t.Status = status
	t.Message = message
	t.Result = result
	if status == JobStatusCompleted {
		t.Progress = 100
	}
	t.UpdateTime = time.Now()
	t.broadcast()

	for subscriber := range t.Subscribers {
		close(subscriber)
	}
	t.Subscribers = make(map[chan ProgressUpdate]bool)
	close(t.Done)
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string, result interface{}) {
	if message == "" {
		message = "任务已完成"
	}
	t.finish(JobStatusCompleted, message, result)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.finish(JobStatusFailed, fmt.Sprintf("任务失败: %s", errorMsg), nil)
}

// Cancelled 标记任务已取消
func (t *ProgressTracker) Cancelled() {
	t.finish(JobStatusCancelled, "任务已取消", nil)
}

// Snapshot 返回当前状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot()
}

// Subscribe 订阅进度更新。任务结束后通道会被关闭
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	subscriber <- t.snapshot()
	if t.Status != JobStatusRunning {
		close(subscriber)
		return subscriber
	}

	t.Subscribers[subscriber] = true
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.Subscribers[subscriber]; ok {
		delete(t.Subscribers, subscriber)
		close(subscriber)
	}
}

// CleanupCompletedTasks 清理已结束且超过 maxAge 的跟踪器，返回清理数量
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status != JobStatusRunning
		isOld := now.Sub(tracker.UpdateTime) >= maxAge
		tracker.mutex.Unlock()

		if finished && isOld {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}

// Count 当前跟踪器数量
func (s *ProgressService) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.trackers)
}
