// internal/services/scheduler_service.go
package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 维护任务的默认周期与保留时长
const (
	DefaultMaintenanceInterval = 5 * time.Minute
	CompletedJobRetention      = 30 * time.Minute
	IdleLockRetention          = 10 * time.Minute
	IdleSessionRetention       = 24 * time.Hour
)

// JobInfo 维护任务的运行信息
type JobInfo struct {
	ID       string        `json:"id"`
	Interval time.Duration `json:"interval"`
	Runs     int           `json:"runs"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
	NextRun  *time.Time    `json:"next_run,omitempty"`
	job      *gocron.Job
	task     func()
}

// SchedulerService 定期清理已结束的进度任务、空闲的锁与会话
type SchedulerService struct {
	scheduler *gocron.Scheduler
	jobs      map[string]*JobInfo
	mu        sync.RWMutex
	running   bool
}

// NewSchedulerService 创建调度器，同一任务不会并发执行
func NewSchedulerService() *SchedulerService {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	return &SchedulerService{
		scheduler: scheduler,
		jobs:      make(map[string]*JobInfo),
	}
}

// RegisterMaintenance 注册标准的维护任务
func (s *SchedulerService) RegisterMaintenance(interval time.Duration, progress *ProgressService, locks *LockManager, workbench *WorkbenchService) error {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	logger := utils.GetLogger()

	if progress != nil {
		if err := s.AddJob("progress.cleanup", interval, func() {
			if n := progress.CleanupCompletedTasks(CompletedJobRetention); n > 0 {
				logger.Info("已清理结束的进度任务", map[string]interface{}{"removed": n})
			}
		}); err != nil {
			return err
		}
	}
	if locks != nil {
		if err := s.AddJob("locks.cleanup", interval, func() {
			if n := locks.CleanupIdleLocks(IdleLockRetention); n > 0 {
				logger.Debug("已清理空闲锁", map[string]interface{}{"removed": n})
			}
		}); err != nil {
			return err
		}
	}
	if workbench != nil {
		if err := s.AddJob("workbench.sessions", interval, func() {
			if n := workbench.CleanupIdleSessions(IdleSessionRetention); n > 0 {
				logger.Info("已清理过期的工作台会话", map[string]interface{}{"removed": n})
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddJob 添加周期任务
func (s *SchedulerService) AddJob(id string, interval time.Duration, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job with ID %s already exists", id)
	}

	info := &JobInfo{ID: id, Interval: interval, task: task}
	job, err := s.scheduler.Every(interval).WaitForSchedule().Do(func() {
		s.run(id)
	})
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}
	info.job = job
	s.jobs[id] = info
	return nil
}

// run 执行任务并记录运行信息
func (s *SchedulerService) run(id string) {
	s.mu.Lock()
	info, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	info.LastRun = &now
	info.Runs++
	task := info.task
	s.mu.Unlock()

	task()
}

// RunAll 立即依次执行所有任务
func (s *SchedulerService) RunAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		s.run(id)
	}
}

// RemoveJob 删除任务
func (s *SchedulerService) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job with ID %s not found", id)
	}
	if info.job != nil {
		s.scheduler.RemoveByReference(info.job)
	}
	delete(s.jobs, id)
	return nil
}

// ListJobs 返回所有任务的运行信息副本
func (s *SchedulerService) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, info := range s.jobs {
		c := JobInfo{ID: info.ID, Interval: info.Interval, Runs: info.Runs}
		if info.LastRun != nil {
			last := *info.LastRun
			c.LastRun = &last
		}
		if s.running && info.job != nil {
			next := info.job.NextRun()
			c.NextRun = &next
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start 异步启动调度
func (s *SchedulerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.scheduler.StartAsync()
	s.running = true
	utils.GetLogger().Info("维护任务调度已启动", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop 停止调度
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.scheduler.Stop()
	s.running = false
	utils.GetLogger().Info("维护任务调度已停止", nil)
}

// IsRunning 调度是否在运行
func (s *SchedulerService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
