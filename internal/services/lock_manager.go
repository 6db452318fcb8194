// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按键管理的锁。镜头生成使用 TryAcquire 做互斥闸门，
// 其他写操作使用 ExecuteWithLock 串行化
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex          *sync.Mutex
	Held           bool
	LastUsed       time.Time
	ReferenceCount int32 // 等待或持有该锁的调用数，大于0时不会被清理
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*LockInfo),
	}
}

func (lm *LockManager) info(key string) *LockInfo {
	lockInfo, exists := lm.locks[key]
	if !exists {
		lockInfo = &LockInfo{Mutex: &sync.Mutex{}}
		lm.locks[key] = lockInfo
	}
	lockInfo.LastUsed = time.Now()
	return lockInfo
}

// TryAcquire 尝试占用闸门，已被占用时立即返回 false
func (lm *LockManager) TryAcquire(key string) bool {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	lockInfo := lm.info(key)
	if lockInfo.Held {
		return false
	}
	lockInfo.Held = true
	lockInfo.ReferenceCount++
	return true
}

// Release 释放 TryAcquire 占用的闸门
func (lm *LockManager) Release(key string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if lockInfo, exists := lm.locks[key]; exists && lockInfo.Held {
		lockInfo.Held = false
		lockInfo.ReferenceCount--
		lockInfo.LastUsed = time.Now()
	}
}

// IsHeld 闸门是否被占用
func (lm *LockManager) IsHeld(key string) bool {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	lockInfo, exists := lm.locks[key]
	return exists && lockInfo.Held
}

// ExecuteWithLock 在锁保护下执行操作
func (lm *LockManager) ExecuteWithLock(key string, fn func() error) error {
	lm.globalLock.Lock()
	lockInfo := lm.info(key)
	lockInfo.ReferenceCount++
	lm.globalLock.Unlock()

	lockInfo.Mutex.Lock()
	defer func() {
		lockInfo.Mutex.Unlock()
		lm.globalLock.Lock()
		lockInfo.ReferenceCount--
		lockInfo.LastUsed = time.Now()
		lm.globalLock.Unlock()
	}()

	return fn()
}

// CleanupIdleLocks 清理长时间未使用且无人引用的锁，返回清理数量
func (lm *LockManager) CleanupIdleLocks(maxIdle time.Duration) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	now := time.Now()
	for key, lockInfo := range lm.locks {
		if lockInfo.ReferenceCount == 0 && !lockInfo.Held && now.Sub(lockInfo.LastUsed) >= maxIdle {
			delete(lm.locks, key)
			removed++
		}
	}
	return removed
}

// Size 当前管理的锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}
