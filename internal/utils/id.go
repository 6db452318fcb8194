// internal/utils/id.go
package utils

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID 生成带前缀的唯一ID，如 ep_3f2a9c1d7b8e
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Clock 产生严格递增的毫秒时间戳
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock 创建时钟，now 为 nil 时使用 time.Now
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next 返回大于上一次结果的毫秒时间戳
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
