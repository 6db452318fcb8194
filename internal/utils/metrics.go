// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects process-local counters, gauges and histograms
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*atomic.Int64
	gauges     map[string]*atomic.Int64
	histograms map[string]*histogram
}

type histogram struct {
	mu    sync.Mutex
	count int64
	sum   int64
	min   int64
	max   int64
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*atomic.Int64),
		gauges:     make(map[string]*atomic.Int64),
		histograms: make(map[string]*histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

func getOrCreate[T any](m *MetricsCollector, set map[string]*T, name string) *T {
	m.mu.RLock()
	v, ok := set[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = set[name]; !ok {
		v = new(T)
		set[name] = v
	}
	return v
}

// AddCounter adds delta to a counter
func (m *MetricsCollector) AddCounter(name string, delta int64) {
	getOrCreate(m, m.counters, name).Add(delta)
}

// IncrementCounter increments a counter by one
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// GetCounterValue reads a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// AddGauge moves a gauge up or down
func (m *MetricsCollector) AddGauge(name string, delta int64) {
	getOrCreate(m, m.gauges, name).Add(delta)
}

// GetGauge reads a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gauges[name]; ok {
		return g.Load()
	}
	return 0
}

// RecordHistogram records one observation
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	h := getOrCreate(m, m.histograms, name)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || value < h.min {
		h.min = value
	}
	if h.count == 0 || value > h.max {
		h.max = value
	}
	h.count++
	h.sum += value
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = c.Load()
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, g := range m.gauges {
		gauges[name] = g.Load()
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{"count": h.count, "sum": h.sum, "min": h.min, "max": h.max}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// StudioMetrics 业务指标的命名约定
type StudioMetrics struct {
	metrics *MetricsCollector
}

// NewStudioMetrics 基于收集器创建业务指标
func NewStudioMetrics(m *MetricsCollector) *StudioMetrics {
	if m == nil {
		m = GetMetricsCollector()
	}
	return &StudioMetrics{metrics: m}
}

// RecordAPIRequest 记录一次HTTP请求
func (s *StudioMetrics) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	s.metrics.IncrementCounter("api.requests." + method)
	if statusCode >= 500 {
		s.metrics.IncrementCounter("api.errors")
	}
	s.metrics.RecordHistogram("api.duration_ms", duration.Milliseconds())
}

// GenerationStarted 批量生成开始
func (s *StudioMetrics) GenerationStarted() {
	s.metrics.AddGauge("generation.in_flight", 1)
}

// GenerationFinished 批量生成结束
func (s *StudioMetrics) GenerationFinished(mode string, versions int, duration time.Duration, ok bool) {
	s.metrics.AddGauge("generation.in_flight", -1)
	if ok {
		s.metrics.IncrementCounter("generation.batches." + mode)
		s.metrics.AddCounter("generation.versions."+mode, int64(versions))
	} else {
		s.metrics.IncrementCounter("generation.failures." + mode)
	}
	s.metrics.RecordHistogram("generation.duration_ms", duration.Milliseconds())
}

// RecordFallback 记录外部服务降级为占位或模拟结果
func (s *StudioMetrics) RecordFallback(operation string) {
	s.metrics.IncrementCounter("genai.fallback." + operation)
}

// RecordStaleReference 记录指向已不存在节点的更新
func (s *StudioMetrics) RecordStaleReference(operation string) {
	s.metrics.IncrementCounter("tree.stale." + operation)
}

// Snapshot 返回所有指标
func (s *StudioMetrics) Snapshot() map[string]interface{} {
	return s.metrics.GetMetrics()
}

// Collector 返回底层收集器
func (s *StudioMetrics) Collector() *MetricsCollector {
	return s.metrics
}
