// internal/utils/metrics.go
package utils

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// slot returns the value cell for name, creating it under the write lock
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, exists := set[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, exists = set[name]; !exists {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	return atomic.LoadInt64(m.slot(m.gauges, name))
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	return atomic.LoadInt64(m.slot(m.counters, name))
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// StoryMetrics 记录接口、模型调用与故事生成相关指标
type StoryMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewStoryMetrics creates a metrics recorder
func NewStoryMetrics(collector *MetricsCollector, logger *Logger) *StoryMetrics {
	return &StoryMetrics{metrics: collector, logger: logger}
}

// Collector 返回底层收集器
func (sm *StoryMetrics) Collector() *MetricsCollector {
	return sm.metrics
}

// RecordAPIRequest records metrics for an API request
func (sm *StoryMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	sm.metrics.IncrementCounter("api_requests_total")
	sm.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	sm.metrics.IncrementCounter(fmt.Sprintf("api_responses_%dxx", statusCode/100))
	sm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())

	sm.logger.Debug("API request completed", map[string]interface{}{
		"route":    route,
		"method":   method,
		"status":   statusCode,
		"duration": duration.Milliseconds(),
	})
}

// RecordLLMRequest records metrics for an LLM request
func (sm *StoryMetrics) RecordLLMRequest(provider, model string, tokensUsed int, duration time.Duration) {
	sm.metrics.IncrementCounter("llm_requests_total")
	sm.metrics.IncrementCounter("llm_requests_" + provider)
	sm.metrics.AddCounter("llm_tokens_total", int64(tokensUsed))
	sm.metrics.RecordHistogram("llm_response_time_ms", duration.Milliseconds())

	sm.logger.Info("LLM request completed", map[string]interface{}{
		"provider": provider,
		"model":    model,
		"tokens":   tokensUsed,
		"duration": duration.Milliseconds(),
	})
}

// RecordParse 记录一次文本解析
func (sm *StoryMetrics) RecordParse(pages, characters int) {
	sm.metrics.IncrementCounter("story_parses_total")
	sm.metrics.RecordHistogram("story_pages", int64(pages))
	sm.metrics.RecordHistogram("story_characters", int64(characters))
	if pages == 0 {
		sm.metrics.IncrementCounter("story_parses_empty")
	}
}

// GenerationStarted 标记一次生成开始
func (sm *StoryMetrics) GenerationStarted() {
	sm.metrics.IncGauge("story_generations_in_flight")
}

// GenerationFinished 记录生成结果
func (sm *StoryMetrics) GenerationFinished(status string, duration time.Duration) {
	sm.metrics.DecGauge("story_generations_in_flight")
	sm.metrics.IncrementCounter("story_generations_" + status)
	sm.metrics.RecordHistogram("story_generation_time_ms", duration.Milliseconds())
}

// RecordError records an error metric
func (sm *StoryMetrics) RecordError(errorType, component string) {
	sm.metrics.IncrementCounter("errors_total")
	sm.metrics.IncrementCounter("errors_" + errorType)
	sm.metrics.IncrementCounter("errors_" + component)

	sm.logger.Error("Error recorded", map[string]interface{}{
		"type":      errorType,
		"component": component,
	})
}
