package mqtt311

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMetrics keeps every metric in process memory. Tests read values back
// with CounterValue, GaugeValue and GetHistogram.
type MemoryMetrics struct {
	values     series[*memoryValue]
	histograms series[*memoryHistogram]
}

// NewMemoryMetrics creates an empty MemoryMetrics.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		values:     series[*memoryValue]{create: func() *memoryValue { return &memoryValue{} }},
		histograms: series[*memoryHistogram]{create: func() *memoryHistogram { return &memoryHistogram{} }},
	}
}

// labelsKey flattens a metric name and its labels into name|k1=v1|k2=v2,
// labels in key order.
func labelsKey(name string, labels MetricLabels) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// Counter and Gauge share one namespace: a name is expected to be used as
// one kind only.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return m.values.get(labelsKey(name, labels))
}

func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return m.values.get(labelsKey(name, labels))
}

func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	return m.histograms.get(labelsKey(name, labels))
}

// CounterValue returns the counter's value, zero if it was never touched.
func (m *MemoryMetrics) CounterValue(name string, labels MetricLabels) float64 {
	if v, ok := m.values.lookup(labelsKey(name, labels)); ok {
		return v.Value()
	}
	return 0
}

// GaugeValue returns the gauge's value, zero if it was never touched.
func (m *MemoryMetrics) GaugeValue(name string, labels MetricLabels) float64 {
	return m.CounterValue(name, labels)
}

// GetHistogram returns the histogram, or nil if nothing was recorded under it.
func (m *MemoryMetrics) GetHistogram(name string, labels MetricLabels) Histogram {
	if h, ok := m.histograms.lookup(labelsKey(name, labels)); ok {
		return h
	}
	return nil
}

type series[T any] struct {
	mu     sync.RWMutex
	byKey  map[string]T
	create func() T
}

func (s *series[T]) lookup(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byKey[key]
	return v, ok
}

func (s *series[T]) get(key string) T {
	if v, ok := s.lookup(key); ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.byKey[key]; ok {
		return v
	}
	if s.byKey == nil {
		s.byKey = make(map[string]T)
	}
	v := s.create()
	s.byKey[key] = v
	return v
}

// atomicFloat is a float64 updated with compare-and-swap on its bits.
type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) add(delta float64) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }

// memoryValue serves as both Counter and Gauge.
type memoryValue struct{ v atomicFloat }

func (m *memoryValue) Inc()              { m.v.add(1) }
func (m *memoryValue) Dec()              { m.v.add(-1) }
func (m *memoryValue) Add(delta float64) { m.v.add(delta) }
func (m *memoryValue) Sub(delta float64) { m.v.add(-delta) }
func (m *memoryValue) Set(value float64) { m.v.store(value) }
func (m *memoryValue) Value() float64    { return m.v.load() }

type memoryHistogram struct {
	count atomic.Uint64
	sum   atomicFloat
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)
	h.sum.add(value)
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }
func (h *memoryHistogram) Count() uint64                   { return h.count.Load() }
func (h *memoryHistogram) Sum() float64                    { return h.sum.load() }
