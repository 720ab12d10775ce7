package mqtt311

import (
	"expvar"
	"sync"
	"time"
)

// ExpvarMetrics publishes metrics through the expvar package, so they show up
// under /debug/vars next to the runtime's own variables.
type ExpvarMetrics struct {
	vars *expvar.Map

	mu         sync.Mutex
	histograms map[string]*expvarHistogram
}

// NewExpvarMetrics publishes a map named name. Calling it twice with the
// same name reuses the published map.
func NewExpvarMetrics(name string) *ExpvarMetrics {
	var vars *expvar.Map
	if existing, ok := expvar.Get(name).(*expvar.Map); ok {
		vars = existing
	} else {
		vars = expvar.NewMap(name)
	}

	return &ExpvarMetrics{
		vars:       vars,
		histograms: make(map[string]*expvarHistogram),
	}
}

// Map returns the published expvar map.
func (e *ExpvarMetrics) Map() *expvar.Map {
	return e.vars
}

func (e *ExpvarMetrics) float(key string) *expvar.Float {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.vars.Get(key).(*expvar.Float); ok {
		return f
	}
	f := new(expvar.Float)
	e.vars.Set(key, f)
	return f
}

// Counter returns a counter metric.
func (e *ExpvarMetrics) Counter(name string, labels MetricLabels) Counter {
	return &expvarCounter{f: e.float(labelsKey(name, labels))}
}

// Gauge returns a gauge metric.
func (e *ExpvarMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return &expvarGauge{f: e.float(labelsKey(name, labels))}
}

// Histogram returns a histogram metric exported as <name>_count and <name>_sum.
func (e *ExpvarMetrics) Histogram(name string, labels MetricLabels) Histogram {
	key := labelsKey(name, labels)

	count := e.float(key + "_count")
	sum := e.float(key + "_sum")

	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.histograms[key]; ok {
		return h
	}
	h := &expvarHistogram{count: count, sum: sum}
	e.histograms[key] = h
	return h
}

type expvarCounter struct {
	f *expvar.Float
}

func (c *expvarCounter) Inc()              { c.f.Add(1) }
func (c *expvarCounter) Add(delta float64) { c.f.Add(delta) }
func (c *expvarCounter) Value() float64    { return c.f.Value() }

type expvarGauge struct {
	f *expvar.Float
}

func (g *expvarGauge) Set(value float64) { g.f.Set(value) }
func (g *expvarGauge) Inc()              { g.f.Add(1) }
func (g *expvarGauge) Dec()              { g.f.Add(-1) }
func (g *expvarGauge) Add(delta float64) { g.f.Add(delta) }
func (g *expvarGauge) Sub(delta float64) { g.f.Add(-delta) }
func (g *expvarGauge) Value() float64    { return g.f.Value() }

type expvarHistogram struct {
	mu    sync.Mutex
	count *expvar.Float
	sum   *expvar.Float
}

func (h *expvarHistogram) Observe(value float64) {
	h.mu.Lock()
	h.count.Add(1)
	h.sum.Add(value)
	h.mu.Unlock()
}

func (h *expvarHistogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *expvarHistogram) Count() uint64 {
	return uint64(h.count.Value())
}

func (h *expvarHistogram) Sum() float64 {
	return h.sum.Value()
}
