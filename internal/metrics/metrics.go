package metrics

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// route identifies an endpoint after ID normalization.
type route struct {
	endpoint string
	method   string
}

// routeStatus buckets error responses by status class (400, 500).
type routeStatus struct {
	route
	class int
}

// Metrics holds the process counters exposed at /metrics.
type Metrics struct {
	mu sync.RWMutex

	requests  map[route]*atomic.Uint64
	latency   map[route]*Histogram
	errors    map[routeStatus]*atomic.Uint64
	jobs      map[string]*Histogram // by outcome
	counters  map[string]*atomic.Uint64
	gauges    map[string]func() float64
	active    func() int
	listeners atomic.Int64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu      sync.Mutex
	count   uint64
	sum     float64
	bounds  []float64
	buckets []uint64
}

var (
	// requestBounds cover 5ms to 10s.
	requestBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// jobBounds span a quick direct fetch up to the longest job timeout.
	jobBounds = []float64{1, 5, 15, 30, 60, 120, 300, 600}
)

func newHistogram(bounds []float64) *Histogram {
	return &Histogram{bounds: bounds, buckets: make([]uint64, len(bounds))}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.bounds {
		if v <= b {
			h.buckets[i]++
		}
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requests:  make(map[route]*atomic.Uint64),
		latency:   make(map[route]*Histogram),
		errors:    make(map[routeStatus]*atomic.Uint64),
		jobs:      make(map[string]*Histogram),
		counters:  make(map[string]*atomic.Uint64),
		gauges:    make(map[string]func() float64),
		startTime: time.Now(),
	}
}

var defaultMetrics = New()

// Default returns the process-wide instance.
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest counts one served request.
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := route{endpoint: normalizeEndpoint(path), method: method}

	m.mu.Lock()
	count := m.requests[key]
	if count == nil {
		count = new(atomic.Uint64)
		m.requests[key] = count
		m.latency[key] = newHistogram(requestBounds)
	}
	hist := m.latency[key]
	var failed *atomic.Uint64
	if statusCode >= 400 {
		ek := routeStatus{route: key, class: statusCode / 100 * 100}
		failed = m.errors[ek]
		if failed == nil {
			failed = new(atomic.Uint64)
			m.errors[ek] = failed
		}
	}
	m.mu.Unlock()

	count.Add(1)
	hist.Observe(duration.Seconds())
	if failed != nil {
		failed.Add(1)
	}
}

// normalizeEndpoint folds download IDs and numeric segments into {id}.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if isUUID(part) || isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isUUID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IncProgressSubscribers counts an attached SSE or websocket viewer
func (m *Metrics) IncProgressSubscribers() {
	m.listeners.Add(1)
}

// DecProgressSubscribers counts a detached viewer
func (m *Metrics) DecProgressSubscribers() {
	m.listeners.Add(-1)
}

// TrackActiveDownloads sets the source of the unfinished job count,
// read at scrape time.
func (m *Metrics) TrackActiveDownloads(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = fn
}

// GaugeFunc registers a gauge read at scrape time.
func (m *Metrics) GaugeFunc(name string, fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = fn
}

// IncCounter increments a named counter.
func (m *Metrics) IncCounter(name string) {
	m.mu.Lock()
	c := m.counters[name]
	if c == nil {
		c = new(atomic.Uint64)
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(1)
}

// ObserveDuration records how long a download job took, keyed by outcome.
func (m *Metrics) ObserveDuration(outcome string, d time.Duration) {
	m.mu.Lock()
	h := m.jobs[outcome]
	if h == nil {
		h = newHistogram(jobBounds)
		m.jobs[outcome] = h
	}
	m.mu.Unlock()
	h.Observe(d.Seconds())
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.RecordRequest(r.Method, r.URL.Path, sw.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the flusher and hijacker.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
