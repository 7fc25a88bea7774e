package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks evaluation cycle performance.
type SystemMetrics struct {
	// Latency histograms
	CycleLatency *LatencyHistogram
	FetchLatency *LatencyHistogram
	EvalLatency  *LatencyHistogram

	// Counters
	cycles          uint64
	evaluations     uint64
	fetchFailures   uint64
	signalsEmitted  uint64
	positionsOpened uint64
	positionsClosed uint64
	rejections      uint64
	errorsCount     uint64

	mu        sync.RWMutex
	lastCycle time.Time
	started   time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next Record.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool         // Whether samples have changed since last Stats()
	cachedStats LatencyStats // Cached computed stats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CycleLatency: NewLatencyHistogram(500),
		FetchLatency: NewLatencyHistogram(1000),
		EvalLatency:  NewLatencyHistogram(1000),
		started:      time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// CycleCompleted records one finished evaluation cycle.
func (m *SystemMetrics) CycleCompleted(d time.Duration) {
	atomic.AddUint64(&m.cycles, 1)
	m.CycleLatency.RecordDuration(d)
	m.mu.Lock()
	m.lastCycle = time.Now()
	m.mu.Unlock()
}

func (m *SystemMetrics) IncrementEvaluations()   { atomic.AddUint64(&m.evaluations, 1) }
func (m *SystemMetrics) IncrementFetchFailures() { atomic.AddUint64(&m.fetchFailures, 1) }
func (m *SystemMetrics) IncrementSignals()       { atomic.AddUint64(&m.signalsEmitted, 1) }
func (m *SystemMetrics) IncrementOpened()        { atomic.AddUint64(&m.positionsOpened, 1) }
func (m *SystemMetrics) IncrementRejections()    { atomic.AddUint64(&m.rejections, 1) }
func (m *SystemMetrics) IncrementErrors()        { atomic.AddUint64(&m.errorsCount, 1) }

// AddClosed counts positions closed by triggers or manual override.
func (m *SystemMetrics) AddClosed(n int) {
	if n > 0 {
		atomic.AddUint64(&m.positionsClosed, uint64(n))
	}
}

// MetricsSnapshot is a point-in-time view for the API.
type MetricsSnapshot struct {
	CycleLatency    LatencyStats `json:"cycle_latency"`
	FetchLatency    LatencyStats `json:"fetch_latency"`
	EvalLatency     LatencyStats `json:"eval_latency"`
	Cycles          uint64       `json:"cycles"`
	Evaluations     uint64       `json:"evaluations"`
	FetchFailures   uint64       `json:"fetch_failures"`
	SignalsEmitted  uint64       `json:"signals_emitted"`
	PositionsOpened uint64       `json:"positions_opened"`
	PositionsClosed uint64       `json:"positions_closed"`
	Rejections      uint64       `json:"rejections"`
	ErrorsCount     uint64       `json:"errors_count"`
	LastCycle       time.Time    `json:"last_cycle"`
	Uptime          string       `json:"uptime"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	last := m.lastCycle
	m.mu.RUnlock()

	return MetricsSnapshot{
		CycleLatency:    m.CycleLatency.Stats(),
		FetchLatency:    m.FetchLatency.Stats(),
		EvalLatency:     m.EvalLatency.Stats(),
		Cycles:          atomic.LoadUint64(&m.cycles),
		Evaluations:     atomic.LoadUint64(&m.evaluations),
		FetchFailures:   atomic.LoadUint64(&m.fetchFailures),
		SignalsEmitted:  atomic.LoadUint64(&m.signalsEmitted),
		PositionsOpened: atomic.LoadUint64(&m.positionsOpened),
		PositionsClosed: atomic.LoadUint64(&m.positionsClosed),
		Rejections:      atomic.LoadUint64(&m.rejections),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		LastCycle:       last,
		Uptime:          time.Since(m.started).Round(time.Second).String(),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
