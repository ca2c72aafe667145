package dice

import (
	"sort"
	"sync"
)

// Latency thresholds in milliseconds for health classification.
const (
	// TargetP95Ms is the hard latency target for roll resolution.
	TargetP95Ms = 100.0
	// excellentP95Ms is the p95 bound for an "excellent" health rating.
	excellentP95Ms = 50.0
)

// Stats is a point-in-time summary of the tracker's rolling window.
type Stats struct {
	AvgMs              float64 `json:"average_response_time_ms"`
	P95Ms              float64 `json:"p95_response_time_ms"`
	P99Ms              float64 `json:"p99_response_time_ms"`
	MaxMs              float64 `json:"max_response_time_ms"`
	SampleCount        int     `json:"sample_count"`
	TotalRolls         uint64  `json:"total_rolls"`
	UnderThresholdRate float64 `json:"sub_100ms_rate"`
}

// Health classifies the current p95 latency. Observability only: the
// resolver never changes behavior based on it.
func (s Stats) Health() string {
	switch {
	case s.P95Ms < excellentP95Ms:
		return "excellent"
	case s.P95Ms < TargetP95Ms:
		return "good"
	default:
		return "degraded"
	}
}

// Tracker records resolution latencies in a bounded rolling window and
// reports percentile statistics over it. It is process-wide state shared by
// every resolution; Record is safe under concurrent writers, and readers get
// an eventually-consistent snapshot.
type Tracker struct {
	mu         sync.Mutex
	window     []float64
	next       int
	filled     bool
	totalRolls uint64
	underCount uint64
}

// NewTracker creates a Tracker with the given rolling window size.
//
// Precondition: windowSize >= 1.
func NewTracker(windowSize int) *Tracker {
	if windowSize < 1 {
		panic("dice: tracker window size must be >= 1")
	}
	return &Tracker{window: make([]float64, windowSize)}
}

// Record appends a latency sample, evicting the oldest on overflow.
func (t *Tracker) Record(latencyMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window[t.next] = latencyMs
	t.next++
	if t.next == len(t.window) {
		t.next = 0
		t.filled = true
	}
	t.totalRolls++
	if latencyMs < TargetP95Ms {
		t.underCount++
	}
}

// Snapshot computes statistics over the current window by sorting a copy.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	n := t.next
	if t.filled {
		n = len(t.window)
	}
	samples := make([]float64, n)
	copy(samples, t.window[:n])
	total := t.totalRolls
	under := t.underCount
	t.mu.Unlock()

	if len(samples) == 0 {
		return Stats{}
	}

	sort.Float64s(samples)

	sum := 0.0
	for _, v := range samples {
		sum += v
	}

	return Stats{
		AvgMs:              sum / float64(len(samples)),
		P95Ms:              percentile(samples, 0.95),
		P99Ms:              percentile(samples, 0.99),
		MaxMs:              samples[len(samples)-1],
		SampleCount:        len(samples),
		TotalRolls:         total,
		UnderThresholdRate: float64(under) / float64(total),
	}
}

// percentile returns the q-th percentile of sorted samples using the same
// index convention the rest of the stack reports against: element at
// floor(len*q), clamped to the last sample.
//
// Precondition: sorted is non-empty and ascending.
func percentile(sorted []float64, q float64) float64 {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
