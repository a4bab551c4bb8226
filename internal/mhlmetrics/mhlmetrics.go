// Package mhlmetrics collects minimal run metrics for a seal/check/record
// invocation: per-file hash latency and new/verified/mismatched/missing
// counters. Kept tiny and lock-based, adapted from
// internal/metrics/engine_metrics.go.
package mhlmetrics

import (
	"sync"
	"time"
)

// RunMetrics collects per-file hash latency and outcome counters for one
// seal, check or record invocation.
type RunMetrics struct {
	mu sync.Mutex

	hashLatencyUS []int64

	newCount        uint64
	verifiedCount   uint64
	mismatchedCount uint64
	missingCount    uint64
}

func New() *RunMetrics {
	return &RunMetrics{hashLatencyUS: make([]int64, 0, 1024)}
}

// ObserveHashLatency records how long one file's hash computation took.
func (m *RunMetrics) ObserveHashLatency(d time.Duration) {
	m.mu.Lock()
	m.hashLatencyUS = append(m.hashLatencyUS, d.Microseconds())
	m.mu.Unlock()
}

func (m *RunMetrics) AddNew(n uint64)        { m.add(&m.newCount, n) }
func (m *RunMetrics) AddVerified(n uint64)   { m.add(&m.verifiedCount, n) }
func (m *RunMetrics) AddMismatched(n uint64) { m.add(&m.mismatchedCount, n) }
func (m *RunMetrics) AddMissing(n uint64)    { m.add(&m.missingCount, n) }

func (m *RunMetrics) add(counter *uint64, n uint64) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	*counter += n
	m.mu.Unlock()
}

// Snapshot is a percentile summary plus outcome counters.
type Snapshot struct {
	HashLatencyUSP50 int64
	HashLatencyUSP95 int64
	HashLatencyUSP99 int64
	New              uint64
	Verified         uint64
	Mismatched       uint64
	Missing          uint64
}

// Snapshot computes percentiles via quickselect on a copy of the recorded
// latencies, so the running series is never mutated.
func (m *RunMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		HashLatencyUSP50: percentile(m.hashLatencyUS, 0.50),
		HashLatencyUSP95: percentile(m.hashLatencyUS, 0.95),
		HashLatencyUSP99: percentile(m.hashLatencyUS, 0.99),
		New:              m.newCount,
		Verified:         m.verifiedCount,
		Mismatched:       m.mismatchedCount,
		Missing:          m.missingCount,
	}
}

func percentile(series []int64, p float64) int64 {
	if len(series) == 0 {
		return 0
	}
	cp := make([]int64, len(series))
	copy(cp, series)
	k := int(float64(len(cp)-1) * p)
	quickselect(cp, 0, len(cp)-1, k)
	return cp[k]
}

func quickselect(a []int64, l, r, k int) {
	for l < r {
		p := partition(a, l, r)
		if k == p {
			return
		} else if k < p {
			r = p - 1
		} else {
			l = p + 1
		}
	}
}

func partition(a []int64, l, r int) int {
	p := a[r]
	i := l
	for j := l; j < r; j++ {
		if a[j] < p {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[r] = a[r], a[i]
	return i
}
