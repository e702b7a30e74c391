package sessionauth

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID indexes a counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricLogoutAll
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricPasswordResetRequest
	MetricPasswordResetRateLimited
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricOAuthStart
	MetricOAuthSuccess
	MetricOAuthFailure
	MetricOAuthStateRejected
	MetricRateLimitHit
	MetricLoginLatency
	MetricRefreshLatency
	MetricValidateLatency
	metricIDCount
)

// LatencyBucketBounds are the inclusive upper bounds, in milliseconds, of
// every latency histogram bucket except the last, which is unbounded.
var LatencyBucketBounds = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBucketCount = len(LatencyBucketBounds) + 1

// latencySlots maps each latency metric to its histogram.
var latencySlots = map[MetricID]int{
	MetricLoginLatency:    0,
	MetricRefreshLatency:  1,
	MetricValidateLatency: 2,
}

// counter sits on its own cache line so hot counters do not false-share.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

type histogram [latencyBucketCount]atomic.Uint64

// Metrics is a fixed set of lock-free counters and latency histograms.
// A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	hists   [3]histogram
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are
// non-cumulative and follow LatencyBucketBounds plus a +Inf bucket.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d for a latency metric. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot, ok := latencySlots[id]
	if !ok {
		return
	}
	m.hists[slot][latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if _, isLatency := latencySlots[id]; !isLatency {
			snap.Counters[id] = m.counts[id].Load()
		}
	}
	if !m.latency {
		return snap
	}
	for id, slot := range latencySlots {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.hists[slot][i].Load()
		}
		snap.Histograms[id] = buckets
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	return sort.Search(len(LatencyBucketBounds), func(i int) bool {
		return ms <= LatencyBucketBounds[i]
	})
}
