package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot sessionauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() sessionauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := sessionauth.MetricsSnapshot{
		Counters:   make(map[sessionauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[sessionauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return out
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: sessionauth.MetricsSnapshot{
			Counters: map[sessionauth.MetricID]uint64{
				sessionauth.MetricLoginSuccess: 3,
				sessionauth.MetricOAuthSuccess: 2,
			},
			Histograms: map[sessionauth.MetricID][]uint64{
				sessionauth.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("sessionauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	assert.Equal(t, int64(3), got["sessionauth_login_success_total"])
	assert.Equal(t, int64(2), got["sessionauth_oauth_success_total"])
	assert.Equal(t, int64(1), got["sessionauth_refresh_latency_seconds_bucket_le_0_005"])
	assert.Equal(t, int64(8), got["sessionauth_refresh_latency_seconds_bucket_le_inf"])
	assert.Equal(t, int64(8), got["sessionauth_refresh_latency_seconds_count"])
	assert.Equal(t, int64(1), got["sessionauth_audit_dropped_total"])
	assert.NotContains(t, got, "sessionauth_login_latency_seconds_count")
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	_, err := NewExporter(provider.Meter("sessionauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: sessionauth.MetricsSnapshot{
			Counters:   map[sessionauth.MetricID]uint64{sessionauth.MetricLoginSuccess: 1},
			Histograms: map[sessionauth.MetricID][]uint64{},
		},
	}

	exp, err := NewExporter(provider.Meter("sessionauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[sessionauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
