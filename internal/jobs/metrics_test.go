package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("analytics:warmup").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("analytics:warmup").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("analytics:warmup", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("analytics:warmup", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("analytics:warmup")))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestScopeWarmed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ScopeWarmed("t1", nil)
	m.ScopeWarmed("t1", nil)
	m.ScopeWarmed("t2", errors.New("timeout"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.scopes.WithLabelValues("t1", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.scopes.WithLabelValues("t2", "failure")))
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	second.Track("analytics:invalidate").End(nil)
	require.Equal(t, 1.0, testutil.ToFloat64(first.runs.WithLabelValues("analytics:invalidate", "success")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("job").End(boom), boom)
	m.ScopeWarmed("t1", nil)
}
