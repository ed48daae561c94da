package perf

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/store"
	jobmetrics "github.com/odyssey-erp/odyssey-analytics/internal/jobs"
	"github.com/odyssey-erp/odyssey-analytics/jobs"
)

var perfNow = time.Date(2025, 3, 31, 18, 0, 0, 0, time.UTC)

func demoStore(months int) *store.Memory {
	m := store.NewMemory()
	store.LoadDemo(m, perfNow, store.DemoOptions{Tenants: []string{"perf"}, Months: months})
	return m
}

func cachedService(tb testing.TB, repo analytics.Repository) *analytics.Service {
	tb.Helper()
	mr := miniredis.RunT(tb)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = client.Close() })
	return analytics.NewService(repo, analytics.NewRedisCache(client),
		analytics.WithClock(func() time.Time { return perfNow }))
}

var perfParams = analytics.Params{TenantID: "perf", StartDate: "2025-03-01", EndDate: "2025-03-31"}

func TestReportLatencyTargets(t *testing.T) {
	svc := cachedService(t, demoStore(12))
	ctx := context.Background()

	var cold, warm []time.Duration
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.Invalidate(ctx, "perf"))
		start := time.Now()
		_, err := svc.ExecutiveStats(ctx, perfParams)
		require.NoError(t, err)
		cold = append(cold, time.Since(start))

		start = time.Now()
		_, err = svc.ExecutiveStats(ctx, perfParams)
		require.NoError(t, err)
		warm = append(warm, time.Since(start))
	}

	require.Less(t, percentile95(warm), 500*time.Millisecond, "cached p95")
	require.Less(t, percentile95(cold), 2*time.Second, "cold p95")
}

func TestWarmupJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	repo := demoStore(6)
	job := jobs.NewWarmupJob(cachedService(t, repo), repo, nil, metrics)

	task, err := jobs.NewWarmupTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	families, err := reg.Gather()
	require.NoError(t, err)

	require.Equal(t, 1.0, metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskAnalyticsWarmup, "status": "success"}))
	require.Equal(t, 3.0, metricValue(t, families, "odyssey_analytics_warmup_scopes_total", map[string]string{"tenant": "perf", "status": "success"}))
	require.Less(t, histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskAnalyticsWarmup}), 2.0)
}

func BenchmarkExecutiveStatsCold(b *testing.B) {
	svc := analytics.NewService(demoStore(12), nil, analytics.WithClock(func() time.Time { return perfNow }))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.ExecutiveStats(ctx, perfParams); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecutiveStatsCached(b *testing.B) {
	svc := cachedService(b, demoStore(12))
	ctx := context.Background()
	if _, err := svc.ExecutiveStats(ctx, perfParams); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.ExecutiveStats(ctx, perfParams); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMarketBasket(b *testing.B) {
	svc := analytics.NewService(demoStore(6), nil, analytics.WithClock(func() time.Time { return perfNow }))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.MarketBasket(ctx, perfParams, analytics.BasketOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != want {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
