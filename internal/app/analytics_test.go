package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/store"
)

func TestNewAnalyticsMemoryWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &Config{
		AnalyticsStore:    StoreMemory,
		RedisAddr:         mr.Addr(),
		AppTimezone:       "UTC",
		AnalyticsCacheTTL: 5 * time.Minute,
	}

	engine, err := NewAnalytics(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	require.IsType(t, &store.Memory{}, engine.Store)
	require.NotNil(t, engine.Cache)
	require.Contains(t, engine.HealthChecks, "redis")
	require.NotContains(t, engine.HealthChecks, "postgres")
	require.NoError(t, engine.HealthChecks["redis"](context.Background()))
	require.NoError(t, engine.ListenForInvalidation(context.Background()))

	_, err = engine.Service.ExecutiveStats(context.Background(), analytics.Params{TenantID: "t1"})
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	mr.Close()
	require.Error(t, engine.HealthChecks["redis"](context.Background()))
}

func TestNewAnalyticsWithoutRedis(t *testing.T) {
	cfg := &Config{AnalyticsStore: StoreMemory, AppTimezone: "UTC"}

	engine, err := NewAnalytics(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	require.Nil(t, engine.Cache)
	require.Empty(t, engine.HealthChecks)
	require.NoError(t, engine.ListenForInvalidation(context.Background()))
	require.NoError(t, engine.Service.Invalidate(context.Background(), "t1"))
}

func TestNewAnalyticsRejectsBadPostgresDSN(t *testing.T) {
	cfg := &Config{AnalyticsStore: StorePostgres, PGDSN: "::not a dsn::", AppTimezone: "UTC"}
	_, err := NewAnalytics(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.Error(t, err)
}

func TestNewAnalyticsLoadsDemoTenants(t *testing.T) {
	cfg := &Config{AnalyticsStore: StoreMemory, AppTimezone: "UTC", AnalyticsDemoTenants: []string{"demo"}}

	engine, err := NewAnalytics(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	scopes, err := engine.Store.ActiveScopes(context.Background())
	require.NoError(t, err)
	require.Contains(t, scopes, analytics.Scope{TenantID: "demo"})
}
