package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("stats", Scope{TenantID: "t1"}, "2025-01-01", "2025-01-31", "UTC")
	b := Fingerprint("stats", Scope{TenantID: "t1"}, "2025-01-01", "2025-01-31", "UTC")
	c := Fingerprint("stats", Scope{TenantID: "t1", BranchID: "b1"}, "2025-01-01", "2025-01-31", "UTC")
	d := Fingerprint("stats", Scope{TenantID: "t1"}, "2025-01-01", "2025-01-31", "Asia/Jakarta")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, a, d)
	require.True(t, strings.HasPrefix(a, "analytics:t1:stats:-:"))
	require.True(t, strings.HasPrefix(c, "analytics:t1:stats:b1:"))
	require.Len(t, strings.TrimPrefix(a, "analytics:t1:stats:-:"), 32)
}

func TestRedisCacheRoundTripAndFreshness(t *testing.T) {
	_, client := newTestRedis(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := NewRedisCache(client, WithCacheClock(func() time.Time { return now }))
	ctx := context.Background()

	key := Fingerprint("stats", Scope{TenantID: "t1"}, "x")
	cache.Set(ctx, key, []byte(`{"value":1}`), time.Hour)

	raw, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.JSONEq(t, `{"value":1}`, string(raw))

	now = now.Add(5 * time.Minute)
	_, ok = cache.Get(ctx, key)
	require.True(t, ok, "entries at the ceiling are still fresh")

	now = now.Add(time.Second)
	_, ok = cache.Get(ctx, key)
	require.False(t, ok, "entries older than five minutes are misses")
}

func TestRedisCacheInvalidateByTenant(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewRedisCache(client)
	ctx := context.Background()

	for i := 0; i < 450; i++ {
		cache.Set(ctx, Fingerprint("stats", Scope{TenantID: "t1"}, itoa(i)), []byte(`1`), time.Hour)
	}
	other := Fingerprint("stats", Scope{TenantID: "t2"}, "0")
	cache.Set(ctx, other, []byte(`1`), time.Hour)

	cache.Invalidate(ctx, TenantPattern("t1"))
	require.Equal(t, []string{other}, mr.Keys())
}

func TestRedisCachePubSubInvalidation(t *testing.T) {
	mr, client := newTestRedis(t)
	listener := NewRedisCache(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, listener.ListenForInvalidation(ctx))

	key := Fingerprint("timeline", Scope{TenantID: "t1"}, "x")
	listener.Set(ctx, key, []byte(`[]`), time.Hour)

	peerClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer peerClient.Close()
	require.NoError(t, NewRedisCache(peerClient).PublishInvalidation(ctx, "t1"))

	require.Eventually(t, func() bool {
		return !mr.Exists(key)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	mr, client := newTestRedis(t)
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cache := NewRedisCache(client, WithCacheMetrics(metrics))
	ctx := context.Background()

	key := Fingerprint("stats", Scope{TenantID: "t1"}, "x")
	require.NoError(t, mr.Set(key, "not an envelope"))
	_, ok := cache.Get(ctx, key)
	require.False(t, ok)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("decode")))

	mr.Close()
	_, ok = cache.Get(ctx, key)
	require.False(t, ok)
	cache.Set(ctx, key, []byte(`1`), time.Minute)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("get")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("set")))
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.cacheHit("stats")
	second.cacheHit("stats")
	require.Equal(t, 2.0, testutil.ToFloat64(first.hits.WithLabelValues("stats")))

	var nilMetrics *Metrics
	nilMetrics.cacheMiss("stats")
}
