package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/store"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/db"
)

// Store is a record store that can also enumerate warmable scopes.
type Store interface {
	analytics.Repository
	ActiveScopes(ctx context.Context) ([]analytics.Scope, error)
}

// Analytics bundles the engine and the backends it was wired to.
type Analytics struct {
	Service      *analytics.Service
	Store        Store
	Cache        *analytics.RedisCache
	HealthChecks map[string]HealthCheck

	closers []func()
}

// NewAnalytics opens the configured store and Redis cache and builds the
// service. An unreachable Redis leaves caching disabled; an unreachable
// PostgreSQL is fatal.
func NewAnalytics(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*Analytics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	metrics, err := analytics.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register analytics metrics: %w", err)
	}

	a := &Analytics{HealthChecks: make(map[string]HealthCheck)}

	switch cfg.AnalyticsStore {
	case StoreMemory:
		logger.Warn("analytics store running in memory; reports reflect only in-process records")
		mem := store.NewMemory()
		if len(cfg.AnalyticsDemoTenants) > 0 {
			store.LoadDemo(mem, time.Now().In(loc), store.DemoOptions{Tenants: cfg.AnalyticsDemoTenants})
			logger.Info("loaded demo analytics data", slog.Any("tenants", cfg.AnalyticsDemoTenants))
		}
		a.Store = mem
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.HealthChecks["postgres"] = pool.Ping
		a.Store = store.NewPostgres(pool)
	}

	var reportCache analytics.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("analytics cache disabled", slog.Any("error", err))
		} else {
			a.closers = append(a.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
			a.HealthChecks["redis"] = redisCheck(client)
			a.Cache = analytics.NewRedisCache(client,
				analytics.WithMaxAge(cfg.AnalyticsCacheMaxAge),
				analytics.WithCacheLogger(logger),
				analytics.WithCacheMetrics(metrics),
			)
			reportCache = a.Cache
		}
	}

	a.Service = analytics.NewService(a.Store, reportCache,
		analytics.WithLogger(logger),
		analytics.WithLocation(loc),
		analytics.WithTTL(cfg.AnalyticsCacheTTL),
		analytics.WithBuildTimeout(cfg.AnalyticsBuildTime),
		analytics.WithMetrics(metrics),
	)
	return a, nil
}

// ListenForInvalidation subscribes the cache to peer invalidations. It is a
// no-op without Redis.
func (a *Analytics) ListenForInvalidation(ctx context.Context) error {
	if a == nil || a.Cache == nil {
		return nil
	}
	return a.Cache.ListenForInvalidation(ctx)
}

// Close releases the backends in reverse order of opening.
func (a *Analytics) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func redisCheck(client *redis.Client) HealthCheck {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.New("redis unreachable")
		}
		return nil
	}
}
