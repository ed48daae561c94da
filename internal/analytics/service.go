package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

const (
	defaultTTL          = 300 * time.Second
	defaultBuildTimeout = 30 * time.Second
)

// RecordFilter scopes record loaders. A zero Window leaves the range unbounded.
type RecordFilter struct {
	Scope
	Window   Window
	OnlyOpen bool
}

// Repository is the read-only record store behind every report.
type Repository interface {
	Aggregate(ctx context.Context, q pipeline.Query) ([]pipeline.Row, error)
	Sales(ctx context.Context, filter RecordFilter) ([]SaleTransaction, error)
	Purchases(ctx context.Context, filter RecordFilter) ([]PurchaseTransaction, error)
	Products(ctx context.Context, scope Scope) ([]Product, error)
	Customers(ctx context.Context, tenantID string) ([]Customer, error)
	LedgerEntries(ctx context.Context, filter RecordFilter) ([]AccountingEntry, error)
}

// Publisher broadcasts tenant invalidations to other processes.
type Publisher interface {
	PublishInvalidation(ctx context.Context, tenantID string) error
}

// Service composes analytics reports over a Repository behind a Cache.
type Service struct {
	repo    Repository
	cache   Cache
	logger  *slog.Logger
	metrics *Metrics
	loc     *time.Location
	ttl     time.Duration
	build   time.Duration
	clock   func() time.Time
	flight  singleflight.Group
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation sets the timezone used for windows and buckets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithTTL sets the cache TTL of computed reports.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBuildTimeout bounds a shared report build. Builds outlive the request
// that started them so concurrent waiters are not cancelled with it.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.build = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Repository with a Cache. A nil cache disables caching.
func NewService(repo Repository, cache Cache, opts ...Option) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	s := &Service{
		repo:   repo,
		cache:  cache,
		logger: slog.Default(),
		loc:    time.UTC,
		ttl:    defaultTTL,
		build:  defaultBuildTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the reporting timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Invalidate drops every cached report of a tenant and notifies peers.
func (s *Service) Invalidate(ctx context.Context, tenantID string) error {
	if err := (Params{TenantID: tenantID}).Validate(); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, TenantPattern(tenantID))
	if pub, ok := s.cache.(Publisher); ok {
		if err := pub.PublishInvalidation(ctx, tenantID); err != nil {
			s.logger.Warn("publish analytics invalidation", slog.String("tenant", tenantID), slog.Any("error", err))
		}
	}
	return nil
}

// cached serves a report through the cache. Concurrent misses for the same
// key share one build detached from any single caller's cancellation; each
// caller only stops waiting on its own ctx. The built value is JSON round-tripped so a miss and
// a later hit decode from identical bytes.
func cached[T any](ctx context.Context, s *Service, report string, req request, extras []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	parts := append([]string{
		req.window.Start.UTC().Format(time.RFC3339Nano),
		req.window.End.UTC().Format(time.RFC3339Nano),
		s.loc.String(),
	}, extras...)
	key := Fingerprint(report, req.scope, parts...)

	if raw, ok := s.cache.Get(ctx, key); ok {
		var out T
		err := json.Unmarshal(raw, &out)
		if err == nil {
			s.metrics.cacheHit(report)
			return out, nil
		}
		s.logger.Warn("decode cached analytics report", slog.String("report", report), slog.Any("error", err))
	}
	s.metrics.cacheMiss(report)

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.build)
		defer cancel()
		started := time.Now()
		value, err := build(bctx)
		s.metrics.observeBuild(report, err, time.Since(started))
		if err != nil {
			return nil, reportError(report, req.scope, req.window, err)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("analytics: encode %s: %w", report, err)
		}
		s.cache.Set(bctx, key, raw, s.ttl)
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		var out T
		if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
			return zero, fmt.Errorf("analytics: decode %s: %w", report, err)
		}
		return out, nil
	}
}

func (s *Service) aggregate(ctx context.Context, b *pipeline.Builder) ([]pipeline.Row, error) {
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return s.repo.Aggregate(ctx, q)
}

func (s *Service) scoped(src pipeline.Source, scope Scope, w Window) *pipeline.Builder {
	return pipeline.From(src).Scope(scope.TenantID, scope.BranchID).Between(w.Start, w.End)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
