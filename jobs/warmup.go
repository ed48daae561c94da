package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	jobmetrics "github.com/odyssey-erp/odyssey-analytics/internal/jobs"
)

const defaultScopeTimeout = 20 * time.Second

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ScopeSource lists the tenant/branch scopes worth warming.
type ScopeSource interface {
	ActiveScopes(ctx context.Context) ([]analytics.Scope, error)
}

// Warmer computes the reports a warmup run pre-populates.
type Warmer interface {
	ExecutiveStats(ctx context.Context, p analytics.Params) (analytics.ExecutiveStats, error)
	Timeline(ctx context.Context, p analytics.Params) (analytics.TimelineReport, error)
	Forecast(ctx context.Context, p analytics.Params) (analytics.ForecastReport, error)
	DebtorAging(ctx context.Context, p analytics.Params) ([]analytics.AgingBucket, error)
	CreditorAging(ctx context.Context, p analytics.Params) ([]analytics.AgingBucket, error)
}

// WarmupJob pre-populates analytics caches for active scopes.
type WarmupJob struct {
	Analytics    Warmer
	Scopes       ScopeSource
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	ScopeTimeout time.Duration
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(warmer Warmer, scopes ScopeSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Analytics:    warmer,
		Scopes:       scopes,
		Logger:       logger,
		Metrics:      metrics,
		ScopeTimeout: defaultScopeTimeout,
	}
}

// Handle processes analytics warmup tasks. A failing scope is logged and
// skipped; the run reports the joined scope errors once every scope was tried.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil || j.Scopes == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskAnalyticsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(slog.String("run_id", uuid.NewString()))
	if payload.TenantID != "" {
		logger = logger.With(slog.String("tenant", payload.TenantID))
	}
	logger.Info("starting analytics warmup")

	scopes, err := j.Scopes.ActiveScopes(ctx)
	if err != nil {
		resultErr = fmt.Errorf("load warmup scopes: %w", err)
		logger.Error("load warmup scopes", slog.Any("error", err))
		return resultErr
	}

	var (
		warmed int
		errs   []error
	)
	for _, scope := range scopes {
		if payload.TenantID != "" && scope.TenantID != payload.TenantID {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := j.warmScope(ctx, scope)
		j.metrics().ScopeWarmed(scope.TenantID, err)
		if err != nil {
			logger.Error("warm scope",
				slog.String("scope_tenant", scope.TenantID),
				slog.String("scope_branch", scope.BranchID),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("warm %s/%s: %w", scope.TenantID, scope.BranchID, err))
			continue
		}
		warmed++
	}

	resultErr = errors.Join(errs...)
	logger.Info("completed analytics warmup",
		slog.Int("scopes", warmed),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *WarmupJob) warmScope(ctx context.Context, scope analytics.Scope) error {
	timeout := j.ScopeTimeout
	if timeout <= 0 {
		timeout = defaultScopeTimeout
	}
	scopeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := analytics.Params{TenantID: scope.TenantID, BranchID: scope.BranchID}
	if _, err := j.Analytics.ExecutiveStats(scopeCtx, p); err != nil {
		return err
	}
	if _, err := j.Analytics.Timeline(scopeCtx, p); err != nil {
		return err
	}
	if _, err := j.Analytics.Forecast(scopeCtx, p); err != nil {
		return err
	}
	if _, err := j.Analytics.DebtorAging(scopeCtx, p); err != nil {
		return err
	}
	if _, err := j.Analytics.CreditorAging(scopeCtx, p); err != nil {
		return err
	}
	return nil
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
