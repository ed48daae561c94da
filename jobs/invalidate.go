package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-analytics/internal/jobs"
)

// Invalidator drops a tenant's cached reports.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// InvalidateJob handles analytics:invalidate tasks.
type InvalidateJob struct {
	Analytics Invalidator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewInvalidateJob wires dependencies for the invalidation handler.
func NewInvalidateJob(inv Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvalidateJob {
	return &InvalidateJob{Analytics: inv, Logger: logger, Metrics: metrics}
}

// Handle processes cache invalidation tasks.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics invalidate: handler not configured")
	}
	var payload InvalidatePayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	if payload.TenantID == "" {
		return fmt.Errorf("analytics invalidate: missing tenant: %w", asynq.SkipRetry)
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAnalyticsInvalidate)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskAnalyticsInvalidate), slog.String("tenant", payload.TenantID))

	if err := j.Analytics.Invalidate(ctx, payload.TenantID); err != nil {
		logger.Error("invalidate analytics cache", slog.Any("error", err))
		return tracker.End(fmt.Errorf("invalidate %s: %v: %w", payload.TenantID, err, asynq.SkipRetry))
	}
	logger.Info("analytics cache invalidated")
	return tracker.End(nil)
}
