package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalyticsWarmup pre-computes the hot analytics reports.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskAnalyticsInvalidate drops the cached reports of a tenant.
	TaskAnalyticsInvalidate = "analytics:invalidate"
)

// WarmupPayload narrows a warmup run. An empty TenantID warms every active
// scope.
type WarmupPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// InvalidatePayload names the tenant whose cache is dropped.
type InvalidatePayload struct {
	TenantID string `json:"tenantId"`
}

// NewWarmupTask constructs an analytics warmup task.
func NewWarmupTask(tenantID string) (*asynq.Task, error) {
	data, err := json.Marshal(WarmupPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsWarmup, data), nil
}

// NewInvalidateTask constructs a cache invalidation task.
func NewInvalidateTask(tenantID string) (*asynq.Task, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("jobs: %s requires a tenant", TaskAnalyticsInvalidate)
	}
	data, err := json.Marshal(InvalidatePayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsInvalidate, data), nil
}

// decodePayload unmarshals a task payload, treating an empty payload as the
// zero value.
func decodePayload(t *asynq.Task, v any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
