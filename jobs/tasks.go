package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup precomputes summary reports into the cache.
	TaskReportWarmup = "reports:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReportWarmupPayload selects which summaries to precompute.
type ReportWarmupPayload struct {
	// Departments to warm individually; empty warms the all-department
	// rollup only.
	Departments []string `json:"departments"`
	// Invalidate bumps the cache version before recomputing.
	Invalidate bool `json:"invalidate"`
}

// NewReportWarmupTask constructs an Asynq task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// IdempotencyCleanupPayload bounds the cleanup window.
type IdempotencyCleanupPayload struct {
	MaxAgeHours int `json:"maxAgeHours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(maxAgeHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{MaxAgeHours: maxAgeHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
