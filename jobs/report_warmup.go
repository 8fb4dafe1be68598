package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusops/campusops/internal/reporting"
	"github.com/campusops/campusops/internal/shared"
)

// ReportWarmupJob precomputes admin summaries so the first dashboard
// load after a decision burst hits warm cache.
type ReportWarmupJob struct {
	service *reporting.Service
	cache   *reporting.Cache
	logger  *slog.Logger
}

// NewReportWarmupJob constructs the warmup job.
func NewReportWarmupJob(service *reporting.Service, cache *reporting.Cache, logger *slog.Logger) *ReportWarmupJob {
	return &ReportWarmupJob{service: service, cache: cache, logger: logger}
}

// Handle processes TaskReportWarmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	if payload.Invalidate && j.cache != nil {
		if err := j.cache.Invalidate(ctx); err != nil {
			j.logger.Warn("report cache invalidate", slog.Any("error", err))
		}
	}

	system := shared.Principal{Role: shared.RoleAdmin}
	targets := append([]string{""}, payload.Departments...)
	for _, department := range targets {
		if _, err := j.service.AdminSummary(ctx, system, department); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				j.logger.Info("report warmup skipped, no active academic year")
				return nil
			}
			j.logger.Error("report warmup", slog.Any("error", err), slog.String("department", department))
			return err
		}
	}
	j.logger.Info("report warmup complete", slog.Int("departments", len(payload.Departments)))
	return nil
}
