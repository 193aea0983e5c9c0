package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/capline-erp/capline/internal/jobs"
)

// AuditCounter aggregates audit rows written since the cutoff, keyed by
// entity type.
type AuditCounter interface {
	CountSince(ctx context.Context, cutoff time.Time) (map[string]int64, error)
}

// AuditActivityJob logs how many mutations each entity type saw in the
// reporting window. The audit trail itself is append-only; this job only
// reads it.
type AuditActivityJob struct {
	counter AuditCounter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewAuditActivityJob constructs the job.
func NewAuditActivityJob(counter AuditCounter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditActivityJob {
	return &AuditActivityJob{counter: counter, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskAuditActivityReport tasks.
func (j *AuditActivityJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("audit_activity")
	var payload AuditActivityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	window := payload.WindowHours
	if window <= 0 {
		window = 24
	}
	cutoff := j.now().UTC().Add(-time.Duration(window) * time.Hour)
	counts, err := j.counter.CountSince(ctx, cutoff)
	if err != nil {
		j.logger.Error("audit activity report failed", slog.Any("error", err))
		return tracker.End(err)
	}
	var total int64
	for entity, count := range counts {
		total += count
		j.logger.Info("audit activity",
			slog.String("entity_type", entity),
			slog.Int64("mutations", count))
	}
	j.logger.Info("audit activity report finished",
		slog.Int("window_hours", window),
		slog.Int64("total", total))
	return tracker.End(nil)
}
