package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/capline-erp/capline/internal/jobs"
)

// GrantSweeper deletes grants whose expiry passed before the cutoff.
type GrantSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccessSweepJob removes expired access grants. Expired grants are already
// inert for authorization; the sweep keeps the record_access table and its
// listing endpoints free of dead rows.
type AccessSweepJob struct {
	sweeper GrantSweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewAccessSweepJob constructs the job.
func NewAccessSweepJob(sweeper GrantSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccessSweepJob {
	return &AccessSweepJob{sweeper: sweeper, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskAccessSweepExpired tasks.
func (j *AccessSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("access_sweep")
	var payload AccessSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	cutoff := j.now().UTC().Add(-time.Duration(payload.GraceHours) * time.Hour)
	removed, err := j.sweeper.DeleteExpired(ctx, cutoff)
	if err != nil {
		j.logger.Error("access sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddSweptGrants(removed)
	j.logger.Info("access sweep finished",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
