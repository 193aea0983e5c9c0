// Package jobs defines the background tasks processed by the worker binary:
// the expired-grant sweep and the audit activity report.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessSweepExpired removes access grants whose expiry has passed.
	TaskAccessSweepExpired = "access:sweep_expired"
	// TaskAuditActivityReport logs mutation counts from the audit trail.
	TaskAuditActivityReport = "audit:activity_report"
)

// AccessSweepPayload configures the expired-grant sweep.
type AccessSweepPayload struct {
	// GraceHours keeps grants deletable only after this many hours past
	// expiry, so a mistakenly short expiry can still be corrected.
	GraceHours int `json:"grace_hours"`
}

// NewAccessSweepTask constructs the sweep task.
func NewAccessSweepTask(graceHours int) (*asynq.Task, error) {
	data, err := json.Marshal(AccessSweepPayload{GraceHours: graceHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessSweepExpired, data), nil
}

// AuditActivityPayload configures the audit activity report.
type AuditActivityPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewAuditActivityTask constructs the report task.
func NewAuditActivityTask(windowHours int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditActivityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditActivityReport, data), nil
}
