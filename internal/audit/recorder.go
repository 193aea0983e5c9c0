package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal execution surface the recorder needs. Both pgx.Tx and
// pgxpool.Pool satisfy it; mutation paths must pass their transaction so the
// audit row commits or rolls back with the mutation it describes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder appends events to the audit_log table.
type Recorder struct {
	now func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record inserts the event using the given execution handle. Any failure is
// wrapped in ErrWriteFailed so callers abort the surrounding transaction.
func (r *Recorder) Record(ctx context.Context, db DBTX, event Event) error {
	if err := event.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	before, err := snapshotJSON(event.Before)
	if err != nil {
		return fmt.Errorf("%w: encode before: %v", ErrWriteFailed, err)
	}
	after, err := snapshotJSON(event.After)
	if err != nil {
		return fmt.Errorf("%w: encode after: %v", ErrWriteFailed, err)
	}
	at := event.At
	if at.IsZero() {
		at = r.now().UTC()
	}
	_, err = db.Exec(ctx, `INSERT INTO audit_log (entity_type, entity_id, action, before_values, after_values, actor_id, occurred_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''))`,
		event.EntityType, event.EntityID, string(event.Action), before, after, event.ActorID, at, event.IPAddress, event.UserAgent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func snapshotJSON(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
