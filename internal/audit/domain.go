package audit

import (
	"errors"
	"time"
)

// Action enumerates auditable mutations.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Event is one immutable audit record. Before is nil on CREATE, After is nil
// on DELETE; UPDATE carries full snapshots of both sides.
type Event struct {
	ID         int64
	EntityType string
	EntityID   int64
	Action     Action
	Before     *Snapshot
	After      *Snapshot
	ActorID    int64
	At         time.Time
	IPAddress  string
	UserAgent  string
}

// Provenance carries request origin details onto recorded events.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// ErrWriteFailed marks an audit insert failure. It is fatal to the enclosing
// transaction: no mutation may commit without its audit row.
var ErrWriteFailed = errors.New("audit: write failed")

func (e Event) validate() error {
	if e.EntityType == "" || e.EntityID == 0 || e.Action == "" {
		return errors.New("audit: event requires entity_type/entity_id/action")
	}
	switch e.Action {
	case ActionCreate:
		if e.Before != nil || e.After == nil {
			return errors.New("audit: CREATE carries an after snapshot only")
		}
	case ActionUpdate:
		if e.Before == nil || e.After == nil {
			return errors.New("audit: UPDATE carries both snapshots")
		}
	case ActionDelete:
		if e.Before == nil || e.After != nil {
			return errors.New("audit: DELETE carries a before snapshot only")
		}
	default:
		return errors.New("audit: unknown action")
	}
	return nil
}
