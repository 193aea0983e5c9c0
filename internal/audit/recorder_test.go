package audit

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCapture struct {
	sql  string
	args []any
	err  error
}

func (c *execCapture) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = sql
	c.args = args
	return pgconn.CommandTag{}, c.err
}

func TestRecordInsertsFullEvent(t *testing.T) {
	capture := &execCapture{}
	rec := NewRecorder()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := rec.Record(context.Background(), capture, Event{
		EntityType: "budget_item",
		EntityID:   42,
		Action:     ActionUpdate,
		Before:     NewSnapshot(Field{Name: "amount", Value: "100.00"}),
		After:      NewSnapshot(Field{Name: "amount", Value: "250.00"}),
		ActorID:    7,
		At:         at,
		IPAddress:  "10.0.0.9",
		UserAgent:  "curl/8.0",
	})
	require.NoError(t, err)
	require.Contains(t, capture.sql, "INSERT INTO audit_log")
	require.Equal(t, "budget_item", capture.args[0])
	require.Equal(t, int64(42), capture.args[1])
	require.Equal(t, "UPDATE", capture.args[2])
	require.JSONEq(t, `{"amount":"100.00"}`, string(capture.args[3].([]byte)))
	require.JSONEq(t, `{"amount":"250.00"}`, string(capture.args[4].([]byte)))
	require.Equal(t, at, capture.args[6])
}

func TestRecordStampsMissingTimestamp(t *testing.T) {
	capture := &execCapture{}
	rec := NewRecorder()
	rec.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	err := rec.Record(context.Background(), capture, Event{
		EntityType: "resource",
		EntityID:   1,
		Action:     ActionCreate,
		After:      NewSnapshot(Field{Name: "name", Value: "Contractor"}),
		ActorID:    3,
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), capture.args[6])
}

func TestRecordRejectsMalformedEvents(t *testing.T) {
	rec := NewRecorder()
	after := NewSnapshot(Field{Name: "x", Value: "1"})

	cases := []struct {
		name  string
		event Event
	}{
		{"missing entity", Event{Action: ActionCreate, After: after}},
		{"unknown action", Event{EntityType: "resource", EntityID: 1, Action: "PATCH", After: after}},
		{"create with before", Event{EntityType: "resource", EntityID: 1, Action: ActionCreate, Before: after, After: after}},
		{"update without before", Event{EntityType: "resource", EntityID: 1, Action: ActionUpdate, After: after}},
		{"delete with after", Event{EntityType: "resource", EntityID: 1, Action: ActionDelete, Before: after, After: after}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			capture := &execCapture{}
			err := rec.Record(context.Background(), capture, tc.event)
			require.ErrorIs(t, err, ErrWriteFailed)
			require.Empty(t, capture.sql, "no insert may be attempted")
		})
	}
}

func TestRecordWrapsInsertFailure(t *testing.T) {
	capture := &execCapture{err: context.DeadlineExceeded}
	rec := NewRecorder()

	err := rec.Record(context.Background(), capture, Event{
		EntityType: "resource",
		EntityID:   1,
		Action:     ActionDelete,
		Before:     NewSnapshot(Field{Name: "name", Value: "Contractor"}),
		ActorID:    3,
	})
	require.ErrorIs(t, err, ErrWriteFailed)
}
