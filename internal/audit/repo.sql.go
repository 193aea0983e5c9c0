package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the audit_log table. Writes go through Recorder only;
// audit rows are never updated or deleted by application code.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, entity_type, entity_id, action, before_values, after_values, actor_id, occurred_at, COALESCE(ip_address,''), COALESCE(user_agent,'')`

// Window returns a slice of the filtered timeline ordered newest first.
func (r *Repository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(`SELECT %s FROM audit_log %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return r.query(ctx, query, args)
}

// All returns the entire filtered timeline ordered newest first.
func (r *Repository) All(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(`SELECT %s FROM audit_log %s ORDER BY occurred_at DESC, id DESC`, selectColumns, where)
	return r.query(ctx, query, args)
}

// CountSince returns per-entity event counts newer than the cutoff, used by
// the integrity scan job.
func (r *Repository) CountSince(ctx context.Context, cutoff time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT entity_type, COUNT(*) FROM audit_log WHERE occurred_at >= $1 GROUP BY entity_type`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var entity string
		var count int64
		if err := rows.Scan(&entity, &count); err != nil {
			return nil, err
		}
		counts[entity] = count
	}
	return counts, rows.Err()
}

func (r *Repository) query(ctx context.Context, query string, args []any) ([]Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var event Event
		var before, after []byte
		var action string
		if err := rows.Scan(&event.ID, &event.EntityType, &event.EntityID, &action, &before, &after, &event.ActorID, &event.At, &event.IPAddress, &event.UserAgent); err != nil {
			return nil, err
		}
		event.Action = Action(action)
		if event.Before, err = decodeSnapshot(before); err != nil {
			return nil, err
		}
		if event.After, err = decodeSnapshot(after); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func buildWhere(filters TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", filters.To)
	}
	if filters.ActorID != 0 {
		add("actor_id = $%d", filters.ActorID)
	}
	if filters.EntityType != "" {
		add("entity_type = $%d", filters.EntityType)
	}
	if filters.EntityID != 0 {
		add("entity_id = $%d", filters.EntityID)
	}
	if filters.Action != "" {
		add("action = $%d", strings.ToUpper(filters.Action))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
