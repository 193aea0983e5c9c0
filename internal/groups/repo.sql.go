package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/platform/db"
	"github.com/capline-erp/capline/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{pool: pool, recorder: recorder}
}

type txRepo struct {
	tx       pgx.Tx
	recorder *audit.Recorder
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, recorder: r.recorder})
	})
}

const groupColumns = `id, name, COALESCE(description,''), COALESCE(created_by,0), created_at`

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt)
	return g, err
}

// GetGroup fetches one group.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_group WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return g, nil
}

// ListGroups returns all groups ordered by name.
func (r *Repository) ListGroups(ctx context.Context, window shared.ListWindow) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM user_group ORDER BY name LIMIT $1 OFFSET $2`, window.Limit, window.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetMembership fetches the membership linking a user to a group.
func (r *Repository) GetMembership(ctx context.Context, groupID, userID int64) (Membership, error) {
	var m Membership
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, group_id, COALESCE(added_by,0), added_at FROM user_group_membership WHERE group_id=$1 AND user_id=$2`, groupID, userID).
		Scan(&m.ID, &m.UserID, &m.GroupID, &m.AddedBy, &m.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, shared.ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

// ListMembers returns a group's memberships ordered by join time.
func (r *Repository) ListMembers(ctx context.Context, groupID int64) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, group_id, COALESCE(added_by,0), added_at FROM user_group_membership WHERE group_id=$1 ORDER BY added_at, id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.GroupID, &m.AddedBy, &m.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertGroup(ctx context.Context, g Group) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO user_group (name, description, created_by, created_at)
		VALUES ($1, NULLIF($2,''), $3, $4) RETURNING id`,
		g.Name, g.Description, g.CreatedBy, g.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateGroup(ctx context.Context, g Group) error {
	tag, err := t.tx.Exec(ctx, `UPDATE user_group SET name=$2, description=NULLIF($3,'') WHERE id=$1`,
		g.ID, g.Name, g.Description)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_group WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertMembership(ctx context.Context, m Membership) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO user_group_membership (user_id, group_id, added_by, added_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		m.UserID, m.GroupID, m.AddedBy, m.AddedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) DeleteMembership(ctx context.Context, groupID, userID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_group_membership WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AppendAudit writes the event within the open transaction so the mutation
// and its audit row commit or roll back together.
func (t *txRepo) AppendAudit(ctx context.Context, event audit.Event) error {
	return t.recorder.Record(ctx, t.tx, event)
}
