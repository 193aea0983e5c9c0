package grants

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capline-erp/capline/internal/access"
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

const grantColumns = `id, record_type, record_id, COALESCE(user_id,0), COALESCE(group_id,0), access_level, granted_by, granted_at, expires_at, COALESCE(updated_by,0), updated_at`

func scanGrant(row pgx.Row) (access.Grant, error) {
	var g access.Grant
	var level string
	err := row.Scan(&g.ID, &g.RecordType, &g.RecordID, &g.UserID, &g.GroupID, &level, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt, &g.UpdatedBy, &g.UpdatedAt)
	if err != nil {
		return access.Grant{}, err
	}
	g.Level, err = access.ParseLevel(level)
	return g, err
}

// GetGrant fetches one grant.
func (r *Repository) GetGrant(ctx context.Context, id int64) (access.Grant, error) {
	g, err := scanGrant(r.pool.QueryRow(ctx, `SELECT `+grantColumns+` FROM record_access WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return access.Grant{}, shared.ErrNotFound
		}
		return access.Grant{}, err
	}
	return g, nil
}

// ListGrants returns the grants attached to a record, newest last.
func (r *Repository) ListGrants(ctx context.Context, recordType string, recordID int64) ([]access.Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grantColumns+` FROM record_access WHERE record_type=$1 AND record_id=$2 ORDER BY id`, recordType, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []access.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DeleteExpired removes grants whose expiry passed before the cutoff and
// returns how many rows went away. Used by the background sweep.
func (r *Repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM record_access WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertGrant(ctx context.Context, g access.Grant) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO record_access (record_type, record_id, user_id, group_id, access_level, granted_by, granted_at, expires_at)
		VALUES ($1, $2, NULLIF($3,0), NULLIF($4,0), $5, $6, $7, $8) RETURNING id`,
		g.RecordType, g.RecordID, g.UserID, g.GroupID, string(g.Level), g.GrantedBy, g.GrantedAt, g.ExpiresAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateGrant(ctx context.Context, g access.Grant) error {
	tag, err := t.tx.Exec(ctx, `UPDATE record_access SET access_level=$2, expires_at=$3, updated_by=$4, updated_at=$5 WHERE id=$1`,
		g.ID, string(g.Level), g.ExpiresAt, g.UpdatedBy, g.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteGrant(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM record_access WHERE id=$1`, id)
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
