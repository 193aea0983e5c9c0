package users

import (
	"context"
	"errors"

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

const userColumns = `id, username, email, hashed_password, COALESCE(full_name,''), COALESCE(department,''), role, is_active, created_at, last_login`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Department, &role, &u.IsActive, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return User{}, err
	}
	u.Role, err = access.ParseRole(role)
	return u, err
}

// GetUser fetches one account.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// ListUsers returns accounts ordered by username.
func (r *Repository) ListUsers(ctx context.Context, window shared.ListWindow) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM "user" ORDER BY username LIMIT $1 OFFSET $2`, window.Limit, window.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertUser(ctx context.Context, u User) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO "user" (username, email, hashed_password, full_name, department, role, is_active, created_at)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, $8) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.Department, string(u.Role), u.IsActive, u.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateUser(ctx context.Context, u User) error {
	tag, err := t.tx.Exec(ctx, `UPDATE "user" SET hashed_password=$2, full_name=NULLIF($3,''), department=NULLIF($4,''), role=$5, is_active=$6 WHERE id=$1`,
		u.ID, u.PasswordHash, u.FullName, u.Department, string(u.Role), u.IsActive)
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
