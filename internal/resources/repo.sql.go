package resources

import (
	"context"
	"errors"
	"fmt"

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

const resourceColumns = `id, COALESCE(name,''), COALESCE(vendor,''), COALESCE(role,''), start_date, end_date, COALESCE(cost_per_month::text,''), owner_group_id, COALESCE(status,''), created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.Name, &res.Vendor, &res.Role, &res.StartDate, &res.EndDate, &res.CostPerMonth, &res.OwnerGroupID, &res.Status, &res.CreatedBy, &res.UpdatedBy, &res.CreatedAt, &res.UpdatedAt)
	return res, err
}

// GetResource fetches one resource.
func (r *Repository) GetResource(ctx context.Context, id int64) (Resource, error) {
	res, err := scanResource(r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resource WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, shared.ErrNotFound
		}
		return Resource{}, err
	}
	return res, nil
}

// ListResources returns the scope-visible resources ordered by primary key.
func (r *Repository) ListResources(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Resource, error) {
	predicate, args := scope.SQLPredicate("resource", access.RecordResource, 0)
	query := fmt.Sprintf(`SELECT %s FROM resource WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		resourceColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// PurchaseOrderExists reports whether a purchase order row exists.
func (r *Repository) PurchaseOrderExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_order WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertResource(ctx context.Context, res Resource) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO resource (name, vendor, role, start_date, end_date, cost_per_month, owner_group_id, status, created_by, updated_by, created_at)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, NULLIF($6,'')::numeric, $7, $8, $9, $9, $10) RETURNING id`,
		res.Name, res.Vendor, res.Role, res.StartDate, res.EndDate, res.CostPerMonth, res.OwnerGroupID, res.Status, res.CreatedBy, res.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateResource(ctx context.Context, res Resource) error {
	tag, err := t.tx.Exec(ctx, `UPDATE resource SET name=$2, vendor=NULLIF($3,''), role=NULLIF($4,''), start_date=$5, end_date=$6, cost_per_month=NULLIF($7,'')::numeric, status=$8, updated_by=$9, updated_at=$10 WHERE id=$1`,
		res.ID, res.Name, res.Vendor, res.Role, res.StartDate, res.EndDate, res.CostPerMonth, res.Status, res.UpdatedBy, res.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteResource(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM resource WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const allocationColumns = `id, resource_id, po_id, allocation_start, allocation_end, COALESCE(expected_monthly_burn::text,''), owner_group_id, created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var alloc Allocation
	err := row.Scan(&alloc.ID, &alloc.ResourceID, &alloc.POID, &alloc.AllocationStart, &alloc.AllocationEnd, &alloc.ExpectedMonthlyBurn, &alloc.OwnerGroupID, &alloc.CreatedBy, &alloc.UpdatedBy, &alloc.CreatedAt, &alloc.UpdatedAt)
	return alloc, err
}

// GetAllocation fetches one allocation.
func (r *Repository) GetAllocation(ctx context.Context, id int64) (Allocation, error) {
	alloc, err := scanAllocation(r.pool.QueryRow(ctx, `SELECT `+allocationColumns+` FROM resource_po_allocation WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, shared.ErrNotFound
		}
		return Allocation{}, err
	}
	return alloc, nil
}

// ListAllocations returns the scope-visible allocations ordered by primary key.
func (r *Repository) ListAllocations(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Allocation, error) {
	predicate, args := scope.SQLPredicate("resource_po_allocation", access.RecordAllocation, 0)
	query := fmt.Sprintf(`SELECT %s FROM resource_po_allocation WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		allocationColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alloc)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertAllocation(ctx context.Context, alloc Allocation) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO resource_po_allocation (resource_id, po_id, allocation_start, allocation_end, expected_monthly_burn, owner_group_id, created_by, updated_by, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,'')::numeric, $6, $7, $7, $8) RETURNING id`,
		alloc.ResourceID, alloc.POID, alloc.AllocationStart, alloc.AllocationEnd, alloc.ExpectedMonthlyBurn, alloc.OwnerGroupID, alloc.CreatedBy, alloc.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateAllocation(ctx context.Context, alloc Allocation) error {
	tag, err := t.tx.Exec(ctx, `UPDATE resource_po_allocation SET allocation_start=$2, allocation_end=$3, expected_monthly_burn=NULLIF($4,'')::numeric, updated_by=$5, updated_at=$6 WHERE id=$1`,
		alloc.ID, alloc.AllocationStart, alloc.AllocationEnd, alloc.ExpectedMonthlyBurn, alloc.UpdatedBy, alloc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteAllocation(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM resource_po_allocation WHERE id=$1`, id)
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
