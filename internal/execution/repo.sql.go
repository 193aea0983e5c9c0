package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/budget"
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

const wbsColumns = `id, business_case_line_item_id, wbs_code, COALESCE(description,''), owner_group_id, COALESCE(status,''), created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanWBS(row pgx.Row) (WBS, error) {
	var w WBS
	err := row.Scan(&w.ID, &w.LineItemID, &w.WBSCode, &w.Description, &w.OwnerGroupID, &w.Status, &w.CreatedBy, &w.UpdatedBy, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// GetWBS fetches one WBS element.
func (r *Repository) GetWBS(ctx context.Context, id int64) (WBS, error) {
	w, err := scanWBS(r.pool.QueryRow(ctx, `SELECT `+wbsColumns+` FROM wbs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WBS{}, shared.ErrNotFound
		}
		return WBS{}, err
	}
	return w, nil
}

// ListWBS returns the scope-visible elements ordered by primary key.
func (r *Repository) ListWBS(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]WBS, error) {
	predicate, args := scope.SQLPredicate("wbs", access.RecordWBS, 0)
	query := fmt.Sprintf(`SELECT %s FROM wbs WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		wbsColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WBS
	for rows.Next() {
		w, err := scanWBS(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertWBS(ctx context.Context, w WBS) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO wbs (business_case_line_item_id, wbs_code, description, owner_group_id, status, created_by, updated_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $6, $7) RETURNING id`,
		w.LineItemID, w.WBSCode, w.Description, w.OwnerGroupID, w.Status, w.CreatedBy, w.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateWBS(ctx context.Context, w WBS) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wbs SET wbs_code=$2, description=NULLIF($3,''), status=$4, updated_by=$5, updated_at=$6 WHERE id=$1`,
		w.ID, w.WBSCode, w.Description, w.Status, w.UpdatedBy, w.UpdatedAt)
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

func (t *txRepo) DeleteWBS(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM wbs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const assetColumns = `id, wbs_id, asset_code, COALESCE(asset_type,''), COALESCE(description,''), owner_group_id, COALESCE(status,''), created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.WBSID, &a.AssetCode, &a.AssetType, &a.Description, &a.OwnerGroupID, &a.Status, &a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAsset fetches one asset.
func (r *Repository) GetAsset(ctx context.Context, id int64) (Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM asset WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, shared.ErrNotFound
		}
		return Asset{}, err
	}
	return a, nil
}

// ListAssets returns the scope-visible assets ordered by primary key.
func (r *Repository) ListAssets(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Asset, error) {
	predicate, args := scope.SQLPredicate("asset", access.RecordAsset, 0)
	query := fmt.Sprintf(`SELECT %s FROM asset WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		assetColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO asset (wbs_id, asset_code, asset_type, description, owner_group_id, status, created_by, updated_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, $7, $7, $8) RETURNING id`,
		a.WBSID, a.AssetCode, a.AssetType, a.Description, a.OwnerGroupID, a.Status, a.CreatedBy, a.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateAsset(ctx context.Context, a Asset) error {
	tag, err := t.tx.Exec(ctx, `UPDATE asset SET asset_code=$2, asset_type=NULLIF($3,''), description=NULLIF($4,''), status=$5, updated_by=$6, updated_at=$7 WHERE id=$1`,
		a.ID, a.AssetCode, a.AssetType, a.Description, a.Status, a.UpdatedBy, a.UpdatedAt)
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

func (t *txRepo) DeleteAsset(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM asset WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const poColumns = `id, asset_id, po_number, COALESCE(ariba_pr_number,''), COALESCE(supplier,''), COALESCE(po_type,''), start_date, end_date, COALESCE(total_amount::text,''), currency, spend_category, planned_commit_date, actual_commit_date, owner_group_id, COALESCE(status,''), created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var p PurchaseOrder
	var category string
	err := row.Scan(&p.ID, &p.AssetID, &p.PONumber, &p.AribaPRNumber, &p.Supplier, &p.POType, &p.StartDate, &p.EndDate, &p.TotalAmount, &p.Currency, &category, &p.PlannedCommitDate, &p.ActualCommitDate, &p.OwnerGroupID, &p.Status, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	p.SpendCategory = budget.SpendCategory(category)
	return p, err
}

// GetPurchaseOrder fetches one purchase order.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	p, err := scanPurchaseOrder(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_order WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return p, nil
}

// ListPurchaseOrders returns the scope-visible orders ordered by primary key.
func (r *Repository) ListPurchaseOrders(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]PurchaseOrder, error) {
	predicate, args := scope.SQLPredicate("purchase_order", access.RecordPO, 0)
	query := fmt.Sprintf(`SELECT %s FROM purchase_order WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		poColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		p, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, p PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order (asset_id, po_number, ariba_pr_number, supplier, po_type, start_date, end_date, total_amount, currency, spend_category, planned_commit_date, actual_commit_date, owner_group_id, status, created_by, updated_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, NULLIF($8,'')::numeric, $9, $10, $11, $12, $13, $14, $15, $15, $16) RETURNING id`,
		p.AssetID, p.PONumber, p.AribaPRNumber, p.Supplier, p.POType, p.StartDate, p.EndDate, p.TotalAmount, p.Currency, string(p.SpendCategory), p.PlannedCommitDate, p.ActualCommitDate, p.OwnerGroupID, p.Status, p.CreatedBy, p.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdatePurchaseOrder(ctx context.Context, p PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order SET po_number=$2, ariba_pr_number=NULLIF($3,''), supplier=NULLIF($4,''), po_type=NULLIF($5,''), start_date=$6, end_date=$7, total_amount=NULLIF($8,'')::numeric, currency=$9, spend_category=$10, planned_commit_date=$11, actual_commit_date=$12, status=$13, updated_by=$14, updated_at=$15 WHERE id=$1`,
		p.ID, p.PONumber, p.AribaPRNumber, p.Supplier, p.POType, p.StartDate, p.EndDate, p.TotalAmount, p.Currency, string(p.SpendCategory), p.PlannedCommitDate, p.ActualCommitDate, p.Status, p.UpdatedBy, p.UpdatedAt)
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

func (t *txRepo) DeletePurchaseOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_order WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const grColumns = `id, po_id, gr_number, gr_date, COALESCE(amount::text,''), COALESCE(description,''), owner_group_id, created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanGoodsReceipt(row pgx.Row) (GoodsReceipt, error) {
	var g GoodsReceipt
	err := row.Scan(&g.ID, &g.POID, &g.GRNumber, &g.GRDate, &g.Amount, &g.Description, &g.OwnerGroupID, &g.CreatedBy, &g.UpdatedBy, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// GetGoodsReceipt fetches one goods receipt.
func (r *Repository) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	g, err := scanGoodsReceipt(r.pool.QueryRow(ctx, `SELECT `+grColumns+` FROM goods_receipt WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, shared.ErrNotFound
		}
		return GoodsReceipt{}, err
	}
	return g, nil
}

// ListGoodsReceipts returns the scope-visible receipts ordered by primary key.
func (r *Repository) ListGoodsReceipts(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]GoodsReceipt, error) {
	predicate, args := scope.SQLPredicate("goods_receipt", access.RecordGR, 0)
	query := fmt.Sprintf(`SELECT %s FROM goods_receipt WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		grColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GoodsReceipt
	for rows.Next() {
		g, err := scanGoodsReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertGoodsReceipt(ctx context.Context, g GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipt (po_id, gr_number, gr_date, amount, description, owner_group_id, created_by, updated_by, created_at)
		VALUES ($1, $2, $3, NULLIF($4,'')::numeric, NULLIF($5,''), $6, $7, $7, $8) RETURNING id`,
		g.POID, g.GRNumber, g.GRDate, g.Amount, g.Description, g.OwnerGroupID, g.CreatedBy, g.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateGoodsReceipt(ctx context.Context, g GoodsReceipt) error {
	tag, err := t.tx.Exec(ctx, `UPDATE goods_receipt SET gr_number=$2, gr_date=$3, amount=NULLIF($4,'')::numeric, description=NULLIF($5,''), updated_by=$6, updated_at=$7 WHERE id=$1`,
		g.ID, g.GRNumber, g.GRDate, g.Amount, g.Description, g.UpdatedBy, g.UpdatedAt)
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

func (t *txRepo) DeleteGoodsReceipt(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM goods_receipt WHERE id=$1`, id)
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
