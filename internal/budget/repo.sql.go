package budget

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

const budgetItemColumns = `id, workday_ref, title, COALESCE(description,''), budget_amount::text, currency, fiscal_year, owner_group_id, created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanBudgetItem(row pgx.Row) (BudgetItem, error) {
	var item BudgetItem
	err := row.Scan(&item.ID, &item.WorkdayRef, &item.Title, &item.Description, &item.BudgetAmount, &item.Currency, &item.FiscalYear, &item.OwnerGroupID, &item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// GetBudgetItem fetches one budget item.
func (r *Repository) GetBudgetItem(ctx context.Context, id int64) (BudgetItem, error) {
	item, err := scanBudgetItem(r.pool.QueryRow(ctx, `SELECT `+budgetItemColumns+` FROM budget_item WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BudgetItem{}, shared.ErrNotFound
		}
		return BudgetItem{}, err
	}
	return item, nil
}

// ListBudgetItems returns the scope-visible items ordered by primary key.
// The visibility predicate is applied in SQL before LIMIT/OFFSET so paging
// counts only rows the actor can see.
func (r *Repository) ListBudgetItems(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]BudgetItem, error) {
	predicate, args := scope.SQLPredicate("budget_item", access.RecordBudgetItem, 0)
	query := fmt.Sprintf(`SELECT %s FROM budget_item WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		budgetItemColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetItem
	for rows.Next() {
		item, err := scanBudgetItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) InsertBudgetItem(ctx context.Context, item BudgetItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO budget_item (workday_ref, title, description, budget_amount, currency, fiscal_year, owner_group_id, created_by, updated_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), $4::numeric, $5, $6, $7, $8, $8, $9) RETURNING id`,
		item.WorkdayRef, item.Title, item.Description, item.BudgetAmount, item.Currency, item.FiscalYear, item.OwnerGroupID, item.CreatedBy, item.CreatedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

func (t *txRepo) UpdateBudgetItem(ctx context.Context, item BudgetItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE budget_item SET workday_ref=$2, title=$3, description=NULLIF($4,''), budget_amount=$5::numeric, currency=$6, fiscal_year=$7, updated_by=$8, updated_at=$9 WHERE id=$1`,
		item.ID, item.WorkdayRef, item.Title, item.Description, item.BudgetAmount, item.Currency, item.FiscalYear, item.UpdatedBy, item.UpdatedAt)
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

func (t *txRepo) DeleteBudgetItem(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM budget_item WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const businessCaseColumns = `id, title, COALESCE(description,''), COALESCE(requestor,''), COALESCE(dept,''), COALESCE(estimated_cost::text,''), COALESCE(status,''), owner_group_id, created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanBusinessCase(row pgx.Row) (BusinessCase, error) {
	var bc BusinessCase
	err := row.Scan(&bc.ID, &bc.Title, &bc.Description, &bc.Requestor, &bc.Department, &bc.EstimatedCost, &bc.Status, &bc.OwnerGroupID, &bc.CreatedBy, &bc.UpdatedBy, &bc.CreatedAt, &bc.UpdatedAt)
	return bc, err
}

// GetBusinessCase fetches one business case.
func (r *Repository) GetBusinessCase(ctx context.Context, id int64) (BusinessCase, error) {
	bc, err := scanBusinessCase(r.pool.QueryRow(ctx, `SELECT `+businessCaseColumns+` FROM business_case WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessCase{}, shared.ErrNotFound
		}
		return BusinessCase{}, err
	}
	return bc, nil
}

// ListBusinessCases returns the scope-visible cases ordered by primary key.
func (r *Repository) ListBusinessCases(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]BusinessCase, error) {
	predicate, args := scope.SQLPredicate("business_case", access.RecordBusinessCase, 0)
	query := fmt.Sprintf(`SELECT %s FROM business_case WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		businessCaseColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cases []BusinessCase
	for rows.Next() {
		bc, err := scanBusinessCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, bc)
	}
	return cases, rows.Err()
}

func (t *txRepo) InsertBusinessCase(ctx context.Context, bc BusinessCase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO business_case (title, description, requestor, dept, estimated_cost, status, owner_group_id, created_by, updated_by, created_at)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,'')::numeric, $6, $7, $8, $8, $9) RETURNING id`,
		bc.Title, bc.Description, bc.Requestor, bc.Department, bc.EstimatedCost, bc.Status, bc.OwnerGroupID, bc.CreatedBy, bc.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateBusinessCase(ctx context.Context, bc BusinessCase) error {
	tag, err := t.tx.Exec(ctx, `UPDATE business_case SET title=$2, description=NULLIF($3,''), requestor=NULLIF($4,''), dept=NULLIF($5,''), estimated_cost=NULLIF($6,'')::numeric, status=$7, updated_by=$8, updated_at=$9 WHERE id=$1`,
		bc.ID, bc.Title, bc.Description, bc.Requestor, bc.Department, bc.EstimatedCost, bc.Status, bc.UpdatedBy, bc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteBusinessCase(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM business_case WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const lineItemColumns = `id, business_case_id, budget_item_id, owner_group_id, title, COALESCE(description,''), spend_category, requested_amount::text, currency, planned_commit_date, COALESCE(status,''), created_by, COALESCE(updated_by,0), created_at, updated_at`

func scanLineItem(row pgx.Row) (LineItem, error) {
	var line LineItem
	var category string
	err := row.Scan(&line.ID, &line.BusinessCaseID, &line.BudgetItemID, &line.OwnerGroupID, &line.Title, &line.Description, &category, &line.RequestedAmount, &line.Currency, &line.PlannedCommitDate, &line.Status, &line.CreatedBy, &line.UpdatedBy, &line.CreatedAt, &line.UpdatedAt)
	line.SpendCategory = SpendCategory(category)
	return line, err
}

// GetLineItem fetches one line item.
func (r *Repository) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	line, err := scanLineItem(r.pool.QueryRow(ctx, `SELECT `+lineItemColumns+` FROM business_case_line_item WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, shared.ErrNotFound
		}
		return LineItem{}, err
	}
	return line, nil
}

// ListLineItems returns the scope-visible line items ordered by primary key.
func (r *Repository) ListLineItems(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]LineItem, error) {
	predicate, args := scope.SQLPredicate("business_case_line_item", access.RecordLineItem, 0)
	query := fmt.Sprintf(`SELECT %s FROM business_case_line_item WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		lineItemColumns, predicate, len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		line, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txRepo) InsertLineItem(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO business_case_line_item (business_case_id, budget_item_id, owner_group_id, title, description, spend_category, requested_amount, currency, planned_commit_date, status, created_by, updated_by, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7::numeric, $8, $9, $10, $11, $11, $12) RETURNING id`,
		line.BusinessCaseID, line.BudgetItemID, line.OwnerGroupID, line.Title, line.Description, string(line.SpendCategory), line.RequestedAmount, line.Currency, line.PlannedCommitDate, line.Status, line.CreatedBy, line.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateLineItem(ctx context.Context, line LineItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE business_case_line_item SET title=$2, description=NULLIF($3,''), spend_category=$4, requested_amount=$5::numeric, currency=$6, planned_commit_date=$7, status=$8, updated_by=$9, updated_at=$10 WHERE id=$1`,
		line.ID, line.Title, line.Description, string(line.SpendCategory), line.RequestedAmount, line.Currency, line.PlannedCommitDate, line.Status, line.UpdatedBy, line.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteLineItem(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM business_case_line_item WHERE id=$1`, id)
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
