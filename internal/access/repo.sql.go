package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capline-erp/capline/internal/shared"
)

// Repository provides PostgreSQL backed membership, grant and parent lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GroupsFor returns the IDs of groups the user belongs to.
func (r *Repository) GroupsFor(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT group_id FROM user_group_membership WHERE user_id=$1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		groups = append(groups, id)
	}
	return groups, rows.Err()
}

// GrantsFor returns every grant attached to the record, expired ones included;
// the evaluator filters on activity so the decision logic stays in one place.
func (r *Repository) GrantsFor(ctx context.Context, recordType string, recordID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, record_type, record_id, COALESCE(user_id,0), COALESCE(group_id,0), access_level, granted_by, granted_at, expires_at FROM record_access WHERE record_type=$1 AND record_id=$2 ORDER BY id`, recordType, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var grant Grant
		var level string
		var expires *time.Time
		if err := rows.Scan(&grant.ID, &grant.RecordType, &grant.RecordID, &grant.UserID, &grant.GroupID, &level, &grant.GrantedBy, &grant.GrantedAt, &expires); err != nil {
			return nil, err
		}
		parsed, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		grant.Level = parsed
		grant.ExpiresAt = expires
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// ownedTables maps record types to their backing tables. Only types that can
// act as ownership parents need an entry.
var ownedTables = map[string]string{
	RecordBudgetItem:   "budget_item",
	RecordBusinessCase: "business_case",
	RecordLineItem:     "business_case_line_item",
	RecordWBS:          "wbs",
	RecordAsset:        "asset",
	RecordPO:           "purchase_order",
	RecordGR:           "goods_receipt",
	RecordResource:     "resource",
	RecordAllocation:   "resource_po_allocation",
}

// FactsOf fetches the ownership facts of a record for sharing decisions.
func (r *Repository) FactsOf(ctx context.Context, recordType string, id int64) (OwnerFacts, error) {
	table, ok := ownedTables[recordType]
	if !ok {
		return OwnerFacts{}, fmt.Errorf("access: record type %q has no owned table", recordType)
	}
	facts := OwnerFacts{RecordType: recordType, RecordID: id}
	err := r.pool.QueryRow(ctx, `SELECT owner_group_id, COALESCE(created_by,0) FROM `+table+` WHERE id=$1`, id).Scan(&facts.OwnerGroupID, &facts.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OwnerFacts{}, shared.ErrNotFound
		}
		return OwnerFacts{}, err
	}
	return facts, nil
}

// SharableRecordType reports whether grants can target the record type.
func SharableRecordType(recordType string) bool {
	_, ok := ownedTables[recordType]
	return ok
}

// OwnerGroupOf fetches the live owner group of a record.
func (r *Repository) OwnerGroupOf(ctx context.Context, recordType string, id int64) (int64, error) {
	table, ok := ownedTables[recordType]
	if !ok {
		return 0, fmt.Errorf("access: record type %q has no owned table", recordType)
	}
	var group int64
	err := r.pool.QueryRow(ctx, `SELECT owner_group_id FROM `+table+` WHERE id=$1`, id).Scan(&group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return group, nil
}
