// Package budget covers the planning side of the approval chain: budget
// items, business cases and their line items.
package budget

import (
	"strconv"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
)

// SpendCategory classifies a planned spend.
type SpendCategory string

const (
	SpendCapex SpendCategory = "CAPEX"
	SpendOpex  SpendCategory = "OPEX"
)

// ValidSpendCategory reports whether the value is a known category.
func ValidSpendCategory(value string) bool {
	return value == string(SpendCapex) || value == string(SpendOpex)
}

// BudgetItem is an approved budget envelope keyed by its Workday reference.
// Monetary amounts are carried as exact decimal text.
type BudgetItem struct {
	ID           int64
	WorkdayRef   string
	Title        string
	Description  string
	BudgetAmount string
	Currency     string
	FiscalYear   int
	OwnerGroupID int64
	CreatedBy    int64
	UpdatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Facts exposes the item's ownership attributes for authorization.
func (b BudgetItem) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordBudgetItem,
		RecordID:     b.ID,
		OwnerGroupID: b.OwnerGroupID,
		CreatedBy:    b.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (b BudgetItem) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(b.ID, 10)},
		audit.Field{Name: "workday_ref", Value: b.WorkdayRef},
		audit.Field{Name: "title", Value: b.Title},
		audit.Field{Name: "description", Value: b.Description},
		audit.Field{Name: "budget_amount", Value: b.BudgetAmount},
		audit.Field{Name: "currency", Value: b.Currency},
		audit.Field{Name: "fiscal_year", Value: strconv.Itoa(b.FiscalYear)},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(b.OwnerGroupID, 10)},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(b.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(b.UpdatedBy, 10)},
	)
}

// BusinessCase is an independent root describing a funding request.
type BusinessCase struct {
	ID            int64
	Title         string
	Description   string
	Requestor     string
	Department    string
	EstimatedCost string
	Status        string
	OwnerGroupID  int64
	CreatedBy     int64
	UpdatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// Facts exposes the case's ownership attributes for authorization.
func (c BusinessCase) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordBusinessCase,
		RecordID:     c.ID,
		OwnerGroupID: c.OwnerGroupID,
		CreatedBy:    c.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (c BusinessCase) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(c.ID, 10)},
		audit.Field{Name: "title", Value: c.Title},
		audit.Field{Name: "description", Value: c.Description},
		audit.Field{Name: "requestor", Value: c.Requestor},
		audit.Field{Name: "department", Value: c.Department},
		audit.Field{Name: "estimated_cost", Value: c.EstimatedCost},
		audit.Field{Name: "status", Value: c.Status},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(c.OwnerGroupID, 10)},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(c.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(c.UpdatedBy, 10)},
	)
}

// LineItem ties a business case to the budget item funding it. Its owner
// group is declared explicitly, independent of either parent.
type LineItem struct {
	ID                int64
	BusinessCaseID    int64
	BudgetItemID      int64
	OwnerGroupID      int64
	Title             string
	Description       string
	SpendCategory     SpendCategory
	RequestedAmount   string
	Currency          string
	PlannedCommitDate *time.Time
	Status            string
	CreatedBy         int64
	UpdatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// Facts exposes the line item's ownership attributes for authorization.
func (l LineItem) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordLineItem,
		RecordID:     l.ID,
		OwnerGroupID: l.OwnerGroupID,
		CreatedBy:    l.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (l LineItem) Snapshot() *audit.Snapshot {
	planned := ""
	if l.PlannedCommitDate != nil {
		planned = l.PlannedCommitDate.UTC().Format(time.RFC3339)
	}
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(l.ID, 10)},
		audit.Field{Name: "business_case_id", Value: strconv.FormatInt(l.BusinessCaseID, 10)},
		audit.Field{Name: "budget_item_id", Value: strconv.FormatInt(l.BudgetItemID, 10)},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(l.OwnerGroupID, 10)},
		audit.Field{Name: "title", Value: l.Title},
		audit.Field{Name: "description", Value: l.Description},
		audit.Field{Name: "spend_category", Value: string(l.SpendCategory)},
		audit.Field{Name: "requested_amount", Value: l.RequestedAmount},
		audit.Field{Name: "currency", Value: l.Currency},
		audit.Field{Name: "planned_commit_date", Value: planned},
		audit.Field{Name: "status", Value: l.Status},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(l.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(l.UpdatedBy, 10)},
	)
}
