// Package execution covers the delivery side of the approval chain: WBS
// elements, assets, purchase orders and goods receipts. Every record in this
// chain inherits its owner group from its parent at creation time.
package execution

import (
	"strconv"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/budget"
)

// WBS is a work breakdown structure element hanging off a line item.
type WBS struct {
	ID           int64
	LineItemID   int64
	WBSCode      string
	Description  string
	OwnerGroupID int64
	Status       string
	CreatedBy    int64
	UpdatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Facts exposes the element's ownership attributes for authorization.
func (w WBS) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordWBS,
		RecordID:     w.ID,
		OwnerGroupID: w.OwnerGroupID,
		CreatedBy:    w.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (w WBS) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(w.ID, 10)},
		audit.Field{Name: "business_case_line_item_id", Value: strconv.FormatInt(w.LineItemID, 10)},
		audit.Field{Name: "wbs_code", Value: w.WBSCode},
		audit.Field{Name: "description", Value: w.Description},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(w.OwnerGroupID, 10)},
		audit.Field{Name: "status", Value: w.Status},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(w.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(w.UpdatedBy, 10)},
	)
}

// Asset is a capitalizable asset under a WBS element.
type Asset struct {
	ID           int64
	WBSID        int64
	AssetCode    string
	AssetType    string
	Description  string
	OwnerGroupID int64
	Status       string
	CreatedBy    int64
	UpdatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Facts exposes the asset's ownership attributes for authorization.
func (a Asset) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordAsset,
		RecordID:     a.ID,
		OwnerGroupID: a.OwnerGroupID,
		CreatedBy:    a.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (a Asset) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(a.ID, 10)},
		audit.Field{Name: "wbs_id", Value: strconv.FormatInt(a.WBSID, 10)},
		audit.Field{Name: "asset_code", Value: a.AssetCode},
		audit.Field{Name: "asset_type", Value: a.AssetType},
		audit.Field{Name: "description", Value: a.Description},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(a.OwnerGroupID, 10)},
		audit.Field{Name: "status", Value: a.Status},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(a.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(a.UpdatedBy, 10)},
	)
}

// PurchaseOrder commits spend against an asset. Amounts are exact decimal
// text, same as the planning entities.
type PurchaseOrder struct {
	ID                int64
	AssetID           int64
	PONumber          string
	AribaPRNumber     string
	Supplier          string
	POType            string
	StartDate         *time.Time
	EndDate           *time.Time
	TotalAmount       string
	Currency          string
	SpendCategory     budget.SpendCategory
	PlannedCommitDate *time.Time
	ActualCommitDate  *time.Time
	OwnerGroupID      int64
	Status            string
	CreatedBy         int64
	UpdatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// Facts exposes the order's ownership attributes for authorization.
func (p PurchaseOrder) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordPO,
		RecordID:     p.ID,
		OwnerGroupID: p.OwnerGroupID,
		CreatedBy:    p.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (p PurchaseOrder) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(p.ID, 10)},
		audit.Field{Name: "asset_id", Value: strconv.FormatInt(p.AssetID, 10)},
		audit.Field{Name: "po_number", Value: p.PONumber},
		audit.Field{Name: "ariba_pr_number", Value: p.AribaPRNumber},
		audit.Field{Name: "supplier", Value: p.Supplier},
		audit.Field{Name: "po_type", Value: p.POType},
		audit.Field{Name: "start_date", Value: timeText(p.StartDate)},
		audit.Field{Name: "end_date", Value: timeText(p.EndDate)},
		audit.Field{Name: "total_amount", Value: p.TotalAmount},
		audit.Field{Name: "currency", Value: p.Currency},
		audit.Field{Name: "spend_category", Value: string(p.SpendCategory)},
		audit.Field{Name: "planned_commit_date", Value: timeText(p.PlannedCommitDate)},
		audit.Field{Name: "actual_commit_date", Value: timeText(p.ActualCommitDate)},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(p.OwnerGroupID, 10)},
		audit.Field{Name: "status", Value: p.Status},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(p.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(p.UpdatedBy, 10)},
	)
}

// GoodsReceipt records delivery against a purchase order.
type GoodsReceipt struct {
	ID           int64
	POID         int64
	GRNumber     string
	GRDate       *time.Time
	Amount       string
	Description  string
	OwnerGroupID int64
	CreatedBy    int64
	UpdatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Facts exposes the receipt's ownership attributes for authorization.
func (g GoodsReceipt) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordGR,
		RecordID:     g.ID,
		OwnerGroupID: g.OwnerGroupID,
		CreatedBy:    g.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (g GoodsReceipt) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(g.ID, 10)},
		audit.Field{Name: "po_id", Value: strconv.FormatInt(g.POID, 10)},
		audit.Field{Name: "gr_number", Value: g.GRNumber},
		audit.Field{Name: "gr_date", Value: timeText(g.GRDate)},
		audit.Field{Name: "amount", Value: g.Amount},
		audit.Field{Name: "description", Value: g.Description},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(g.OwnerGroupID, 10)},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(g.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(g.UpdatedBy, 10)},
	)
}

func timeText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
