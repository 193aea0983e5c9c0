// Package resources manages contracted resources and their allocations to
// purchase orders. Allocations inherit their owner group from the resource.
package resources

import (
	"strconv"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
)

// Resource is a contracted person or service billed monthly.
type Resource struct {
	ID           int64
	Name         string
	Vendor       string
	Role         string
	StartDate    *time.Time
	EndDate      *time.Time
	CostPerMonth string
	OwnerGroupID int64
	Status       string
	CreatedBy    int64
	UpdatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Facts exposes the resource's ownership attributes for authorization.
func (r Resource) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordResource,
		RecordID:     r.ID,
		OwnerGroupID: r.OwnerGroupID,
		CreatedBy:    r.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (r Resource) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(r.ID, 10)},
		audit.Field{Name: "name", Value: r.Name},
		audit.Field{Name: "vendor", Value: r.Vendor},
		audit.Field{Name: "role", Value: r.Role},
		audit.Field{Name: "start_date", Value: timeText(r.StartDate)},
		audit.Field{Name: "end_date", Value: timeText(r.EndDate)},
		audit.Field{Name: "cost_per_month", Value: r.CostPerMonth},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(r.OwnerGroupID, 10)},
		audit.Field{Name: "status", Value: r.Status},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(r.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(r.UpdatedBy, 10)},
	)
}

// Allocation assigns a resource to a purchase order for a period with an
// expected monthly burn.
type Allocation struct {
	ID                  int64
	ResourceID          int64
	POID                int64
	AllocationStart     *time.Time
	AllocationEnd       *time.Time
	ExpectedMonthlyBurn string
	OwnerGroupID        int64
	CreatedBy           int64
	UpdatedBy           int64
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}

// Facts exposes the allocation's ownership attributes for authorization.
func (a Allocation) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordAllocation,
		RecordID:     a.ID,
		OwnerGroupID: a.OwnerGroupID,
		CreatedBy:    a.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (a Allocation) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(a.ID, 10)},
		audit.Field{Name: "resource_id", Value: strconv.FormatInt(a.ResourceID, 10)},
		audit.Field{Name: "po_id", Value: strconv.FormatInt(a.POID, 10)},
		audit.Field{Name: "allocation_start", Value: timeText(a.AllocationStart)},
		audit.Field{Name: "allocation_end", Value: timeText(a.AllocationEnd)},
		audit.Field{Name: "expected_monthly_burn", Value: a.ExpectedMonthlyBurn},
		audit.Field{Name: "owner_group_id", Value: strconv.FormatInt(a.OwnerGroupID, 10)},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(a.CreatedBy, 10)},
		audit.Field{Name: "updated_by", Value: strconv.FormatInt(a.UpdatedBy, 10)},
	)
}

func timeText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
