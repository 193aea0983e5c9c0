// Package groups manages user groups and their memberships. Group membership
// is what links actors to the records their teams own, so every mutation here
// lands in the audit trail like any other record change.
package groups

import (
	"strconv"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
)

// Group is a named ownership unit for records.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedBy   int64
	CreatedAt   time.Time
}

// Facts exposes the group's ownership attributes for authorization. A group
// owns itself: its members may read it, its creator and admins may change it.
func (g Group) Facts() access.OwnerFacts {
	return access.OwnerFacts{
		RecordType:   access.RecordGroup,
		RecordID:     g.ID,
		OwnerGroupID: g.ID,
		CreatedBy:    g.CreatedBy,
	}
}

// Snapshot renders the full row as an ordered field map for the audit trail.
func (g Group) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(g.ID, 10)},
		audit.Field{Name: "name", Value: g.Name},
		audit.Field{Name: "description", Value: g.Description},
		audit.Field{Name: "created_by", Value: strconv.FormatInt(g.CreatedBy, 10)},
	)
}

// Membership ties a user to a group and records who added them.
type Membership struct {
	ID      int64
	UserID  int64
	GroupID int64
	AddedBy int64
	AddedAt time.Time
}

// Snapshot renders the membership row for the audit trail.
func (m Membership) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: strconv.FormatInt(m.ID, 10)},
		audit.Field{Name: "user_id", Value: strconv.FormatInt(m.UserID, 10)},
		audit.Field{Name: "group_id", Value: strconv.FormatInt(m.GroupID, 10)},
		audit.Field{Name: "added_by", Value: strconv.FormatInt(m.AddedBy, 10)},
	)
}

// recordMembership is the audit entity type for membership rows. Memberships
// are not access-controlled records themselves so the constant lives here,
// not in the access package.
const recordMembership = "user_group_membership"
