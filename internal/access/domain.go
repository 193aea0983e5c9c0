// Package access centralises every record-level authorization decision.
// All mutating and listing paths consult the same evaluator so the policy
// cannot drift between entity types.
package access

import (
	"fmt"
	"time"
)

// Role is the actor's platform role. Roles are ordered: each role carries
// every capability of the roles below it.
type Role string

const (
	RoleViewer  Role = "Viewer"
	RoleUser    Role = "User"
	RoleManager Role = "Manager"
	RoleAdmin   Role = "Admin"
)

var roleRank = map[Role]int{
	RoleViewer:  0,
	RoleUser:    1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// ParseRole validates a stored role string.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("access: unknown role %q", value)
	}
	return role, nil
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Operation enumerates the record operations subject to authorization.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// Actor is the authenticated identity making a request.
type Actor struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the actor bypasses every record-level check.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Record type identifiers, shared with the audit log's entity_type column.
const (
	RecordBudgetItem   = "budget_item"
	RecordBusinessCase = "business_case"
	RecordLineItem     = "business_case_line_item"
	RecordWBS          = "wbs"
	RecordAsset        = "asset"
	RecordPO           = "purchase_order"
	RecordGR           = "goods_receipt"
	RecordResource     = "resource"
	RecordAllocation   = "resource_po_allocation"
	RecordGroup        = "user_group"
)

// userCreatable lists record types the User role may create. Everything else
// requires Manager or above.
var userCreatable = map[string]bool{
	RecordBudgetItem: true,
	RecordLineItem:   true,
}

// OwnerFacts are the ownership attributes of an existing record that the
// evaluator decides against.
type OwnerFacts struct {
	RecordType   string
	RecordID     int64
	OwnerGroupID int64
	CreatedBy    int64
}

// Level is the strength of an explicit access grant. Levels are ordered:
// Full implies Write implies Read.
type Level string

const (
	LevelRead  Level = "Read"
	LevelWrite Level = "Write"
	LevelFull  Level = "Full"
)

var levelRank = map[Level]int{
	LevelRead:  0,
	LevelWrite: 1,
	LevelFull:  2,
}

// ParseLevel validates a stored access level string.
func ParseLevel(value string) (Level, error) {
	level := Level(value)
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("access: unknown access level %q", value)
	}
	return level, nil
}

// Covers reports whether the level permits the operation.
func (l Level) Covers(op Operation) bool {
	switch op {
	case OpRead, OpList:
		return levelRank[l] >= levelRank[LevelRead]
	case OpUpdate:
		return levelRank[l] >= levelRank[LevelWrite]
	case OpDelete:
		return levelRank[l] >= levelRank[LevelFull]
	default:
		return false
	}
}

// Grant is an explicit, possibly time-limited access override tying a record
// to a user or a group. Zero UserID/GroupID means "not set".
type Grant struct {
	ID         int64
	RecordType string
	RecordID   int64
	UserID     int64
	GroupID    int64
	Level      Level
	GrantedBy  int64
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	UpdatedBy  int64
	UpdatedAt  *time.Time
}

// ActiveAt reports whether the grant is in force at the given instant.
// A grant with expires_at in the past is inert.
func (g Grant) ActiveAt(t time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(t)
}

// appliesTo reports whether the grant targets the actor directly or through
// one of the actor's groups.
func (g Grant) appliesTo(actorID int64, memberGroups []int64) bool {
	if g.UserID != 0 && g.UserID == actorID {
		return true
	}
	if g.GroupID != 0 {
		for _, id := range memberGroups {
			if id == g.GroupID {
				return true
			}
		}
	}
	return false
}
