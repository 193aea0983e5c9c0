package users

import (
	"fmt"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
)

// recordUser is the audit entity type for user rows.
const recordUser = "user"

// User represents a managed user account. PasswordHash never leaves the
// package through DTOs or audit snapshots.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Department   string
	Role         access.Role
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Snapshot renders the audit view of the account.
func (u User) Snapshot() *audit.Snapshot {
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: fmt.Sprintf("%d", u.ID)},
		audit.Field{Name: "username", Value: u.Username},
		audit.Field{Name: "email", Value: u.Email},
		audit.Field{Name: "full_name", Value: u.FullName},
		audit.Field{Name: "department", Value: u.Department},
		audit.Field{Name: "role", Value: string(u.Role)},
		audit.Field{Name: "is_active", Value: fmt.Sprintf("%t", u.IsActive)},
	)
}
