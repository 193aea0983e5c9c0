package auth

import (
	"time"

	"github.com/capline-erp/capline/internal/access"
)

// User represents an authenticated user account.
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

// Actor converts the user into the identity access decisions run against.
func (u *User) Actor() access.Actor {
	return access.Actor{ID: u.ID, Role: u.Role}
}
