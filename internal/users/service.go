// Package users manages user accounts: the directory every authenticated
// actor may browse when picking grant or membership targets, and the
// admin-only account lifecycle.
package users

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context, window shared.ListWindow) ([]User, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertUser(ctx context.Context, u User) (int64, error)
	UpdateUser(ctx context.Context, u User) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service handles user account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput describes a new account.
type CreateInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Department string
	Role       string
}

// UpdateInput carries optional account changes. Nil fields stay untouched.
type UpdateInput struct {
	FullName   *string
	Department *string
	Role       *string
	IsActive   *bool
	Password   *string
}

// Create adds a user account. Admin only.
func (s *Service) Create(ctx context.Context, actor access.Actor, input CreateInput) (User, error) {
	if !actor.IsAdmin() {
		return User{}, shared.ErrForbidden
	}
	role, err := access.ParseRole(input.Role)
	if err != nil {
		return User{}, fmt.Errorf("%w: role must be Viewer, User, Manager or Admin", shared.ErrValidation)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashed),
		FullName:     input.FullName,
		Department:   input.Department,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertUser(ctx, u)
		if err != nil {
			return err
		}
		u.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, u.ID, nil, u.Snapshot(), actor))
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Update changes account attributes. Admin only.
func (s *Service) Update(ctx context.Context, actor access.Actor, id int64, input UpdateInput) (User, error) {
	if !actor.IsAdmin() {
		return User{}, shared.ErrForbidden
	}
	before, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	u := before
	if input.FullName != nil {
		u.FullName = *input.FullName
	}
	if input.Department != nil {
		u.Department = *input.Department
	}
	if input.Role != nil {
		role, err := access.ParseRole(*input.Role)
		if err != nil {
			return User{}, fmt.Errorf("%w: role must be Viewer, User, Manager or Admin", shared.ErrValidation)
		}
		u.Role = role
	}
	if input.IsActive != nil {
		u.IsActive = *input.IsActive
	}
	if input.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = string(hashed)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, u.ID, before.Snapshot(), u.Snapshot(), actor))
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Get returns one account. Accounts are directory data, visible to every
// authenticated actor.
func (s *Service) Get(ctx context.Context, _ access.Actor, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// List returns accounts ordered by username.
func (s *Service) List(ctx context.Context, _ access.Actor, window shared.ListWindow) ([]User, error) {
	return s.repo.ListUsers(ctx, window)
}

func (s *Service) event(ctx context.Context, action audit.Action, entityID int64, before, after *audit.Snapshot, actor access.Actor) audit.Event {
	prov := audit.ProvenanceFromContext(ctx)
	return audit.Event{
		EntityType: recordUser,
		EntityID:   entityID,
		Action:     action,
		Before:     before,
		After:      after,
		ActorID:    actor.ID,
		At:         time.Now().UTC(),
		IPAddress:  prov.IPAddress,
		UserAgent:  prov.UserAgent,
	}
}
