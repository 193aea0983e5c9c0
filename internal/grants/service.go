// Package grants manages explicit record sharing: time-limited access grants
// that open a record to a user or group outside its owner group.
package grants

import (
	"context"
	"fmt"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

// recordAccess is the audit entity type for grant rows.
const recordAccess = "record_access"

// FactsSource resolves the ownership facts of the record being shared.
type FactsSource interface {
	FactsOf(ctx context.Context, recordType string, id int64) (access.OwnerFacts, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetGrant(ctx context.Context, id int64) (access.Grant, error)
	ListGrants(ctx context.Context, recordType string, recordID int64) ([]access.Grant, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertGrant(ctx context.Context, g access.Grant) (int64, error)
	UpdateGrant(ctx context.Context, g access.Grant) error
	DeleteGrant(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service manages the lifecycle of access grants.
type Service struct {
	repo  RepositoryPort
	facts FactsSource
	authz *access.Evaluator
}

// NewService constructs the grants service.
func NewService(repo RepositoryPort, facts FactsSource, authz *access.Evaluator) *Service {
	return &Service{repo: repo, facts: facts, authz: authz}
}

// ShareInput describes a new grant. Exactly one of UserID/GroupID is set.
type ShareInput struct {
	RecordType string
	RecordID   int64
	UserID     int64
	GroupID    int64
	Level      string
	ExpiresAt  *time.Time
}

// UpdateInput adjusts an existing grant's level or expiry.
type UpdateInput struct {
	Level     *string
	ExpiresAt *time.Time
}

// Share creates a grant on a record. Only admins, the record's creator, or a
// manager in the record's owner group may share it.
func (s *Service) Share(ctx context.Context, actor access.Actor, input ShareInput) (access.Grant, error) {
	if !access.SharableRecordType(input.RecordType) {
		return access.Grant{}, fmt.Errorf("%w: unknown record type %q", shared.ErrValidation, input.RecordType)
	}
	if (input.UserID > 0) == (input.GroupID > 0) {
		return access.Grant{}, fmt.Errorf("%w: exactly one of user_id or group_id is required", shared.ErrValidation)
	}
	level, err := access.ParseLevel(input.Level)
	if err != nil {
		return access.Grant{}, fmt.Errorf("%w: access_level must be Read, Write or Full", shared.ErrValidation)
	}
	facts, err := s.facts.FactsOf(ctx, input.RecordType, input.RecordID)
	if err != nil {
		return access.Grant{}, err
	}
	if err := s.authorizeShare(ctx, actor, facts); err != nil {
		return access.Grant{}, err
	}

	g := access.Grant{
		RecordType: input.RecordType,
		RecordID:   input.RecordID,
		UserID:     input.UserID,
		GroupID:    input.GroupID,
		Level:      level,
		GrantedBy:  actor.ID,
		GrantedAt:  time.Now().UTC(),
		ExpiresAt:  input.ExpiresAt,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertGrant(ctx, g)
		if err != nil {
			return err
		}
		g.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, g.ID, nil, snapshot(g), actor))
	})
	if err != nil {
		return access.Grant{}, err
	}
	return g, nil
}

// Update changes a grant's level or expiry.
func (s *Service) Update(ctx context.Context, actor access.Actor, id int64, input UpdateInput) (access.Grant, error) {
	before, err := s.repo.GetGrant(ctx, id)
	if err != nil {
		return access.Grant{}, err
	}
	facts, err := s.facts.FactsOf(ctx, before.RecordType, before.RecordID)
	if err != nil {
		return access.Grant{}, err
	}
	if err := s.authorizeShare(ctx, actor, facts); err != nil {
		return access.Grant{}, err
	}

	g := before
	if input.Level != nil {
		level, err := access.ParseLevel(*input.Level)
		if err != nil {
			return access.Grant{}, fmt.Errorf("%w: access_level must be Read, Write or Full", shared.ErrValidation)
		}
		g.Level = level
	}
	if input.ExpiresAt != nil {
		g.ExpiresAt = input.ExpiresAt
	}
	now := time.Now().UTC()
	g.UpdatedBy = actor.ID
	g.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateGrant(ctx, g); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, g.ID, snapshot(before), snapshot(g), actor))
	})
	if err != nil {
		return access.Grant{}, err
	}
	return g, nil
}

// Revoke deletes a grant.
func (s *Service) Revoke(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetGrant(ctx, id)
	if err != nil {
		return err
	}
	facts, err := s.facts.FactsOf(ctx, before.RecordType, before.RecordID)
	if err != nil {
		return err
	}
	if err := s.authorizeShare(ctx, actor, facts); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteGrant(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, id, snapshot(before), nil, actor))
	})
}

// List returns the grants attached to a record the actor can read.
func (s *Service) List(ctx context.Context, actor access.Actor, recordType string, recordID int64) ([]access.Grant, error) {
	if !access.SharableRecordType(recordType) {
		return nil, fmt.Errorf("%w: unknown record type %q", shared.ErrValidation, recordType)
	}
	facts, err := s.facts.FactsOf(ctx, recordType, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, facts); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, recordType, recordID)
}

// authorizeShare converts a sharing denial into the uniform error policy:
// an actor with no read path gets ErrNotFound, a reader without sharing
// rights gets ErrForbidden.
func (s *Service) authorizeShare(ctx context.Context, actor access.Actor, facts access.OwnerFacts) error {
	ok, err := s.authz.CanShare(ctx, actor, facts)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	readable, err := s.authz.Can(ctx, actor, access.OpRead, facts)
	if err != nil {
		return err
	}
	if readable {
		return shared.ErrForbidden
	}
	return shared.ErrNotFound
}

func snapshot(g access.Grant) *audit.Snapshot {
	expires := ""
	if g.ExpiresAt != nil {
		expires = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return audit.NewSnapshot(
		audit.Field{Name: "id", Value: fmt.Sprintf("%d", g.ID)},
		audit.Field{Name: "record_type", Value: g.RecordType},
		audit.Field{Name: "record_id", Value: fmt.Sprintf("%d", g.RecordID)},
		audit.Field{Name: "user_id", Value: fmt.Sprintf("%d", g.UserID)},
		audit.Field{Name: "group_id", Value: fmt.Sprintf("%d", g.GroupID)},
		audit.Field{Name: "access_level", Value: string(g.Level)},
		audit.Field{Name: "granted_by", Value: fmt.Sprintf("%d", g.GrantedBy)},
		audit.Field{Name: "expires_at", Value: expires},
	)
}

func (s *Service) event(ctx context.Context, action audit.Action, entityID int64, before, after *audit.Snapshot, actor access.Actor) audit.Event {
	prov := audit.ProvenanceFromContext(ctx)
	return audit.Event{
		EntityType: recordAccess,
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
