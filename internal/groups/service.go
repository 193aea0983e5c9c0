package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context, window shared.ListWindow) ([]Group, error)
	GetMembership(ctx context.Context, groupID, userID int64) (Membership, error)
	ListMembers(ctx context.Context, groupID int64) ([]Membership, error)
}

// TxRepository exposes transactional operations. AppendAudit participates in
// the same transaction as the mutation it describes.
type TxRepository interface {
	InsertGroup(ctx context.Context, g Group) (int64, error)
	UpdateGroup(ctx context.Context, g Group) error
	DeleteGroup(ctx context.Context, id int64) error
	InsertMembership(ctx context.Context, m Membership) (int64, error)
	DeleteMembership(ctx context.Context, groupID, userID int64) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service manages groups and memberships. Groups are directory data: every
// authenticated user may list them, but only Manager and above may change
// them or their membership.
type Service struct {
	repo  RepositoryPort
	authz *access.Evaluator
}

// NewService constructs the groups service.
func NewService(repo RepositoryPort, authz *access.Evaluator) *Service {
	return &Service{repo: repo, authz: authz}
}

// CreateGroupInput describes the creation payload.
type CreateGroupInput struct {
	Name        string
	Description string
}

// UpdateGroupInput carries a partial update; nil fields stay unchanged.
type UpdateGroupInput struct {
	Name        *string
	Description *string
}

// CreateGroup persists a new group. Group names are unique.
func (s *Service) CreateGroup(ctx context.Context, actor access.Actor, input CreateGroupInput) (Group, error) {
	if input.Name == "" {
		return Group{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordGroup) {
		return Group{}, shared.ErrForbidden
	}

	g := Group{
		Name:        input.Name,
		Description: input.Description,
		CreatedBy:   actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertGroup(ctx, g)
		if err != nil {
			return err
		}
		g.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, access.RecordGroup, g.ID, nil, g.Snapshot(), actor))
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// GetGroup loads one group. Groups are visible to all authenticated users.
func (s *Service) GetGroup(ctx context.Context, actor access.Actor, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]Group, error) {
	return s.repo.ListGroups(ctx, window)
}

// UpdateGroup renames or redescribes a group.
func (s *Service) UpdateGroup(ctx context.Context, actor access.Actor, id int64, input UpdateGroupInput) (Group, error) {
	before, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	if !s.canManage(actor, before) {
		return Group{}, shared.ErrForbidden
	}

	g := before
	if input.Name != nil {
		g.Name = *input.Name
	}
	if input.Description != nil {
		g.Description = *input.Description
	}
	if g.Name == "" {
		return Group{}, fmt.Errorf("%w: name must stay set", shared.ErrValidation)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, access.RecordGroup, g.ID, before.Snapshot(), g.Snapshot(), actor))
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// DeleteGroup removes a group. Records owned by the group keep their
// owner_group_id; deleting an in-use group is a schema-level concern.
func (s *Service) DeleteGroup(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if !s.canManage(actor, before) {
		return shared.ErrForbidden
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteGroup(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, access.RecordGroup, id, before.Snapshot(), nil, actor))
	})
}

// AddMember adds a user to a group, recording who added them.
func (s *Service) AddMember(ctx context.Context, actor access.Actor, groupID, userID int64) (Membership, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Membership{}, err
	}
	if !s.canManage(actor, group) {
		return Membership{}, shared.ErrForbidden
	}
	if userID <= 0 {
		return Membership{}, fmt.Errorf("%w: user_id is required", shared.ErrValidation)
	}

	m := Membership{
		UserID:  userID,
		GroupID: groupID,
		AddedBy: actor.ID,
		AddedAt: time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMembership(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, recordMembership, m.ID, nil, m.Snapshot(), actor))
	})
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

// RemoveMember removes a user from a group.
func (s *Service) RemoveMember(ctx context.Context, actor access.Actor, groupID, userID int64) error {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !s.canManage(actor, group) {
		return shared.ErrForbidden
	}
	before, err := s.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteMembership(ctx, groupID, userID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, recordMembership, before.ID, before.Snapshot(), nil, actor))
	})
}

// ListMembers returns the memberships of a group.
func (s *Service) ListMembers(ctx context.Context, actor access.Actor, groupID int64) ([]Membership, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

// canManage gates group mutations: admins, any Manager, or the group creator.
func (s *Service) canManage(actor access.Actor, g Group) bool {
	if actor.IsAdmin() || actor.Role.AtLeast(access.RoleManager) {
		return true
	}
	return g.CreatedBy != 0 && g.CreatedBy == actor.ID
}

func (s *Service) event(ctx context.Context, action audit.Action, entityType string, entityID int64, before, after *audit.Snapshot, actor access.Actor) audit.Event {
	prov := audit.ProvenanceFromContext(ctx)
	return audit.Event{
		EntityType: entityType,
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
