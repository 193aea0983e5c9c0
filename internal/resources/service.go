package resources

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
	GetResource(ctx context.Context, id int64) (Resource, error)
	ListResources(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Resource, error)
	GetAllocation(ctx context.Context, id int64) (Allocation, error)
	ListAllocations(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Allocation, error)
	PurchaseOrderExists(ctx context.Context, id int64) (bool, error)
}

// TxRepository exposes transactional operations. AppendAudit participates in
// the same transaction as the mutation it describes.
type TxRepository interface {
	InsertResource(ctx context.Context, res Resource) (int64, error)
	UpdateResource(ctx context.Context, res Resource) error
	DeleteResource(ctx context.Context, id int64) error
	InsertAllocation(ctx context.Context, alloc Allocation) (int64, error)
	UpdateAllocation(ctx context.Context, alloc Allocation) error
	DeleteAllocation(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service orchestrates resources and their PO allocations.
type Service struct {
	repo   RepositoryPort
	authz  *access.Evaluator
	owners *access.Resolver
}

// NewService constructs the resources service.
func NewService(repo RepositoryPort, authz *access.Evaluator, owners *access.Resolver) *Service {
	return &Service{repo: repo, authz: authz, owners: owners}
}

// CreateResourceInput describes the creation payload.
type CreateResourceInput struct {
	Name         string
	Vendor       string
	Role         string
	StartDate    *time.Time
	EndDate      *time.Time
	CostPerMonth string
	OwnerGroupID int64
	Status       string
}

// UpdateResourceInput carries a partial update; nil fields stay unchanged.
type UpdateResourceInput struct {
	Name         *string
	Vendor       *string
	Role         *string
	StartDate    *time.Time
	EndDate      *time.Time
	CostPerMonth *string
	Status       *string
}

// CreateResource persists a resource with an explicit owner group.
func (s *Service) CreateResource(ctx context.Context, actor access.Actor, input CreateResourceInput) (Resource, error) {
	if input.Name == "" {
		return Resource{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if input.CostPerMonth != "" && !shared.ValidDecimal(input.CostPerMonth) {
		return Resource{}, fmt.Errorf("%w: cost_per_month must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordResource) {
		return Resource{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordResource, input.OwnerGroupID, 0)
	if err != nil {
		return Resource{}, err
	}

	now := time.Now().UTC()
	res := Resource{
		Name:         input.Name,
		Vendor:       input.Vendor,
		Role:         input.Role,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		CostPerMonth: input.CostPerMonth,
		OwnerGroupID: group,
		Status:       defaultStatus(input.Status),
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
		CreatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertResource(ctx, res)
		if err != nil {
			return err
		}
		res.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, res.Facts(), nil, res.Snapshot(), actor))
	})
	if err != nil {
		return Resource{}, err
	}
	return res, nil
}

// GetResource loads a resource the actor may read.
func (s *Service) GetResource(ctx context.Context, actor access.Actor, id int64) (Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return Resource{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, res.Facts()); err != nil {
		return Resource{}, err
	}
	return res, nil
}

// UpdateResource applies a partial update and audits before/after state.
func (s *Service) UpdateResource(ctx context.Context, actor access.Actor, id int64, input UpdateResourceInput) (Resource, error) {
	before, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return Resource{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return Resource{}, err
	}

	res := before
	applyString(&res.Name, input.Name)
	applyString(&res.Vendor, input.Vendor)
	applyString(&res.Role, input.Role)
	if input.StartDate != nil {
		res.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		res.EndDate = input.EndDate
	}
	applyString(&res.CostPerMonth, input.CostPerMonth)
	applyString(&res.Status, input.Status)
	if res.Name == "" {
		return Resource{}, fmt.Errorf("%w: name must stay set", shared.ErrValidation)
	}
	if res.CostPerMonth != "" && !shared.ValidDecimal(res.CostPerMonth) {
		return Resource{}, fmt.Errorf("%w: cost_per_month must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	res.UpdatedBy = actor.ID
	res.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateResource(ctx, res); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, res.Facts(), before.Snapshot(), res.Snapshot(), actor))
	})
	if err != nil {
		return Resource{}, err
	}
	return res, nil
}

// DeleteResource removes a resource.
func (s *Service) DeleteResource(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteResource(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListResources returns the actor-visible resources.
func (s *Service) ListResources(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]Resource, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListResources(ctx, scope, window)
}

// CreateAllocationInput describes the creation payload. The owner group comes
// from the resource, never from the client.
type CreateAllocationInput struct {
	ResourceID          int64
	POID                int64
	AllocationStart     *time.Time
	AllocationEnd       *time.Time
	ExpectedMonthlyBurn string
}

// UpdateAllocationInput carries a partial update; nil fields stay unchanged.
type UpdateAllocationInput struct {
	AllocationStart     *time.Time
	AllocationEnd       *time.Time
	ExpectedMonthlyBurn *string
}

// CreateAllocation assigns a resource to a purchase order.
func (s *Service) CreateAllocation(ctx context.Context, actor access.Actor, input CreateAllocationInput) (Allocation, error) {
	if input.ExpectedMonthlyBurn != "" && !shared.ValidDecimal(input.ExpectedMonthlyBurn) {
		return Allocation{}, fmt.Errorf("%w: expected_monthly_burn must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordAllocation) {
		return Allocation{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordAllocation, 0, input.ResourceID)
	if err != nil {
		return Allocation{}, err
	}
	ok, err := s.repo.PurchaseOrderExists(ctx, input.POID)
	if err != nil {
		return Allocation{}, err
	}
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s %d", shared.ErrParentNotFound, access.RecordPO, input.POID)
	}

	now := time.Now().UTC()
	alloc := Allocation{
		ResourceID:          input.ResourceID,
		POID:                input.POID,
		AllocationStart:     input.AllocationStart,
		AllocationEnd:       input.AllocationEnd,
		ExpectedMonthlyBurn: input.ExpectedMonthlyBurn,
		OwnerGroupID:        group,
		CreatedBy:           actor.ID,
		UpdatedBy:           actor.ID,
		CreatedAt:           now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertAllocation(ctx, alloc)
		if err != nil {
			return err
		}
		alloc.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, alloc.Facts(), nil, alloc.Snapshot(), actor))
	})
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// GetAllocation loads an allocation the actor may read.
func (s *Service) GetAllocation(ctx context.Context, actor access.Actor, id int64) (Allocation, error) {
	alloc, err := s.repo.GetAllocation(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, alloc.Facts()); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// UpdateAllocation applies a partial update and audits before/after state.
func (s *Service) UpdateAllocation(ctx context.Context, actor access.Actor, id int64, input UpdateAllocationInput) (Allocation, error) {
	before, err := s.repo.GetAllocation(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return Allocation{}, err
	}

	alloc := before
	if input.AllocationStart != nil {
		alloc.AllocationStart = input.AllocationStart
	}
	if input.AllocationEnd != nil {
		alloc.AllocationEnd = input.AllocationEnd
	}
	applyString(&alloc.ExpectedMonthlyBurn, input.ExpectedMonthlyBurn)
	if alloc.ExpectedMonthlyBurn != "" && !shared.ValidDecimal(alloc.ExpectedMonthlyBurn) {
		return Allocation{}, fmt.Errorf("%w: expected_monthly_burn must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	alloc.UpdatedBy = actor.ID
	alloc.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateAllocation(ctx, alloc); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, alloc.Facts(), before.Snapshot(), alloc.Snapshot(), actor))
	})
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// DeleteAllocation removes an allocation.
func (s *Service) DeleteAllocation(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetAllocation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteAllocation(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListAllocations returns the actor-visible allocations.
func (s *Service) ListAllocations(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]Allocation, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAllocations(ctx, scope, window)
}

func (s *Service) event(ctx context.Context, action audit.Action, facts access.OwnerFacts, before, after *audit.Snapshot, actor access.Actor) audit.Event {
	prov := audit.ProvenanceFromContext(ctx)
	return audit.Event{
		EntityType: facts.RecordType,
		EntityID:   facts.RecordID,
		Action:     action,
		Before:     before,
		After:      after,
		ActorID:    actor.ID,
		At:         time.Now().UTC(),
		IPAddress:  prov.IPAddress,
		UserAgent:  prov.UserAgent,
	}
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func defaultStatus(status string) string {
	if status == "" {
		return "Active"
	}
	return status
}
