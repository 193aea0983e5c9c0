package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBudgetItem(ctx context.Context, id int64) (BudgetItem, error)
	ListBudgetItems(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]BudgetItem, error)
	GetBusinessCase(ctx context.Context, id int64) (BusinessCase, error)
	ListBusinessCases(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]BusinessCase, error)
	GetLineItem(ctx context.Context, id int64) (LineItem, error)
	ListLineItems(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]LineItem, error)
}

// TxRepository exposes transactional operations. AppendAudit participates in
// the same transaction as the mutation it describes.
type TxRepository interface {
	InsertBudgetItem(ctx context.Context, item BudgetItem) (int64, error)
	UpdateBudgetItem(ctx context.Context, item BudgetItem) error
	DeleteBudgetItem(ctx context.Context, id int64) error
	InsertBusinessCase(ctx context.Context, bc BusinessCase) (int64, error)
	UpdateBusinessCase(ctx context.Context, bc BusinessCase) error
	DeleteBusinessCase(ctx context.Context, id int64) error
	InsertLineItem(ctx context.Context, line LineItem) (int64, error)
	UpdateLineItem(ctx context.Context, line LineItem) error
	DeleteLineItem(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the planning entities: authorize, resolve ownership,
// persist and audit inside one transaction.
type Service struct {
	repo   RepositoryPort
	authz  *access.Evaluator
	owners *access.Resolver
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, authz *access.Evaluator, owners *access.Resolver) *Service {
	return &Service{repo: repo, authz: authz, owners: owners}
}

// CreateBudgetItemInput describes the creation payload.
type CreateBudgetItemInput struct {
	WorkdayRef   string
	Title        string
	Description  string
	BudgetAmount string
	Currency     string
	FiscalYear   int
	OwnerGroupID int64
}

// UpdateBudgetItemInput carries a partial update; nil fields stay unchanged.
type UpdateBudgetItemInput struct {
	WorkdayRef   *string
	Title        *string
	Description  *string
	BudgetAmount *string
	Currency     *string
	FiscalYear   *int
}

// CreateBudgetItem persists a new budget item with an explicit owner group.
func (s *Service) CreateBudgetItem(ctx context.Context, actor access.Actor, input CreateBudgetItemInput) (BudgetItem, error) {
	if input.WorkdayRef == "" || input.Title == "" || input.Currency == "" {
		return BudgetItem{}, fmt.Errorf("%w: workday_ref, title and currency are required", shared.ErrValidation)
	}
	if !shared.ValidDecimal(input.BudgetAmount) {
		return BudgetItem{}, fmt.Errorf("%w: budget_amount must be a decimal", shared.ErrValidation)
	}
	if input.FiscalYear <= 0 {
		return BudgetItem{}, fmt.Errorf("%w: fiscal_year is required", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordBudgetItem) {
		return BudgetItem{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordBudgetItem, input.OwnerGroupID, 0)
	if err != nil {
		return BudgetItem{}, err
	}

	now := time.Now().UTC()
	item := BudgetItem{
		WorkdayRef:   input.WorkdayRef,
		Title:        input.Title,
		Description:  input.Description,
		BudgetAmount: input.BudgetAmount,
		Currency:     input.Currency,
		FiscalYear:   input.FiscalYear,
		OwnerGroupID: group,
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
		CreatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBudgetItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, item.Facts(), nil, item.Snapshot(), actor))
	})
	if err != nil {
		return BudgetItem{}, err
	}
	return item, nil
}

// GetBudgetItem loads an item the actor may read.
func (s *Service) GetBudgetItem(ctx context.Context, actor access.Actor, id int64) (BudgetItem, error) {
	item, err := s.repo.GetBudgetItem(ctx, id)
	if err != nil {
		return BudgetItem{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, item.Facts()); err != nil {
		return BudgetItem{}, err
	}
	return item, nil
}

// UpdateBudgetItem applies a partial update and audits before/after state.
func (s *Service) UpdateBudgetItem(ctx context.Context, actor access.Actor, id int64, input UpdateBudgetItemInput) (BudgetItem, error) {
	before, err := s.repo.GetBudgetItem(ctx, id)
	if err != nil {
		return BudgetItem{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return BudgetItem{}, err
	}

	item := before
	applyString(&item.WorkdayRef, input.WorkdayRef)
	applyString(&item.Title, input.Title)
	applyString(&item.Description, input.Description)
	applyString(&item.BudgetAmount, input.BudgetAmount)
	applyString(&item.Currency, input.Currency)
	if input.FiscalYear != nil {
		item.FiscalYear = *input.FiscalYear
	}
	if item.WorkdayRef == "" || item.Title == "" || item.Currency == "" || item.FiscalYear <= 0 {
		return BudgetItem{}, fmt.Errorf("%w: workday_ref, title, currency and fiscal_year must stay set", shared.ErrValidation)
	}
	if !shared.ValidDecimal(item.BudgetAmount) {
		return BudgetItem{}, fmt.Errorf("%w: budget_amount must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	item.UpdatedBy = actor.ID
	item.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateBudgetItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, item.Facts(), before.Snapshot(), item.Snapshot(), actor))
	})
	if err != nil {
		return BudgetItem{}, err
	}
	return item, nil
}

// DeleteBudgetItem removes an item; the audit history outlives the row.
func (s *Service) DeleteBudgetItem(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetBudgetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteBudgetItem(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListBudgetItems returns the actor-visible items, filtered before paging.
func (s *Service) ListBudgetItems(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]BudgetItem, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBudgetItems(ctx, scope, window)
}

// CreateBusinessCaseInput describes the creation payload.
type CreateBusinessCaseInput struct {
	Title         string
	Description   string
	Requestor     string
	Department    string
	EstimatedCost string
	Status        string
	OwnerGroupID  int64
}

// UpdateBusinessCaseInput carries a partial update; nil fields stay unchanged.
type UpdateBusinessCaseInput struct {
	Title         *string
	Description   *string
	Requestor     *string
	Department    *string
	EstimatedCost *string
	Status        *string
}

// CreateBusinessCase persists a new business case.
func (s *Service) CreateBusinessCase(ctx context.Context, actor access.Actor, input CreateBusinessCaseInput) (BusinessCase, error) {
	if input.Title == "" {
		return BusinessCase{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if input.EstimatedCost != "" && !shared.ValidDecimal(input.EstimatedCost) {
		return BusinessCase{}, fmt.Errorf("%w: estimated_cost must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordBusinessCase) {
		return BusinessCase{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordBusinessCase, input.OwnerGroupID, 0)
	if err != nil {
		return BusinessCase{}, err
	}

	now := time.Now().UTC()
	bc := BusinessCase{
		Title:         input.Title,
		Description:   input.Description,
		Requestor:     input.Requestor,
		Department:    input.Department,
		EstimatedCost: input.EstimatedCost,
		Status:        defaultStatus(input.Status),
		OwnerGroupID:  group,
		CreatedBy:     actor.ID,
		UpdatedBy:     actor.ID,
		CreatedAt:     now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBusinessCase(ctx, bc)
		if err != nil {
			return err
		}
		bc.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, bc.Facts(), nil, bc.Snapshot(), actor))
	})
	if err != nil {
		return BusinessCase{}, err
	}
	return bc, nil
}

// GetBusinessCase loads a case the actor may read.
func (s *Service) GetBusinessCase(ctx context.Context, actor access.Actor, id int64) (BusinessCase, error) {
	bc, err := s.repo.GetBusinessCase(ctx, id)
	if err != nil {
		return BusinessCase{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, bc.Facts()); err != nil {
		return BusinessCase{}, err
	}
	return bc, nil
}

// UpdateBusinessCase applies a partial update and audits before/after state.
func (s *Service) UpdateBusinessCase(ctx context.Context, actor access.Actor, id int64, input UpdateBusinessCaseInput) (BusinessCase, error) {
	before, err := s.repo.GetBusinessCase(ctx, id)
	if err != nil {
		return BusinessCase{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return BusinessCase{}, err
	}

	bc := before
	applyString(&bc.Title, input.Title)
	applyString(&bc.Description, input.Description)
	applyString(&bc.Requestor, input.Requestor)
	applyString(&bc.Department, input.Department)
	applyString(&bc.EstimatedCost, input.EstimatedCost)
	applyString(&bc.Status, input.Status)
	if bc.Title == "" {
		return BusinessCase{}, fmt.Errorf("%w: title must stay set", shared.ErrValidation)
	}
	if bc.EstimatedCost != "" && !shared.ValidDecimal(bc.EstimatedCost) {
		return BusinessCase{}, fmt.Errorf("%w: estimated_cost must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	bc.UpdatedBy = actor.ID
	bc.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateBusinessCase(ctx, bc); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, bc.Facts(), before.Snapshot(), bc.Snapshot(), actor))
	})
	if err != nil {
		return BusinessCase{}, err
	}
	return bc, nil
}

// DeleteBusinessCase removes a case.
func (s *Service) DeleteBusinessCase(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetBusinessCase(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteBusinessCase(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListBusinessCases returns the actor-visible cases.
func (s *Service) ListBusinessCases(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]BusinessCase, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBusinessCases(ctx, scope, window)
}

// CreateLineItemInput describes the creation payload.
type CreateLineItemInput struct {
	BusinessCaseID    int64
	BudgetItemID      int64
	OwnerGroupID      int64
	Title             string
	Description       string
	SpendCategory     string
	RequestedAmount   string
	Currency          string
	PlannedCommitDate *time.Time
	Status            string
}

// UpdateLineItemInput carries a partial update; nil fields stay unchanged.
type UpdateLineItemInput struct {
	Title             *string
	Description       *string
	SpendCategory     *string
	RequestedAmount   *string
	Currency          *string
	PlannedCommitDate *time.Time
	Status            *string
}

// CreateLineItem persists a line item after verifying both parents exist.
// The owner group is declared by the client, independent of the parents.
func (s *Service) CreateLineItem(ctx context.Context, actor access.Actor, input CreateLineItemInput) (LineItem, error) {
	if input.Title == "" || input.Currency == "" {
		return LineItem{}, fmt.Errorf("%w: title and currency are required", shared.ErrValidation)
	}
	if !ValidSpendCategory(input.SpendCategory) {
		return LineItem{}, fmt.Errorf("%w: spend_category must be CAPEX or OPEX", shared.ErrValidation)
	}
	if !shared.ValidDecimal(input.RequestedAmount) {
		return LineItem{}, fmt.Errorf("%w: requested_amount must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordLineItem) {
		return LineItem{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordLineItem, input.OwnerGroupID, 0)
	if err != nil {
		return LineItem{}, err
	}
	if _, err := s.repo.GetBusinessCase(ctx, input.BusinessCaseID); err != nil {
		return LineItem{}, parentErr(err, access.RecordBusinessCase, input.BusinessCaseID)
	}
	if _, err := s.repo.GetBudgetItem(ctx, input.BudgetItemID); err != nil {
		return LineItem{}, parentErr(err, access.RecordBudgetItem, input.BudgetItemID)
	}

	now := time.Now().UTC()
	line := LineItem{
		BusinessCaseID:    input.BusinessCaseID,
		BudgetItemID:      input.BudgetItemID,
		OwnerGroupID:      group,
		Title:             input.Title,
		Description:       input.Description,
		SpendCategory:     SpendCategory(input.SpendCategory),
		RequestedAmount:   input.RequestedAmount,
		Currency:          input.Currency,
		PlannedCommitDate: input.PlannedCommitDate,
		Status:            defaultStatus(input.Status),
		CreatedBy:         actor.ID,
		UpdatedBy:         actor.ID,
		CreatedAt:         now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLineItem(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, line.Facts(), nil, line.Snapshot(), actor))
	})
	if err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// GetLineItem loads a line item the actor may read.
func (s *Service) GetLineItem(ctx context.Context, actor access.Actor, id int64) (LineItem, error) {
	line, err := s.repo.GetLineItem(ctx, id)
	if err != nil {
		return LineItem{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, line.Facts()); err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// UpdateLineItem applies a partial update and audits before/after state.
func (s *Service) UpdateLineItem(ctx context.Context, actor access.Actor, id int64, input UpdateLineItemInput) (LineItem, error) {
	before, err := s.repo.GetLineItem(ctx, id)
	if err != nil {
		return LineItem{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return LineItem{}, err
	}

	line := before
	applyString(&line.Title, input.Title)
	applyString(&line.Description, input.Description)
	if input.SpendCategory != nil {
		if !ValidSpendCategory(*input.SpendCategory) {
			return LineItem{}, fmt.Errorf("%w: spend_category must be CAPEX or OPEX", shared.ErrValidation)
		}
		line.SpendCategory = SpendCategory(*input.SpendCategory)
	}
	applyString(&line.RequestedAmount, input.RequestedAmount)
	applyString(&line.Currency, input.Currency)
	if input.PlannedCommitDate != nil {
		line.PlannedCommitDate = input.PlannedCommitDate
	}
	applyString(&line.Status, input.Status)
	if line.Title == "" || line.Currency == "" {
		return LineItem{}, fmt.Errorf("%w: title and currency must stay set", shared.ErrValidation)
	}
	if !shared.ValidDecimal(line.RequestedAmount) {
		return LineItem{}, fmt.Errorf("%w: requested_amount must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	line.UpdatedBy = actor.ID
	line.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateLineItem(ctx, line); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, line.Facts(), before.Snapshot(), line.Snapshot(), actor))
	})
	if err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// DeleteLineItem removes a line item.
func (s *Service) DeleteLineItem(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetLineItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLineItem(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListLineItems returns the actor-visible line items.
func (s *Service) ListLineItems(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]LineItem, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLineItems(ctx, scope, window)
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

func parentErr(err error, recordType string, id int64) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", shared.ErrParentNotFound, recordType, id)
	}
	return err
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func defaultStatus(status string) string {
	if status == "" {
		return "Draft"
	}
	return status
}
