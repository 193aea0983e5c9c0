package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/budget"
	"github.com/capline-erp/capline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetWBS(ctx context.Context, id int64) (WBS, error)
	ListWBS(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]WBS, error)
	GetAsset(ctx context.Context, id int64) (Asset, error)
	ListAssets(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]Asset, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]PurchaseOrder, error)
	GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error)
	ListGoodsReceipts(ctx context.Context, scope access.Scope, window shared.ListWindow) ([]GoodsReceipt, error)
}

// TxRepository exposes transactional operations. AppendAudit participates in
// the same transaction as the mutation it describes.
type TxRepository interface {
	InsertWBS(ctx context.Context, w WBS) (int64, error)
	UpdateWBS(ctx context.Context, w WBS) error
	DeleteWBS(ctx context.Context, id int64) error
	InsertAsset(ctx context.Context, a Asset) (int64, error)
	UpdateAsset(ctx context.Context, a Asset) error
	DeleteAsset(ctx context.Context, id int64) error
	InsertPurchaseOrder(ctx context.Context, p PurchaseOrder) (int64, error)
	UpdatePurchaseOrder(ctx context.Context, p PurchaseOrder) error
	DeletePurchaseOrder(ctx context.Context, id int64) error
	InsertGoodsReceipt(ctx context.Context, g GoodsReceipt) (int64, error)
	UpdateGoodsReceipt(ctx context.Context, g GoodsReceipt) error
	DeleteGoodsReceipt(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the execution chain. Creation of any record here runs
// the ownership resolver so the stored owner group always comes from the live
// parent, never from the request.
type Service struct {
	repo   RepositoryPort
	authz  *access.Evaluator
	owners *access.Resolver
}

// NewService constructs the execution service.
func NewService(repo RepositoryPort, authz *access.Evaluator, owners *access.Resolver) *Service {
	return &Service{repo: repo, authz: authz, owners: owners}
}

// CreateWBSInput describes the creation payload. A client-sent owner group is
// deliberately absent: the element always inherits from its line item.
type CreateWBSInput struct {
	LineItemID  int64
	WBSCode     string
	Description string
	Status      string
}

// UpdateWBSInput carries a partial update; nil fields stay unchanged.
type UpdateWBSInput struct {
	WBSCode     *string
	Description *string
	Status      *string
}

// CreateWBS persists a WBS element under a line item.
func (s *Service) CreateWBS(ctx context.Context, actor access.Actor, input CreateWBSInput) (WBS, error) {
	if input.WBSCode == "" {
		return WBS{}, fmt.Errorf("%w: wbs_code is required", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordWBS) {
		return WBS{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordWBS, 0, input.LineItemID)
	if err != nil {
		return WBS{}, err
	}

	now := time.Now().UTC()
	w := WBS{
		LineItemID:   input.LineItemID,
		WBSCode:      input.WBSCode,
		Description:  input.Description,
		OwnerGroupID: group,
		Status:       defaultStatus(input.Status),
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
		CreatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertWBS(ctx, w)
		if err != nil {
			return err
		}
		w.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, w.Facts(), nil, w.Snapshot(), actor))
	})
	if err != nil {
		return WBS{}, err
	}
	return w, nil
}

// GetWBS loads an element the actor may read.
func (s *Service) GetWBS(ctx context.Context, actor access.Actor, id int64) (WBS, error) {
	w, err := s.repo.GetWBS(ctx, id)
	if err != nil {
		return WBS{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, w.Facts()); err != nil {
		return WBS{}, err
	}
	return w, nil
}

// UpdateWBS applies a partial update. The owner group and parent link are
// immutable after creation.
func (s *Service) UpdateWBS(ctx context.Context, actor access.Actor, id int64, input UpdateWBSInput) (WBS, error) {
	before, err := s.repo.GetWBS(ctx, id)
	if err != nil {
		return WBS{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return WBS{}, err
	}

	w := before
	applyString(&w.WBSCode, input.WBSCode)
	applyString(&w.Description, input.Description)
	applyString(&w.Status, input.Status)
	if w.WBSCode == "" {
		return WBS{}, fmt.Errorf("%w: wbs_code must stay set", shared.ErrValidation)
	}
	now := time.Now().UTC()
	w.UpdatedBy = actor.ID
	w.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateWBS(ctx, w); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, w.Facts(), before.Snapshot(), w.Snapshot(), actor))
	})
	if err != nil {
		return WBS{}, err
	}
	return w, nil
}

// DeleteWBS removes an element.
func (s *Service) DeleteWBS(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetWBS(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteWBS(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListWBS returns the actor-visible elements.
func (s *Service) ListWBS(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]WBS, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListWBS(ctx, scope, window)
}

// CreateAssetInput describes the creation payload.
type CreateAssetInput struct {
	WBSID       int64
	AssetCode   string
	AssetType   string
	Description string
	Status      string
}

// UpdateAssetInput carries a partial update; nil fields stay unchanged.
type UpdateAssetInput struct {
	AssetCode   *string
	AssetType   *string
	Description *string
	Status      *string
}

// CreateAsset persists an asset under a WBS element.
func (s *Service) CreateAsset(ctx context.Context, actor access.Actor, input CreateAssetInput) (Asset, error) {
	if input.AssetCode == "" {
		return Asset{}, fmt.Errorf("%w: asset_code is required", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordAsset) {
		return Asset{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordAsset, 0, input.WBSID)
	if err != nil {
		return Asset{}, err
	}

	now := time.Now().UTC()
	a := Asset{
		WBSID:        input.WBSID,
		AssetCode:    input.AssetCode,
		AssetType:    input.AssetType,
		Description:  input.Description,
		OwnerGroupID: group,
		Status:       defaultStatus(input.Status),
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
		CreatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertAsset(ctx, a)
		if err != nil {
			return err
		}
		a.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, a.Facts(), nil, a.Snapshot(), actor))
	})
	if err != nil {
		return Asset{}, err
	}
	return a, nil
}

// GetAsset loads an asset the actor may read.
func (s *Service) GetAsset(ctx context.Context, actor access.Actor, id int64) (Asset, error) {
	a, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, a.Facts()); err != nil {
		return Asset{}, err
	}
	return a, nil
}

// UpdateAsset applies a partial update and audits before/after state.
func (s *Service) UpdateAsset(ctx context.Context, actor access.Actor, id int64, input UpdateAssetInput) (Asset, error) {
	before, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return Asset{}, err
	}

	a := before
	applyString(&a.AssetCode, input.AssetCode)
	applyString(&a.AssetType, input.AssetType)
	applyString(&a.Description, input.Description)
	applyString(&a.Status, input.Status)
	if a.AssetCode == "" {
		return Asset{}, fmt.Errorf("%w: asset_code must stay set", shared.ErrValidation)
	}
	now := time.Now().UTC()
	a.UpdatedBy = actor.ID
	a.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateAsset(ctx, a); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, a.Facts(), before.Snapshot(), a.Snapshot(), actor))
	})
	if err != nil {
		return Asset{}, err
	}
	return a, nil
}

// DeleteAsset removes an asset.
func (s *Service) DeleteAsset(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteAsset(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListAssets returns the actor-visible assets.
func (s *Service) ListAssets(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]Asset, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAssets(ctx, scope, window)
}

// CreatePurchaseOrderInput describes the creation payload.
type CreatePurchaseOrderInput struct {
	AssetID           int64
	PONumber          string
	AribaPRNumber     string
	Supplier          string
	POType            string
	StartDate         *time.Time
	EndDate           *time.Time
	TotalAmount       string
	Currency          string
	SpendCategory     string
	PlannedCommitDate *time.Time
	ActualCommitDate  *time.Time
	Status            string
}

// UpdatePurchaseOrderInput carries a partial update; nil fields stay unchanged.
type UpdatePurchaseOrderInput struct {
	PONumber          *string
	AribaPRNumber     *string
	Supplier          *string
	POType            *string
	StartDate         *time.Time
	EndDate           *time.Time
	TotalAmount       *string
	Currency          *string
	SpendCategory     *string
	PlannedCommitDate *time.Time
	ActualCommitDate  *time.Time
	Status            *string
}

// CreatePurchaseOrder persists an order under an asset.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor access.Actor, input CreatePurchaseOrderInput) (PurchaseOrder, error) {
	if input.PONumber == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: po_number is required", shared.ErrValidation)
	}
	if !budget.ValidSpendCategory(input.SpendCategory) {
		return PurchaseOrder{}, fmt.Errorf("%w: spend_category must be CAPEX or OPEX", shared.ErrValidation)
	}
	if input.TotalAmount != "" && !shared.ValidDecimal(input.TotalAmount) {
		return PurchaseOrder{}, fmt.Errorf("%w: total_amount must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordPO) {
		return PurchaseOrder{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordPO, 0, input.AssetID)
	if err != nil {
		return PurchaseOrder{}, err
	}

	now := time.Now().UTC()
	p := PurchaseOrder{
		AssetID:           input.AssetID,
		PONumber:          input.PONumber,
		AribaPRNumber:     input.AribaPRNumber,
		Supplier:          input.Supplier,
		POType:            input.POType,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		TotalAmount:       input.TotalAmount,
		Currency:          defaultCurrency(input.Currency),
		SpendCategory:     budget.SpendCategory(input.SpendCategory),
		PlannedCommitDate: input.PlannedCommitDate,
		ActualCommitDate:  input.ActualCommitDate,
		OwnerGroupID:      group,
		Status:            defaultStatus(input.Status),
		CreatedBy:         actor.ID,
		UpdatedBy:         actor.ID,
		CreatedAt:         now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPurchaseOrder(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, p.Facts(), nil, p.Snapshot(), actor))
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return p, nil
}

// GetPurchaseOrder loads an order the actor may read.
func (s *Service) GetPurchaseOrder(ctx context.Context, actor access.Actor, id int64) (PurchaseOrder, error) {
	p, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, p.Facts()); err != nil {
		return PurchaseOrder{}, err
	}
	return p, nil
}

// UpdatePurchaseOrder applies a partial update and audits before/after state.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, actor access.Actor, id int64, input UpdatePurchaseOrderInput) (PurchaseOrder, error) {
	before, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return PurchaseOrder{}, err
	}

	p := before
	applyString(&p.PONumber, input.PONumber)
	applyString(&p.AribaPRNumber, input.AribaPRNumber)
	applyString(&p.Supplier, input.Supplier)
	applyString(&p.POType, input.POType)
	if input.StartDate != nil {
		p.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		p.EndDate = input.EndDate
	}
	applyString(&p.TotalAmount, input.TotalAmount)
	applyString(&p.Currency, input.Currency)
	if input.SpendCategory != nil {
		if !budget.ValidSpendCategory(*input.SpendCategory) {
			return PurchaseOrder{}, fmt.Errorf("%w: spend_category must be CAPEX or OPEX", shared.ErrValidation)
		}
		p.SpendCategory = budget.SpendCategory(*input.SpendCategory)
	}
	if input.PlannedCommitDate != nil {
		p.PlannedCommitDate = input.PlannedCommitDate
	}
	if input.ActualCommitDate != nil {
		p.ActualCommitDate = input.ActualCommitDate
	}
	applyString(&p.Status, input.Status)
	if p.PONumber == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: po_number must stay set", shared.ErrValidation)
	}
	if p.TotalAmount != "" && !shared.ValidDecimal(p.TotalAmount) {
		return PurchaseOrder{}, fmt.Errorf("%w: total_amount must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	p.UpdatedBy = actor.ID
	p.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePurchaseOrder(ctx, p); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, p.Facts(), before.Snapshot(), p.Snapshot(), actor))
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return p, nil
}

// DeletePurchaseOrder removes an order.
func (s *Service) DeletePurchaseOrder(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeletePurchaseOrder(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListPurchaseOrders returns the actor-visible orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]PurchaseOrder, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, scope, window)
}

// CreateGoodsReceiptInput describes the creation payload.
type CreateGoodsReceiptInput struct {
	POID        int64
	GRNumber    string
	GRDate      *time.Time
	Amount      string
	Description string
}

// UpdateGoodsReceiptInput carries a partial update; nil fields stay unchanged.
type UpdateGoodsReceiptInput struct {
	GRNumber    *string
	GRDate      *time.Time
	Amount      *string
	Description *string
}

// CreateGoodsReceipt persists a receipt under a purchase order.
func (s *Service) CreateGoodsReceipt(ctx context.Context, actor access.Actor, input CreateGoodsReceiptInput) (GoodsReceipt, error) {
	if input.GRNumber == "" {
		return GoodsReceipt{}, fmt.Errorf("%w: gr_number is required", shared.ErrValidation)
	}
	if input.Amount != "" && !shared.ValidDecimal(input.Amount) {
		return GoodsReceipt{}, fmt.Errorf("%w: amount must be a decimal", shared.ErrValidation)
	}
	if !s.authz.CanCreate(actor, access.RecordGR) {
		return GoodsReceipt{}, shared.ErrForbidden
	}
	group, err := s.owners.OwnerGroup(ctx, access.RecordGR, 0, input.POID)
	if err != nil {
		return GoodsReceipt{}, err
	}

	now := time.Now().UTC()
	g := GoodsReceipt{
		POID:         input.POID,
		GRNumber:     input.GRNumber,
		GRDate:       input.GRDate,
		Amount:       input.Amount,
		Description:  input.Description,
		OwnerGroupID: group,
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
		CreatedAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertGoodsReceipt(ctx, g)
		if err != nil {
			return err
		}
		g.ID = id
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionCreate, g.Facts(), nil, g.Snapshot(), actor))
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	return g, nil
}

// GetGoodsReceipt loads a receipt the actor may read.
func (s *Service) GetGoodsReceipt(ctx context.Context, actor access.Actor, id int64) (GoodsReceipt, error) {
	g, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpRead, g.Facts()); err != nil {
		return GoodsReceipt{}, err
	}
	return g, nil
}

// UpdateGoodsReceipt applies a partial update and audits before/after state.
func (s *Service) UpdateGoodsReceipt(ctx context.Context, actor access.Actor, id int64, input UpdateGoodsReceiptInput) (GoodsReceipt, error) {
	before, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpUpdate, before.Facts()); err != nil {
		return GoodsReceipt{}, err
	}

	g := before
	applyString(&g.GRNumber, input.GRNumber)
	if input.GRDate != nil {
		g.GRDate = input.GRDate
	}
	applyString(&g.Amount, input.Amount)
	applyString(&g.Description, input.Description)
	if g.GRNumber == "" {
		return GoodsReceipt{}, fmt.Errorf("%w: gr_number must stay set", shared.ErrValidation)
	}
	if g.Amount != "" && !shared.ValidDecimal(g.Amount) {
		return GoodsReceipt{}, fmt.Errorf("%w: amount must be a decimal", shared.ErrValidation)
	}
	now := time.Now().UTC()
	g.UpdatedBy = actor.ID
	g.UpdatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateGoodsReceipt(ctx, g); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionUpdate, g.Facts(), before.Snapshot(), g.Snapshot(), actor))
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	return g, nil
}

// DeleteGoodsReceipt removes a receipt.
func (s *Service) DeleteGoodsReceipt(ctx context.Context, actor access.Actor, id int64) error {
	before, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, actor, access.OpDelete, before.Facts()); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteGoodsReceipt(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.event(ctx, audit.ActionDelete, before.Facts(), before.Snapshot(), nil, actor))
	})
}

// ListGoodsReceipts returns the actor-visible receipts.
func (s *Service) ListGoodsReceipts(ctx context.Context, actor access.Actor, window shared.ListWindow) ([]GoodsReceipt, error) {
	scope, err := s.authz.ReadScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListGoodsReceipts(ctx, scope, window)
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
		return "Draft"
	}
	return status
}

func defaultCurrency(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
