package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryExecRepo struct {
	nextID    int64
	wbs       map[int64]WBS
	assets    map[int64]Asset
	orders    map[int64]PurchaseOrder
	receipts  map[int64]GoodsReceipt
	events    []audit.Event
	failAudit bool
}

func newMemoryExecRepo() *memoryExecRepo {
	return &memoryExecRepo{
		wbs:      map[int64]WBS{},
		assets:   map[int64]Asset{},
		orders:   map[int64]PurchaseOrder{},
		receipts: map[int64]GoodsReceipt{},
	}
}

func (m *memoryExecRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	wbs := cloneMap(m.wbs)
	assets := cloneMap(m.assets)
	orders := cloneMap(m.orders)
	receipts := cloneMap(m.receipts)
	events := len(m.events)
	if err := fn(ctx, (*memoryExecTx)(m)); err != nil {
		m.wbs = wbs
		m.assets = assets
		m.orders = orders
		m.receipts = receipts
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryExecRepo) GetWBS(_ context.Context, id int64) (WBS, error) {
	w, ok := m.wbs[id]
	if !ok {
		return WBS{}, shared.ErrNotFound
	}
	return w, nil
}

func (m *memoryExecRepo) ListWBS(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]WBS, error) {
	var out []WBS
	for _, w := range m.wbs {
		if scope.Allows(w.Facts(), nil, time.Now()) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memoryExecRepo) GetAsset(_ context.Context, id int64) (Asset, error) {
	a, ok := m.assets[id]
	if !ok {
		return Asset{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memoryExecRepo) ListAssets(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]Asset, error) {
	var out []Asset
	for _, a := range m.assets {
		if scope.Allows(a.Facts(), nil, time.Now()) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryExecRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	p, ok := m.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryExecRepo) ListPurchaseOrders(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, p := range m.orders {
		if scope.Allows(p.Facts(), nil, time.Now()) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryExecRepo) GetGoodsReceipt(_ context.Context, id int64) (GoodsReceipt, error) {
	g, ok := m.receipts[id]
	if !ok {
		return GoodsReceipt{}, shared.ErrNotFound
	}
	return g, nil
}

func (m *memoryExecRepo) ListGoodsReceipts(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, g := range m.receipts {
		if scope.Allows(g.Facts(), nil, time.Now()) {
			out = append(out, g)
		}
	}
	return out, nil
}

type memoryExecTx memoryExecRepo

func (t *memoryExecTx) InsertWBS(_ context.Context, w WBS) (int64, error) {
	t.nextID++
	w.ID = t.nextID
	t.wbs[w.ID] = w
	return w.ID, nil
}

func (t *memoryExecTx) UpdateWBS(_ context.Context, w WBS) error {
	if _, ok := t.wbs[w.ID]; !ok {
		return shared.ErrNotFound
	}
	t.wbs[w.ID] = w
	return nil
}

func (t *memoryExecTx) DeleteWBS(_ context.Context, id int64) error {
	if _, ok := t.wbs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.wbs, id)
	return nil
}

func (t *memoryExecTx) InsertAsset(_ context.Context, a Asset) (int64, error) {
	t.nextID++
	a.ID = t.nextID
	t.assets[a.ID] = a
	return a.ID, nil
}

func (t *memoryExecTx) UpdateAsset(_ context.Context, a Asset) error {
	if _, ok := t.assets[a.ID]; !ok {
		return shared.ErrNotFound
	}
	t.assets[a.ID] = a
	return nil
}

func (t *memoryExecTx) DeleteAsset(_ context.Context, id int64) error {
	if _, ok := t.assets[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.assets, id)
	return nil
}

func (t *memoryExecTx) InsertPurchaseOrder(_ context.Context, p PurchaseOrder) (int64, error) {
	t.nextID++
	p.ID = t.nextID
	t.orders[p.ID] = p
	return p.ID, nil
}

func (t *memoryExecTx) UpdatePurchaseOrder(_ context.Context, p PurchaseOrder) error {
	if _, ok := t.orders[p.ID]; !ok {
		return shared.ErrNotFound
	}
	t.orders[p.ID] = p
	return nil
}

func (t *memoryExecTx) DeletePurchaseOrder(_ context.Context, id int64) error {
	if _, ok := t.orders[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.orders, id)
	return nil
}

func (t *memoryExecTx) InsertGoodsReceipt(_ context.Context, g GoodsReceipt) (int64, error) {
	t.nextID++
	g.ID = t.nextID
	t.receipts[g.ID] = g
	return g.ID, nil
}

func (t *memoryExecTx) UpdateGoodsReceipt(_ context.Context, g GoodsReceipt) error {
	if _, ok := t.receipts[g.ID]; !ok {
		return shared.ErrNotFound
	}
	t.receipts[g.ID] = g
	return nil
}

func (t *memoryExecTx) DeleteGoodsReceipt(_ context.Context, id int64) error {
	if _, ok := t.receipts[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.receipts, id)
	return nil
}

func (t *memoryExecTx) AppendAudit(_ context.Context, event audit.Event) error {
	if t.failAudit {
		return audit.ErrWriteFailed
	}
	t.events = append(t.events, event)
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type staticMemberships map[int64][]int64

func (s staticMemberships) GroupsFor(_ context.Context, userID int64) ([]int64, error) {
	return s[userID], nil
}

type noGrants struct{}

func (noGrants) GrantsFor(context.Context, string, int64) ([]access.Grant, error) {
	return nil, nil
}

// execParents answers owner-group lookups against the in-memory repo so the
// resolver sees the same parents the service does.
type execParents struct {
	repo       *memoryExecRepo
	lineGroups map[int64]int64
}

func (p execParents) OwnerGroupOf(_ context.Context, recordType string, id int64) (int64, error) {
	switch recordType {
	case access.RecordLineItem:
		group, ok := p.lineGroups[id]
		if !ok {
			return 0, shared.ErrNotFound
		}
		return group, nil
	case access.RecordWBS:
		w, ok := p.repo.wbs[id]
		if !ok {
			return 0, shared.ErrNotFound
		}
		return w.OwnerGroupID, nil
	case access.RecordAsset:
		a, ok := p.repo.assets[id]
		if !ok {
			return 0, shared.ErrNotFound
		}
		return a.OwnerGroupID, nil
	case access.RecordPO:
		o, ok := p.repo.orders[id]
		if !ok {
			return 0, shared.ErrNotFound
		}
		return o.OwnerGroupID, nil
	}
	return 0, shared.ErrNotFound
}

func newTestService(repo *memoryExecRepo, memberships staticMemberships, lineGroups map[int64]int64) *Service {
	authz := access.NewEvaluator(memberships, noGrants{})
	owners := access.NewResolver(execParents{repo: repo, lineGroups: lineGroups})
	return NewService(repo, authz, owners)
}

func TestCreateWBSInheritsOwnerFromLineItem(t *testing.T) {
	repo := newMemoryExecRepo()
	svc := newTestService(repo, staticMemberships{}, map[int64]int64{42: 5})
	actor := access.Actor{ID: 8, Role: access.RoleManager}

	w, err := svc.CreateWBS(context.Background(), actor, CreateWBSInput{
		LineItemID: 42,
		WBSCode:    "WBS-001",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), w.OwnerGroupID)
	require.Equal(t, "Draft", w.Status)

	require.Len(t, repo.events, 1)
	require.Equal(t, access.RecordWBS, repo.events[0].EntityType)
}

func TestCreateWBSMissingParent(t *testing.T) {
	repo := newMemoryExecRepo()
	svc := newTestService(repo, staticMemberships{}, map[int64]int64{})
	actor := access.Actor{ID: 8, Role: access.RoleManager}

	_, err := svc.CreateWBS(context.Background(), actor, CreateWBSInput{
		LineItemID: 42,
		WBSCode:    "WBS-001",
	})
	require.ErrorIs(t, err, shared.ErrParentNotFound)
	require.Empty(t, repo.wbs)
}

func TestCreateWBSRequiresManager(t *testing.T) {
	repo := newMemoryExecRepo()
	svc := newTestService(repo, staticMemberships{}, map[int64]int64{42: 5})

	_, err := svc.CreateWBS(context.Background(), access.Actor{ID: 8, Role: access.RoleUser}, CreateWBSInput{
		LineItemID: 42,
		WBSCode:    "WBS-001",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestOwnershipPropagatesDownTheChain(t *testing.T) {
	repo := newMemoryExecRepo()
	svc := newTestService(repo, staticMemberships{}, map[int64]int64{42: 5})
	actor := access.Actor{ID: 8, Role: access.RoleManager}
	ctx := context.Background()

	w, err := svc.CreateWBS(ctx, actor, CreateWBSInput{LineItemID: 42, WBSCode: "WBS-001"})
	require.NoError(t, err)

	a, err := svc.CreateAsset(ctx, actor, CreateAssetInput{WBSID: w.ID, AssetCode: "AST-001"})
	require.NoError(t, err)
	require.Equal(t, int64(5), a.OwnerGroupID)

	p, err := svc.CreatePurchaseOrder(ctx, actor, CreatePurchaseOrderInput{
		AssetID:       a.ID,
		PONumber:      "PO-001",
		SpendCategory: "CAPEX",
		TotalAmount:   "9999.99",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), p.OwnerGroupID)
	require.Equal(t, "USD", p.Currency)

	g, err := svc.CreateGoodsReceipt(ctx, actor, CreateGoodsReceiptInput{
		POID:     p.ID,
		GRNumber: "GR-001",
		Amount:   "4999.99",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), g.OwnerGroupID)

	require.Len(t, repo.events, 4)
}

func TestUpdateAssetKeepsOwnerGroup(t *testing.T) {
	repo := newMemoryExecRepo()
	repo.nextID = 1
	repo.assets[1] = Asset{ID: 1, WBSID: 9, AssetCode: "AST-001", OwnerGroupID: 5, CreatedBy: 8}
	svc := newTestService(repo, staticMemberships{8: {5}}, nil)

	code := "AST-002"
	a, err := svc.UpdateAsset(context.Background(), access.Actor{ID: 8, Role: access.RoleUser}, 1, UpdateAssetInput{AssetCode: &code})
	require.NoError(t, err)
	require.Equal(t, "AST-002", a.AssetCode)
	require.Equal(t, int64(5), a.OwnerGroupID)
}

func TestCreatePurchaseOrderRejectsBadCategory(t *testing.T) {
	repo := newMemoryExecRepo()
	repo.nextID = 1
	repo.assets[1] = Asset{ID: 1, WBSID: 9, AssetCode: "AST-001", OwnerGroupID: 5, CreatedBy: 8}
	svc := newTestService(repo, staticMemberships{}, nil)

	_, err := svc.CreatePurchaseOrder(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreatePurchaseOrderInput{
		AssetID:       1,
		PONumber:      "PO-001",
		SpendCategory: "MIXED",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAuditFailureRollsBackGoodsReceipt(t *testing.T) {
	repo := newMemoryExecRepo()
	repo.nextID = 1
	repo.orders[1] = PurchaseOrder{ID: 1, AssetID: 9, PONumber: "PO-001", OwnerGroupID: 5, CreatedBy: 8}
	repo.failAudit = true
	svc := newTestService(repo, staticMemberships{}, nil)

	_, err := svc.CreateGoodsReceipt(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateGoodsReceiptInput{
		POID:     1,
		GRNumber: "GR-001",
	})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Empty(t, repo.receipts)
}
