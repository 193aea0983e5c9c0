package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryBudgetRepo struct {
	nextID    int64
	items     map[int64]BudgetItem
	cases     map[int64]BusinessCase
	lines     map[int64]LineItem
	events    []audit.Event
	failAudit bool
}

func newMemoryBudgetRepo() *memoryBudgetRepo {
	return &memoryBudgetRepo{
		items: map[int64]BudgetItem{},
		cases: map[int64]BusinessCase{},
		lines: map[int64]LineItem{},
	}
}

// WithTx snapshots state up front and restores it when fn fails, mirroring
// the rollback the SQL repository gets from the database.
func (m *memoryBudgetRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	items := cloneMap(m.items)
	cases := cloneMap(m.cases)
	lines := cloneMap(m.lines)
	events := len(m.events)
	if err := fn(ctx, (*memoryBudgetTx)(m)); err != nil {
		m.items = items
		m.cases = cases
		m.lines = lines
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryBudgetRepo) GetBudgetItem(_ context.Context, id int64) (BudgetItem, error) {
	item, ok := m.items[id]
	if !ok {
		return BudgetItem{}, shared.ErrNotFound
	}
	return item, nil
}

func (m *memoryBudgetRepo) ListBudgetItems(_ context.Context, scope access.Scope, window shared.ListWindow) ([]BudgetItem, error) {
	var out []BudgetItem
	for _, item := range m.items {
		if scope.Allows(item.Facts(), nil, time.Now()) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryBudgetRepo) GetBusinessCase(_ context.Context, id int64) (BusinessCase, error) {
	bc, ok := m.cases[id]
	if !ok {
		return BusinessCase{}, shared.ErrNotFound
	}
	return bc, nil
}

func (m *memoryBudgetRepo) ListBusinessCases(_ context.Context, scope access.Scope, window shared.ListWindow) ([]BusinessCase, error) {
	var out []BusinessCase
	for _, bc := range m.cases {
		if scope.Allows(bc.Facts(), nil, time.Now()) {
			out = append(out, bc)
		}
	}
	return out, nil
}

func (m *memoryBudgetRepo) GetLineItem(_ context.Context, id int64) (LineItem, error) {
	line, ok := m.lines[id]
	if !ok {
		return LineItem{}, shared.ErrNotFound
	}
	return line, nil
}

func (m *memoryBudgetRepo) ListLineItems(_ context.Context, scope access.Scope, window shared.ListWindow) ([]LineItem, error) {
	var out []LineItem
	for _, line := range m.lines {
		if scope.Allows(line.Facts(), nil, time.Now()) {
			out = append(out, line)
		}
	}
	return out, nil
}

type memoryBudgetTx memoryBudgetRepo

func (t *memoryBudgetTx) InsertBudgetItem(_ context.Context, item BudgetItem) (int64, error) {
	t.nextID++
	item.ID = t.nextID
	t.items[item.ID] = item
	return item.ID, nil
}

func (t *memoryBudgetTx) UpdateBudgetItem(_ context.Context, item BudgetItem) error {
	if _, ok := t.items[item.ID]; !ok {
		return shared.ErrNotFound
	}
	t.items[item.ID] = item
	return nil
}

func (t *memoryBudgetTx) DeleteBudgetItem(_ context.Context, id int64) error {
	if _, ok := t.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.items, id)
	return nil
}

func (t *memoryBudgetTx) InsertBusinessCase(_ context.Context, bc BusinessCase) (int64, error) {
	t.nextID++
	bc.ID = t.nextID
	t.cases[bc.ID] = bc
	return bc.ID, nil
}

func (t *memoryBudgetTx) UpdateBusinessCase(_ context.Context, bc BusinessCase) error {
	if _, ok := t.cases[bc.ID]; !ok {
		return shared.ErrNotFound
	}
	t.cases[bc.ID] = bc
	return nil
}

func (t *memoryBudgetTx) DeleteBusinessCase(_ context.Context, id int64) error {
	if _, ok := t.cases[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.cases, id)
	return nil
}

func (t *memoryBudgetTx) InsertLineItem(_ context.Context, line LineItem) (int64, error) {
	t.nextID++
	line.ID = t.nextID
	t.lines[line.ID] = line
	return line.ID, nil
}

func (t *memoryBudgetTx) UpdateLineItem(_ context.Context, line LineItem) error {
	if _, ok := t.lines[line.ID]; !ok {
		return shared.ErrNotFound
	}
	t.lines[line.ID] = line
	return nil
}

func (t *memoryBudgetTx) DeleteLineItem(_ context.Context, id int64) error {
	if _, ok := t.lines[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.lines, id)
	return nil
}

func (t *memoryBudgetTx) AppendAudit(_ context.Context, event audit.Event) error {
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

type staticGrants []access.Grant

func (s staticGrants) GrantsFor(_ context.Context, recordType string, recordID int64) ([]access.Grant, error) {
	var out []access.Grant
	for _, g := range s {
		if g.RecordType == recordType && g.RecordID == recordID {
			out = append(out, g)
		}
	}
	return out, nil
}

type noParents struct{}

func (noParents) OwnerGroupOf(context.Context, string, int64) (int64, error) {
	return 0, shared.ErrNotFound
}

func newTestService(repo *memoryBudgetRepo, memberships staticMemberships, grants staticGrants) *Service {
	return NewService(repo, access.NewEvaluator(memberships, grants), access.NewResolver(noParents{}))
}

func TestCreateBudgetItemRecordsCreatorAndAudit(t *testing.T) {
	repo := newMemoryBudgetRepo()
	svc := newTestService(repo, staticMemberships{}, nil)
	actor := access.Actor{ID: 7, Role: access.RoleUser}

	item, err := svc.CreateBudgetItem(context.Background(), actor, CreateBudgetItemInput{
		WorkdayRef:   "WD-1001",
		Title:        "Line upgrades",
		BudgetAmount: "125000.50",
		Currency:     "EUR",
		FiscalYear:   2026,
		OwnerGroupID: 3,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), item.CreatedBy)
	require.Equal(t, int64(3), item.OwnerGroupID)
	require.Equal(t, "125000.50", item.BudgetAmount)

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	require.Equal(t, audit.ActionCreate, event.Action)
	require.Equal(t, access.RecordBudgetItem, event.EntityType)
	require.Equal(t, item.ID, event.EntityID)
	require.Nil(t, event.Before)
	amount, ok := event.After.Get("budget_amount")
	require.True(t, ok)
	require.Equal(t, "125000.50", amount)
}

func TestCreateBudgetItemRejectsBadAmount(t *testing.T) {
	repo := newMemoryBudgetRepo()
	svc := newTestService(repo, staticMemberships{}, nil)
	actor := access.Actor{ID: 7, Role: access.RoleUser}

	_, err := svc.CreateBudgetItem(context.Background(), actor, CreateBudgetItemInput{
		WorkdayRef:   "WD-1001",
		Title:        "Line upgrades",
		BudgetAmount: "1,25",
		Currency:     "EUR",
		FiscalYear:   2026,
		OwnerGroupID: 3,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.items)
}

func TestCreateBusinessCaseRequiresManager(t *testing.T) {
	repo := newMemoryBudgetRepo()
	svc := newTestService(repo, staticMemberships{}, nil)

	_, err := svc.CreateBusinessCase(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, CreateBusinessCaseInput{
		Title:        "New packaging hall",
		OwnerGroupID: 3,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	bc, err := svc.CreateBusinessCase(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateBusinessCaseInput{
		Title:        "New packaging hall",
		OwnerGroupID: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "Draft", bc.Status)
}

func TestGetBudgetItemHidesUnreadableRecords(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 1
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "t", BudgetAmount: "10", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	svc := newTestService(repo, staticMemberships{9: {5}}, nil)

	_, err := svc.GetBudgetItem(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	item, err := svc.GetBudgetItem(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), item.ID)
}

func TestUpdateBudgetItemByGroupMember(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 1
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "Original", BudgetAmount: "10", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	svc := newTestService(repo, staticMemberships{9: {3}}, nil)

	title := "Renamed"
	item, err := svc.UpdateBudgetItem(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, 1, UpdateBudgetItemInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Renamed", item.Title)
	require.Equal(t, int64(9), item.UpdatedBy)

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	require.Equal(t, audit.ActionUpdate, event.Action)
	before, _ := event.Before.Get("title")
	after, _ := event.After.Get("title")
	require.Equal(t, "Original", before)
	require.Equal(t, "Renamed", after)
}

func TestDeleteBudgetItemNeedsManagerForGroupMembers(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 1
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "t", BudgetAmount: "10", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	svc := newTestService(repo, staticMemberships{9: {3}, 10: {3}}, nil)

	err := svc.DeleteBudgetItem(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, 1)
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = svc.DeleteBudgetItem(context.Background(), access.Actor{ID: 10, Role: access.RoleManager}, 1)
	require.NoError(t, err)
	require.Empty(t, repo.items)

	require.Len(t, repo.events, 1)
	require.Equal(t, audit.ActionDelete, repo.events[0].Action)
	require.Nil(t, repo.events[0].After)
}

func TestGrantOpensReadPath(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 1
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "t", BudgetAmount: "10", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	expired := time.Now().Add(-time.Hour)
	grants := staticGrants{
		{RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 9, Level: access.LevelRead},
		{RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 11, Level: access.LevelRead, ExpiresAt: &expired},
	}
	svc := newTestService(repo, staticMemberships{}, grants)

	_, err := svc.GetBudgetItem(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, 1)
	require.NoError(t, err)

	// A read grant does not cover update.
	title := "x"
	_, err = svc.UpdateBudgetItem(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, 1, UpdateBudgetItemInput{Title: &title})
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Expired grants are dead.
	_, err = svc.GetBudgetItem(context.Background(), access.Actor{ID: 11, Role: access.RoleUser}, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAuditFailureRollsBackCreate(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.failAudit = true
	svc := newTestService(repo, staticMemberships{}, nil)

	_, err := svc.CreateBudgetItem(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, CreateBudgetItemInput{
		WorkdayRef:   "WD-1001",
		Title:        "Line upgrades",
		BudgetAmount: "100",
		Currency:     "EUR",
		FiscalYear:   2026,
		OwnerGroupID: 3,
	})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Empty(t, repo.items)
	require.Empty(t, repo.events)
}

func TestAuditFailureRollsBackUpdate(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 1
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "Original", BudgetAmount: "10", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	repo.failAudit = true
	svc := newTestService(repo, staticMemberships{}, nil)

	title := "Renamed"
	_, err := svc.UpdateBudgetItem(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, 1, UpdateBudgetItemInput{Title: &title})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Equal(t, "Original", repo.items[1].Title)
}

func TestCreateLineItemChecksParents(t *testing.T) {
	repo := newMemoryBudgetRepo()
	svc := newTestService(repo, staticMemberships{}, nil)
	actor := access.Actor{ID: 7, Role: access.RoleUser}

	_, err := svc.CreateLineItem(context.Background(), actor, CreateLineItemInput{
		BusinessCaseID:  99,
		BudgetItemID:    98,
		OwnerGroupID:    3,
		Title:           "Servers",
		SpendCategory:   "CAPEX",
		RequestedAmount: "5000",
		Currency:        "EUR",
	})
	require.ErrorIs(t, err, shared.ErrParentNotFound)

	repo.nextID = 2
	repo.cases[1] = BusinessCase{ID: 1, Title: "case", OwnerGroupID: 3, CreatedBy: 7}
	repo.items[2] = BudgetItem{ID: 2, WorkdayRef: "WD-2", Title: "item", BudgetAmount: "1", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}

	line, err := svc.CreateLineItem(context.Background(), actor, CreateLineItemInput{
		BusinessCaseID:  1,
		BudgetItemID:    2,
		OwnerGroupID:    4,
		Title:           "Servers",
		SpendCategory:   "CAPEX",
		RequestedAmount: "5000",
		Currency:        "EUR",
	})
	require.NoError(t, err)
	// The line item's owner group is its own, not a parent's.
	require.Equal(t, int64(4), line.OwnerGroupID)
}

func TestListBudgetItemsScopedToVisibility(t *testing.T) {
	repo := newMemoryBudgetRepo()
	repo.nextID = 3
	repo.items[1] = BudgetItem{ID: 1, WorkdayRef: "WD-1", Title: "mine", BudgetAmount: "1", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 3, CreatedBy: 7}
	repo.items[2] = BudgetItem{ID: 2, WorkdayRef: "WD-2", Title: "group", BudgetAmount: "1", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 5, CreatedBy: 8}
	repo.items[3] = BudgetItem{ID: 3, WorkdayRef: "WD-3", Title: "hidden", BudgetAmount: "1", Currency: "EUR", FiscalYear: 2026, OwnerGroupID: 9, CreatedBy: 8}
	svc := newTestService(repo, staticMemberships{7: {5}}, nil)

	items, err := svc.ListBudgetItems(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, shared.NewListWindow(0, 0))
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = svc.ListBudgetItems(context.Background(), access.Actor{ID: 1, Role: access.RoleAdmin}, shared.NewListWindow(0, 0))
	require.NoError(t, err)
	require.Len(t, items, 3)
}
