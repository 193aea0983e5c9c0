package resources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryResourceRepo struct {
	nextID      int64
	resources   map[int64]Resource
	allocations map[int64]Allocation
	poIDs       map[int64]bool
	events      []audit.Event
	failAudit   bool
}

func newMemoryResourceRepo() *memoryResourceRepo {
	return &memoryResourceRepo{
		resources:   map[int64]Resource{},
		allocations: map[int64]Allocation{},
		poIDs:       map[int64]bool{},
	}
}

func (m *memoryResourceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	resources := cloneMap(m.resources)
	allocations := cloneMap(m.allocations)
	events := len(m.events)
	if err := fn(ctx, (*memoryResourceTx)(m)); err != nil {
		m.resources = resources
		m.allocations = allocations
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryResourceRepo) GetResource(_ context.Context, id int64) (Resource, error) {
	res, ok := m.resources[id]
	if !ok {
		return Resource{}, shared.ErrNotFound
	}
	return res, nil
}

func (m *memoryResourceRepo) ListResources(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]Resource, error) {
	var out []Resource
	for _, res := range m.resources {
		if scope.Allows(res.Facts(), nil, time.Now()) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *memoryResourceRepo) GetAllocation(_ context.Context, id int64) (Allocation, error) {
	alloc, ok := m.allocations[id]
	if !ok {
		return Allocation{}, shared.ErrNotFound
	}
	return alloc, nil
}

func (m *memoryResourceRepo) ListAllocations(_ context.Context, scope access.Scope, _ shared.ListWindow) ([]Allocation, error) {
	var out []Allocation
	for _, alloc := range m.allocations {
		if scope.Allows(alloc.Facts(), nil, time.Now()) {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (m *memoryResourceRepo) PurchaseOrderExists(_ context.Context, id int64) (bool, error) {
	return m.poIDs[id], nil
}

type memoryResourceTx memoryResourceRepo

func (t *memoryResourceTx) InsertResource(_ context.Context, res Resource) (int64, error) {
	t.nextID++
	res.ID = t.nextID
	t.resources[res.ID] = res
	return res.ID, nil
}

func (t *memoryResourceTx) UpdateResource(_ context.Context, res Resource) error {
	if _, ok := t.resources[res.ID]; !ok {
		return shared.ErrNotFound
	}
	t.resources[res.ID] = res
	return nil
}

func (t *memoryResourceTx) DeleteResource(_ context.Context, id int64) error {
	if _, ok := t.resources[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.resources, id)
	return nil
}

func (t *memoryResourceTx) InsertAllocation(_ context.Context, alloc Allocation) (int64, error) {
	t.nextID++
	alloc.ID = t.nextID
	t.allocations[alloc.ID] = alloc
	return alloc.ID, nil
}

func (t *memoryResourceTx) UpdateAllocation(_ context.Context, alloc Allocation) error {
	if _, ok := t.allocations[alloc.ID]; !ok {
		return shared.ErrNotFound
	}
	t.allocations[alloc.ID] = alloc
	return nil
}

func (t *memoryResourceTx) DeleteAllocation(_ context.Context, id int64) error {
	if _, ok := t.allocations[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.allocations, id)
	return nil
}

func (t *memoryResourceTx) AppendAudit(_ context.Context, event audit.Event) error {
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

type resourceParents struct {
	repo *memoryResourceRepo
}

func (p resourceParents) OwnerGroupOf(_ context.Context, recordType string, id int64) (int64, error) {
	if recordType != access.RecordResource {
		return 0, shared.ErrNotFound
	}
	res, ok := p.repo.resources[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return res.OwnerGroupID, nil
}

func newTestService(repo *memoryResourceRepo, memberships staticMemberships) *Service {
	authz := access.NewEvaluator(memberships, noGrants{})
	owners := access.NewResolver(resourceParents{repo: repo})
	return NewService(repo, authz, owners)
}

func TestCreateResourceRequiresManager(t *testing.T) {
	repo := newMemoryResourceRepo()
	svc := newTestService(repo, staticMemberships{})

	_, err := svc.CreateResource(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, CreateResourceInput{
		Name:         "Contractor A",
		OwnerGroupID: 3,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	res, err := svc.CreateResource(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateResourceInput{
		Name:         "Contractor A",
		CostPerMonth: "12500.00",
		OwnerGroupID: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "12500.00", res.CostPerMonth)
	require.Equal(t, "Active", res.Status)
}

func TestCreateAllocationInheritsFromResource(t *testing.T) {
	repo := newMemoryResourceRepo()
	repo.nextID = 1
	repo.resources[1] = Resource{ID: 1, Name: "Contractor A", OwnerGroupID: 5, CreatedBy: 8}
	repo.poIDs[40] = true
	svc := newTestService(repo, staticMemberships{})

	alloc, err := svc.CreateAllocation(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateAllocationInput{
		ResourceID:          1,
		POID:                40,
		ExpectedMonthlyBurn: "9000",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), alloc.OwnerGroupID)

	require.Len(t, repo.events, 1)
	require.Equal(t, access.RecordAllocation, repo.events[0].EntityType)
}

func TestCreateAllocationMissingParents(t *testing.T) {
	repo := newMemoryResourceRepo()
	svc := newTestService(repo, staticMemberships{})
	actor := access.Actor{ID: 8, Role: access.RoleManager}

	_, err := svc.CreateAllocation(context.Background(), actor, CreateAllocationInput{ResourceID: 1, POID: 40})
	require.ErrorIs(t, err, shared.ErrParentNotFound)

	repo.nextID = 1
	repo.resources[1] = Resource{ID: 1, Name: "Contractor A", OwnerGroupID: 5, CreatedBy: 8}
	_, err = svc.CreateAllocation(context.Background(), actor, CreateAllocationInput{ResourceID: 1, POID: 40})
	require.ErrorIs(t, err, shared.ErrParentNotFound)
}

func TestAuditFailureRollsBackResourceDelete(t *testing.T) {
	repo := newMemoryResourceRepo()
	repo.nextID = 1
	repo.resources[1] = Resource{ID: 1, Name: "Contractor A", OwnerGroupID: 5, CreatedBy: 8}
	repo.failAudit = true
	svc := newTestService(repo, staticMemberships{})

	err := svc.DeleteResource(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, 1)
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Len(t, repo.resources, 1)
}
