package groups

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryGroupRepo struct {
	nextID      int64
	groups      map[int64]Group
	memberships map[int64]Membership
	events      []audit.Event
	failAudit   bool
}

func newMemoryGroupRepo() *memoryGroupRepo {
	return &memoryGroupRepo{groups: map[int64]Group{}, memberships: map[int64]Membership{}}
}

func (m *memoryGroupRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	groups := cloneMap(m.groups)
	memberships := cloneMap(m.memberships)
	events := len(m.events)
	if err := fn(ctx, (*memoryGroupTx)(m)); err != nil {
		m.groups = groups
		m.memberships = memberships
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryGroupRepo) GetGroup(_ context.Context, id int64) (Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	return g, nil
}

func (m *memoryGroupRepo) ListGroups(_ context.Context, _ shared.ListWindow) ([]Group, error) {
	var out []Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *memoryGroupRepo) GetMembership(_ context.Context, groupID, userID int64) (Membership, error) {
	for _, mem := range m.memberships {
		if mem.GroupID == groupID && mem.UserID == userID {
			return mem, nil
		}
	}
	return Membership{}, shared.ErrNotFound
}

func (m *memoryGroupRepo) ListMembers(_ context.Context, groupID int64) ([]Membership, error) {
	var out []Membership
	for _, mem := range m.memberships {
		if mem.GroupID == groupID {
			out = append(out, mem)
		}
	}
	return out, nil
}

type memoryGroupTx memoryGroupRepo

func (t *memoryGroupTx) InsertGroup(_ context.Context, g Group) (int64, error) {
	for _, existing := range t.groups {
		if existing.Name == g.Name {
			return 0, shared.ErrDuplicate
		}
	}
	t.nextID++
	g.ID = t.nextID
	t.groups[g.ID] = g
	return g.ID, nil
}

func (t *memoryGroupTx) UpdateGroup(_ context.Context, g Group) error {
	if _, ok := t.groups[g.ID]; !ok {
		return shared.ErrNotFound
	}
	t.groups[g.ID] = g
	return nil
}

func (t *memoryGroupTx) DeleteGroup(_ context.Context, id int64) error {
	if _, ok := t.groups[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.groups, id)
	return nil
}

func (t *memoryGroupTx) InsertMembership(_ context.Context, m Membership) (int64, error) {
	for _, existing := range t.memberships {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return 0, shared.ErrDuplicate
		}
	}
	t.nextID++
	m.ID = t.nextID
	t.memberships[m.ID] = m
	return m.ID, nil
}

func (t *memoryGroupTx) DeleteMembership(_ context.Context, groupID, userID int64) error {
	for id, mem := range t.memberships {
		if mem.GroupID == groupID && mem.UserID == userID {
			delete(t.memberships, id)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryGroupTx) AppendAudit(_ context.Context, event audit.Event) error {
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

func newTestService(repo *memoryGroupRepo) *Service {
	return NewService(repo, access.NewEvaluator(staticMemberships{}, noGrants{}))
}

func TestCreateGroupRequiresManager(t *testing.T) {
	repo := newMemoryGroupRepo()
	svc := newTestService(repo)

	_, err := svc.CreateGroup(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, CreateGroupInput{Name: "Platform"})
	require.ErrorIs(t, err, shared.ErrForbidden)

	g, err := svc.CreateGroup(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateGroupInput{Name: "Platform"})
	require.NoError(t, err)
	require.Equal(t, int64(8), g.CreatedBy)

	_, err = svc.CreateGroup(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateGroupInput{Name: "Platform"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestAddAndRemoveMemberRecordsActor(t *testing.T) {
	repo := newMemoryGroupRepo()
	repo.nextID = 1
	repo.groups[1] = Group{ID: 1, Name: "Platform", CreatedBy: 8}
	svc := newTestService(repo)
	manager := access.Actor{ID: 8, Role: access.RoleManager}

	m, err := svc.AddMember(context.Background(), manager, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(8), m.AddedBy)

	_, err = svc.AddMember(context.Background(), manager, 1, 7)
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.AddMember(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, 1, 9)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.RemoveMember(context.Background(), manager, 1, 7))
	require.Empty(t, repo.memberships)

	// create + delete of the membership, both audited
	require.Len(t, repo.events, 2)
	require.Equal(t, "user_group_membership", repo.events[0].EntityType)
	require.Equal(t, audit.ActionDelete, repo.events[1].Action)
}

func TestGroupsVisibleToAllAuthenticated(t *testing.T) {
	repo := newMemoryGroupRepo()
	repo.nextID = 2
	repo.groups[1] = Group{ID: 1, Name: "Platform", CreatedBy: 8}
	repo.groups[2] = Group{ID: 2, Name: "Finance", CreatedBy: 9}
	svc := newTestService(repo)

	out, err := svc.ListGroups(context.Background(), access.Actor{ID: 7, Role: access.RoleViewer}, shared.NewListWindow(0, 0))
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestAuditFailureRollsBackGroupCreate(t *testing.T) {
	repo := newMemoryGroupRepo()
	repo.failAudit = true
	svc := newTestService(repo)

	_, err := svc.CreateGroup(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, CreateGroupInput{Name: "Platform"})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Empty(t, repo.groups)
}
