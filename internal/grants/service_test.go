package grants

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryGrantRepo struct {
	nextID    int64
	grants    map[int64]access.Grant
	events    []audit.Event
	failAudit bool
}

func newMemoryGrantRepo() *memoryGrantRepo {
	return &memoryGrantRepo{grants: map[int64]access.Grant{}}
}

func (m *memoryGrantRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	grants := make(map[int64]access.Grant, len(m.grants))
	for k, v := range m.grants {
		grants[k] = v
	}
	events := len(m.events)
	if err := fn(ctx, (*memoryGrantTx)(m)); err != nil {
		m.grants = grants
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryGrantRepo) GetGrant(_ context.Context, id int64) (access.Grant, error) {
	g, ok := m.grants[id]
	if !ok {
		return access.Grant{}, shared.ErrNotFound
	}
	return g, nil
}

func (m *memoryGrantRepo) ListGrants(_ context.Context, recordType string, recordID int64) ([]access.Grant, error) {
	var out []access.Grant
	for _, g := range m.grants {
		if g.RecordType == recordType && g.RecordID == recordID {
			out = append(out, g)
		}
	}
	return out, nil
}

type memoryGrantTx memoryGrantRepo

func (t *memoryGrantTx) InsertGrant(_ context.Context, g access.Grant) (int64, error) {
	t.nextID++
	g.ID = t.nextID
	t.grants[g.ID] = g
	return g.ID, nil
}

func (t *memoryGrantTx) UpdateGrant(_ context.Context, g access.Grant) error {
	if _, ok := t.grants[g.ID]; !ok {
		return shared.ErrNotFound
	}
	t.grants[g.ID] = g
	return nil
}

func (t *memoryGrantTx) DeleteGrant(_ context.Context, id int64) error {
	if _, ok := t.grants[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.grants, id)
	return nil
}

func (t *memoryGrantTx) AppendAudit(_ context.Context, event audit.Event) error {
	if t.failAudit {
		return audit.ErrWriteFailed
	}
	t.events = append(t.events, event)
	return nil
}

type staticFacts map[string]access.OwnerFacts

func factsKey(recordType string, id int64) string {
	return recordType + "/" + strconv.FormatInt(id, 10)
}

func (s staticFacts) FactsOf(_ context.Context, recordType string, id int64) (access.OwnerFacts, error) {
	facts, ok := s[factsKey(recordType, id)]
	if !ok {
		return access.OwnerFacts{}, shared.ErrNotFound
	}
	return facts, nil
}

type staticMemberships map[int64][]int64

func (s staticMemberships) GroupsFor(_ context.Context, userID int64) ([]int64, error) {
	return s[userID], nil
}

func (m *memoryGrantRepo) GrantsFor(ctx context.Context, recordType string, recordID int64) ([]access.Grant, error) {
	return m.ListGrants(ctx, recordType, recordID)
}

func newTestService(repo *memoryGrantRepo, facts staticFacts, memberships staticMemberships) *Service {
	authz := access.NewEvaluator(memberships, repo)
	return NewService(repo, facts, authz)
}

func TestShareByCreator(t *testing.T) {
	repo := newMemoryGrantRepo()
	facts := staticFacts{
		factsKey(access.RecordBudgetItem, 1): {RecordType: access.RecordBudgetItem, RecordID: 1, OwnerGroupID: 3, CreatedBy: 7},
	}
	svc := newTestService(repo, facts, staticMemberships{})

	g, err := svc.Share(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, ShareInput{
		RecordType: access.RecordBudgetItem,
		RecordID:   1,
		UserID:     9,
		Level:      "Read",
	})
	require.NoError(t, err)
	require.Equal(t, access.LevelRead, g.Level)
	require.Equal(t, int64(7), g.GrantedBy)

	require.Len(t, repo.events, 1)
	require.Equal(t, "record_access", repo.events[0].EntityType)
}

func TestShareDeniedWithoutStanding(t *testing.T) {
	repo := newMemoryGrantRepo()
	facts := staticFacts{
		factsKey(access.RecordBudgetItem, 1): {RecordType: access.RecordBudgetItem, RecordID: 1, OwnerGroupID: 3, CreatedBy: 7},
	}
	// Member of the owner group, but not a manager: can read, cannot share.
	svc := newTestService(repo, facts, staticMemberships{9: {3}})

	_, err := svc.Share(context.Background(), access.Actor{ID: 9, Role: access.RoleUser}, ShareInput{
		RecordType: access.RecordBudgetItem,
		RecordID:   1,
		UserID:     11,
		Level:      "Read",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	// A stranger gets NotFound so the record is not leaked.
	_, err = svc.Share(context.Background(), access.Actor{ID: 12, Role: access.RoleUser}, ShareInput{
		RecordType: access.RecordBudgetItem,
		RecordID:   1,
		UserID:     11,
		Level:      "Read",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestShareByGroupManager(t *testing.T) {
	repo := newMemoryGrantRepo()
	facts := staticFacts{
		factsKey(access.RecordBusinessCase, 4): {RecordType: access.RecordBusinessCase, RecordID: 4, OwnerGroupID: 3, CreatedBy: 7},
	}
	svc := newTestService(repo, facts, staticMemberships{8: {3}})

	_, err := svc.Share(context.Background(), access.Actor{ID: 8, Role: access.RoleManager}, ShareInput{
		RecordType: access.RecordBusinessCase,
		RecordID:   4,
		GroupID:    6,
		Level:      "Write",
	})
	require.NoError(t, err)
}

func TestShareValidatesTarget(t *testing.T) {
	repo := newMemoryGrantRepo()
	facts := staticFacts{
		factsKey(access.RecordBudgetItem, 1): {RecordType: access.RecordBudgetItem, RecordID: 1, OwnerGroupID: 3, CreatedBy: 7},
	}
	svc := newTestService(repo, facts, staticMemberships{})
	actor := access.Actor{ID: 7, Role: access.RoleUser}

	_, err := svc.Share(context.Background(), actor, ShareInput{
		RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 9, GroupID: 6, Level: "Read",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Share(context.Background(), actor, ShareInput{
		RecordType: access.RecordBudgetItem, RecordID: 1, Level: "Read",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Share(context.Background(), actor, ShareInput{
		RecordType: "mystery", RecordID: 1, UserID: 9, Level: "Read",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Share(context.Background(), actor, ShareInput{
		RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 9, Level: "Owner",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRevokeAuditsBeforeState(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.nextID = 1
	repo.grants[1] = access.Grant{ID: 1, RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 9, Level: access.LevelRead, GrantedBy: 7}
	facts := staticFacts{
		factsKey(access.RecordBudgetItem, 1): {RecordType: access.RecordBudgetItem, RecordID: 1, OwnerGroupID: 3, CreatedBy: 7},
	}
	svc := newTestService(repo, facts, staticMemberships{})

	require.NoError(t, svc.Revoke(context.Background(), access.Actor{ID: 1, Role: access.RoleAdmin}, 1))
	require.Empty(t, repo.grants)

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	require.Equal(t, audit.ActionDelete, event.Action)
	level, ok := event.Before.Get("access_level")
	require.True(t, ok)
	require.Equal(t, "Read", level)
}

func TestUpdateGrantLevel(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.nextID = 1
	repo.grants[1] = access.Grant{ID: 1, RecordType: access.RecordBudgetItem, RecordID: 1, UserID: 9, Level: access.LevelRead, GrantedBy: 7}
	facts := staticFacts{
		factsKey(access.RecordBudgetItem, 1): {RecordType: access.RecordBudgetItem, RecordID: 1, OwnerGroupID: 3, CreatedBy: 7},
	}
	svc := newTestService(repo, facts, staticMemberships{})

	level := "Full"
	g, err := svc.Update(context.Background(), access.Actor{ID: 7, Role: access.RoleUser}, 1, UpdateInput{Level: &level})
	require.NoError(t, err)
	require.Equal(t, access.LevelFull, g.Level)
	require.Equal(t, int64(7), g.UpdatedBy)
}
