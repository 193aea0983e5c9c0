package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capline-erp/capline/internal/shared"
)

type staticMemberships map[int64][]int64

func (s staticMemberships) GroupsFor(_ context.Context, userID int64) ([]int64, error) {
	return s[userID], nil
}

type staticGrants []Grant

func (s staticGrants) GrantsFor(_ context.Context, _ string, _ int64) ([]Grant, error) {
	return s, nil
}

func TestDecidePrecedence(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	facts := OwnerFacts{RecordType: RecordBudgetItem, RecordID: 10, OwnerGroupID: 3, CreatedBy: 7}

	cases := []struct {
		name   string
		actor  Actor
		op     Operation
		groups []int64
		grants []Grant
		want   bool
	}{
		{"admin may delete anything", Actor{ID: 99, Role: RoleAdmin}, OpDelete, nil, nil, true},
		{"creator may update", Actor{ID: 7, Role: RoleUser}, OpUpdate, nil, nil, true},
		{"creator may delete", Actor{ID: 7, Role: RoleUser}, OpDelete, nil, nil, true},
		{"group member may read", Actor{ID: 8, Role: RoleUser}, OpRead, []int64{3}, nil, true},
		{"group member may update", Actor{ID: 8, Role: RoleUser}, OpUpdate, []int64{3}, nil, true},
		{"group member below manager may not delete", Actor{ID: 8, Role: RoleUser}, OpDelete, []int64{3}, nil, false},
		{"group manager may delete", Actor{ID: 8, Role: RoleManager}, OpDelete, []int64{3}, nil, true},
		{"stranger denied", Actor{ID: 12, Role: RoleUser}, OpRead, nil, nil, false},
		{"viewer in group may read", Actor{ID: 8, Role: RoleViewer}, OpRead, []int64{3}, nil, true},
		{
			"read grant opens read",
			Actor{ID: 12, Role: RoleUser}, OpRead, nil,
			[]Grant{{UserID: 12, Level: LevelRead}}, true,
		},
		{
			"read grant does not cover update",
			Actor{ID: 12, Role: RoleUser}, OpUpdate, nil,
			[]Grant{{UserID: 12, Level: LevelRead}}, false,
		},
		{
			"write grant covers update but not delete",
			Actor{ID: 12, Role: RoleUser}, OpDelete, nil,
			[]Grant{{UserID: 12, Level: LevelWrite}}, false,
		},
		{
			"full grant covers delete",
			Actor{ID: 12, Role: RoleUser}, OpDelete, nil,
			[]Grant{{UserID: 12, Level: LevelFull}}, true,
		},
		{
			"expired grant is inert",
			Actor{ID: 12, Role: RoleUser}, OpRead, nil,
			[]Grant{{UserID: 12, Level: LevelFull, ExpiresAt: &past}}, false,
		},
		{
			"future expiry still active",
			Actor{ID: 12, Role: RoleUser}, OpRead, nil,
			[]Grant{{UserID: 12, Level: LevelRead, ExpiresAt: &future}}, true,
		},
		{
			"group grant reaches members",
			Actor{ID: 12, Role: RoleUser}, OpRead, []int64{6},
			[]Grant{{GroupID: 6, Level: LevelRead}}, true,
		},
		{
			"group grant ignores non-members",
			Actor{ID: 12, Role: RoleUser}, OpRead, []int64{5},
			[]Grant{{GroupID: 6, Level: LevelRead}}, false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.actor, tc.op, facts, tc.groups, tc.grants, now)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecideCreate(t *testing.T) {
	now := time.Now()

	require.True(t, Decide(Actor{ID: 1, Role: RoleAdmin}, OpCreate, OwnerFacts{RecordType: RecordWBS}, nil, nil, now))
	require.True(t, Decide(Actor{ID: 1, Role: RoleManager}, OpCreate, OwnerFacts{RecordType: RecordWBS}, nil, nil, now))
	require.False(t, Decide(Actor{ID: 1, Role: RoleUser}, OpCreate, OwnerFacts{RecordType: RecordWBS}, nil, nil, now))
	require.False(t, Decide(Actor{ID: 1, Role: RoleViewer}, OpCreate, OwnerFacts{RecordType: RecordBudgetItem}, nil, nil, now))

	// The User role may create the self-service planning types.
	require.True(t, Decide(Actor{ID: 1, Role: RoleUser}, OpCreate, OwnerFacts{RecordType: RecordBudgetItem}, nil, nil, now))
	require.True(t, Decide(Actor{ID: 1, Role: RoleUser}, OpCreate, OwnerFacts{RecordType: RecordLineItem}, nil, nil, now))
	require.False(t, Decide(Actor{ID: 1, Role: RoleUser}, OpCreate, OwnerFacts{RecordType: RecordBusinessCase}, nil, nil, now))
}

func TestAuthorizeHidesUnreadableRecords(t *testing.T) {
	facts := OwnerFacts{RecordType: RecordBudgetItem, RecordID: 10, OwnerGroupID: 3, CreatedBy: 7}
	e := NewEvaluator(staticMemberships{8: {3}}, staticGrants{})

	// No read path at all: the record must look nonexistent.
	err := e.Authorize(context.Background(), Actor{ID: 12, Role: RoleUser}, OpUpdate, facts)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Readable but op not allowed: a straight denial.
	err = e.Authorize(context.Background(), Actor{ID: 8, Role: RoleUser}, OpDelete, facts)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, e.Authorize(context.Background(), Actor{ID: 8, Role: RoleUser}, OpUpdate, facts))
}

func TestCanShare(t *testing.T) {
	facts := OwnerFacts{RecordType: RecordBudgetItem, RecordID: 10, OwnerGroupID: 3, CreatedBy: 7}
	e := NewEvaluator(staticMemberships{8: {3}, 9: {3}}, staticGrants{})

	ok, err := e.CanShare(context.Background(), Actor{ID: 1, Role: RoleAdmin}, facts)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.CanShare(context.Background(), Actor{ID: 7, Role: RoleUser}, facts)
	require.NoError(t, err)
	require.True(t, ok, "creator may share")

	ok, err = e.CanShare(context.Background(), Actor{ID: 8, Role: RoleManager}, facts)
	require.NoError(t, err)
	require.True(t, ok, "manager in owner group may share")

	ok, err = e.CanShare(context.Background(), Actor{ID: 9, Role: RoleUser}, facts)
	require.NoError(t, err)
	require.False(t, ok, "plain member may not share")

	ok, err = e.CanShare(context.Background(), Actor{ID: 12, Role: RoleManager}, facts)
	require.NoError(t, err)
	require.False(t, ok, "manager outside owner group may not share")
}

func TestRoleAndLevelParsing(t *testing.T) {
	role, err := ParseRole("Manager")
	require.NoError(t, err)
	require.True(t, role.AtLeast(RoleUser))
	require.False(t, role.AtLeast(RoleAdmin))

	_, err = ParseRole("Root")
	require.Error(t, err)

	level, err := ParseLevel("Write")
	require.NoError(t, err)
	require.True(t, level.Covers(OpRead))
	require.True(t, level.Covers(OpUpdate))
	require.False(t, level.Covers(OpDelete))

	_, err = ParseLevel("write")
	require.Error(t, err)
}
