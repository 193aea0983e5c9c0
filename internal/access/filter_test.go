package access

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadScope(t *testing.T) {
	e := NewEvaluator(staticMemberships{8: {3, 6}}, staticGrants{})

	scope, err := e.ReadScope(context.Background(), Actor{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)
	require.True(t, scope.All)

	scope, err = e.ReadScope(context.Background(), Actor{ID: 8, Role: RoleUser})
	require.NoError(t, err)
	require.False(t, scope.All)
	require.Equal(t, int64(8), scope.ActorID)
	require.Equal(t, []int64{3, 6}, scope.GroupIDs)
}

func TestSQLPredicate(t *testing.T) {
	scope := Scope{ActorID: 8, GroupIDs: []int64{3}}

	clause, args := scope.SQLPredicate("budget_item", RecordBudgetItem, 0)
	require.Contains(t, clause, "budget_item.created_by = $1")
	require.Contains(t, clause, "budget_item.owner_group_id = ANY($2)")
	require.Contains(t, clause, "ra.record_type = $3")
	require.Contains(t, clause, "ra.expires_at IS NULL OR ra.expires_at > NOW()")
	require.Equal(t, []any{int64(8), []int64{3}, RecordBudgetItem}, args)

	// Offsets shift every placeholder.
	clause, _ = scope.SQLPredicate("t", RecordWBS, 2)
	require.Contains(t, clause, "$3")
	require.Contains(t, clause, "$4")
	require.Contains(t, clause, "$5")
	require.False(t, strings.Contains(clause, "$1"))

	clause, args = Scope{All: true}.SQLPredicate("t", RecordWBS, 0)
	require.Equal(t, "TRUE", clause)
	require.Nil(t, args)
}

func TestSQLPredicateEmptyGroups(t *testing.T) {
	_, args := Scope{ActorID: 8}.SQLPredicate("t", RecordBudgetItem, 0)
	require.Equal(t, []int64{}, args[1], "nil groups must render as an empty array, not NULL")
}

func TestScopeAllows(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	facts := OwnerFacts{RecordType: RecordBudgetItem, RecordID: 10, OwnerGroupID: 3, CreatedBy: 7}

	require.True(t, Scope{All: true}.Allows(facts, nil, now))
	require.True(t, Scope{ActorID: 7}.Allows(facts, nil, now))
	require.True(t, Scope{ActorID: 8, GroupIDs: []int64{3}}.Allows(facts, nil, now))
	require.False(t, Scope{ActorID: 8}.Allows(facts, nil, now))
	require.True(t, Scope{ActorID: 8}.Allows(facts, []Grant{{UserID: 8, Level: LevelRead}}, now))
	require.False(t, Scope{ActorID: 8}.Allows(facts, []Grant{{UserID: 8, Level: LevelRead, ExpiresAt: &past}}, now))
}
