package access

import (
	"context"
	"fmt"
	"time"
)

// Scope is the precomputed read-visibility of an actor, used to filter list
// queries in SQL so pagination counts only visible rows.
type Scope struct {
	All      bool
	ActorID  int64
	GroupIDs []int64
}

// ReadScope resolves the actor's visibility scope. Admin sees everything.
func (e *Evaluator) ReadScope(ctx context.Context, actor Actor) (Scope, error) {
	if actor.IsAdmin() {
		return Scope{All: true}, nil
	}
	groups, err := e.memberships.GroupsFor(ctx, actor.ID)
	if err != nil {
		return Scope{}, err
	}
	return Scope{ActorID: actor.ID, GroupIDs: groups}, nil
}

// SQLPredicate renders the scope as a WHERE fragment over the aliased table.
// Placeholders start at argOffset+1; the matching args are returned alongside.
// The fragment covers evaluator rules 3 (creator), 4 (owner-group member) and
// 5 (active grant, direct or via group), mirroring Decide for reads.
func (s Scope) SQLPredicate(alias, recordType string, argOffset int) (string, []any) {
	if s.All {
		return "TRUE", nil
	}
	clause := fmt.Sprintf(`(%[1]s.created_by = $%[2]d
		OR %[1]s.owner_group_id = ANY($%[3]d)
		OR EXISTS (
			SELECT 1 FROM record_access ra
			WHERE ra.record_type = $%[4]d
			  AND ra.record_id = %[1]s.id
			  AND (ra.user_id = $%[2]d OR ra.group_id = ANY($%[3]d))
			  AND (ra.expires_at IS NULL OR ra.expires_at > NOW())
		))`, alias, argOffset+1, argOffset+2, argOffset+3)
	groups := s.GroupIDs
	if groups == nil {
		groups = []int64{}
	}
	return clause, []any{s.ActorID, groups, recordType}
}

// Allows is the in-memory counterpart of SQLPredicate for repositories that
// do not speak SQL (test fakes). Grant levels all cover Read.
func (s Scope) Allows(facts OwnerFacts, grants []Grant, now time.Time) bool {
	if s.All {
		return true
	}
	if facts.CreatedBy != 0 && facts.CreatedBy == s.ActorID {
		return true
	}
	if memberOf(s.GroupIDs, facts.OwnerGroupID) {
		return true
	}
	for _, grant := range grants {
		if grant.ActiveAt(now) && grant.appliesTo(s.ActorID, s.GroupIDs) && grant.Level.Covers(OpRead) {
			return true
		}
	}
	return false
}
