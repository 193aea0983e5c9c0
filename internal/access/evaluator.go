package access

import (
	"context"
	"time"

	"github.com/capline-erp/capline/internal/shared"
)

// MembershipSource yields the groups an actor belongs to.
type MembershipSource interface {
	GroupsFor(ctx context.Context, userID int64) ([]int64, error)
}

// GrantSource yields the explicit access grants attached to a record.
type GrantSource interface {
	GrantsFor(ctx context.Context, recordType string, recordID int64) ([]Grant, error)
}

// Evaluator answers "may this actor perform this operation on this record".
// It holds no mutable state; all facts are fetched per call.
type Evaluator struct {
	memberships MembershipSource
	grants      GrantSource
	now         func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(memberships MembershipSource, grants GrantSource) *Evaluator {
	return &Evaluator{memberships: memberships, grants: grants, now: time.Now}
}

// Decide is the pure decision function. Rules apply in precedence order,
// first match wins:
//
//  1. Admin: every operation on every record.
//  2. Create: Manager and above; the User role only for user-creatable types.
//  3. Creator: full access to records the actor created.
//  4. Owner-group member: Read/Update; Delete additionally requires Manager.
//  5. Active grant with a level covering the operation.
//  6. Deny.
func Decide(actor Actor, op Operation, facts OwnerFacts, memberGroups []int64, grants []Grant, now time.Time) bool {
	if actor.IsAdmin() {
		return true
	}

	if op == OpCreate {
		if actor.Role.AtLeast(RoleManager) {
			return true
		}
		return actor.Role == RoleUser && userCreatable[facts.RecordType]
	}

	if facts.CreatedBy != 0 && facts.CreatedBy == actor.ID {
		return true
	}

	if memberOf(memberGroups, facts.OwnerGroupID) {
		switch op {
		case OpRead, OpList, OpUpdate:
			return true
		case OpDelete:
			return actor.Role.AtLeast(RoleManager)
		}
	}

	for _, grant := range grants {
		if !grant.ActiveAt(now) {
			continue
		}
		if grant.appliesTo(actor.ID, memberGroups) && grant.Level.Covers(op) {
			return true
		}
	}

	return false
}

// CanCreate applies rule 1 and 2 for a create of the given record type.
func (e *Evaluator) CanCreate(actor Actor, recordType string) bool {
	return Decide(actor, OpCreate, OwnerFacts{RecordType: recordType}, nil, nil, e.now())
}

// Can fetches the actor's memberships and the record's grants, then decides.
func (e *Evaluator) Can(ctx context.Context, actor Actor, op Operation, facts OwnerFacts) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	groups, err := e.memberships.GroupsFor(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	grants, err := e.grants.GrantsFor(ctx, facts.RecordType, facts.RecordID)
	if err != nil {
		return false, err
	}
	return Decide(actor, op, facts, groups, grants, e.now()), nil
}

// Authorize decides op for the actor and converts a denial into an error.
// An actor with no read path to the record gets ErrNotFound so the record's
// existence is not leaked; an actor who can read but not perform op gets
// ErrForbidden.
func (e *Evaluator) Authorize(ctx context.Context, actor Actor, op Operation, facts OwnerFacts) error {
	allowed, err := e.Can(ctx, actor, op, facts)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	if op != OpRead {
		readable, err := e.Can(ctx, actor, OpRead, facts)
		if err != nil {
			return err
		}
		if readable {
			return shared.ErrForbidden
		}
	}
	return shared.ErrNotFound
}

// CanShare reports whether the actor may grant or revoke access on the
// record: admins, the record's creator, and managers who belong to the
// record's owner group.
func (e *Evaluator) CanShare(ctx context.Context, actor Actor, facts OwnerFacts) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if facts.CreatedBy != 0 && facts.CreatedBy == actor.ID {
		return true, nil
	}
	if !actor.Role.AtLeast(RoleManager) {
		return false, nil
	}
	groups, err := e.memberships.GroupsFor(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	return memberOf(groups, facts.OwnerGroupID), nil
}

func memberOf(groups []int64, groupID int64) bool {
	if groupID == 0 {
		return false
	}
	for _, id := range groups {
		if id == groupID {
			return true
		}
	}
	return false
}
