package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/capline-erp/capline/internal/shared"
)

// OwnershipMode distinguishes records whose owner group is supplied by the
// client from records that inherit it from a parent.
type OwnershipMode int

const (
	// OwnerExplicit means the creation payload must carry the owner group.
	OwnerExplicit OwnershipMode = iota
	// OwnerInherited means the owner group is copied from the live parent
	// at creation time; any client-supplied value is discarded.
	OwnerInherited
)

// OwnershipRule declares how a record type obtains its owner group.
type OwnershipRule struct {
	Mode   OwnershipMode
	Parent string
}

var ownershipRules = map[string]OwnershipRule{
	RecordBudgetItem:   {Mode: OwnerExplicit},
	RecordBusinessCase: {Mode: OwnerExplicit},
	RecordResource:     {Mode: OwnerExplicit},
	RecordGroup:        {Mode: OwnerExplicit},

	// Line items declare their owner independently of their parents.
	RecordLineItem: {Mode: OwnerExplicit},

	RecordWBS:        {Mode: OwnerInherited, Parent: RecordLineItem},
	RecordAsset:      {Mode: OwnerInherited, Parent: RecordWBS},
	RecordPO:         {Mode: OwnerInherited, Parent: RecordAsset},
	RecordGR:         {Mode: OwnerInherited, Parent: RecordPO},
	RecordAllocation: {Mode: OwnerInherited, Parent: RecordResource},
}

// RuleFor returns the ownership rule for a record type.
func RuleFor(recordType string) (OwnershipRule, bool) {
	rule, ok := ownershipRules[recordType]
	return rule, ok
}

// ParentSource resolves the owner group of an existing record by type and ID.
// Implementations return shared.ErrNotFound when the record does not exist.
type ParentSource interface {
	OwnerGroupOf(ctx context.Context, recordType string, id int64) (int64, error)
}

// Resolver computes the owner group for a record about to be created.
// It must run before persistence so the stored row never carries a
// client-sent value for an inherited field.
type Resolver struct {
	parents ParentSource
}

// NewResolver constructs a Resolver.
func NewResolver(parents ParentSource) *Resolver {
	return &Resolver{parents: parents}
}

// OwnerGroup returns the owner group for a new record of recordType.
// For explicit types the supplied group is used as given; for inherited types
// the parent's live owner group wins and suppliedGroupID is ignored.
func (r *Resolver) OwnerGroup(ctx context.Context, recordType string, suppliedGroupID, parentID int64) (int64, error) {
	rule, ok := ownershipRules[recordType]
	if !ok {
		return 0, fmt.Errorf("access: no ownership rule for record type %q", recordType)
	}

	if rule.Mode == OwnerExplicit {
		if suppliedGroupID <= 0 {
			return 0, fmt.Errorf("%w: owner_group_id is required", shared.ErrValidation)
		}
		return suppliedGroupID, nil
	}

	if parentID <= 0 {
		return 0, fmt.Errorf("%w: %s reference is required", shared.ErrValidation, rule.Parent)
	}
	group, err := r.parents.OwnerGroupOf(ctx, rule.Parent, parentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s %d", shared.ErrParentNotFound, rule.Parent, parentID)
		}
		return 0, err
	}
	return group, nil
}
