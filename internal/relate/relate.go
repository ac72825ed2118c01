// Package relate implements the relationship enforcer (C7): foreign
// key validation on write and cascade/restrict/setNull policy
// enforcement on delete, with cycle-safe cascades.
//
// Grounded on DESIGN NOTES §9 ("do not hold back-pointers; compute
// referrers on demand... An auxiliary inverse index on the ref field
// accelerates cascade/restrict checks; maintain it like any other
// index") and the Present->Marked->Removed state machine of spec §4.7.
package relate

import "github.com/prose-ql/prose/internal/entity"

// Policy is the inverse-relationship delete policy.
type Policy string

const (
	Restrict Policy = "restrict"
	Cascade  Policy = "cascade"
	SetNull  Policy = "setNull"
)

// Ref is a declared foreign-key edge: field on the owning collection
// references an id in Target.
type Ref struct {
	Field  string
	Target string
}

// Inverse is the reverse edge of a Ref, carrying the delete policy to
// apply to the referrer when the target entity is deleted.
type Inverse struct {
	// SourceCollection is the collection holding the referring
	// entities (the collection that declared the matching Ref).
	SourceCollection string
	Field            string
	Policy           Policy
}

// Exists reports whether id is present in the target collection. The
// engine supplies this as a closure over its live collection state.
type Exists func(collection, id string) bool

// CheckRef validates a single ref field against the target collection,
// returning ok=false if the referenced id does not exist. A nil or
// non-string value also fails; callers skip absent/nil ref fields
// before calling, leaving required-ness to the schema.
func CheckRef(ref Ref, value any, exists Exists) bool {
	id, ok := value.(string)
	if !ok {
		return false
	}
	return exists(ref.Target, id)
}

// Referrer is one entity found to reference the entity being deleted.
type Referrer struct {
	Collection string
	Field      string
	Entity     entity.Entity
}

// Lookup returns the entities in collection whose field equals
// value (a referenced id). The engine supplies lookup as a closure
// so relate doesn't need to know about collection state or indexes
// directly (an inverse index on Field accelerates this when the host
// maintains one, but relate itself is agnostic to how lookup is
// implemented).
type Lookup func(collection, field, value string) []entity.Entity

// CascadePlan is the result of PlanCascade's walk of the referrer
// graph, which uses the Present->Marked->Removed state machine:
// visited ids are never re-entered, so cycles terminate. It holds the
// full set of (collection, id) pairs that must be removed, including
// the deleted entity itself, as unordered sets; the caller removes
// them all together.
type CascadePlan struct {
	Removed map[string]map[string]struct{} // collection -> id set
}

func newCascadePlan() *CascadePlan {
	return &CascadePlan{Removed: make(map[string]map[string]struct{})}
}

func (p *CascadePlan) marked(collection, id string) bool {
	ids, ok := p.Removed[collection]
	if !ok {
		return false
	}
	_, ok = ids[id]
	return ok
}

func (p *CascadePlan) mark(collection, id string) {
	ids, ok := p.Removed[collection]
	if !ok {
		ids = make(map[string]struct{})
		p.Removed[collection] = ids
	}
	ids[id] = struct{}{}
}

// Inverses resolves the declared inverse relationships pointing at a
// given collection. The host (Registry) supplies this since it's the
// one holding each collection's configuration.
type Inverses func(collection string) []Inverse

// PlanCascade computes every entity that must be removed when deleting
// (collection, id), given a way to resolve inverse relationships and a
// lookup function for finding referrers. Only cascade-policy edges are
// followed; restrict and setNull are handled separately by the caller
// before (restrict) or alongside (setNull) the cascade.
func PlanCascade(collection, id string, inverses Inverses, lookup Lookup) *CascadePlan {
	plan := newCascadePlan()
	var walk func(coll, entID string)
	walk = func(coll, entID string) {
		if plan.marked(coll, entID) {
			return
		}
		plan.mark(coll, entID)
		for _, inv := range inverses(coll) {
			if inv.Policy != Cascade {
				continue
			}
			for _, referrer := range lookup(inv.SourceCollection, inv.Field, entID) {
				walk(inv.SourceCollection, referrer.ID())
			}
		}
	}
	walk(collection, id)
	return plan
}

// CheckRestrict reports the first referrer blocking a restrict-policy
// delete, or nil if none exists.
func CheckRestrict(collection string, id string, inverses []Inverse, lookup Lookup) *Referrer {
	for _, inv := range inverses {
		if inv.Policy != Restrict {
			continue
		}
		referrers := lookup(inv.SourceCollection, inv.Field, id)
		if len(referrers) > 0 {
			return &Referrer{Collection: inv.SourceCollection, Field: inv.Field, Entity: referrers[0]}
		}
	}
	return nil
}

// SetNullTargets returns every referrer whose Field must be set to nil
// because the entity it pointed to was deleted under the setNull
// policy.
func SetNullTargets(collection, id string, inverses []Inverse, lookup Lookup) []Referrer {
	var out []Referrer
	for _, inv := range inverses {
		if inv.Policy != SetNull {
			continue
		}
		for _, e := range lookup(inv.SourceCollection, inv.Field, id) {
			out = append(out, Referrer{Collection: inv.SourceCollection, Field: inv.Field, Entity: e})
		}
	}
	return out
}
