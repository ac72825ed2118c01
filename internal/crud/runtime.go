package crud

import (
	"github.com/prose-ql/prose/internal/collection"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/index"
	"github.com/prose-ql/prose/internal/persist"
	"github.com/prose-ql/prose/internal/relate"
	"github.com/prose-ql/prose/internal/schema"
)

// CollectionRuntime is everything C4 needs to operate on one
// collection: its live (or transaction-staged) state, index manager,
// declared constraints, and schema validator. The same struct serves
// both the database's live collections and a transaction's staged
// working copies — crud's functions never know which they're given.
type CollectionRuntime struct {
	Name       string
	State      *collection.State[entity.Entity]
	Index      *index.Manager
	Refs       []relate.Ref
	UniqueSets [][]string
	AppendOnly bool
	SoftDelete bool
	Validator  schema.Validator
	Persist    persist.Collaborator
}

// Registry resolves collections by name, used for foreign-key checks
// and cascades that cross collection boundaries. The root Database and
// the transaction context both implement it.
type Registry interface {
	Collection(name string) (*CollectionRuntime, bool)
	Inverses(name string) []relate.Inverse
}

// exists adapts a Registry into a relate.Exists closure.
func exists(reg Registry) relate.Exists {
	return func(collectionName, id string) bool {
		cr, ok := reg.Collection(collectionName)
		if !ok {
			return false
		}
		_, found := cr.State.Get(id)
		return found
	}
}

// lookupByField adapts a Registry into a relate.Lookup closure, doing
// an indexed lookup when the field is declared as a single-field
// index and falling back to a full scan otherwise.
func lookupByField(reg Registry) relate.Lookup {
	return func(collectionName, field, value string) []entity.Entity {
		cr, ok := reg.Collection(collectionName)
		if !ok {
			return nil
		}
		if ids, ok := cr.Index.Lookup([]string{field}, index.Key([]any{value})); ok {
			out := make([]entity.Entity, 0, len(ids))
			for id := range ids {
				if e, found := cr.State.Get(id); found {
					out = append(out, e)
				}
			}
			return out
		}
		var out []entity.Entity
		for _, e := range cr.State.GetAll() {
			if v, ok := e.Get(field); ok {
				if s, ok := v.(string); ok && s == value {
					out = append(out, e)
				}
			}
		}
		return out
	}
}
