// Package persist defines the persistence collaborator contract (§6):
// an external capability treated as out of core scope per §1(a). The
// core engine depends only on this interface; concrete adapters (see
// persist/redis, persist/mongo) are example collaborators, not part of
// the in-memory engine itself.
package persist

import "github.com/prose-ql/prose/internal/entity"

// Collaborator is the persistence contract a collection may be
// configured with. Flush performs a full-file rewrite (mode a); Append
// performs a single-line journal write on create (mode b); Load
// yields the initial entity array on startup. Flush and Append are
// best-effort: the CRUD operations log their failures as warnings and
// still succeed, with in-memory state kept; no error reaches the
// caller. A Load failure makes NewDatabase return an error.
type Collaborator interface {
	Flush(entities []entity.Entity) error
	Append(e entity.Entity) error
	Load() ([]entity.Entity, error)
}
