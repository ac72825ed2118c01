// Package prose is an embedded, schema-driven document store for a
// single process: typed CRUD, structured queries, secondary indexes,
// cross-collection relationships, multi-collection transactions, and
// aggregation over named collections of entities.
package prose

import "github.com/prose-ql/prose/internal/entity"

// Entity is an immutable record: a map of field name to value with a
// required string "id" field. Every mutation produces a new Entity
// rather than modifying one in place.
type Entity = entity.Entity

// IDField is the name of the field every entity must carry.
const IDField = entity.IDField
