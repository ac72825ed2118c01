// Package schema defines the SchemaValidator contract (§6): an opaque
// external capability the core engine depends on but does not
// implement. Treated as an external collaborator per spec §1(d).
package schema

import "github.com/prose-ql/prose/internal/entity"

// Issue is a single per-field validation diagnostic.
type Issue struct {
	Field    string
	Message  string
	Expected string
	Received string
}

// Validator is the external schema-validation capability every
// collection is configured with. encode/decode round-trip an entity
// to/from its serialized form; validate checks an arbitrary value
// against the schema, returning either a canonical Entity or a list of
// issues.
type Validator interface {
	Encode(e entity.Entity) (any, error)
	Decode(serialized any) (entity.Entity, error)
	Validate(value any) (entity.Entity, []Issue)
}

// Identity is a no-op Validator useful for tests and examples: it
// accepts any map value as-is, requiring only a string id field.
type Identity struct{}

func (Identity) Encode(e entity.Entity) (any, error) { return e, nil }

func (Identity) Decode(serialized any) (entity.Entity, error) {
	e, ok := serialized.(entity.Entity)
	if ok {
		return e, nil
	}
	m, ok := serialized.(map[string]any)
	if !ok {
		return nil, errInvalidEncoding
	}
	return entity.Entity(m), nil
}

func (Identity) Validate(value any) (entity.Entity, []Issue) {
	m, ok := value.(map[string]any)
	if !ok {
		if e, ok := value.(entity.Entity); ok {
			m = map[string]any(e)
		} else {
			return nil, []Issue{{Field: "", Message: "value must be an object"}}
		}
	}
	id, ok := m[entity.IDField]
	if !ok {
		return nil, []Issue{{Field: entity.IDField, Message: "id is required"}}
	}
	if _, ok := id.(string); !ok {
		return nil, []Issue{{Field: entity.IDField, Message: "id must be a string", Expected: "string"}}
	}
	return entity.Entity(m), nil
}

var errInvalidEncoding = errInvalid("value is not a decodable entity")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }
