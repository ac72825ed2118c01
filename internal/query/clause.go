// Package query implements the where-clause operator algebra,
// planner hook, sort/offset/limit, and projection (C2).
//
// The where clause is modeled as the DESIGN NOTES §9 re-architecture
// describes: a tagged-union FieldCondition per field instead of a
// free-form map of operators, grounded on the teacher's Condition
// struct (engine/models/query.go) and its operator SSOT table
// (mapping/operators.go).
package query

import "github.com/prose-ql/prose/internal/entity"

// FieldCondition is the set of operators applied to one field, ANDed
// together.
type FieldCondition struct {
	Ops map[string]any
}

// Where is an unordered conjunction of per-field conditions. Go map
// iteration order doesn't matter here because every
// field's conditions AND together regardless of evaluation order.
type Where map[string]FieldCondition

// Analyzer lets a host override $search semantics. Left nil, $search
// behaves exactly like $contains per spec §9(a).
type Analyzer func(fieldValue, needle any) bool

// isOperatorMap reports whether m looks like an operator map (at least
// one key starting with "$") rather than a literal value that happens
// to be a map.
func isOperatorMap(m map[string]any) bool {
	for k := range m {
		if len(k) > 0 && k[0] == '$' {
			return true
		}
	}
	return false
}

// Normalize builds a Where from a raw field->condition map, where a
// condition is either an operator map (e.g. {"$gte": 1960}) or a bare
// scalar/array/null standing for implicit $eq.
func Normalize(raw map[string]any) Where {
	where := make(Where, len(raw))
	for field, cond := range raw {
		switch c := cond.(type) {
		case map[string]any:
			if isOperatorMap(c) {
				where[field] = FieldCondition{Ops: cloneOps(c)}
				continue
			}
			where[field] = FieldCondition{Ops: map[string]any{"$eq": c}}
		default:
			where[field] = FieldCondition{Ops: map[string]any{"$eq": c}}
		}
	}
	return where
}

func cloneOps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HasEq reports whether the clause has an implicit or explicit $eq
// condition on field, used by the planner to decide index
// eligibility.
func (w Where) HasEq(field string) (any, bool) {
	fc, ok := w[field]
	if !ok {
		return nil, false
	}
	v, ok := fc.Ops["$eq"]
	return v, ok
}

// Matches reports whether e satisfies every condition in w.
func Matches(e entity.Entity, w Where, analyzer Analyzer) bool {
	for field, fc := range w {
		value, exists := e.Get(field)
		for op, operand := range fc.Ops {
			if !matchOp(op, value, exists, operand, analyzer) {
				return false
			}
		}
	}
	return true
}
