// Package crud implements create/update/delete/upsert (C4): the
// tagged FieldUpdate patch algebra, unique/foreign-key checks, and
// transactional all-or-nothing semantics for the *Many variants.
//
// Grounded on DESIGN NOTES §9's FieldUpdate re-architecture and the
// teacher's per-operation CRUD dispatch shape (client.go's
// mongoUpdate/mongoDelete/... methods, one method per verb, errors
// wrapped with fmt.Errorf("...: %w", err)).
package crud

import (
	"fmt"

	"github.com/prose-ql/prose/internal/entity"
)

// FieldUpdate is one field's patch operation.
type FieldUpdate struct {
	Kind  string // "set", "increment", "decrement", "multiply", "append", "remove", "toggle"
	Value any
}

const (
	opSet        = "set"
	opIncrement  = "increment"
	opDecrement  = "decrement"
	opMultiply   = "multiply"
	opAppend     = "append"
	opRemove     = "remove"
	opToggle     = "toggle"
)

// NormalizePatch turns a raw patch map into a field->FieldUpdate map.
// A field whose value is an object holding one of the operator keys
// $set, $increment, $decrement, $multiply, $append, $remove, $toggle
// becomes that operation (checked in that order; the first key found
// wins and other keys are ignored); anything else is direct field
// replacement ($set).
func NormalizePatch(raw map[string]any) map[string]FieldUpdate {
	out := make(map[string]FieldUpdate, len(raw))
	for field, v := range raw {
		if ops, ok := v.(map[string]any); ok {
			if fu, ok := operatorUpdate(ops); ok {
				out[field] = fu
				continue
			}
		}
		out[field] = FieldUpdate{Kind: opSet, Value: v}
	}
	return out
}

func operatorUpdate(ops map[string]any) (FieldUpdate, bool) {
	if v, ok := ops["$set"]; ok {
		return FieldUpdate{Kind: opSet, Value: v}, true
	}
	if v, ok := ops["$increment"]; ok {
		return FieldUpdate{Kind: opIncrement, Value: v}, true
	}
	if v, ok := ops["$decrement"]; ok {
		return FieldUpdate{Kind: opDecrement, Value: v}, true
	}
	if v, ok := ops["$multiply"]; ok {
		return FieldUpdate{Kind: opMultiply, Value: v}, true
	}
	if v, ok := ops["$append"]; ok {
		return FieldUpdate{Kind: opAppend, Value: v}, true
	}
	if v, ok := ops["$remove"]; ok {
		return FieldUpdate{Kind: opRemove, Value: v}, true
	}
	if _, ok := ops["$toggle"]; ok {
		return FieldUpdate{Kind: opToggle, Value: nil}, true
	}
	return FieldUpdate{}, false
}

// ApplyPatch merges patch onto old, returning the new entity. old is
// never mutated.
func ApplyPatch(old entity.Entity, patch map[string]FieldUpdate) (entity.Entity, error) {
	out := old.Clone()
	for field, fu := range patch {
		cur, _ := out.Get(field)
		next, err := applyOne(cur, fu)
		if err != nil {
			return nil, fmt.Errorf("patch field %q: %w", field, err)
		}
		out[field] = next
	}
	return out, nil
}

func applyOne(cur any, fu FieldUpdate) (any, error) {
	switch fu.Kind {
	case opSet:
		return fu.Value, nil
	case opIncrement:
		return numericOp(cur, fu.Value, func(a, b float64) float64 { return a + b })
	case opDecrement:
		return numericOp(cur, fu.Value, func(a, b float64) float64 { return a - b })
	case opMultiply:
		return numericOp(cur, fu.Value, func(a, b float64) float64 { return a * b })
	case opAppend:
		return appendOp(cur, fu.Value)
	case opRemove:
		return removeOp(cur, fu.Value)
	case opToggle:
		b, _ := cur.(bool)
		return !b, nil
	default:
		return nil, fmt.Errorf("unknown patch operator %q", fu.Kind)
	}
}

func numericOp(cur, delta any, fn func(a, b float64) float64) (any, error) {
	a, ok := toFloat(cur)
	if !ok {
		a = 0
	}
	b, ok := toFloat(delta)
	if !ok {
		return nil, fmt.Errorf("operand %v is not numeric", delta)
	}
	return fn(a, b), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// appendOp appends a value onto a string or array field.
func appendOp(cur, value any) (any, error) {
	switch c := cur.(type) {
	case string:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("$append onto a string field requires a string operand")
		}
		return c + s, nil
	case []any:
		return append(append([]any{}, c...), value), nil
	case nil:
		return []any{value}, nil
	default:
		return nil, fmt.Errorf("$append is not supported on %T", cur)
	}
}

// removeOp removes a matching element from an array field by
// equality.
func removeOp(cur, value any) (any, error) {
	elems, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("$remove requires an array field, got %T", cur)
	}
	out := make([]any, 0, len(elems))
	for _, e := range elems {
		if !equalLoose(e, value) {
			out = append(out, e)
		}
	}
	return out, nil
}

func equalLoose(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}
