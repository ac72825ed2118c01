package query

import (
	"reflect"
	"strings"
)

// Evaluators is the SSOT lookup table mapping each recognized operator
// to its matcher, in the same per-operator-map idiom as the teacher's
// mapping.OperatorMap (mapping/operators.go) — there the map keys are
// per-SQL-dialect operator strings; here they're the single operator
// algebra ProseQL's where clause speaks directly, independent of any
// backend dialect.
var Evaluators = map[string]func(value any, exists bool, operand any, analyzer Analyzer) bool{
	"$eq":         func(v any, ex bool, op any, _ Analyzer) bool { return eqMatch(v, ex, op) },
	"$ne":         func(v any, ex bool, op any, _ Analyzer) bool { return !eqMatch(v, ex, op) },
	"$in":         func(v any, ex bool, op any, _ Analyzer) bool { return inMatch(v, ex, op) },
	"$nin":        func(v any, ex bool, op any, _ Analyzer) bool { return !inMatch(v, ex, op) },
	"$gt":         func(v any, ex bool, op any, _ Analyzer) bool { c, ok := orderedMatch(v, ex, op); return ok && c > 0 },
	"$gte":        func(v any, ex bool, op any, _ Analyzer) bool { c, ok := orderedMatch(v, ex, op); return ok && c >= 0 },
	"$lt":         func(v any, ex bool, op any, _ Analyzer) bool { c, ok := orderedMatch(v, ex, op); return ok && c < 0 },
	"$lte":        func(v any, ex bool, op any, _ Analyzer) bool { c, ok := orderedMatch(v, ex, op); return ok && c <= 0 },
	"$startsWith": func(v any, ex bool, op any, _ Analyzer) bool { return stringMatch(v, ex, op, strings.HasPrefix) },
	"$endsWith":   func(v any, ex bool, op any, _ Analyzer) bool { return stringMatch(v, ex, op, strings.HasSuffix) },
	"$contains":   func(v any, ex bool, op any, _ Analyzer) bool { return containsMatch(v, ex, op) },
	"$search": func(v any, ex bool, op any, a Analyzer) bool {
		if a != nil {
			return ex && a(v, op)
		}
		return containsMatch(v, ex, op)
	},
	"$all":  func(v any, ex bool, op any, _ Analyzer) bool { return allMatch(v, ex, op) },
	"$size": func(v any, ex bool, op any, _ Analyzer) bool { return sizeMatch(v, ex, op) },
}

// matchOp dispatches a single (operator, operand) condition against a
// field's value. Unknown operators and field-type mismatches both
// evaluate to false; they never fail the query (spec §4.2).
func matchOp(op string, value any, exists bool, operand any, analyzer Analyzer) bool {
	fn, ok := Evaluators[op]
	if !ok {
		return false
	}
	return fn(value, exists, operand, analyzer)
}

// orderedMatch returns a three-way comparison result (negative, zero,
// positive) for ordered operators, plus whether the comparison could
// be made at all. A missing field or a type mismatch (e.g. comparing
// a bool to a number) is incomparable: callers must treat that as "no
// match" rather than folding it into the comparison result, since no
// int sentinel can be relied on to fail every one of >, >=, <, <= at
// once (spec §4.2: field-type mismatches evaluate to false, never
// fail the query).
func orderedMatch(value any, exists bool, operand any) (cmp int, ok bool) {
	if !exists {
		return 0, false
	}
	if af, aok := toFloat(value); aok {
		if bf, bok := toFloat(operand); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := value.(string); aok {
		if bs, bok := operand.(string); bok {
			return strings.Compare(as, bs), true
		}
		return 0, false
	}
	return 0, false
}

func eqMatch(value any, exists bool, operand any) bool {
	if operand == nil {
		return !exists || value == nil
	}
	if !exists {
		return false
	}
	return valuesEqual(value, operand)
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func inMatch(value any, exists bool, operand any) bool {
	elems, ok := toSlice(operand)
	if !ok {
		return false
	}
	for _, el := range elems {
		if eqMatch(value, exists, el) {
			return true
		}
	}
	return false
}

func stringMatch(value any, exists bool, operand any, fn func(s, substr string) bool) bool {
	if !exists {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	sub, ok := operand.(string)
	if !ok {
		return false
	}
	return fn(s, sub)
}

// containsMatch implements $contains: substring for a string field,
// element equality for an array-valued field.
func containsMatch(value any, exists bool, operand any) bool {
	if !exists {
		return false
	}
	if s, ok := value.(string); ok {
		sub, ok := operand.(string)
		return ok && strings.Contains(s, sub)
	}
	if elems, ok := toSlice(value); ok {
		for _, el := range elems {
			if valuesEqual(el, operand) {
				return true
			}
		}
		return false
	}
	return false
}

// allMatch implements $all: the field array must be a superset of the
// operand array.
func allMatch(value any, exists bool, operand any) bool {
	if !exists {
		return false
	}
	fieldElems, ok := toSlice(value)
	if !ok {
		return false
	}
	wantElems, ok := toSlice(operand)
	if !ok {
		return false
	}
	for _, want := range wantElems {
		found := false
		for _, have := range fieldElems {
			if valuesEqual(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sizeMatch implements $size: exact length of an array-valued field.
func sizeMatch(value any, exists bool, operand any) bool {
	if !exists {
		return false
	}
	elems, ok := toSlice(value)
	if !ok {
		return false
	}
	n, ok := toFloat(operand)
	if !ok {
		return false
	}
	return float64(len(elems)) == n
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
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
}
