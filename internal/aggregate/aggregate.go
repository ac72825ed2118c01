// Package aggregate implements count/min/max/sum/avg with optional
// group-by over a filtered stream (C6), composed on top of the query
// evaluator in one pass.
//
// Grounded on the teacher's redisAggregate (client.go): single-pass
// accumulation over filtered key-value hashes, generalized here from
// float64-parsed Redis hash fields onto arbitrary Entity field values.
package aggregate

import (
	"fmt"

	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/query"
)

// Request is the aggregate() input from spec §4.6.
type Request struct {
	Where   query.Where
	Count   bool
	Sum     []string
	Avg     []string
	Min     []string
	Max     []string
	GroupBy []string
}

// Result is a single aggregate record: either the lone result (no
// GroupBy) or one member of the grouped sequence.
type Result struct {
	Group map[string]any
	Count int
	Sum   map[string]float64
	Avg   map[string]*float64 // nil entry means "null" (empty group for that field)
	Min   map[string]any
	Max   map[string]any
}

type accumulator struct {
	count int
	sum    map[string]float64
	avgSum map[string]float64 // running total per field, for avg
	n      map[string]int     // count of numeric values seen, per field, for avg
	min    map[string]any
	max    map[string]any
}

func newAccumulator() *accumulator {
	return &accumulator{
		sum:    make(map[string]float64),
		avgSum: make(map[string]float64),
		n:      make(map[string]int),
		min: make(map[string]any),
		max: make(map[string]any),
	}
}

func (a *accumulator) add(e entity.Entity, req Request) {
	a.count++
	for _, f := range req.Sum {
		if v, ok := numeric(e, f); ok {
			a.sum[f] += v
		}
	}
	for _, f := range req.Avg {
		if v, ok := numeric(e, f); ok {
			a.avgSum[f] += v
			a.n[f]++
		}
	}
	for _, f := range req.Min {
		if v, ok := e.Get(f); ok {
			if cur, has := a.min[f]; !has || less(v, cur) {
				a.min[f] = v
			}
		}
	}
	for _, f := range req.Max {
		if v, ok := e.Get(f); ok {
			if cur, has := a.max[f]; !has || less(cur, v) {
				a.max[f] = v
			}
		}
	}
}

func (a *accumulator) result(group map[string]any, req Request) Result {
	res := Result{Group: group}
	if req.Count {
		res.Count = a.count
	}
	if len(req.Sum) > 0 {
		res.Sum = make(map[string]float64, len(req.Sum))
		for _, f := range req.Sum {
			res.Sum[f] = a.sum[f]
		}
	}
	if len(req.Avg) > 0 {
		res.Avg = make(map[string]*float64, len(req.Avg))
		for _, f := range req.Avg {
			if a.n[f] == 0 {
				res.Avg[f] = nil
				continue
			}
			v := a.avgSum[f] / float64(a.n[f])
			res.Avg[f] = &v
		}
	}
	if len(req.Min) > 0 {
		res.Min = make(map[string]any, len(req.Min))
		for _, f := range req.Min {
			res.Min[f] = a.min[f]
		}
	}
	if len(req.Max) > 0 {
		res.Max = make(map[string]any, len(req.Max))
		for _, f := range req.Max {
			res.Max[f] = a.max[f]
		}
	}
	return res
}

func numeric(e entity.Entity, field string) (float64, bool) {
	v, ok := e.Get(field)
	if !ok {
		return 0, false
	}
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

func less(a, b any) bool {
	af, aok := numericAny(a)
	bf, bok := numericAny(b)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func numericAny(v any) (float64, bool) {
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

// groupKey canonicalizes the group-by field values into a lookup key
// and the displayable group map.
func groupKey(e entity.Entity, fields []string) (string, map[string]any) {
	group := make(map[string]any, len(fields))
	key := ""
	for _, f := range fields {
		v, _ := e.Get(f)
		group[f] = v
		key += f + "=" + toKeyString(v) + "\x1f"
	}
	return key, group
}

func toKeyString(v any) string {
	if v == nil {
		return "\x00nil"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Run executes req over entities (already
// filtered by the caller's planner/evaluator pass). Without GroupBy
// it returns a single Result; with GroupBy, one Result per distinct
// combination of group-by field values, in unspecified order.
func Run(entities []entity.Entity, req Request) []Result {
	if len(req.GroupBy) == 0 {
		acc := newAccumulator()
		for _, e := range entities {
			acc.add(e, req)
		}
		return []Result{acc.result(nil, req)}
	}

	order := make([]string, 0)
	groups := make(map[string]*accumulator)
	displays := make(map[string]map[string]any)

	for _, e := range entities {
		key, group := groupKey(e, req.GroupBy)
		acc, ok := groups[key]
		if !ok {
			acc = newAccumulator()
			groups[key] = acc
			displays[key] = group
			order = append(order, key)
		}
		acc.add(e, req)
	}

	out := make([]Result, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key].result(displays[key], req))
	}
	return out
}
