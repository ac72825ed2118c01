package query

import "github.com/prose-ql/prose/internal/index"

// IndexSource is the subset of index.Manager the planner consults.
// index.Manager satisfies this implicitly.
type IndexSource interface {
	Declarations() [][]string
	Lookup(fields []string, key string) (map[string]struct{}, bool)
	LookupMany(fields []string, keys []string) (map[string]struct{}, bool)
}

// candidateIDs implements the planner described in spec §4.2: prefer
// an index whose declared fields are all satisfied by equality
// conditions in where (order-insensitive match against declared
// order), tie-broken by most-matched-fields then declaration order;
// otherwise fall back to a union over $in on a single-field index; a
// nil, false result means "enumerate the entire collection".
func candidateIDs(where Where, idx IndexSource) (map[string]struct{}, bool) {
	if idx == nil {
		return nil, false
	}

	decls := idx.Declarations()

	var best []string
	bestLen := -1
	for _, fields := range decls {
		allEq := true
		for _, f := range fields {
			if v, ok := where.HasEq(f); !ok || v == nil {
				allEq = false
				break
			}
		}
		if allEq && len(fields) > bestLen {
			best = fields
			bestLen = len(fields)
		}
	}
	if best != nil {
		values := make([]any, len(best))
		for i, f := range best {
			v, _ := where.HasEq(f)
			values[i] = v
		}
		return idx.Lookup(best, index.Key(values))
	}

	for _, fields := range decls {
		if len(fields) != 1 {
			continue
		}
		field := fields[0]
		fc, ok := where[field]
		if !ok {
			continue
		}
		inOperand, ok := fc.Ops["$in"]
		if !ok {
			continue
		}
		elems, ok := toSlice(inOperand)
		if !ok {
			continue
		}
		keys := make([]string, 0, len(elems))
		for _, el := range elems {
			if el == nil {
				break
			}
			keys = append(keys, index.Key([]any{el}))
		}
		if len(keys) != len(elems) {
			continue
		}
		return idx.LookupMany(fields, keys)
	}

	return nil, false
}
