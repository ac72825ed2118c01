package query

import (
	"sort"
	"strings"

	"github.com/prose-ql/prose/internal/entity"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one (field, direction) pair. Order within a Sort slice is
// significant: primary, secondary, ….
type SortKey struct {
	Field     string
	Direction Direction
}

// compareValues implements the ordering spec §4.2 describes: numeric
// comparison if both values are finite numbers, lexicographic if both
// are strings, else nulls/undefined sort greatest.
func compareValues(a, b any) int {
	aMissing := a == nil
	bMissing := b == nil
	if aMissing && bMissing {
		return 0
	}
	if aMissing {
		return 1
	}
	if bMissing {
		return -1
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}
	// Type mismatch that isn't number/number or string/string (or a
	// type that is neither): the pair compares as equal, so the next
	// sort key or the stable sort's existing order decides.
	return 0
}

// sortEntities stably sorts entities in place according to keys. When
// keys is empty, entities are sorted by id to guarantee the
// determinism spec §4.2 requires even with "no sort specified".
func sortEntities(entities []entity.Entity, keys []SortKey) {
	if len(keys) == 0 {
		keys = []SortKey{{Field: entity.IDField, Direction: Asc}}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		for _, k := range keys {
			av, _ := entities[i].Get(k.Field)
			bv, _ := entities[j].Get(k.Field)
			c := compareValues(av, bv)
			if k.Direction == Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
