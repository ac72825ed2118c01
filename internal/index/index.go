// Package index implements the secondary-index manager (C3): building,
// maintaining, and consulting single and composite equality indexes
// over a collection's entities.
//
// Grounded on the vendored hashicorp/go-memdb transaction's
// readable/writable index split (other_examples: moby-moby's vendored
// go-memdb txn.go) and the teacher's SSOT lookup-table idiom seen in
// mapping/operators.go.
package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prose-ql/prose/internal/entity"
)

// Declaration is a single index declaration: an ordered list of field
// names. len(Fields) == 1 is a single-field index; longer is
// composite, keyed by the canonical serialization of the ordered
// tuple.
type Declaration struct {
	Fields []string
}

// Key returns the canonical bucket key for the given ordered field
// values. Missing values must be filtered by the caller before calling
// Key: an entity with an absent/null indexed field is not indexed at
// all (data model invariant iii).
func Key(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}

// Manager owns every declared index for one collection.
type Manager struct {
	decls   []Declaration
	buckets []map[string]map[string]struct{} // per-declaration: key -> id set
}

// Build constructs a Manager from declarations and the initial entity
// set.
func Build(decls []Declaration, entities []entity.Entity) *Manager {
	m := &Manager{
		decls:   decls,
		buckets: make([]map[string]map[string]struct{}, len(decls)),
	}
	for i := range decls {
		m.buckets[i] = make(map[string]map[string]struct{})
	}
	for _, e := range entities {
		m.OnCreate(e)
	}
	return m
}

// Declarations returns the ordered index declarations, in the order
// they were originally declared (used by the planner's tie-break
// rule: "prefer ... the index declared first").
func (m *Manager) Declarations() [][]string {
	out := make([][]string, len(m.decls))
	for i, d := range m.decls {
		out[i] = d.Fields
	}
	return out
}

// fieldValues returns the ordered values for fields on e, and whether
// every field was present (non-nil). An entity missing any indexed
// field is not indexed under that declaration.
func fieldValues(e entity.Entity, fields []string) ([]any, bool) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v, ok := e.Get(f)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func (m *Manager) bucketFor(declIdx int, key string) map[string]struct{} {
	b, ok := m.buckets[declIdx][key]
	if !ok {
		b = make(map[string]struct{})
		m.buckets[declIdx][key] = b
	}
	return b
}

// OnCreate indexes a newly created entity.
func (m *Manager) OnCreate(e entity.Entity) {
	id := e.ID()
	for i, d := range m.decls {
		values, ok := fieldValues(e, d.Fields)
		if !ok {
			continue
		}
		key := Key(values)
		m.bucketFor(i, key)[id] = struct{}{}
	}
}

// OnUpdate reindexes an entity whose fields changed from old to
// updated.
func (m *Manager) OnUpdate(old, updated entity.Entity) {
	id := old.ID()
	for i, d := range m.decls {
		oldValues, oldOK := fieldValues(old, d.Fields)
		newValues, newOK := fieldValues(updated, d.Fields)

		var oldKey, newKey string
		if oldOK {
			oldKey = Key(oldValues)
		}
		if newOK {
			newKey = Key(newValues)
		}
		if oldOK && newOK && oldKey == newKey {
			continue
		}
		if oldOK {
			m.removeFromBucket(i, oldKey, id)
		}
		if newOK {
			m.bucketFor(i, newKey)[id] = struct{}{}
		}
	}
}

// OnDelete removes an entity from every bucket it was indexed under.
func (m *Manager) OnDelete(e entity.Entity) {
	id := e.ID()
	for i, d := range m.decls {
		values, ok := fieldValues(e, d.Fields)
		if !ok {
			continue
		}
		m.removeFromBucket(i, Key(values), id)
	}
}

func (m *Manager) removeFromBucket(declIdx int, key, id string) {
	b, ok := m.buckets[declIdx][key]
	if !ok {
		return
	}
	delete(b, id)
	if len(b) == 0 {
		delete(m.buckets[declIdx], key)
	}
}

// declIndex returns the index of the declaration matching fields
// (order-sensitive: callers must pass fields in the declared order),
// or -1.
func (m *Manager) declIndex(fields []string) int {
	for i, d := range m.decls {
		if sameFields(d.Fields, fields) {
			return i
		}
	}
	return -1
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Lookup returns the id set for an equality condition on the declared
// index identified by fields (in declared order), and whether that
// declaration exists.
func (m *Manager) Lookup(fields []string, key string) (map[string]struct{}, bool) {
	i := m.declIndex(fields)
	if i < 0 {
		return nil, false
	}
	b, ok := m.buckets[i][key]
	if !ok {
		return map[string]struct{}{}, true
	}
	out := make(map[string]struct{}, len(b))
	for id := range b {
		out[id] = struct{}{}
	}
	return out, true
}

// LookupMany unions the buckets for every key in keys (used for $in on
// an indexed field).
func (m *Manager) LookupMany(fields []string, keys []string) (map[string]struct{}, bool) {
	i := m.declIndex(fields)
	if i < 0 {
		return nil, false
	}
	out := make(map[string]struct{})
	for _, key := range keys {
		for id := range m.buckets[i][key] {
			out[id] = struct{}{}
		}
	}
	return out, true
}

// MatchFieldOrder finds the declaration matching the given field set
// (order-insensitive), returning the declaration's own field order (so
// the caller can build a key in the right order) and whether a match
// was found. The query planner does not call it: candidateIDs checks
// each declaration's fields against the where clause directly, which
// is likewise order-insensitive.
func (m *Manager) MatchFieldOrder(fields []string) ([]string, bool) {
	want := append([]string(nil), fields...)
	sort.Strings(want)
	for _, d := range m.decls {
		if len(d.Fields) != len(fields) {
			continue
		}
		got := append([]string(nil), d.Fields...)
		sort.Strings(got)
		if sameFields(got, want) {
			return d.Fields, true
		}
	}
	return nil, false
}

// Clone deep-copies the manager so a transaction's working index state
// can diverge from the live one without aliasing buckets.
func (m *Manager) Clone() *Manager {
	out := &Manager{
		decls:   m.decls,
		buckets: make([]map[string]map[string]struct{}, len(m.buckets)),
	}
	for i, b := range m.buckets {
		nb := make(map[string]map[string]struct{}, len(b))
		for k, ids := range b {
			nids := make(map[string]struct{}, len(ids))
			for id := range ids {
				nids[id] = struct{}{}
			}
			nb[k] = nids
		}
		out.buckets[i] = nb
	}
	return out
}
