package query

import "github.com/prose-ql/prose/internal/entity"

// Options is the full set of query parameters spec §4.2 defines:
// where, sort, limit, offset, select.
type Options struct {
	Where    Where
	Sort     []SortKey
	Limit    *int
	Offset   *int
	Select   []string
	Analyzer Analyzer
}

// Cursor is a finite, non-restartable sequence of matching entities.
// Run filters, sorts, offsets and limits eagerly and the Cursor holds
// its own map of those results, so it does not stream from the source
// snapshot and later writes never change what it yields. Only the
// select projection is applied as each element is pulled.
type Cursor struct {
	snapshot map[string]entity.Entity
	ids      []string
	pos      int
	selected []string
}

// Next returns the next entity in the cursor, or false when exhausted.
func (c *Cursor) Next() (entity.Entity, bool) {
	if c.pos >= len(c.ids) {
		return nil, false
	}
	id := c.ids[c.pos]
	c.pos++
	e, ok := c.snapshot[id]
	if !ok {
		return c.Next()
	}
	if c.selected != nil {
		e = project(e, c.selected)
	}
	return e, true
}

// Collect materializes every remaining element of the cursor.
func (c *Cursor) Collect() []entity.Entity {
	out := make([]entity.Entity, 0, len(c.ids)-c.pos)
	for {
		e, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// project narrows e to fields plus id, always.
func project(e entity.Entity, fields []string) entity.Entity {
	out := make(entity.Entity, len(fields)+1)
	out[entity.IDField] = e[entity.IDField]
	for _, f := range fields {
		if v, ok := e[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Run evaluates opts against snapshot, consulting idx for an indexed
// plan where possible, and returns a Cursor over the sorted,
// offset/limited, projected results.
func Run(snapshot map[string]entity.Entity, idx IndexSource, opts Options) *Cursor {
	var matched []entity.Entity

	if ids, planned := candidateIDs(opts.Where, idx); planned {
		for id := range ids {
			e, ok := snapshot[id]
			if !ok {
				continue
			}
			if Matches(e, opts.Where, opts.Analyzer) {
				matched = append(matched, e)
			}
		}
	} else {
		for _, e := range snapshot {
			if Matches(e, opts.Where, opts.Analyzer) {
				matched = append(matched, e)
			}
		}
	}

	sortEntities(matched, opts.Sort)

	start := 0
	if opts.Offset != nil && *opts.Offset > 0 {
		start = *opts.Offset
	}
	if start > len(matched) {
		start = len(matched)
	}
	matched = matched[start:]

	if opts.Limit != nil && *opts.Limit >= 0 && *opts.Limit < len(matched) {
		matched = matched[:*opts.Limit]
	}

	ids := make([]string, len(matched))
	snap := make(map[string]entity.Entity, len(matched))
	for i, e := range matched {
		ids[i] = e.ID()
		snap[ids[i]] = e
	}

	return &Cursor{snapshot: snap, ids: ids, selected: opts.Select}
}
