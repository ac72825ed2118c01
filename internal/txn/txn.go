// Package txn implements the transaction manager (C5): a caller
// function runs against a Context that stages every collection it
// touches in a copy-on-write working copy, committing all of them
// together on success or discarding all of them on failure/rollback.
//
// Grounded on the vendored hashicorp/go-memdb transaction's
// readable/writable index split and single critical-section commit
// swap (other_examples: moby-moby's vendored go-memdb txn.go) and DB
// NOTES §9 ("the replacement of all touched collections must be
// observed together").
package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/prose-ql/prose/internal/aggregate"
	"github.com/prose-ql/prose/internal/audit"
	"github.com/prose-ql/prose/internal/collection"
	"github.com/prose-ql/prose/internal/crud"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/errs"
	"github.com/prose-ql/prose/internal/log"
	"github.com/prose-ql/prose/internal/query"
	"github.com/prose-ql/prose/internal/relate"
)

// Context is the per-collection surface a transaction body operates
// against: the same CRUD/query/aggregate operations the database
// exposes, routed through lazily-staged working copies instead of the
// live state. Every successful mutation is also appended to changes,
// which becomes the transaction's audit log on commit.
//
// mu is the database's shared mutex, held only for the instant a
// collection is first cloned into the staging area (reading the live
// index) and for the final commit swap — never for the body in
// between, per §5's "transactions hold the lock for the final commit
// swap only" (collection.State's snapshot is a single atomic pointer
// load, safe to read without mu; the index manager isn't, so cloning
// it still needs the brief hold).
type Context struct {
	parent  crud.Registry
	staged  map[string]*crud.CollectionRuntime
	changes []audit.Change
	mu      *sync.Mutex
}

// Collection satisfies crud.Registry: it returns the staged working
// copy if this collection has already been touched in the current
// transaction, lazily cloning from the live parent on first touch.
// Cloning briefly holds the database's shared mutex; the clone itself
// is then private to this Context for the rest of the transaction.
func (c *Context) Collection(name string) (*crud.CollectionRuntime, bool) {
	if cr, ok := c.staged[name]; ok {
		return cr, true
	}
	c.mu.Lock()
	live, ok := c.parent.Collection(name)
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	staged := &crud.CollectionRuntime{
		Name:       live.Name,
		State:      collection.New(live.State.Snapshot().Clone()),
		Index:      live.Index.Clone(),
		Refs:       live.Refs,
		UniqueSets: live.UniqueSets,
		AppendOnly: live.AppendOnly,
		SoftDelete: live.SoftDelete,
		Validator:  live.Validator,
		Persist:    live.Persist,
	}
	c.mu.Unlock()
	c.staged[name] = staged
	return staged, true
}

// Inverses delegates straight to the parent: relationship declarations
// don't change mid-transaction.
func (c *Context) Inverses(name string) []relate.Inverse {
	return c.parent.Inverses(name)
}

// Rollback returns the distinguished rollback sentinel. A transaction
// body requests a clean rollback by returning ctx.Rollback()'s result.
func (c *Context) Rollback() error {
	return errs.ErrRollback
}

func (c *Context) record(collectionName, op string, e entity.Entity) {
	c.changes = append(c.changes, audit.Change{Collection: collectionName, ID: e.ID(), Op: op, Entity: e})
}

func (c *Context) Create(collectionName string, input map[string]any) (entity.Entity, error) {
	e, err := crud.Create(c, collectionName, input)
	if err == nil {
		c.record(collectionName, "create", e)
	}
	return e, err
}

func (c *Context) CreateMany(collectionName string, inputs []map[string]any, skipDuplicates bool) ([]entity.Entity, []crud.SkipRecord, error) {
	created, skipped, err := crud.CreateMany(c, collectionName, inputs, skipDuplicates)
	if err == nil {
		for _, e := range created {
			c.record(collectionName, "create", e)
		}
	}
	return created, skipped, err
}

func (c *Context) Update(collectionName, id string, patch map[string]any) (entity.Entity, error) {
	e, err := crud.Update(c, collectionName, id, patch)
	if err == nil {
		c.record(collectionName, "update", e)
	}
	return e, err
}

func (c *Context) UpdateMany(collectionName string, where query.Where, patch map[string]any) ([]entity.Entity, error) {
	updated, err := crud.UpdateMany(c, collectionName, where, patch)
	if err == nil {
		for _, e := range updated {
			c.record(collectionName, "update", e)
		}
	}
	return updated, err
}

func (c *Context) Delete(collectionName, id string, soft bool) (entity.Entity, error) {
	e, err := crud.Delete(c, collectionName, id, soft)
	if err == nil {
		c.record(collectionName, "delete", e)
	}
	return e, err
}

func (c *Context) DeleteMany(collectionName string, where query.Where, soft bool) ([]entity.Entity, error) {
	deleted, err := crud.DeleteMany(c, collectionName, where, soft)
	if err == nil {
		for _, e := range deleted {
			c.record(collectionName, "delete", e)
		}
	}
	return deleted, err
}

func (c *Context) Upsert(collectionName string, where, createInput, updatePatch map[string]any) (entity.Entity, string, error) {
	e, verb, err := crud.Upsert(c, collectionName, where, createInput, updatePatch)
	if err == nil {
		op := "update"
		if verb == "created" {
			op = "create"
		}
		c.record(collectionName, op, e)
	}
	return e, verb, err
}

// Query runs opts against collectionName's current transaction view:
// its staged working copy, staged from the live state on first touch
// (a read stages the collection just as a write does).
func (c *Context) Query(collectionName string, opts query.Options) (*query.Cursor, error) {
	cr, ok := c.Collection(collectionName)
	if !ok {
		return nil, &errs.OperationError{Operation: "query", Reason: fmt.Sprintf("no such collection %q", collectionName)}
	}
	return query.Run(cr.State.Snapshot(), cr.Index, opts), nil
}

// Aggregate runs req over collectionName's current transaction view.
func (c *Context) Aggregate(collectionName string, req aggregate.Request) ([]aggregate.Result, error) {
	cr, ok := c.Collection(collectionName)
	if !ok {
		return nil, &errs.OperationError{Operation: "aggregate", Reason: fmt.Sprintf("no such collection %q", collectionName)}
	}
	filtered := query.Run(cr.State.Snapshot(), cr.Index, query.Options{Where: req.Where}).Collect()
	return aggregate.Run(filtered, req), nil
}

// commit copies every staged working copy back onto the parent's live
// CollectionRuntime, all within the caller's held lock, then encodes
// the transaction's accumulated changes as an audit log. Encoding
// failures are logged and otherwise ignored: the audit trail is an
// observability aid, not part of the commit's success condition.
func (c *Context) commit() {
	for name, staged := range c.staged {
		live, ok := c.parent.Collection(name)
		if !ok {
			continue
		}
		live.State.ReplaceAll(staged.State.Snapshot())
		live.Index = staged.Index
		log.Debugw("transaction committed collection", "collection", name)
	}

	if len(c.changes) == 0 {
		return
	}
	envelope, err := audit.Build(time.Now(), c.changes)
	if err != nil {
		log.Warnw("audit log build failed", "error", err)
		return
	}
	data, err := audit.Marshal(envelope)
	if err != nil {
		log.Warnw("audit log marshal failed", "error", err)
		return
	}
	log.Debugw("transaction audit log encoded", "bytes", len(data), "changes", len(c.changes))
}

// Manager runs transactions against a single registry, serialized by a
// shared mutex and rejecting nested transactions.
//
// Nesting is detected through a separate, short-held flagMu rather
// than mu itself: mu is only held momentarily (per-collection staging,
// and the final commit swap — see Run and Context.Collection), so a
// plain active bool guarded by its own lock is both sufficient and
// necessary to reject a nested call without ever touching mu.
type Manager struct {
	mu     *sync.Mutex
	reg    crud.Registry
	flagMu sync.Mutex
	active bool
}

// NewManager builds a Manager over reg, serialized by mu (the same
// mutex the host database uses for every other operation).
func NewManager(mu *sync.Mutex, reg crud.Registry) *Manager {
	return &Manager{mu: mu, reg: reg}
}

// Run executes fn against a fresh Context. Per §5, the body runs
// against its own staged working copies without holding the database
// lock — mu is only taken for an instant per first-touched collection
// (inside Context.Collection) and again for the final commit swap, so
// lock contention from a transaction is bounded to those moments
// rather than the whole body's duration. If fn returns nil, every
// collection it touched is committed atomically; any non-nil return
// (including the rollback sentinel from ctx.Rollback()) discards the
// working state entirely, leaving the live database unchanged.
func (m *Manager) Run(fn func(ctx *Context) error) (err error) {
	m.flagMu.Lock()
	if m.active {
		m.flagMu.Unlock()
		return &errs.TransactionError{Operation: "begin", Reason: "nested transactions are not allowed"}
	}
	m.active = true
	m.flagMu.Unlock()
	defer func() {
		m.flagMu.Lock()
		m.active = false
		m.flagMu.Unlock()
	}()

	ctx := &Context{parent: m.reg, staged: make(map[string]*crud.CollectionRuntime), mu: m.mu}

	defer func() {
		if r := recover(); r != nil {
			err = &errs.TransactionError{Operation: "commit", Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if ferr := fn(ctx); ferr != nil {
		return ferr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ctx.commit()
	return nil
}
