package prose

import (
	"fmt"
	"sync"

	"github.com/prose-ql/prose/internal/aggregate"
	"github.com/prose-ql/prose/internal/collection"
	"github.com/prose-ql/prose/internal/config"
	"github.com/prose-ql/prose/internal/crud"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/errs"
	"github.com/prose-ql/prose/internal/index"
	"github.com/prose-ql/prose/internal/persist"
	"github.com/prose-ql/prose/internal/query"
	"github.com/prose-ql/prose/internal/relate"
	"github.com/prose-ql/prose/internal/schema"
	"github.com/prose-ql/prose/internal/txn"
)

// Re-exported so callers don't need to import the internal packages
// directly to build a Transaction function, a Where clause, or an
// Aggregate request.
type (
	Where             = query.Where
	QueryOptions      = query.Options
	SortKey           = query.SortKey
	Cursor            = query.Cursor
	AggregateRequest  = aggregate.Request
	AggregateResult   = aggregate.Result
	TxContext         = txn.Context
	SkipRecord        = crud.SkipRecord
	RelationshipPolicy = relate.Policy
)

// Database owns every collection's live state and index manager. Every
// single-call CRUD/query/aggregate operation holds mu for its whole
// duration; a transaction body (internal/txn.Manager) instead takes mu
// only per first-touched collection and for its final commit swap, per
// §5's "transactions hold the lock for the final commit swap only."
type Database struct {
	mu   sync.Mutex
	cols map[string]*crud.CollectionRuntime
	inv  map[string][]relate.Inverse
	txm  *txn.Manager
}

// CollectionSeed supplies a collection's initial entity set and its
// external collaborators (schema validator, persistence adapter).
// Omit Validator to fall back to schema.Identity; omit Persist to run
// without a persistence collaborator at all.
type CollectionSeed struct {
	Entities  []Entity
	Validator schema.Validator
	Persist   persist.Collaborator
}

// NewDatabase builds every configured collection: deduplicating its
// seed by id (last-wins), loading from its persistence collaborator
// when no seed was supplied, building its declared indexes, and
// deriving every inverse relationship from the other collections'
// forward ref declarations.
func NewDatabase(cfg config.Config, seeds map[string]CollectionSeed) (*Database, error) {
	db := &Database{
		cols: make(map[string]*crud.CollectionRuntime, len(cfg)),
		inv:  make(map[string][]relate.Inverse),
	}

	for name, cc := range cfg {
		seed := seeds[name]

		entities := seed.Entities
		if len(entities) == 0 && seed.Persist != nil {
			loaded, err := seed.Persist.Load()
			if err != nil {
				return nil, fmt.Errorf("prose: load collection %q: %w", name, err)
			}
			entities = loaded
		}
		entities = dedupeByID(entities)

		validator := seed.Validator
		if validator == nil {
			validator = schema.Identity{}
		}

		refs := make([]relate.Ref, 0, len(cc.Relationships))
		for _, rc := range cc.Relationships {
			refs = append(refs, relate.Ref{Field: rc.Field, Target: cfg.TargetCollection(rc.Ref)})
		}

		decls := make([]index.Declaration, 0, len(cc.Indexes))
		for _, fields := range cc.Indexes {
			decls = append(decls, index.Declaration{Fields: fields})
		}

		db.cols[name] = &crud.CollectionRuntime{
			Name:       name,
			State:      collection.New(seedSnapshot(entities)),
			Index:      index.Build(decls, entities),
			Refs:       refs,
			UniqueSets: cc.UniqueFields,
			AppendOnly: cc.AppendOnly,
			SoftDelete: cc.SoftDelete,
			Validator:  validator,
			Persist:    seed.Persist,
		}
	}

	for name, cc := range cfg {
		for _, rc := range cc.Relationships {
			target := cfg.TargetCollection(rc.Ref)
			policy := relate.Policy(rc.Policy)
			if policy == "" {
				policy = relate.Restrict
			}
			db.inv[target] = append(db.inv[target], relate.Inverse{
				SourceCollection: name,
				Field:            rc.Field,
				Policy:           policy,
			})
		}
	}

	db.txm = txn.NewManager(&db.mu, db)
	return db, nil
}

func dedupeByID(seed []Entity) []Entity {
	seen := make(map[string]Entity, len(seed))
	order := make([]string, 0, len(seed))
	for _, e := range seed {
		id := e.ID()
		if _, ok := seen[id]; !ok {
			order = append(order, id)
		}
		seen[id] = e
	}
	out := make([]Entity, len(order))
	for i, id := range order {
		out[i] = seen[id]
	}
	return out
}

func seedSnapshot(entities []Entity) collection.Snapshot[entity.Entity] {
	out := make(collection.Snapshot[entity.Entity], len(entities))
	for _, e := range entities {
		out[e.ID()] = e
	}
	return out
}

// Collection and Inverses satisfy crud.Registry, letting the Database
// itself stand in directly for every crud.* function call below.
func (db *Database) Collection(name string) (*crud.CollectionRuntime, bool) {
	cr, ok := db.cols[name]
	return cr, ok
}

func (db *Database) Inverses(name string) []relate.Inverse {
	return db.inv[name]
}

func (db *Database) Create(collectionName string, input map[string]any) (Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.Create(db, collectionName, input)
}

func (db *Database) CreateMany(collectionName string, inputs []map[string]any, skipDuplicates bool) ([]Entity, []SkipRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.CreateMany(db, collectionName, inputs, skipDuplicates)
}

func (db *Database) Update(collectionName, id string, patch map[string]any) (Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.Update(db, collectionName, id, patch)
}

func (db *Database) UpdateMany(collectionName string, where Where, patch map[string]any) ([]Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.UpdateMany(db, collectionName, where, patch)
}

func (db *Database) Delete(collectionName, id string, soft bool) (Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.Delete(db, collectionName, id, soft)
}

func (db *Database) DeleteMany(collectionName string, where Where, soft bool) ([]Entity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.DeleteMany(db, collectionName, where, soft)
}

// Upsert evaluates where against collectionName. Exactly one match
// applies updatePatch and reports "updated"; zero matches applies
// create (merged with where's values) and reports "created"; two or
// more is an OperationError.
func (db *Database) Upsert(collectionName string, where, createInput, updatePatch map[string]any) (Entity, string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return crud.Upsert(db, collectionName, where, createInput, updatePatch)
}

// Query evaluates opts against collectionName's current live state.
func (db *Database) Query(collectionName string, opts QueryOptions) (*Cursor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cr, ok := db.Collection(collectionName)
	if !ok {
		return nil, &errs.OperationError{Operation: "query", Reason: fmt.Sprintf("no such collection %q", collectionName)}
	}
	return query.Run(cr.State.Snapshot(), cr.Index, opts), nil
}

// Aggregate runs req over collectionName's current live state.
func (db *Database) Aggregate(collectionName string, req AggregateRequest) ([]AggregateResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cr, ok := db.Collection(collectionName)
	if !ok {
		return nil, &errs.OperationError{Operation: "aggregate", Reason: fmt.Sprintf("no such collection %q", collectionName)}
	}
	filtered := query.Run(cr.State.Snapshot(), cr.Index, query.Options{Where: req.Where}).Collect()
	return aggregate.Run(filtered, req), nil
}

// Transaction runs fn with a staging context exposing the same
// operations as the Database itself. See internal/txn for the
// commit/rollback semantics.
func (db *Database) Transaction(fn func(ctx *TxContext) error) error {
	return db.txm.Run(fn)
}
