package txn

import (
	"errors"
	"sync"
	"testing"

	"github.com/prose-ql/prose/internal/collection"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/errs"
	"github.com/prose-ql/prose/internal/index"
	"github.com/prose-ql/prose/internal/relate"
	"github.com/prose-ql/prose/internal/schema"

	"github.com/prose-ql/prose/internal/crud"
)

type fakeDB struct {
	collections map[string]*crud.CollectionRuntime
	inverses    map[string][]relate.Inverse
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		collections: make(map[string]*crud.CollectionRuntime),
		inverses:    make(map[string][]relate.Inverse),
	}
}

func (db *fakeDB) add(name string, refs []relate.Ref) {
	db.collections[name] = &crud.CollectionRuntime{
		Name:      name,
		State:     collection.New[entity.Entity](nil),
		Index:     index.Build(nil, nil),
		Refs:      refs,
		Validator: schema.Identity{},
	}
}

func (db *fakeDB) Collection(name string) (*crud.CollectionRuntime, bool) {
	cr, ok := db.collections[name]
	return cr, ok
}

func (db *fakeDB) Inverses(name string) []relate.Inverse {
	return db.inverses[name]
}

func TestTransactionCommitsAllTouchedCollections(t *testing.T) {
	db := newFakeDB()
	db.add("authors", nil)
	db.add("books", []relate.Ref{{Field: "authorId", Target: "authors"}})

	mgr := NewManager(&sync.Mutex{}, db)
	err := mgr.Run(func(ctx *Context) error {
		if _, err := ctx.Create("authors", map[string]any{"id": "a1", "name": "Ursula"}); err != nil {
			return err
		}
		if _, err := ctx.Create("books", map[string]any{"id": "b1", "authorId": "a1"}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	authors, _ := db.Collection("authors")
	if _, ok := authors.State.Get("a1"); !ok {
		t.Fatalf("expected author committed to live state")
	}
	books, _ := db.Collection("books")
	if _, ok := books.State.Get("b1"); !ok {
		t.Fatalf("expected book committed to live state")
	}
}

func TestTransactionRollbackDiscardsChanges(t *testing.T) {
	db := newFakeDB()
	db.add("authors", nil)

	mgr := NewManager(&sync.Mutex{}, db)
	err := mgr.Run(func(ctx *Context) error {
		if _, err := ctx.Create("authors", map[string]any{"id": "a1", "name": "Ursula"}); err != nil {
			return err
		}
		return ctx.Rollback()
	})
	if !errs.IsRollback(err) {
		t.Fatalf("expected the rollback sentinel, got %v", err)
	}

	authors, _ := db.Collection("authors")
	if authors.State.Len() != 0 {
		t.Fatalf("expected no committed authors after rollback, got %d", authors.State.Len())
	}
}

func TestTransactionAbortsOnBodyError(t *testing.T) {
	db := newFakeDB()
	db.add("authors", nil)
	db.add("books", []relate.Ref{{Field: "authorId", Target: "authors"}})

	mgr := NewManager(&sync.Mutex{}, db)
	sentinel := errors.New("boom")
	err := mgr.Run(func(ctx *Context) error {
		if _, err := ctx.Create("authors", map[string]any{"id": "a1", "name": "Ursula"}); err != nil {
			return err
		}
		// This book references a nonexistent author, in addition to
		// the sentinel failure being forced below.
		if _, err := ctx.Create("books", map[string]any{"id": "b1", "authorId": "missing"}); err != nil {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the sentinel error, got %v", err)
	}

	authors, _ := db.Collection("authors")
	if authors.State.Len() != 0 {
		t.Fatalf("expected the author create to be rolled back too, got %d entities", authors.State.Len())
	}
}

func TestNestedTransactionRejected(t *testing.T) {
	db := newFakeDB()
	db.add("authors", nil)

	mgr := NewManager(&sync.Mutex{}, db)
	var nestedErr error
	err := mgr.Run(func(ctx *Context) error {
		nestedErr = mgr.Run(func(inner *Context) error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer transaction: %v", err)
	}
	var txErr *errs.TransactionError
	if !errors.As(nestedErr, &txErr) {
		t.Fatalf("expected TransactionError for a nested transaction, got %v", nestedErr)
	}
}

func TestTransactionReadsOwnWritesWithinBody(t *testing.T) {
	db := newFakeDB()
	db.add("counters", nil)

	mgr := NewManager(&sync.Mutex{}, db)
	err := mgr.Run(func(ctx *Context) error {
		if _, err := ctx.Create("counters", map[string]any{"id": "c1", "count": 1.0}); err != nil {
			return err
		}
		updated, err := ctx.Update("counters", "c1", map[string]any{"count": map[string]any{"$increment": 1}})
		if err != nil {
			return err
		}
		if v, _ := updated.Get("count"); v != 2.0 {
			t.Fatalf("count = %v; want 2.0 (read-your-own-write within the transaction)", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}
