// Package mongo implements a persist.Collaborator over a MongoDB
// collection, used as the full-file-rewrite adapter from §6(a).
// Grounded on the teacher's mongoFind/mongoInsert/mongoDelete handling
// in client.go, against go.mongodb.org/mongo-driver, the teacher's
// direct dependency for its MongoDB dialect.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/prose-ql/prose/internal/entity"
)

// Adapter mirrors one collection's full entity set into a MongoDB
// collection on every Flush.
type Adapter struct {
	coll *mongo.Collection
	ctx  context.Context
}

// New wraps an existing Mongo collection handle.
func New(coll *mongo.Collection) *Adapter {
	return &Adapter{coll: coll, ctx: context.Background()}
}

// Flush performs the full-file rewrite: delete everything, then
// reinsert the given entity set.
func (a *Adapter) Flush(entities []entity.Entity) error {
	if _, err := a.coll.DeleteMany(a.ctx, bson.M{}); err != nil {
		return fmt.Errorf("mongo persist: delete: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}
	docs := make([]any, len(entities))
	for i, e := range entities {
		docs[i] = entityToBSON(e)
	}
	if _, err := a.coll.InsertMany(a.ctx, docs); err != nil {
		return fmt.Errorf("mongo persist: insert: %w", err)
	}
	return nil
}

// Append inserts a single newly created entity. Most full-file
// collaborators don't need incremental appends, but implementing it
// lets a journal-style collection switch adapters without code
// changes.
func (a *Adapter) Append(e entity.Entity) error {
	if _, err := a.coll.InsertOne(a.ctx, entityToBSON(e)); err != nil {
		return fmt.Errorf("mongo persist: insert one: %w", err)
	}
	return nil
}

// Load reads every document back as the initial entity array.
func (a *Adapter) Load() ([]entity.Entity, error) {
	cursor, err := a.coll.Find(a.ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo persist: find: %w", err)
	}
	defer cursor.Close(a.ctx)

	var out []entity.Entity
	for cursor.Next(a.ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo persist: decode: %w", err)
		}
		delete(doc, "_id")
		out = append(out, entity.Entity(doc))
	}
	return out, cursor.Err()
}

func entityToBSON(e entity.Entity) bson.M {
	m := make(bson.M, len(e))
	for k, v := range e {
		m[k] = v
	}
	return m
}
