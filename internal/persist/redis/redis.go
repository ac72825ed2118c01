// Package redis implements a persist.Collaborator over a Redis list,
// used as the append-only journal adapter from §6(b). Grounded on the
// teacher's own Redis command handling in client.go (HGetAll/RPush
// style single-key operations against github.com/redis/go-redis/v9,
// the teacher's direct dependency for its Redis dialect).
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prose-ql/prose/internal/entity"
)

// Adapter journals one collection's creates onto the Redis list at its
// key, and rehydrates it on Load.
type Adapter struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

// New wraps an existing Redis client. key names the journal list,
// typically derived from the collection name (e.g. "books:journal").
func New(client *redis.Client, key string) *Adapter {
	return &Adapter{client: client, key: key, ctx: context.Background()}
}

// Append pushes one newly created entity onto the journal list.
func (a *Adapter) Append(e entity.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis persist: encode entity: %w", err)
	}
	if err := a.client.RPush(a.ctx, a.key, data).Err(); err != nil {
		return fmt.Errorf("redis persist: rpush: %w", err)
	}
	return nil
}

// Flush replaces the entire journal with the given entity set, used
// when a collection configured for journal-mode persistence is also
// asked to perform a full rewrite (after every update or delete).
func (a *Adapter) Flush(entities []entity.Entity) error {
	pipe := a.client.TxPipeline()
	pipe.Del(a.ctx, a.key)
	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis persist: encode entity: %w", err)
		}
		pipe.RPush(a.ctx, a.key, data)
	}
	if _, err := pipe.Exec(a.ctx); err != nil {
		return fmt.Errorf("redis persist: flush: %w", err)
	}
	return nil
}

// Load rehydrates the initial entity array from the journal.
func (a *Adapter) Load() ([]entity.Entity, error) {
	raw, err := a.client.LRange(a.ctx, a.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis persist: lrange: %w", err)
	}
	out := make([]entity.Entity, 0, len(raw))
	for _, line := range raw {
		var e entity.Entity
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("redis persist: decode entity: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
