package index

import (
	"testing"

	"github.com/prose-ql/prose/internal/entity"
)

func books() []entity.Entity {
	return []entity.Entity{
		{"id": "1", "title": "Dune", "genre": "sci-fi"},
		{"id": "2", "title": "Neuromancer", "genre": "sci-fi"},
		{"id": "3", "title": "The Hobbit", "genre": "fantasy"},
	}
}

func TestBuildAndLookup(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, books())

	ids, ok := m.Lookup([]string{"genre"}, Key([]any{"sci-fi"}))
	if !ok || len(ids) != 2 {
		t.Fatalf("Lookup(sci-fi) = %v, %v; want 2 ids", ids, ok)
	}
	if _, present := ids["1"]; !present {
		t.Fatalf("sci-fi bucket missing id 1: %v", ids)
	}
	if _, present := ids["2"]; !present {
		t.Fatalf("sci-fi bucket missing id 2: %v", ids)
	}
}

func TestOnCreateAddsToBucket(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, books())
	m.OnCreate(entity.Entity{"id": "4", "title": "Foundation", "genre": "sci-fi"})

	ids, _ := m.Lookup([]string{"genre"}, Key([]any{"sci-fi"}))
	if len(ids) != 3 {
		t.Fatalf("sci-fi bucket after insert = %v; want 3 ids", ids)
	}
	fantasy, _ := m.Lookup([]string{"genre"}, Key([]any{"fantasy"}))
	if len(fantasy) != 1 {
		t.Fatalf("fantasy bucket = %v; want 1 id", fantasy)
	}
}

func TestOnUpdateMovesBucket(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, books())
	old := entity.Entity{"id": "1", "title": "Dune", "genre": "sci-fi"}
	updated := entity.Entity{"id": "1", "title": "Dune", "genre": "fantasy"}
	m.OnUpdate(old, updated)

	sciFi, _ := m.Lookup([]string{"genre"}, Key([]any{"sci-fi"}))
	if len(sciFi) != 1 {
		t.Fatalf("sci-fi bucket after move = %v; want 1 id remaining", sciFi)
	}
	fantasy, _ := m.Lookup([]string{"genre"}, Key([]any{"fantasy"}))
	if len(fantasy) != 2 {
		t.Fatalf("fantasy bucket after move = %v; want 2 ids", fantasy)
	}
}

func TestOnDeleteRemovesEmptyBucket(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, []entity.Entity{
		{"id": "3", "genre": "fantasy"},
	})
	m.OnDelete(entity.Entity{"id": "3", "genre": "fantasy"})

	ids, ok := m.Lookup([]string{"genre"}, Key([]any{"fantasy"}))
	if !ok || len(ids) != 0 {
		t.Fatalf("fantasy bucket after delete = %v, %v; want empty", ids, ok)
	}
}

func TestUnindexedNullField(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, []entity.Entity{
		{"id": "5", "title": "no genre"},
	})
	total := 0
	for _, b := range m.buckets[0] {
		total += len(b)
	}
	if total != 0 {
		t.Fatalf("entity with absent indexed field was indexed anyway")
	}
}

func TestCompositeIndexOrderInsensitiveMatch(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre", "title"}}}, books())

	order, ok := m.MatchFieldOrder([]string{"title", "genre"})
	if !ok {
		t.Fatalf("MatchFieldOrder did not find composite index")
	}
	if len(order) != 2 || order[0] != "genre" || order[1] != "title" {
		t.Fatalf("MatchFieldOrder returned %v; want declared order [genre title]", order)
	}
}

func TestLookupManyUnion(t *testing.T) {
	m := Build([]Declaration{{Fields: []string{"genre"}}}, books())

	ids, ok := m.LookupMany([]string{"genre"}, []string{Key([]any{"sci-fi"}), Key([]any{"fantasy"})})
	if !ok || len(ids) != 3 {
		t.Fatalf("LookupMany = %v, %v; want 3 ids", ids, ok)
	}
}
