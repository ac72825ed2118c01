package aggregate

import (
	"testing"

	"github.com/prose-ql/prose/internal/entity"
)

func books() []entity.Entity {
	return []entity.Entity{
		{"id": "1", "title": "Dune", "year": 1965, "genre": "sci-fi"},
		{"id": "2", "title": "Neuromancer", "year": 1984, "genre": "sci-fi"},
		{"id": "3", "title": "The Hobbit", "year": 1937, "genre": "fantasy"},
	}
}

func TestScenarioS6GroupByCount(t *testing.T) {
	results := Run(books(), Request{Count: true, GroupBy: []string{"genre"}})
	if len(results) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(results))
	}
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Group["genre"].(string)] = r.Count
	}
	if counts["sci-fi"] != 2 || counts["fantasy"] != 1 {
		t.Fatalf("group counts = %v; want sci-fi:2 fantasy:1", counts)
	}
}

func TestUngroupedAggregates(t *testing.T) {
	results := Run(books(), Request{
		Count: true,
		Sum:   []string{"year"},
		Avg:   []string{"year"},
		Min:   []string{"year"},
		Max:   []string{"year"},
	})
	if len(results) != 1 {
		t.Fatalf("expected a single ungrouped result, got %d", len(results))
	}
	r := results[0]
	if r.Count != 3 {
		t.Fatalf("count = %d; want 3", r.Count)
	}
	if r.Sum["year"] != 1965+1984+1937 {
		t.Fatalf("sum = %v; want %d", r.Sum["year"], 1965+1984+1937)
	}
	if r.Min["year"] != 1937 || r.Max["year"] != 1984 {
		t.Fatalf("min/max = %v/%v; want 1937/1984", r.Min["year"], r.Max["year"])
	}
}

func TestAvgOfEmptySetIsNull(t *testing.T) {
	results := Run(nil, Request{Avg: []string{"year"}})
	if results[0].Avg["year"] != nil {
		t.Fatalf("avg over empty set = %v; want nil", results[0].Avg["year"])
	}
}

func TestMinMaxSkipNonNumericNulls(t *testing.T) {
	entities := []entity.Entity{
		{"id": "1", "score": 5},
		{"id": "2"}, // score absent
		{"id": "3", "score": 2},
	}
	results := Run(entities, Request{Min: []string{"score"}, Max: []string{"score"}})
	if results[0].Min["score"] != 2 || results[0].Max["score"] != 5 {
		t.Fatalf("min/max = %v/%v; want 2/5", results[0].Min["score"], results[0].Max["score"])
	}
}
