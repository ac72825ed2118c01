package query

import (
	"testing"

	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/index"
)

func seedBooks() map[string]entity.Entity {
	return map[string]entity.Entity{
		"1": {"id": "1", "title": "Dune", "year": 1965, "genre": "sci-fi"},
		"2": {"id": "2", "title": "Neuromancer", "year": 1984, "genre": "sci-fi"},
		"3": {"id": "3", "title": "The Hobbit", "year": 1937, "genre": "fantasy"},
	}
}

func ids(entities []entity.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID()
	}
	return out
}

func TestScenarioS1SortDesc(t *testing.T) {
	snap := seedBooks()
	cur := Run(snap, nil, Options{
		Where: Normalize(map[string]any{"genre": "sci-fi"}),
		Sort:  []SortKey{{Field: "year", Direction: Desc}},
	})
	got := ids(cur.Collect())
	want := []string{"2", "1"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("S1: got %v, want %v", got, want)
	}
}

func TestScenarioS3RangeQuery(t *testing.T) {
	snap := seedBooks()
	cur := Run(snap, nil, Options{
		Where: Normalize(map[string]any{"year": map[string]any{"$gte": 1960, "$lte": 1985}}),
	})
	got := ids(cur.Collect())
	set := map[string]bool{}
	for _, id := range got {
		set[id] = true
	}
	if len(got) != 2 || !set["1"] || !set["2"] {
		t.Fatalf("S3: got %v, want {1,2}", got)
	}
}

func TestEmptyWhereReturnsEveryEntity(t *testing.T) {
	snap := seedBooks()
	cur := Run(snap, nil, Options{Where: Where{}})
	got := cur.Collect()
	if len(got) != len(snap) {
		t.Fatalf("empty where returned %d entities; want %d", len(got), len(snap))
	}
}

func TestDeterministicDefaultOrder(t *testing.T) {
	snap := seedBooks()
	first := ids(Run(snap, nil, Options{Where: Where{}}).Collect())
	second := ids(Run(snap, nil, Options{Where: Where{}}).Collect())
	if len(first) != len(second) {
		t.Fatalf("lengths differ across runs")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("default order not deterministic: %v vs %v", first, second)
		}
	}
}

func TestIndexedPlanMatchesFullScan(t *testing.T) {
	snap := seedBooks()
	var entities []entity.Entity
	for _, e := range snap {
		entities = append(entities, e)
	}
	idx := index.Build([]index.Declaration{{Fields: []string{"genre"}}}, entities)

	where := Normalize(map[string]any{"genre": "sci-fi"})
	withIndex := ids(Run(snap, idx, Options{Where: where, Sort: []SortKey{{Field: "id", Direction: Asc}}}).Collect())
	withoutIndex := ids(Run(snap, nil, Options{Where: where, Sort: []SortKey{{Field: "id", Direction: Asc}}}).Collect())

	if len(withIndex) != len(withoutIndex) {
		t.Fatalf("indexed plan len %d != full scan len %d", len(withIndex), len(withoutIndex))
	}
	for i := range withIndex {
		if withIndex[i] != withoutIndex[i] {
			t.Fatalf("indexed plan %v != full scan %v", withIndex, withoutIndex)
		}
	}
}

func TestOffsetAndLimit(t *testing.T) {
	snap := seedBooks()
	limit := 1
	offset := 1
	cur := Run(snap, nil, Options{
		Where:  Where{},
		Sort:   []SortKey{{Field: "id", Direction: Asc}},
		Offset: &offset,
		Limit:  &limit,
	})
	got := ids(cur.Collect())
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("offset/limit = %v; want [2]", got)
	}
}

func TestSelectProjectsFieldsPlusID(t *testing.T) {
	snap := seedBooks()
	cur := Run(snap, nil, Options{Where: Normalize(map[string]any{"id": "1"}), Select: []string{"title"}})
	got, ok := cur.Next()
	if !ok {
		t.Fatalf("expected one result")
	}
	if _, hasGenre := got["genre"]; hasGenre {
		t.Fatalf("projection leaked unselected field: %v", got)
	}
	if got["title"] != "Dune" || got["id"] != "1" {
		t.Fatalf("projection missing selected fields: %v", got)
	}
}

func TestOperatorEdgeCases(t *testing.T) {
	e := entity.Entity{"id": "1", "active": true, "tags": []any{"a", "b"}}

	if !Matches(e, Normalize(map[string]any{"missing": nil}), nil) {
		t.Fatalf("$eq against undefined operand on absent field should match")
	}
	if Matches(e, Where{"missing": {Ops: map[string]any{"$ne": nil}}}, nil) {
		t.Fatalf("$ne:undefined on absent field should not match")
	}
	if Matches(e, Where{"active": {Ops: map[string]any{"$gt": 1}}}, nil) {
		t.Fatalf("$gt on a boolean field should evaluate false, not error")
	}
	if Matches(e, Where{"active": {Ops: map[string]any{"$lt": 1}}}, nil) {
		t.Fatalf("$lt on a boolean field should evaluate false, not error")
	}
	if Matches(e, Where{"active": {Ops: map[string]any{"$lte": 1}}}, nil) {
		t.Fatalf("$lte on a boolean field should evaluate false, not error")
	}
	if Matches(e, Where{"missing": {Ops: map[string]any{"$lt": 1}}}, nil) {
		t.Fatalf("$lt against an absent field should evaluate false, not match")
	}
	if Matches(e, Where{"missing": {Ops: map[string]any{"$lte": 1}}}, nil) {
		t.Fatalf("$lte against an absent field should evaluate false, not match")
	}
	if Matches(e, Where{"tags": {Ops: map[string]any{"$startsWith": "a"}}}, nil) {
		t.Fatalf("$startsWith on a non-string field should evaluate false")
	}
	if !Matches(e, Where{"tags": {Ops: map[string]any{"$all": []any{"a", "b"}}}}, nil) {
		t.Fatalf("$all superset check failed")
	}
	if !Matches(e, Where{"tags": {Ops: map[string]any{"$size": 2}}}, nil) {
		t.Fatalf("$size exact length check failed")
	}
	if Matches(e, Where{"tags": {Ops: map[string]any{"$unknownOp": 1}}}, nil) {
		t.Fatalf("unknown operator should evaluate false, not match")
	}
}
