package audit

import (
	"testing"
	"time"
)

func TestBuildCarriesEveryFieldAndMarshals(t *testing.T) {
	committedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	envelope, err := Build(committedAt, []Change{
		{Collection: "books", ID: "b1", Op: "create", Entity: map[string]any{"id": "b1", "title": "Dune"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := envelope.Fields["committedAt"].GetStringValue(); got != committedAt.Format(time.RFC3339Nano) {
		t.Fatalf("committedAt = %q; want %q", got, committedAt.Format(time.RFC3339Nano))
	}
	changes := envelope.Fields["changes"].GetListValue().GetValues()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	rec := changes[0].GetStructValue()
	if rec.Fields["collection"].GetStringValue() != "books" {
		t.Fatalf("collection field missing from the envelope record")
	}
	if rec.Fields["id"].GetStringValue() != "b1" {
		t.Fatalf("id field missing from the envelope record")
	}
	if rec.Fields["op"].GetStringValue() != "create" {
		t.Fatalf("op field missing from the envelope record")
	}
	if title := rec.Fields["entity"].GetStructValue().Fields["title"].GetStringValue(); title != "Dune" {
		t.Fatalf("entity field missing/wrong in the envelope record: %q", title)
	}

	data, err := Marshal(envelope)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty encoded bytes")
	}
}
