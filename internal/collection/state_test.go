package collection

import "testing"

func TestSetGetRemove(t *testing.T) {
	s := New[string](nil)

	s.Set("1", "dune")
	v, ok := s.Get("1")
	if !ok || v != "dune" {
		t.Fatalf("Get(1) = %q, %v; want dune, true", v, ok)
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatalf("Get(missing) found an entry that was never set")
	}

	if !s.Remove("1") {
		t.Fatalf("Remove(1) = false; want true")
	}
	if _, ok := s.Get("1"); ok {
		t.Fatalf("entity still present after Remove")
	}
	if s.Remove("1") {
		t.Fatalf("Remove on an already-removed id reported true")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New[string](Snapshot[string]{"1": "a"})

	snap := s.Snapshot()
	s.Set("1", "b")
	s.Set("2", "c")

	if snap["1"] != "a" {
		t.Fatalf("pre-write snapshot observed post-write value %q", snap["1"])
	}
	if _, ok := snap["2"]; ok {
		t.Fatalf("pre-write snapshot observed an entity created after capture")
	}

	fresh := s.Snapshot()
	if fresh["1"] != "b" || fresh["2"] != "c" {
		t.Fatalf("fresh snapshot = %v; want updated values", fresh)
	}
}

func TestUpdateDeclines(t *testing.T) {
	s := New[int](Snapshot[int]{"1": 10})

	_, applied := s.Update("missing", func(old int, existed bool) (int, bool) {
		return old, existed
	})
	if applied {
		t.Fatalf("Update applied against a missing id")
	}

	got, applied := s.Update("1", func(old int, existed bool) (int, bool) {
		return old + 1, true
	})
	if !applied || got != 11 {
		t.Fatalf("Update(1) = %d, %v; want 11, true", got, applied)
	}
}

func TestReplaceAll(t *testing.T) {
	s := New[string](Snapshot[string]{"1": "a"})
	s.ReplaceAll(Snapshot[string]{"2": "b"})

	if _, ok := s.Get("1"); ok {
		t.Fatalf("id 1 survived ReplaceAll")
	}
	v, ok := s.Get("2")
	if !ok || v != "b" {
		t.Fatalf("Get(2) = %q, %v; want b, true", v, ok)
	}
}
