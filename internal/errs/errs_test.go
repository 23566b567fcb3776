package errs

import "testing"

func TestRingCollapsesIdenticalConsecutive(t *testing.T) {
	r := NewRing(4)
	r.Push(New(KindIO, "read failed on %s", "disk0"))
	r.Push(New(KindIO, "read failed on %s", "disk0"))
	r.Push(New(KindIO, "read failed on %s", "disk0"))

	if r.Len() != 1 {
		t.Fatalf("expected 1 distinct entry, got %d", r.Len())
	}
	e := r.Peek()
	if e.Occurrences != 3 {
		t.Fatalf("expected occurrences=3, got %d", e.Occurrences)
	}
}

func TestRingKeepsDistinctEntries(t *testing.T) {
	r := NewRing(4)
	r.Push(New(KindIO, "a"))
	r.Push(New(KindArgument, "b"))
	if r.Len() != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", r.Len())
	}
}

func TestRingCapacity(t *testing.T) {
	r := NewRing(2)
	r.Push(New(KindIO, "a"))
	r.Push(New(KindArgument, "b"))
	r.Push(New(KindInternal, "c"))
	if r.Len() != 2 {
		t.Fatalf("expected ring capped at 2, got %d", r.Len())
	}
	if r.Peek().Message != "c" {
		t.Fatalf("expected newest entry c, got %s", r.Peek().Message)
	}
}

func TestKindCode(t *testing.T) {
	cases := map[Kind]int{
		KindArgument: 8,
		KindMode:     6,
		KindIO:       4,
		KindInternal: 5,
	}
	for k, want := range cases {
		if got := k.Code(); got != want {
			t.Errorf("%v: want code %d, got %d", k, want, got)
		}
	}
}

func TestPopConsumes(t *testing.T) {
	r := NewRing(4)
	r.Push(New(KindIO, "x"))
	if e := r.Pop(); e == nil || e.Message != "x" {
		t.Fatalf("unexpected pop result: %+v", e)
	}
	if r.Len() != 0 {
		t.Fatalf("expected ring empty after pop, got %d", r.Len())
	}
	if e := r.Pop(); e != nil {
		t.Fatalf("expected nil on empty ring, got %+v", e)
	}
}
