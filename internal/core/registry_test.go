package core

import (
	"testing"
)

func TestRegistryJoinLeaveIndex(t *testing.T) {
	r := NewRegistry()
	a := r.create("a", newFakeTransport())
	b := r.create("b", newFakeTransport())

	if !r.join(a, "invalidate/news") {
		t.Fatal("first join should report a change")
	}
	if r.join(a, "invalidate/news") {
		t.Fatal("duplicate join should be a no-op")
	}
	r.join(b, "invalidate/news")

	if got := len(r.membersOf("invalidate/news")); got != 2 {
		t.Fatalf("room members = %d, want 2", got)
	}

	if !r.leave(a, "invalidate/news") {
		t.Fatal("leave of a joined room should report a change")
	}
	if r.leave(a, "invalidate/news") {
		t.Fatal("duplicate leave should be a no-op")
	}
	if got := len(r.membersOf("invalidate/news")); got != 1 {
		t.Fatalf("room members after leave = %d, want 1", got)
	}

	// Last member out drops the index entry entirely.
	r.leave(b, "invalidate/news")
	if r.membersOf("invalidate/news") != nil {
		t.Fatal("empty room should be removed from the index")
	}
}

func TestRegistryRemoveCleansIndex(t *testing.T) {
	r := NewRegistry()
	c := r.create("a", newFakeTransport())
	r.join(c, "invalidate/news", "invalidate/scores")

	r.remove("a")

	if _, ok := r.read("a"); ok {
		t.Fatal("removed client still readable")
	}
	if r.membersOf("invalidate/news") != nil || r.membersOf("invalidate/scores") != nil {
		t.Fatal("removed client left index entries behind")
	}
	if r.size() != 0 {
		t.Fatalf("registry size = %d, want 0", r.size())
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry()
	live := newFakeTransport()
	dead := newFakeTransport()
	r.create("live", live)
	deadClient := r.create("dead", dead)
	r.join(deadClient, "invalidate/news")

	dead.closed.Store(true)

	removed := r.sweep()
	if len(removed) != 1 || removed[0] != "dead" {
		t.Fatalf("sweep removed %v, want [dead]", removed)
	}
	if r.size() != 1 {
		t.Fatalf("registry size = %d, want 1", r.size())
	}
	if r.membersOf("invalidate/news") != nil {
		t.Fatal("swept client left index entries behind")
	}
}
