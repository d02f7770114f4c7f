package crdt

import "testing"

// -------------------------------------------------------------------------
// 1. GCounter: per-replica contributions
// -------------------------------------------------------------------------
func TestGCounterIncrement(t *testing.T) {
	c := NewGCounter()

	if !c.Increment("A", 3) {
		t.Fatalf("Expected positive increment to succeed")
	}
	c.Increment("B", 2)

	if c.Value() != 5 {
		t.Errorf("Expected value 5, got %d", c.Value())
	}

	if c.Increment("A", 0) {
		t.Errorf("Expected zero increment to be rejected")
	}
	if c.Increment("A", -1) {
		t.Errorf("Expected negative increment to be rejected")
	}
	if c.Value() != 5 {
		t.Errorf("Expected value unchanged at 5, got %d", c.Value())
	}
}

// Merging the same state twice must not double-count: max, never sum.
func TestGCounterMergeIdempotent(t *testing.T) {
	a := NewGCounter()
	b := NewGCounter()
	a.Increment("A", 5)
	b.Increment("B", 3)

	state := b.State()
	if !a.Merge(state) {
		t.Fatalf("Expected first merge to change state")
	}
	if a.Merge(state) {
		t.Errorf("Expected duplicate merge to be a no-op")
	}
	if a.Value() != 8 {
		t.Errorf("Expected value 8 after duplicate delivery, got %d", a.Value())
	}
}

func TestGCounterMergeTakesMax(t *testing.T) {
	a := NewGCounter()
	a.Increment("A", 10)

	// Stale snapshot of A's own contribution must not regress it
	changed := a.Merge(CounterState{"A": 4})
	if changed {
		t.Errorf("Expected merge with stale contribution to be a no-op")
	}
	if a.Value() != 10 {
		t.Errorf("Expected value 10, got %d", a.Value())
	}

	// Newer contribution replaces, not adds
	a.Merge(CounterState{"A": 12})
	if a.Value() != 12 {
		t.Errorf("Expected value 12, got %d", a.Value())
	}
}

func TestGCounterConvergence(t *testing.T) {
	a := NewGCounter()
	b := NewGCounter()
	c := NewGCounter()
	a.Increment("A", 1)
	b.Increment("B", 2)
	c.Increment("C", 3)

	// Full state exchange in arbitrary order
	a.Merge(b.State())
	a.Merge(c.State())
	c.Merge(a.State())
	b.Merge(c.State())
	a.Merge(b.State())

	for name, counter := range map[string]*GCounter{"a": a, "b": b, "c": c} {
		if counter.Value() != 6 {
			t.Errorf("Replica %s: expected value 6, got %d", name, counter.Value())
		}
	}
}

func TestGCounterMergeAssociative(t *testing.T) {
	a := CounterState{"A": 1}
	b := CounterState{"B": 2}
	c := CounterState{"C": 3}

	// (a merged b) merged c
	left := NewGCounter()
	left.Merge(a)
	left.Merge(b)
	left.Merge(c)

	// a merged (b merged c)
	inner := NewGCounter()
	inner.Merge(b)
	inner.Merge(c)
	right := NewGCounter()
	right.Merge(a)
	right.Merge(inner.State())

	if left.Value() != right.Value() {
		t.Fatalf("Merge not associative: %d vs %d", left.Value(), right.Value())
	}
	for replica, v := range left.State() {
		if right.State()[replica] != v {
			t.Errorf("Contribution mismatch for %s", replica)
		}
	}
}

// -------------------------------------------------------------------------
// 2. PNCounter
// -------------------------------------------------------------------------
func TestPNCounterValue(t *testing.T) {
	c := NewPNCounter()
	c.Increment("A", 10)
	c.Decrement("A", 3)
	c.Decrement("B", 2)

	if c.Value() != 5 {
		t.Errorf("Expected value 5, got %d", c.Value())
	}
}

func TestPNCounterMerge(t *testing.T) {
	a := NewPNCounter()
	b := NewPNCounter()
	a.Increment("A", 4)
	b.Decrement("B", 1)

	if !a.Merge(b.State()) {
		t.Fatalf("Expected merge to change state")
	}
	if a.Merge(b.State()) {
		t.Errorf("Expected duplicate merge to be a no-op")
	}
	if a.Value() != 3 {
		t.Errorf("Expected value 3, got %d", a.Value())
	}

	b.Merge(a.State())
	if b.Value() != 3 {
		t.Errorf("Expected both replicas to converge to 3, got %d", b.Value())
	}
}
