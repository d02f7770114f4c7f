package sync

import (
	"testing"

	"github.com/heitortanoue/collabsync/pkg/transport"
)

// Three replicas increment a shared counter while offline, then come
// online one at a time. Everyone must converge on the sum.
func TestOfflineCountersConverge(t *testing.T) {
	bus := transport.NewLocalBus()

	regA, epA := newTestRegistry(t, "A", bus)
	regB, epB := newTestRegistry(t, "B", bus)
	regC, epC := newTestRegistry(t, "C", bus)

	coordA, _ := regA.Create("votes", PayloadPNCounter)
	coordB, _ := regB.Create("votes", PayloadPNCounter)
	coordC, _ := regC.Create("votes", PayloadPNCounter)

	// Offline local activity
	coordA.Update(IncrementMutation(1))
	coordB.Update(IncrementMutation(2))
	coordC.Update(IncrementMutation(3))

	// Network comes back; replicas handshake one at a time
	epA.Connect()
	epB.Connect()
	epC.Connect()
	regA.ConnectAll()
	regB.ConnectAll()
	regC.ConnectAll()

	for name, coordinator := range map[string]*Coordinator{"A": coordA, "B": coordB, "C": coordC} {
		if coordinator.State() != StateSynced {
			t.Errorf("Replica %s: expected Synced, got %s", name, coordinator.State())
		}
		if coordinator.Value() != int64(6) {
			t.Errorf("Replica %s: expected value 6, got %v", name, coordinator.Value())
		}
	}
}

// Two replicas edit the same text concurrently across a partition and
// converge after reconnecting.
func TestTextEditingAcrossPartition(t *testing.T) {
	bus := transport.NewLocalBus()

	regA, epA := newTestRegistry(t, "A", bus)
	regB, epB := newTestRegistry(t, "B", bus)

	coordA, _ := regA.Create("doc", PayloadText)
	coordB, _ := regB.Create("doc", PayloadText)

	epA.Connect()
	epB.Connect()
	coordA.HandleConnect()
	coordB.HandleConnect()

	// Shared baseline
	if _, err := coordA.Update(InsertMutation(0, "Hello World")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if coordB.Value() != "Hello World" {
		t.Fatalf("Expected baseline replicated, got %v", coordB.Value())
	}

	// Partition
	epA.Disconnect()
	epB.Disconnect()
	coordA.HandleDisconnect()
	coordB.HandleDisconnect()

	// Concurrent edits on each side
	if _, err := coordA.Update(InsertMutation(5, ",")); err != nil {
		t.Fatalf("Insert during partition: %v", err)
	}
	if _, err := coordB.Update(DeleteMutation(6, 5)); err != nil {
		t.Fatalf("Delete during partition: %v", err)
	}
	if coordA.Value() != "Hello, World" || coordB.Value() != "Hello " {
		t.Fatalf("Unexpected partitioned texts: %q / %q", coordA.Value(), coordB.Value())
	}

	// Heal the partition
	epA.Connect()
	epB.Connect()
	coordA.HandleConnect()
	coordB.HandleConnect()

	if coordA.Value() != coordB.Value() {
		t.Fatalf("Replicas diverged: %q vs %q", coordA.Value(), coordB.Value())
	}
	if coordA.Value() != "Hello, " {
		t.Errorf("Expected 'Hello, ', got %q", coordA.Value())
	}
	if coordA.State() != StateSynced || coordB.State() != StateSynced {
		t.Errorf("Expected both Synced, got %s and %s", coordA.State(), coordB.State())
	}
}

// Updates dropped in flight while both replicas believe they are
// Synced leave the texts diverged at the same revision. Neither side
// ever sees a reconnect event, so the periodic resync exchange alone
// must restore convergence.
func TestTextResyncHealsDroppedUpdates(t *testing.T) {
	bus := transport.NewLocalBus()

	regA, epA := newTestRegistry(t, "A", bus)
	regB, epB := newTestRegistry(t, "B", bus)

	coordA, _ := regA.Create("doc", PayloadText)
	coordB, _ := regB.Create("doc", PayloadText)

	epA.Connect()
	epB.Connect()
	coordA.HandleConnect()
	coordB.HandleConnect()

	// Shared baseline
	if _, err := coordA.Update(InsertMutation(0, "Hello")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if coordB.Value() != "Hello" {
		t.Fatalf("Expected baseline replicated, got %v", coordB.Value())
	}

	// The network silently eats both broadcasts; the coordinators are
	// never told and keep reporting Synced.
	epA.Disconnect()
	epB.Disconnect()
	if _, err := coordA.Update(InsertMutation(5, "A")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := coordB.Update(InsertMutation(5, "B")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if coordA.Value() != "HelloA" || coordB.Value() != "HelloB" {
		t.Fatalf("Unexpected diverged texts: %q / %q", coordA.Value(), coordB.Value())
	}
	if coordA.State() != StateSynced || coordB.State() != StateSynced {
		t.Fatalf("Expected both still Synced, got %s and %s", coordA.State(), coordB.State())
	}

	// Delivery resumes without any connect event
	epA.Connect()
	epB.Connect()

	coordA.resyncTick()
	coordB.resyncTick()

	if coordA.Value() != coordB.Value() {
		t.Fatalf("Replicas diverged after resync: %q vs %q", coordA.Value(), coordB.Value())
	}
	if coordA.Value() != "HelloB" {
		t.Errorf("Expected 'HelloB', got %q", coordA.Value())
	}
	if coordA.State() != StateSynced || coordB.State() != StateSynced {
		t.Errorf("Expected both Synced, got %s and %s", coordA.State(), coordB.State())
	}
}

// Register writes on both sides of a partition resolve to a single
// winner on both replicas.
func TestRegisterConflictResolution(t *testing.T) {
	bus := transport.NewLocalBus()

	regA, epA := newTestRegistry(t, "A", bus)
	regB, epB := newTestRegistry(t, "B", bus)

	coordA, _ := regA.Create("profile", PayloadRegister)
	coordB, _ := regB.Create("profile", PayloadRegister)

	setA, _ := SetMutation("from-a")
	setB, _ := SetMutation("from-b")
	coordA.Update(setA)
	coordB.Update(setB)

	epA.Connect()
	epB.Connect()
	coordA.HandleConnect()
	coordB.HandleConnect()

	if coordA.Value() != coordB.Value() {
		t.Fatalf("Replicas diverged: %v vs %v", coordA.Value(), coordB.Value())
	}
}
