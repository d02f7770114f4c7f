package sync

import (
	"encoding/json"
	"testing"
)

func mustEntity(t *testing.T, kind PayloadKind, replica string) Entity {
	t.Helper()
	entity, err := NewEntity(kind, replica)
	if err != nil {
		t.Fatalf("NewEntity(%s): %v", kind, err)
	}
	return entity
}

func TestNewEntityUnknownKind(t *testing.T) {
	if _, err := NewEntity("blob", "A"); err == nil {
		t.Fatalf("Expected error for unknown payload kind")
	}
}

func TestRegisterEntity(t *testing.T) {
	a := mustEntity(t, PayloadRegister, "A")
	b := mustEntity(t, PayloadRegister, "B")

	set, err := SetMutation("hello")
	if err != nil {
		t.Fatalf("SetMutation: %v", err)
	}
	changed, update, err := a.ApplyLocal(set)
	if err != nil || !changed {
		t.Fatalf("Expected local set to change state, got changed=%v err=%v", changed, err)
	}

	changed, err = b.MergeUpdate(update)
	if err != nil || !changed {
		t.Fatalf("Expected merge to change state, got changed=%v err=%v", changed, err)
	}
	if b.Value() != "hello" {
		t.Errorf("Expected 'hello', got %v", b.Value())
	}

	// Duplicate delivery is a no-op
	changed, err = b.MergeUpdate(update)
	if err != nil || changed {
		t.Errorf("Expected duplicate merge to be a no-op, got changed=%v err=%v", changed, err)
	}

	// Wrong mutation kind
	if _, _, err := a.ApplyLocal(AddMutation("x")); err == nil {
		t.Errorf("Expected error for add on a register")
	}

	// Malformed state never alters anything
	if _, err := b.MergeUpdate([]byte(`"not a state"`)); err == nil {
		t.Errorf("Expected error for malformed register state")
	}
	if b.Value() != "hello" {
		t.Errorf("Expected state untouched after bad merge, got %v", b.Value())
	}
}

func TestGSetEntity(t *testing.T) {
	a := mustEntity(t, PayloadGSet, "A")

	changed, update, err := a.ApplyLocal(AddMutation("x"))
	if err != nil || !changed {
		t.Fatalf("Expected add to change state, got changed=%v err=%v", changed, err)
	}
	if update == nil {
		t.Fatalf("Expected an update payload")
	}

	// Adding the same element again is a silent no-op
	changed, update, err = a.ApplyLocal(AddMutation("x"))
	if err != nil || changed || update != nil {
		t.Errorf("Expected duplicate add to be a no-op, got changed=%v update=%s err=%v", changed, update, err)
	}

	if _, _, err := a.ApplyLocal(RemoveMutation("x")); err == nil {
		t.Errorf("Expected error for remove on a grow-only set")
	}
}

func TestTwoPhaseSetEntity(t *testing.T) {
	a := mustEntity(t, PayloadTwoPhaseSet, "A")

	if _, _, err := a.ApplyLocal(RemoveMutation("ghost")); err == nil {
		t.Errorf("Expected error removing a never-added element")
	}

	if _, _, err := a.ApplyLocal(AddMutation("doc")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, _, err := a.ApplyLocal(RemoveMutation("doc")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := a.ApplyLocal(AddMutation("doc")); err == nil {
		t.Errorf("Expected error re-adding a tombstoned element")
	}

	elements, ok := a.Value().([]string)
	if !ok || len(elements) != 0 {
		t.Errorf("Expected empty membership, got %v", a.Value())
	}
}

func TestCounterEntityDefaultsAndErrors(t *testing.T) {
	a := mustEntity(t, PayloadGCounter, "A")

	// Amount 0 defaults to 1
	if _, _, err := a.ApplyLocal(Mutation{Op: OpIncrement}); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if a.Value() != int64(1) {
		t.Errorf("Expected value 1, got %v", a.Value())
	}

	if _, _, err := a.ApplyLocal(IncrementMutation(-5)); err == nil {
		t.Errorf("Expected error for negative increment")
	}
	if _, _, err := a.ApplyLocal(DecrementMutation(1)); err == nil {
		t.Errorf("Expected error for decrement on a grow-only counter")
	}
}

func TestPNCounterEntity(t *testing.T) {
	a := mustEntity(t, PayloadPNCounter, "A")
	b := mustEntity(t, PayloadPNCounter, "B")

	a.ApplyLocal(IncrementMutation(5))
	_, update, err := a.ApplyLocal(DecrementMutation(2))
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	if _, err := b.MergeUpdate(update); err != nil {
		t.Fatalf("MergeUpdate: %v", err)
	}
	if b.Value() != int64(3) {
		t.Errorf("Expected value 3, got %v", b.Value())
	}
}

func TestTextEntityUpdateFlow(t *testing.T) {
	a := mustEntity(t, PayloadText, "A")
	b := mustEntity(t, PayloadText, "B")

	_, update, err := a.ApplyLocal(InsertMutation(0, "hello"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var parsed textUpdate
	if err := json.Unmarshal(update, &parsed); err != nil {
		t.Fatalf("Unmarshal update: %v", err)
	}
	if parsed.BaseRevision != 0 {
		t.Errorf("Expected base revision 0, got %d", parsed.BaseRevision)
	}
	if parsed.Op.Replica != "A" {
		t.Errorf("Expected op author A, got %q", parsed.Op.Replica)
	}

	changed, err := b.MergeUpdate(update)
	if err != nil || !changed {
		t.Fatalf("Expected merge to change text, got changed=%v err=%v", changed, err)
	}
	if b.Value() != "hello" {
		t.Errorf("Expected 'hello', got %v", b.Value())
	}

	// Empty insert is a silent no-op
	changed, update, err = a.ApplyLocal(InsertMutation(0, ""))
	if err != nil || changed || update != nil {
		t.Errorf("Expected empty insert to be a no-op")
	}

	// Out-of-bounds local edit is an error
	if _, _, err := a.ApplyLocal(DeleteMutation(3, 10)); err == nil {
		t.Errorf("Expected error for out-of-bounds delete")
	}
}

func TestTextEntitySnapshotAdoption(t *testing.T) {
	a := mustEntity(t, PayloadText, "A")
	b := mustEntity(t, PayloadText, "B")

	a.ApplyLocal(InsertMutation(0, "hello"))
	a.ApplyLocal(InsertMutation(5, " world"))

	snapshot, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	changed, err := b.MergeSnapshot(snapshot)
	if err != nil || !changed {
		t.Fatalf("Expected snapshot adoption, got changed=%v err=%v", changed, err)
	}
	if b.Value() != "hello world" {
		t.Errorf("Expected 'hello world', got %v", b.Value())
	}

	// A stale snapshot is ignored
	stale, _ := json.Marshal(textSnapshot{Text: "old", Revision: 1})
	changed, err = b.MergeSnapshot(stale)
	if err != nil || changed {
		t.Errorf("Expected stale snapshot to be a no-op, got changed=%v err=%v", changed, err)
	}
	if b.Value() != "hello world" {
		t.Errorf("Expected text unchanged, got %v", b.Value())
	}
}

func TestTextEntityEqualRevisionTieBreak(t *testing.T) {
	a := mustEntity(t, PayloadText, "A")
	b := mustEntity(t, PayloadText, "B")

	// Shared baseline at revision 1
	_, update, err := a.ApplyLocal(InsertMutation(0, "Hello"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.MergeUpdate(update); err != nil {
		t.Fatalf("MergeUpdate: %v", err)
	}

	// Each side edits without the other hearing about it; both sit at
	// revision 2 with different texts.
	a.ApplyLocal(InsertMutation(5, "A"))
	b.ApplyLocal(InsertMutation(5, "B"))

	snapA, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snapB, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	changed, err := a.MergeSnapshot(snapB)
	if err != nil || !changed {
		t.Fatalf("Expected A to adopt B's text, got changed=%v err=%v", changed, err)
	}
	changed, err = b.MergeSnapshot(snapA)
	if err != nil || changed {
		t.Fatalf("Expected B to keep its own text, got changed=%v err=%v", changed, err)
	}

	if a.Value() != "HelloB" || b.Value() != "HelloB" {
		t.Errorf("Expected both replicas at 'HelloB', got %v and %v", a.Value(), b.Value())
	}
}
