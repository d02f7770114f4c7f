package sync

import (
	"encoding/json"
	"fmt"

	"github.com/heitortanoue/collabsync/pkg/crdt"
	"github.com/heitortanoue/collabsync/pkg/ot"
)

// Entity adapts one synchronizable value to the coordinator. Every
// implementation guarantees that a decode failure leaves the state
// untouched: merging only starts after the payload parsed cleanly.
type Entity interface {
	Kind() PayloadKind
	// Value returns the current converged value for observers.
	Value() any
	// ApplyLocal applies a local mutation and, when it changed state,
	// returns the update payload to broadcast for it.
	ApplyLocal(m Mutation) (changed bool, update json.RawMessage, err error)
	// MergeUpdate merges an inbound update payload.
	MergeUpdate(state json.RawMessage) (bool, error)
	// Snapshot serializes the full state for a sync response.
	Snapshot() (json.RawMessage, error)
	// MergeSnapshot merges an inbound full-state sync response.
	MergeSnapshot(state json.RawMessage) (bool, error)
}

// NewEntity constructs the entity for a payload kind. The switch is
// exhaustive over the closed enumeration.
func NewEntity(kind PayloadKind, replicaID string) (Entity, error) {
	switch kind {
	case PayloadRegister:
		return &registerEntity{replica: replicaID, reg: crdt.NewLWWRegister[json.RawMessage]()}, nil
	case PayloadGSet:
		return &gsetEntity{set: crdt.NewGSet[string]()}, nil
	case PayloadTwoPhaseSet:
		return &twoPhaseSetEntity{set: crdt.NewTwoPhaseSet[string]()}, nil
	case PayloadGCounter:
		return &gcounterEntity{replica: replicaID, counter: crdt.NewGCounter()}, nil
	case PayloadPNCounter:
		return &pncounterEntity{replica: replicaID, counter: crdt.NewPNCounter()}, nil
	case PayloadText:
		return &textEntity{replica: replicaID, doc: ot.NewDocument("")}, nil
	}
	return nil, fmt.Errorf("unknown payload kind: %s", kind)
}

func invalidOp(kind PayloadKind, op MutationOp) error {
	return fmt.Errorf("operation %q is not valid for %s entities", op, kind)
}

// ---------------------------------------------------------------
// Last-writer-wins register

type registerEntity struct {
	replica string
	reg     *crdt.LWWRegister[json.RawMessage]
}

func (e *registerEntity) Kind() PayloadKind { return PayloadRegister }

func (e *registerEntity) Value() any {
	raw, ok := e.reg.Get()
	if !ok {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func (e *registerEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	if m.Op != OpSet {
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	if !json.Valid(m.Value) {
		return false, nil, fmt.Errorf("set value is not valid JSON")
	}
	state := e.reg.Set(m.Value, e.replica)
	update, err := json.Marshal(state)
	return true, update, err
}

func (e *registerEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote crdt.RegisterState[json.RawMessage]
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed register state: %w", err)
	}
	return e.reg.Merge(remote), nil
}

func (e *registerEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.reg.State())
}

func (e *registerEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	return e.MergeUpdate(state)
}

// ---------------------------------------------------------------
// Grow-only set

type gsetEntity struct {
	set *crdt.GSet[string]
}

func (e *gsetEntity) Kind() PayloadKind { return PayloadGSet }

func (e *gsetEntity) Value() any { return e.set.Elements() }

func (e *gsetEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	if m.Op != OpAdd {
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	if !e.set.Add(m.Element) {
		return false, nil, nil // already present, no-op
	}
	update, err := json.Marshal(e.set.State())
	return true, update, err
}

func (e *gsetEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote crdt.SetState[string]
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed gset state: %w", err)
	}
	return e.set.Merge(remote), nil
}

func (e *gsetEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.set.State())
}

func (e *gsetEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	return e.MergeUpdate(state)
}

// ---------------------------------------------------------------
// Two-phase set

type twoPhaseSetEntity struct {
	set *crdt.TwoPhaseSet[string]
}

func (e *twoPhaseSetEntity) Kind() PayloadKind { return PayloadTwoPhaseSet }

func (e *twoPhaseSetEntity) Value() any { return e.set.Elements() }

func (e *twoPhaseSetEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	var ok bool
	switch m.Op {
	case OpAdd:
		ok = e.set.Add(m.Element)
		if !ok && e.set.Contains(m.Element) {
			return false, nil, nil // already present, no-op
		}
		if !ok {
			return false, nil, fmt.Errorf("element %q is tombstoned and cannot be re-added", m.Element)
		}
	case OpRemove:
		ok = e.set.Remove(m.Element)
		if !ok {
			return false, nil, fmt.Errorf("element %q was never added or is already removed", m.Element)
		}
	default:
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	update, err := json.Marshal(e.set.State())
	return true, update, err
}

func (e *twoPhaseSetEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote crdt.TwoPhaseSetState[string]
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed 2pset state: %w", err)
	}
	return e.set.Merge(remote), nil
}

func (e *twoPhaseSetEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.set.State())
}

func (e *twoPhaseSetEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	return e.MergeUpdate(state)
}

// ---------------------------------------------------------------
// Grow-only counter

type gcounterEntity struct {
	replica string
	counter *crdt.GCounter
}

func (e *gcounterEntity) Kind() PayloadKind { return PayloadGCounter }

func (e *gcounterEntity) Value() any { return e.counter.Value() }

func (e *gcounterEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	if m.Op != OpIncrement {
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	amount := m.Amount
	if amount == 0 {
		amount = 1
	}
	if !e.counter.Increment(e.replica, amount) {
		return false, nil, fmt.Errorf("increment amount must be positive, got %d", amount)
	}
	update, err := json.Marshal(e.counter.State())
	return true, update, err
}

func (e *gcounterEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote crdt.CounterState
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed gcounter state: %w", err)
	}
	return e.counter.Merge(remote), nil
}

func (e *gcounterEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.counter.State())
}

func (e *gcounterEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	return e.MergeUpdate(state)
}

// ---------------------------------------------------------------
// Positive/negative counter

type pncounterEntity struct {
	replica string
	counter *crdt.PNCounter
}

func (e *pncounterEntity) Kind() PayloadKind { return PayloadPNCounter }

func (e *pncounterEntity) Value() any { return e.counter.Value() }

func (e *pncounterEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	amount := m.Amount
	if amount == 0 {
		amount = 1
	}

	var ok bool
	switch m.Op {
	case OpIncrement:
		ok = e.counter.Increment(e.replica, amount)
	case OpDecrement:
		ok = e.counter.Decrement(e.replica, amount)
	default:
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	if !ok {
		return false, nil, fmt.Errorf("counter amount must be positive, got %d", amount)
	}
	update, err := json.Marshal(e.counter.State())
	return true, update, err
}

func (e *pncounterEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote crdt.PNCounterState
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed pncounter state: %w", err)
	}
	return e.counter.Merge(remote), nil
}

func (e *pncounterEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(e.counter.State())
}

func (e *pncounterEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	return e.MergeUpdate(state)
}

// ---------------------------------------------------------------
// OT text

// textUpdate is the update payload for text entities: one operation
// parented at the revision of the author's document before applying.
type textUpdate struct {
	BaseRevision int64 `json:"base_revision"`
	Op           ot.Op `json:"op"`
}

// textSnapshot is the sync-response payload for text entities. Replica
// identifies the snapshotting side and breaks equal-revision ties.
type textSnapshot struct {
	Text     string `json:"text"`
	Revision int64  `json:"revision"`
	Replica  string `json:"replica"`
}

type textEntity struct {
	replica string
	doc     *ot.Document
}

func (e *textEntity) Kind() PayloadKind { return PayloadText }

func (e *textEntity) Value() any { return e.doc.Value() }

func (e *textEntity) ApplyLocal(m Mutation) (bool, json.RawMessage, error) {
	var op ot.Op
	switch m.Op {
	case OpInsert:
		op = ot.Op{Kind: ot.OpInsert, Pos: m.Pos, Content: m.Content, Replica: e.replica}
	case OpDelete:
		op = ot.Op{Kind: ot.OpDelete, Pos: m.Pos, Length: m.Length, Replica: e.replica}
	default:
		return false, nil, invalidOp(e.Kind(), m.Op)
	}
	if op.IsNoop() {
		return false, nil, nil
	}

	base := e.doc.Revision()
	if err := e.doc.ApplyLocal(op); err != nil {
		return false, nil, err
	}
	update, err := json.Marshal(textUpdate{BaseRevision: base, Op: op})
	return true, update, err
}

func (e *textEntity) MergeUpdate(state json.RawMessage) (bool, error) {
	var remote textUpdate
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed text update: %w", err)
	}
	return e.doc.ApplyRemote(remote.BaseRevision, remote.Op)
}

func (e *textEntity) Snapshot() (json.RawMessage, error) {
	return json.Marshal(textSnapshot{Text: e.doc.Value(), Revision: e.doc.Revision(), Replica: e.replica})
}

// MergeSnapshot adopts the remote document when it is further along.
// Equal revisions with different texts mean each side lost the other's
// update in flight; the greater replica id wins, as in the register
// tie-break, so both peers settle on the same text.
func (e *textEntity) MergeSnapshot(state json.RawMessage) (bool, error) {
	var remote textSnapshot
	if err := json.Unmarshal(state, &remote); err != nil {
		return false, fmt.Errorf("malformed text snapshot: %w", err)
	}
	if remote.Revision < e.doc.Revision() {
		return false, nil
	}
	if remote.Revision == e.doc.Revision() {
		if remote.Text == e.doc.Value() || remote.Replica <= e.replica {
			return false, nil
		}
	}
	changed := remote.Text != e.doc.Value()
	e.doc.Reset(remote.Text, remote.Revision)
	return changed, nil
}
