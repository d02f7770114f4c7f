package ot

import "fmt"

// maxHistory caps the retained operation log. Ops parented behind the
// window are rejected and healed by the full-state resync instead.
const maxHistory = 1024

// Document is a text replica that applies local operations directly
// and transforms remote operations against everything applied since
// the revision they were derived from.
type Document struct {
	value    string
	revision int64
	// history holds the operations that produced revisions
	// (offset, revision]. Adopting a snapshot discards it.
	history []Op
	offset  int64
}

// NewDocument creates a document with the given initial text at revision 0.
func NewDocument(text string) *Document {
	return &Document{value: text}
}

// Value returns the current text.
func (d *Document) Value() string {
	return d.value
}

// Revision returns the number of operations applied so far.
func (d *Document) Revision() int64 {
	return d.revision
}

// ApplyLocal applies op at the current revision. The caller is
// expected to broadcast the op parented at Revision()-1 afterwards.
func (d *Document) ApplyLocal(op Op) error {
	next, err := Apply(d.value, op)
	if err != nil {
		return err
	}
	d.value = next
	d.history = append(d.history, op)
	d.revision++
	d.trimHistory()
	return nil
}

// ApplyRemote transforms op against every operation applied after
// baseRevision, then applies it. Returns whether the text changed.
//
// An op parented on a revision this replica has not reached yet, or
// one older than the retained history, cannot be transformed; it is
// rejected and left to the periodic full-state resync.
func (d *Document) ApplyRemote(baseRevision int64, op Op) (bool, error) {
	if baseRevision > d.revision {
		return false, fmt.Errorf("op parented at future revision %d (local %d)", baseRevision, d.revision)
	}
	if baseRevision < d.offset {
		return false, fmt.Errorf("op parented at revision %d older than retained history (offset %d)", baseRevision, d.offset)
	}

	for _, applied := range d.history[baseRevision-d.offset:] {
		op = Transform(applied, op)
	}

	next, err := Apply(d.value, op)
	if err != nil {
		return false, err
	}

	changed := next != d.value
	d.value = next
	d.history = append(d.history, op)
	d.revision++
	d.trimHistory()
	return changed, nil
}

// trimHistory drops operations that fall out of the retention window
// and advances offset past them.
func (d *Document) trimHistory() {
	if len(d.history) <= maxHistory {
		return
	}
	excess := len(d.history) - maxHistory
	d.history = append([]Op(nil), d.history[excess:]...)
	d.offset += int64(excess)
}

// Reset adopts a full snapshot, discarding local history. Used when a
// sync response carries a newer remote state.
func (d *Document) Reset(text string, revision int64) {
	d.value = text
	d.revision = revision
	d.offset = revision
	d.history = nil
}
