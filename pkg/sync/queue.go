package sync

// updateQueue buffers encoded update messages while the coordinator
// is not Synced. It is bounded: overflow drops the oldest pending
// entry so a long partition never grows memory or blocks the caller.
// The coordinator's mutex guards all access.
type updateQueue struct {
	items    [][]byte
	capacity int
}

func newUpdateQueue(capacity int) *updateQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &updateQueue{capacity: capacity}
}

// Push appends a pending update. Returns true when the oldest entry
// had to be dropped to make room.
func (q *updateQueue) Push(message []byte) bool {
	dropped := false
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, message)
	return dropped
}

// Drain removes and returns all pending updates in FIFO order.
func (q *updateQueue) Drain() [][]byte {
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of pending updates.
func (q *updateQueue) Len() int {
	return len(q.items)
}
