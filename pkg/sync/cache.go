package sync

import (
	"container/list"

	"github.com/google/uuid"
)

// seenCache is a bounded LRU of message ids already merged. CRDT
// merges are idempotent on their own, but OT operations are not, so
// duplicated delivery must be filtered before it reaches a text
// entity. The coordinator's mutex guards all access.
type seenCache struct {
	capacity int
	order    *list.List
	index    map[uuid.UUID]*list.Element
}

func newSeenCache(capacity int) *seenCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &seenCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uuid.UUID]*list.Element),
	}
}

// Contains reports whether the id was seen recently.
func (c *seenCache) Contains(id uuid.UUID) bool {
	_, exists := c.index[id]
	return exists
}

// Add records an id, evicting the least recently seen one when full.
func (c *seenCache) Add(id uuid.UUID) {
	if elem, exists := c.index[id]; exists {
		c.order.MoveToFront(elem)
		return
	}

	c.index[id] = c.order.PushFront(id)

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(uuid.UUID))
	}
}

// Len returns the number of retained ids.
func (c *seenCache) Len() int {
	return c.order.Len()
}
