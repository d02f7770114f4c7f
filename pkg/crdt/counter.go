package crdt

import "sync"

// CounterState maps replica id to its non-decreasing contribution.
type CounterState map[string]int64

// GCounter is a grow-only counter. Each replica only ever raises its
// own contribution; the total is the sum over all replicas.
type GCounter struct {
	counts map[string]int64
	mutex  sync.RWMutex
}

// NewGCounter creates a zeroed grow-only counter.
func NewGCounter() *GCounter {
	return &GCounter{
		counts: make(map[string]int64),
	}
}

// Increment raises the given replica's contribution by amount.
// Returns false for non-positive amounts (contributions are monotonic).
func (c *GCounter) Increment(replica string, amount int64) bool {
	if amount <= 0 {
		return false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counts[replica] += amount
	return true
}

// Value returns the sum of all per-replica contributions.
func (c *GCounter) Value() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var total int64
	for _, v := range c.counts {
		total += v
	}
	return total
}

// State returns a copy of the per-replica contributions.
func (c *GCounter) State() CounterState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	state := make(CounterState, len(c.counts))
	for k, v := range c.counts {
		state[k] = v
	}
	return state
}

// Merge takes the per-replica maximum with a remote state. Never
// summing the two sides is what keeps the counter convergent under
// duplicate delivery. Returns whether any contribution grew.
func (c *GCounter) Merge(remote CounterState) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	changed := false
	for replica, v := range remote {
		if v > c.counts[replica] {
			c.counts[replica] = v
			changed = true
		}
	}
	return changed
}

// PNCounterState is the serializable state of a PN counter.
type PNCounterState struct {
	Increments CounterState `json:"increments"`
	Decrements CounterState `json:"decrements"`
}

// PNCounter supports both increment and decrement by pairing two
// grow-only counters; value = increments - decrements.
type PNCounter struct {
	increments *GCounter
	decrements *GCounter
}

// NewPNCounter creates a zeroed PN counter.
func NewPNCounter() *PNCounter {
	return &PNCounter{
		increments: NewGCounter(),
		decrements: NewGCounter(),
	}
}

// Increment raises the replica's positive contribution by amount.
func (c *PNCounter) Increment(replica string, amount int64) bool {
	return c.increments.Increment(replica, amount)
}

// Decrement raises the replica's negative contribution by amount.
func (c *PNCounter) Decrement(replica string, amount int64) bool {
	return c.decrements.Increment(replica, amount)
}

// Value returns increments minus decrements.
func (c *PNCounter) Value() int64 {
	return c.increments.Value() - c.decrements.Value()
}

// State returns the serializable state of both internal counters.
func (c *PNCounter) State() PNCounterState {
	return PNCounterState{
		Increments: c.increments.State(),
		Decrements: c.decrements.State(),
	}
}

// Merge merges both sides independently. Returns whether either changed.
func (c *PNCounter) Merge(remote PNCounterState) bool {
	incChanged := c.increments.Merge(remote.Increments)
	decChanged := c.decrements.Merge(remote.Decrements)
	return incChanged || decChanged
}
