package crdt

import (
	"sync"
	"time"
)

// RegisterState is the full serializable state of an LWW register.
// Exactly one tuple is current per replica at any time.
type RegisterState[T any] struct {
	Value     T      `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Replica   string `json:"replica"`
}

// wins returns true if remote should replace local.
// Higher timestamp wins; on a tie the lexicographically higher
// replica id wins, so every replica resolves conflicts identically.
func (local RegisterState[T]) wins(remote RegisterState[T]) bool {
	if remote.Timestamp != local.Timestamp {
		return remote.Timestamp > local.Timestamp
	}
	return remote.Replica > local.Replica
}

// LWWRegister is a Last-Writer-Wins register.
type LWWRegister[T any] struct {
	state RegisterState[T]
	mutex sync.RWMutex
}

// NewLWWRegister creates an empty register. The zero state has
// timestamp 0 and empty replica, so any real write wins over it.
func NewLWWRegister[T any]() *LWWRegister[T] {
	return &LWWRegister[T]{}
}

// Set writes a new value as the given replica and returns the
// resulting versioned state. The timestamp is wall-clock ms, bumped
// past the current state so a local write always wins locally.
func (r *LWWRegister[T]) Set(value T, replica string) RegisterState[T] {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ts := time.Now().UnixMilli()
	if ts <= r.state.Timestamp {
		ts = r.state.Timestamp + 1
	}

	r.state = RegisterState[T]{
		Value:     value,
		Timestamp: ts,
		Replica:   replica,
	}
	return r.state
}

// Get returns the current value and whether the register was ever written.
func (r *LWWRegister[T]) Get() (T, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.state.Value, r.state.Timestamp > 0
}

// State returns a copy of the full versioned state.
func (r *LWWRegister[T]) State() RegisterState[T] {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.state
}

// Merge incorporates a remote state. The remote wins iff its
// (timestamp, replica) pair is strictly greater. Returns whether
// the local state changed, for observer notification.
func (r *LWWRegister[T]) Merge(remote RegisterState[T]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.state.wins(remote) {
		return false
	}
	r.state = remote
	return true
}
