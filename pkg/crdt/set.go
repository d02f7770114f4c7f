package crdt

import "sync"

// SetState is the serializable state of a grow-only set.
type SetState[E comparable] struct {
	Elements []E `json:"elements"`
}

// GSet is a grow-only set: membership is monotonically non-shrinking
// and there is no remove operation.
type GSet[E comparable] struct {
	elements map[E]struct{}
	mutex    sync.RWMutex
}

// NewGSet creates an empty grow-only set.
func NewGSet[E comparable]() *GSet[E] {
	return &GSet[E]{
		elements: make(map[E]struct{}),
	}
}

// Add inserts an element. Returns false if it was already present.
func (s *GSet[E]) Add(elem E) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.elements[elem]; exists {
		return false
	}
	s.elements[elem] = struct{}{}
	return true
}

// Contains tests membership.
func (s *GSet[E]) Contains(elem E) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.elements[elem]
	return exists
}

// Elements returns the current members.
func (s *GSet[E]) Elements() []E {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]E, 0, len(s.elements))
	for e := range s.elements {
		result = append(result, e)
	}
	return result
}

// Size returns the number of members.
func (s *GSet[E]) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.elements)
}

// State returns the serializable state.
func (s *GSet[E]) State() SetState[E] {
	return SetState[E]{Elements: s.Elements()}
}

// Merge takes the union with a remote state. Returns whether any
// new element arrived.
func (s *GSet[E]) Merge(remote SetState[E]) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	changed := false
	for _, e := range remote.Elements {
		if _, exists := s.elements[e]; !exists {
			s.elements[e] = struct{}{}
			changed = true
		}
	}
	return changed
}

// TwoPhaseSetState is the serializable state of a two-phase set:
// an add-set plus a permanent tombstone set.
type TwoPhaseSetState[E comparable] struct {
	Added   []E `json:"added"`
	Removed []E `json:"removed"`
}

// TwoPhaseSet supports add then at most one remove per element.
// A tombstoned element can never be re-added; membership is
// added AND NOT removed.
type TwoPhaseSet[E comparable] struct {
	added   map[E]struct{}
	removed map[E]struct{}
	mutex   sync.RWMutex
}

// NewTwoPhaseSet creates an empty two-phase set.
func NewTwoPhaseSet[E comparable]() *TwoPhaseSet[E] {
	return &TwoPhaseSet[E]{
		added:   make(map[E]struct{}),
		removed: make(map[E]struct{}),
	}
}

// Add inserts an element. Returns false if the element is tombstoned
// or already present.
func (s *TwoPhaseSet[E]) Add(elem E) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, tombstoned := s.removed[elem]; tombstoned {
		return false
	}
	if _, exists := s.added[elem]; exists {
		return false
	}
	s.added[elem] = struct{}{}
	return true
}

// Remove tombstones an element. Returns false if it was never added
// or is already removed.
func (s *TwoPhaseSet[E]) Remove(elem E) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.added[elem]; !exists {
		return false
	}
	if _, tombstoned := s.removed[elem]; tombstoned {
		return false
	}
	s.removed[elem] = struct{}{}
	return true
}

// Contains tests logical membership: added and not tombstoned.
func (s *TwoPhaseSet[E]) Contains(elem E) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, tombstoned := s.removed[elem]; tombstoned {
		return false
	}
	_, exists := s.added[elem]
	return exists
}

// Elements returns the current logical members.
func (s *TwoPhaseSet[E]) Elements() []E {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]E, 0, len(s.added))
	for e := range s.added {
		if _, tombstoned := s.removed[e]; !tombstoned {
			result = append(result, e)
		}
	}
	return result
}

// State returns the serializable state.
func (s *TwoPhaseSet[E]) State() TwoPhaseSetState[E] {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state := TwoPhaseSetState[E]{
		Added:   make([]E, 0, len(s.added)),
		Removed: make([]E, 0, len(s.removed)),
	}
	for e := range s.added {
		state.Added = append(state.Added, e)
	}
	for e := range s.removed {
		state.Removed = append(state.Removed, e)
	}
	return state
}

// Merge unions both the add-set and the tombstone set independently.
// Returns whether logical membership changed.
func (s *TwoPhaseSet[E]) Merge(remote TwoPhaseSetState[E]) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	changed := false
	for _, e := range remote.Added {
		if _, exists := s.added[e]; !exists {
			s.added[e] = struct{}{}
			if _, tombstoned := s.removed[e]; !tombstoned {
				changed = true
			}
		}
	}
	for _, e := range remote.Removed {
		if _, tombstoned := s.removed[e]; !tombstoned {
			s.removed[e] = struct{}{}
			if _, exists := s.added[e]; exists {
				changed = true
			}
		}
	}
	return changed
}
