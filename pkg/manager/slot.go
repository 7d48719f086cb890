package manager

import "sync"

// Slot holds at most one runtime. Replacement is identity checked so a
// caller can only evict the exact value it observed.
type Slot[T comparable] struct {
	mu  sync.Mutex
	v   T
	set bool
}

// Get returns the occupant, if any.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, s.set
}

// InstallIfEmpty stores v unless the slot is occupied. It returns the
// occupant afterwards and whether v was installed.
func (s *Slot[T]) InstallIfEmpty(v T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return s.v, false
	}
	s.v, s.set = v, true
	return v, true
}

// Take empties the slot and returns what was in it.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.v, s.set
	var zero T
	s.v, s.set = zero, false
	return v, ok
}

// EvictIf empties the slot only if it still holds v.
func (s *Slot[T]) EvictIf(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.v != v {
		return false
	}
	var zero T
	s.v, s.set = zero, false
	return true
}
