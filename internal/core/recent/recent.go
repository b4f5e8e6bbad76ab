// Package recent provides the bounded, deduplicating most-recent-first
// working sets kept in memory for each entity type.
package recent

import (
	"sync"
)

// Store holds at most capacity items, newest first, one per identity key.
// It is safe for concurrent use.
type Store[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	key      func(T) string
}

// New creates an empty store. key extracts the identity of an item.
func New[T any](capacity int, key func(T) string) *Store[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Store[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		key:      key,
	}
}

// Admit removes any entry sharing item's key, puts item at the front and
// drops from the tail until the store fits its capacity.
func (s *Store[T]) Admit(item T) {
	k := s.key(item)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.items {
		if s.key(existing) == k {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}

	if len(s.items) < s.capacity {
		var zero T
		s.items = append(s.items, zero)
	}
	copy(s.items[1:], s.items[:len(s.items)-1])
	s.items[0] = item
}

// Snapshot returns a copy of the current contents, newest first.
func (s *Store[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Page returns limit items starting at offset, newest first. ok is false
// when the window reaches past what the store retains.
func (s *Store[T]) Page(offset, limit int) (items []T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 || limit <= 0 || offset > len(s.items)-limit {
		return nil, false
	}
	out := make([]T, limit)
	copy(out, s.items[offset:offset+limit])
	return out, true
}

// Get returns the retained item with the given key.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if s.key(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// First returns the most recently admitted item.
func (s *Store[T]) First() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[0], true
}

// Len returns the number of retained items.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Capacity returns the configured bound.
func (s *Store[T]) Capacity() int { return s.capacity }
