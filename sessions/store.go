package sessions

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when an id was never stored.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Insert when the id is already taken.
	ErrSessionExists = errors.New("session already exists")
)

// Store maps session ids to values of type T.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
}

type entry[T any] struct {
	v       T
	created time.Time
}

// NewStore returns an empty Store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{entries: make(map[string]entry[T])}
}

// Insert stores v under id. It fails if id is already present.
func (s *Store[T]) Insert(id string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return ErrSessionExists
	}
	s.entries[id] = entry[T]{v: v, created: time.Now()}
	return nil
}

// Get returns the value stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e.v, ok
}

// Remove deletes id and returns the removed value. Removing an unknown id
// reports false.
func (s *Store[T]) Remove(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	return e.v, ok
}

// Len returns the number of stored sessions.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns the stored ids, oldest first.
func (s *Store[T]) IDs() []string {
	type idAt struct {
		id string
		at time.Time
	}
	s.mu.RLock()
	all := make([]idAt, 0, len(s.entries))
	for id, e := range s.entries {
		all = append(all, idAt{id, e.created})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].id < all[j].id
		}
		return all[i].at.Before(all[j].at)
	})
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.id
	}
	return ids
}

// Drain removes and returns every stored value.
func (s *Store[T]) Drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, e.v)
		delete(s.entries, id)
	}
	return out
}
