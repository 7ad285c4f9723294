package sessions

import (
	"sync"
	"time"
)

// Tombstones remembers ids of sessions that were terminated so a late
// request can be told the session is gone rather than never existed.
// Entries expire after the configured TTL.
type Tombstones struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewTombstones returns a set whose entries live for ttl.
func NewTombstones(ttl time.Duration) *Tombstones {
	return &Tombstones{ttl: ttl, now: time.Now, entries: make(map[string]time.Time)}
}

// Add marks id as terminated and prunes expired entries.
func (t *Tombstones) Add(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, at := range t.entries {
		if now.Sub(at) > t.ttl {
			delete(t.entries, k)
		}
	}
	t.entries[id] = now
}

// Contains reports whether id was terminated within the TTL.
func (t *Tombstones) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.entries[id]
	if !ok {
		return false
	}
	if t.now().Sub(at) > t.ttl {
		delete(t.entries, id)
		return false
	}
	return true
}
