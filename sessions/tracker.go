package sessions

import (
	"log/slog"

	"github.com/vyvu99/mcp-server/keepalive"
)

// Liveness is the subset of keepalive.Service the Tracker drives.
type Liveness interface {
	Register(id string, c keepalive.Conn)
	Unregister(id string)
}

// Tracker owns both the session map and the liveness registration of
// event-stream sessions. It is the only component that inserts into or
// removes from either map.
type Tracker[T any] struct {
	store *Store[T]
	live  Liveness
	log   *slog.Logger
}

// NewTracker returns a Tracker writing to live. live may be nil when
// keep-alive is disabled for the transport.
func NewTracker[T any](live Liveness, log *slog.Logger) *Tracker[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker[T]{store: NewStore[T](), live: live, log: log}
}

// Open stores v under id and registers conn for keep-alive pings.
func (t *Tracker[T]) Open(id string, v T, conn keepalive.Conn) error {
	if err := t.store.Insert(id, v); err != nil {
		return err
	}
	if t.live != nil && conn != nil {
		t.live.Register(id, conn)
	}
	t.log.Debug("sessions.open", slog.String("session_id", id), slog.Int("active", t.store.Len()))
	return nil
}

// Close removes id from both maps. It reports whether the session existed,
// so concurrent close paths run their teardown once.
func (t *Tracker[T]) Close(id string) (T, bool) {
	v, ok := t.store.Remove(id)
	if t.live != nil {
		t.live.Unregister(id)
	}
	if ok {
		t.log.Debug("sessions.close", slog.String("session_id", id), slog.Int("active", t.store.Len()))
	}
	return v, ok
}

// Get returns the value stored under id.
func (t *Tracker[T]) Get(id string) (T, bool) { return t.store.Get(id) }

// Len returns the number of open sessions.
func (t *Tracker[T]) Len() int { return t.store.Len() }

// IDs returns the open session ids, oldest first.
func (t *Tracker[T]) IDs() []string { return t.store.IDs() }
