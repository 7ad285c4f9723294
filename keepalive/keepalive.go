// Package keepalive periodically writes a liveness comment to every open
// event-stream connection so intermediaries do not reap idle streams.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultInterval is used when Configure receives a non-positive interval.
const DefaultInterval = 30 * time.Second

// timestampLayout matches the millisecond precision UTC form clients expect.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Conn is a liveness handle for one open stream.
type Conn interface {
	// Writable reports whether the underlying sink can still accept writes.
	Writable() bool
	// WriteComment writes text as an event-stream comment line and flushes.
	WriteComment(text string) error
}

// Service owns the liveness map. It is safe for concurrent use.
type Service struct {
	log  *slog.Logger
	now  func() time.Time
	conc int

	mu       sync.Mutex
	conns    map[string]Conn
	enabled  bool
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for tick diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for the comment timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConcurrency bounds how many connections are written in parallel per tick.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.conc = n
		}
	}
}

// New returns an unconfigured Service. No timer runs until Configure.
func New(opts ...Option) *Service {
	s := &Service{
		log:   slog.Default(),
		now:   time.Now,
		conc:  32,
		conns: make(map[string]Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure starts the ping timer, restarting it if already running. When
// enabled is false the timer is stopped and registrations are kept.
func (s *Service) Configure(enabled bool, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	stop, done := s.detachLocked()
	s.enabled = enabled
	s.interval = interval
	if enabled {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.run(s.stop, s.done, interval)
	}
	s.mu.Unlock()
	halt(stop, done)

	s.log.Info("keepalive.configure", slog.Bool("enabled", enabled), slog.Int64("interval_ms", interval.Milliseconds()))
}

// Settings returns the current configuration.
func (s *Service) Settings() (enabled bool, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.interval
}

// Register starts tracking c under id, replacing any previous handle.
func (s *Service) Register(id string, c Conn) {
	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	s.log.Debug("keepalive.register", slog.String("session_id", id))
}

// Unregister stops tracking id. Unknown ids are ignored.
func (s *Service) Unregister(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.log.Debug("keepalive.unregister", slog.String("session_id", id))
}

// Has reports whether id is tracked.
func (s *Service) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[id]
	return ok
}

// Len returns the number of tracked connections.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop halts the timer. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.detachLocked()
	s.enabled = false
	s.mu.Unlock()
	halt(stop, done)
}

// detachLocked hands the running timer's channels to the caller. The timer
// goroutine takes s.mu during a tick, so it must be halted after unlocking.
func (s *Service) detachLocked() (stop, done chan struct{}) {
	stop, done = s.stop, s.done
	s.stop, s.done = nil, nil
	return stop, done
}

func halt(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.Ping(context.Background())
		}
	}
}

// Ping writes one liveness comment to every tracked connection. Handles that
// are no longer writable, or whose write fails, are dropped from the map.
// A slow connection does not delay writes to the others.
func (s *Service) Ping(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[string]Conn, len(s.conns))
	for id, c := range s.conns {
		snapshot[id] = c
	}
	s.mu.Unlock()
	if len(snapshot) == 0 {
		return
	}

	text := "ping - " + s.now().UTC().Format(timestampLayout)

	var (
		mu   sync.Mutex
		dead []string
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.conc)
	for id, c := range snapshot {
		g.Go(func() error {
			if !c.Writable() {
				mu.Lock()
				dead = append(dead, id)
				mu.Unlock()
				return nil
			}
			if err := c.WriteComment(text); err != nil {
				s.log.Debug("keepalive.write.fail", slog.String("session_id", id), slog.String("err", err.Error()))
				mu.Lock()
				dead = append(dead, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(dead) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range dead {
		// Only drop the handle that failed; a newer registration under the same id stays.
		if s.conns[id] == snapshot[id] {
			delete(s.conns, id)
		}
	}
	s.mu.Unlock()
	s.log.Info("keepalive.prune", slog.Int("removed", len(dead)))
}
