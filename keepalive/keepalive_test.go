package keepalive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu       sync.Mutex
	writable bool
	fail     bool
	comments []string
}

func (c *fakeConn) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable
}

func (c *fakeConn) WriteComment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.comments = append(c.comments, text)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.comments)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPing_WritesTimestampedComment(t *testing.T) {
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.UTC)
	s := New(WithLogger(quietLogger()), WithClock(func() time.Time { return fixed }))
	c := &fakeConn{writable: true}
	s.Register("a", c)

	s.Ping(context.Background())

	if c.count() != 1 {
		t.Fatalf("expected one comment, got %d", c.count())
	}
	if want := "ping - 2024-05-06T07:08:09.123Z"; c.comments[0] != want {
		t.Fatalf("got %q want %q", c.comments[0], want)
	}
}

func TestPing_PrunesDeadConnections(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	ok := &fakeConn{writable: true}
	closed := &fakeConn{writable: false}
	broken := &fakeConn{writable: true, fail: true}
	s.Register("ok", ok)
	s.Register("closed", closed)
	s.Register("broken", broken)

	s.Ping(context.Background())

	if !s.Has("ok") || s.Has("closed") || s.Has("broken") {
		t.Fatalf("unexpected tracked set after prune: len=%d", s.Len())
	}
	if closed.count() != 0 {
		t.Fatalf("non-writable connection must not be written")
	}
}

func TestPing_KeepsReplacementRegistration(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	s.Register("a", &fakeConn{writable: false})
	s.Ping(context.Background())
	fresh := &fakeConn{writable: true}
	s.Register("a", fresh)
	s.Ping(context.Background())
	if !s.Has("a") || fresh.count() != 1 {
		t.Fatalf("replacement registration should survive and be pinged")
	}
}

func TestConfigure_TimerPingsAndRestarts(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Stop()
	c := &fakeConn{writable: true}
	s.Register("a", c)

	s.Configure(true, 5*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if c.count() < 2 {
		t.Fatalf("expected periodic pings, got %d", c.count())
	}

	s.Configure(false, time.Hour)
	if enabled, interval := s.Settings(); enabled || interval != time.Hour {
		t.Fatalf("unexpected settings: %v %v", enabled, interval)
	}
	n := c.count()
	time.Sleep(30 * time.Millisecond)
	if c.count() != n {
		t.Fatalf("pings continued after disable")
	}
}

func TestConfigure_DefaultInterval(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Stop()
	s.Configure(true, 0)
	if _, interval := s.Settings(); interval != DefaultInterval {
		t.Fatalf("expected default interval, got %v", interval)
	}
}

// blockingConn parks inside WriteComment until release is closed, then fails.
type blockingConn struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingConn) Writable() bool { return true }

func (c *blockingConn) WriteComment(string) error {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return errors.New("broken pipe")
}

func TestStop_DuringTickDoesNotDeadlock(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	c := &blockingConn{entered: make(chan struct{}), release: make(chan struct{})}
	s.Register("slow", c)
	s.Configure(true, 5*time.Millisecond)

	select {
	case <-c.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick never reached the connection")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	time.Sleep(10 * time.Millisecond)
	close(c.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return while a tick was in flight")
	}
	if s.Has("slow") {
		t.Fatalf("failed connection should be pruned by the interrupted tick")
	}

	// Registration still works after the timer is gone.
	done := make(chan struct{})
	go func() {
		s.Register("next", &fakeConn{writable: true})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Register blocked after Stop")
	}
}
