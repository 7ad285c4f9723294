package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/mcpserver"
)

var errNoStream = errors.New("no open stream for session")

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEJSON writes v as one "message" event. The frame is assembled
// first so concurrent writers never interleave partial events.
func writeSSEJSON(wf *lockedWriteFlusher, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "event: message\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	if _, err := wf.Write(frame); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	wf.Flush()
	return nil
}

// session is a stored stateful session. It implements mcpserver.Peer by
// writing to the session's GET stream, when one is open.
type session struct {
	id  string
	srv *mcpserver.Server
	log *slog.Logger

	mu     sync.Mutex
	stream *lockedWriteFlusher
	closed chan struct{}
}

// attachStream installs wf as the session's notification stream. Only one
// stream may be attached at a time.
func (s *session) attachStream(wf *lockedWriteFlusher) (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil, false
	}
	s.stream = wf
	s.closed = make(chan struct{})
	return s.closed, true
}

func (s *session) detachStream(wf *lockedWriteFlusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == wf {
		s.stream = nil
	}
}

// closeStream ends an attached GET stream.
func (s *session) closeStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil && s.closed != nil {
		close(s.closed)
		s.stream, s.closed = nil, nil
	}
}

func (s *session) Notify(ctx context.Context, msg *jsonrpc.Request) error {
	s.mu.Lock()
	wf := s.stream
	s.mu.Unlock()
	if wf == nil {
		s.log.DebugContext(ctx, "session.notify.dropped", slog.String("session_id", s.id), slog.String("method", msg.Method))
		return errNoStream
	}
	return writeSSEJSON(wf, msg)
}
