package sse

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	gosse "github.com/tmaxmax/go-sse"
	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/sessions"
)

// TransportName labels sessions created by this package.
const TransportName = "sse"

// maxBodyBytes bounds the size of one POSTed message.
const maxBodyBytes = 4 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// Handler serves the stream and message endpoints.
type Handler struct {
	b           *mcpserver.Builder
	sessions    *sessions.Tracker[*session]
	messagesURL string
	log         *slog.Logger
	newID       func() string
}

type session struct {
	id   string
	srv  *mcpserver.Server
	conn *conn
	ctx  context.Context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// track registers one in-flight dispatch. It fails once teardown started.
func (s *session) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *session) drain() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSessionIDGenerator overrides uuid based session ids.
func WithSessionIDGenerator(gen func() string) Option {
	return func(h *Handler) {
		if gen != nil {
			h.newID = gen
		}
	}
}

// New returns a Handler that builds one server per stream from b and
// advertises messagesURL (a rooted path) as the POST endpoint. live may be
// nil to disable keep-alive registration.
func New(b *mcpserver.Builder, live sessions.Liveness, messagesURL string, opts ...Option) *Handler {
	h := &Handler{
		b:           b,
		messagesURL: messagesURL,
		log:         slog.Default(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.Wrap(h.log)
	h.sessions = sessions.NewTracker[*session](live, h.log)
	return h
}

// Len returns the number of open streams.
func (h *Handler) Len() int { return h.sessions.Len() }

// ServeStream handles GET on the stream endpoint. It blocks until the client
// disconnects or the stream breaks.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	upgraded, err := gosse.Upgrade(w, r)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.upgrade.fail", slog.String("err", err.Error()))
		http.Error(w, "failed to open event stream", http.StatusInternalServerError)
		return
	}

	id := h.newID()
	c := newConn(upgraded, ctx.Done())
	s := &session{id: id, conn: c, ctx: ctx}
	s.srv = h.b.Build(mcpserver.SessionInfo{ID: id, Transport: TransportName}, c)
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: TransportName, Stateful: true})

	if err := h.sessions.Open(id, s, c); err != nil {
		h.log.ErrorContext(ctx, "sse.session.open.fail", slog.String("err", err.Error()))
		_ = s.srv.Close()
		return
	}
	s.srv.OnClose(func() { h.sessions.Close(id) })
	defer h.teardown(ctx, s)

	if err := c.sendEndpoint(h.messagesURL + "?sessionId=" + url.QueryEscape(id)); err != nil {
		h.log.WarnContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	select {
	case <-ctx.Done():
	case <-c.broken:
	}
	h.log.InfoContext(ctx, "sse.stream.end", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) teardown(ctx context.Context, s *session) {
	h.sessions.Close(s.id)
	_ = s.srv.Close()
	s.drain()
	h.log.DebugContext(ctx, "sse.session.cleanup")
}

// ServeMessage handles POST on the messages endpoint. The message is
// acknowledged with 202 and processed asynchronously; any response is
// written to the session's stream.
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("sessionId")
	s, ok := h.sessions.Get(id)
	if id == "" || !ok {
		h.log.InfoContext(ctx, "sse.message.session_miss", slog.String("session_id", id))
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: TransportName, Stateful: true})

	if ct, err := contenttype.GetMediaType(r); err != nil || !ct.Matches(jsonMediaType) {
		h.log.InfoContext(ctx, "sse.message.content_type")
		http.Error(w, "Unsupported content-type", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.log.InfoContext(ctx, "sse.message.read.fail", slog.String("err", err.Error()))
		http.Error(w, "Invalid message", http.StatusBadRequest)
		return
	}
	msgs, batch, err := jsonrpc.ParseMessages(body)
	if err != nil {
		h.log.InfoContext(ctx, "sse.message.parse.fail", slog.String("err", err.Error()))
		http.Error(w, "Invalid message", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")

	call := mcpserver.Call{HTTPRequest: r.WithContext(s.ctx)}
	if batch {
		if s.track() {
			go func() {
				defer s.wg.Done()
				h.dispatchBatch(s, msgs, call)
			}()
		}
		return
	}
	for i := range msgs {
		msg := msgs[i]
		if !s.track() {
			break
		}
		go func() {
			defer s.wg.Done()
			if res := s.srv.Handle(s.ctx, &msg, call); res != nil {
				h.reply(s, res)
			}
		}()
	}
}

// dispatchBatch runs the batch concurrently and writes the replies as one
// array event in request order. Notifications contribute no entry.
func (h *Handler) dispatchBatch(s *session, msgs []jsonrpc.AnyMessage, call mcpserver.Call) {
	out := make([]*jsonrpc.Response, len(msgs))
	var wg sync.WaitGroup
	for i := range msgs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = s.srv.Handle(s.ctx, &msgs[i], call)
		}()
	}
	wg.Wait()

	replies := make([]*jsonrpc.Response, 0, len(out))
	for _, res := range out {
		if res != nil {
			replies = append(replies, res)
		}
	}
	if len(replies) > 0 {
		h.reply(s, replies)
	}
}

func (h *Handler) reply(s *session, v any) {
	if err := s.conn.sendJSON(v); err != nil {
		h.log.WarnContext(s.ctx, "sse.response.write.fail", slog.String("err", err.Error()))
	}
}

// Close terminates every open stream's server. Streams observe the closed
// server through their own request context shortly after.
func (h *Handler) Close() {
	for _, id := range h.sessions.IDs() {
		if s, ok := h.sessions.Close(id); ok {
			s.conn.markBroken()
			_ = s.srv.Close()
		}
	}
}
