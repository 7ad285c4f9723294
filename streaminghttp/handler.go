package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/sessions"
	"golang.org/x/sync/errgroup"
)

var _ http.Handler = (*Handler)(nil)

// TransportName labels sessions created by this package.
const TransportName = "streamable-http"

const (
	mcpSessionIDHeader = "Mcp-Session-Id"
	maxBodyBytes       = 4 << 20
	tombstoneTTL       = 10 * time.Minute
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
	responseMediaTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

// Handler serves one streamable HTTP endpoint.
type Handler struct {
	b         *mcpserver.Builder
	log       *slog.Logger
	stateless bool
	jsonResp  bool
	newID     func() string

	sessions *sessions.Store[*session]
	evicted  *sessions.Tombstones
}

// New returns a Handler building protocol servers from b. Without options
// it runs in stateful mode with event-stream responses and uuid session ids.
func New(b *mcpserver.Builder, opts ...Option) *Handler {
	h := &Handler{
		b:        b,
		log:      slog.Default(),
		newID:    uuid.NewString,
		sessions: sessions.NewStore[*session](),
		evicted:  sessions.NewTombstones(tombstoneTTL),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.Wrap(h.log)
	return h
}

// Stateless reports whether the handler runs in stateless mode.
func (h *Handler) Stateless() bool { return h.stateless }

// Len returns the number of live sessions.
func (h *Handler) Len() int { return h.sessions.Len() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	}))

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeRPCError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, "Method not allowed.")
	}
}

// writeRPCError writes a transport-level JSON-RPC error with a null id.
func writeRPCError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, code, msg, nil))
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	rec := &statusRecorder{ResponseWriter: w}
	w = rec

	defer func() {
		if p := recover(); p != nil {
			h.log.ErrorContext(ctx, "http.post.panic", slog.String("err", fmt.Sprint(p)))
			if !rec.wrote {
				writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal server error")
			}
		}
	}()

	if ct, err := contenttype.GetMediaType(r); err != nil || !ct.Matches(jsonMediaType) {
		h.log.InfoContext(ctx, "http.post.content_type")
		writeRPCError(w, http.StatusUnsupportedMediaType, jsonrpc.ErrorCodeServerError, "Unsupported Media Type: Content-Type must be application/json")
		return
	}
	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes); err != nil {
			h.log.InfoContext(ctx, "http.post.accept", slog.String("accept", r.Header.Get("Accept")))
			writeRPCError(w, http.StatusNotAcceptable, jsonrpc.ErrorCodeServerError, "Not Acceptable: Client must accept application/json or text/event-stream")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.log.InfoContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Parse error")
		return
	}
	msgs, batch, err := jsonrpc.ParseMessages(body)
	if err != nil {
		h.log.InfoContext(ctx, "http.post.parse.fail", slog.String("err", err.Error()))
		if errors.Is(err, jsonrpc.ErrEmptyBatch) {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: empty batch")
			return
		}
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Parse error: Invalid JSON-RPC message")
		return
	}

	if h.stateless {
		h.serveStateless(w, r, msgs, batch)
	} else {
		h.serveStateful(w, r, msgs, batch)
	}
	h.log.InfoContext(ctx, "http.post.done", slog.Int("status", rec.status()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) serveStateful(w http.ResponseWriter, r *http.Request, msgs []jsonrpc.AnyMessage, batch bool) {
	ctx := r.Context()
	id := r.Header.Get(mcpSessionIDHeader)
	isInit := jsonrpc.ContainsMethod(msgs, string(mcp.InitializeMethod))

	if id == "" {
		if !isInit {
			h.log.InfoContext(ctx, "session.missing")
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, "Bad Request: No valid session ID provided")
			return
		}
		if len(msgs) > 1 {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: Only one initialization request is allowed")
			return
		}
		s, err := h.openSession(ctx)
		if err != nil {
			h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
			writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal server error")
			return
		}
		if s.id == "" {
			// Nothing to reuse later: serve the exchange and discard the server.
			defer s.srv.Close()
		}
		h.process(w, r, s.srv, s, msgs, batch)
		return
	}

	s, ok := h.sessions.Get(id)
	if !ok {
		if h.evicted.Contains(id) {
			h.log.InfoContext(ctx, "session.evicted", slog.String("session_id", id))
			writeRPCError(w, http.StatusNotFound, jsonrpc.ErrorCodeServerError, "Session not found")
			return
		}
		h.log.InfoContext(ctx, "session.unknown", slog.String("session_id", id))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, "Bad Request: No valid session ID provided")
		return
	}
	if isInit {
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: Server already initialized")
		return
	}
	h.process(w, r, s.srv, s, msgs, batch)
}

func (h *Handler) openSession(ctx context.Context) (*session, error) {
	id := h.newID()
	s := &session{id: id, log: h.log}
	s.srv = h.b.Build(mcpserver.SessionInfo{ID: id, Transport: TransportName}, s)
	if id == "" {
		h.log.WarnContext(ctx, "session.id.empty")
		return s, nil
	}
	if err := h.sessions.Insert(id, s); err != nil {
		_ = s.srv.Close()
		return nil, fmt.Errorf("store session %q: %w", id, err)
	}
	s.srv.OnClose(func() { h.cleanup(id) })
	h.log.InfoContext(ctx, "session.open", slog.String("session_id", id), slog.Int("active", h.sessions.Len()))
	return s, nil
}

// cleanup removes id from the session map and closes its server and stream.
// Every terminal path funnels here and only the first call has an effect.
func (h *Handler) cleanup(id string) {
	s, ok := h.sessions.Remove(id)
	if !ok {
		return
	}
	h.evicted.Add(id)
	s.closeStream()
	_ = s.srv.Close()
	h.log.Info("session.close", slog.String("session_id", id), slog.Int("active", h.sessions.Len()))
}

func (h *Handler) serveStateless(w http.ResponseWriter, r *http.Request, msgs []jsonrpc.AnyMessage, batch bool) {
	ctx := r.Context()
	srv, err := h.newStatelessServer(r)
	if err != nil {
		h.log.ErrorContext(ctx, "stateless.setup.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal server error")
		return
	}
	defer func() {
		_ = srv.Close()
		h.log.DebugContext(ctx, "stateless.teardown")
	}()
	h.process(w, r, srv, nil, msgs, batch)
}

// newStatelessServer builds the single-use server for r. A panic during
// construction is reported as an error after tearing down what was built.
func (h *Handler) newStatelessServer(r *http.Request) (srv *mcpserver.Server, err error) {
	defer func() {
		if p := recover(); p != nil {
			if srv != nil {
				_ = srv.Close()
			}
			srv, err = nil, fmt.Errorf("stateless setup: %v", p)
		}
	}()
	if err := r.Context().Err(); err != nil {
		return nil, err
	}
	return h.b.Build(mcpserver.SessionInfo{Transport: TransportName}, nil), nil
}

// process runs msgs against srv and writes the reply. s is nil for
// stateless exchanges.
func (h *Handler) process(w http.ResponseWriter, r *http.Request, srv *mcpserver.Server, s *session, msgs []jsonrpc.AnyMessage, batch bool) {
	ctx := r.Context()
	if s != nil && s.id != "" {
		w.Header().Set(mcpSessionIDHeader, s.id)
	}

	requests := 0
	for i := range msgs {
		if msgs[i].Type() == "request" {
			requests++
		}
	}
	if requests == 0 {
		for i := range msgs {
			srv.Handle(ctx, &msgs[i], mcpserver.Call{HTTPRequest: r})
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if h.jsonResp {
		out := make([]*jsonrpc.Response, len(msgs))
		dispatch(ctx, srv, msgs, mcpserver.Call{HTTPRequest: r}, func(i int, res *jsonrpc.Response) { out[i] = res })
		responses := make([]*jsonrpc.Response, 0, requests)
		for _, res := range out {
			if res != nil {
				responses = append(responses, res)
			}
		}
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		var err error
		if !batch && len(responses) == 1 {
			err = json.NewEncoder(w).Encode(responses[0])
		} else {
			err = json.NewEncoder(w).Encode(responses)
		}
		if err != nil {
			h.log.WarnContext(ctx, "http.post.write.fail", slog.String("err", err.Error()))
		}
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "flusher.missing")
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal server error")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	call := mcpserver.Call{HTTPRequest: r}
	if s != nil {
		// Notifications raised while serving this POST travel on its stream.
		call.Peer = mcpserver.PeerFunc(func(_ context.Context, note *jsonrpc.Request) error {
			return writeSSEJSON(wf, note)
		})
	}
	dispatch(ctx, srv, msgs, call, func(_ int, res *jsonrpc.Response) {
		if err := writeSSEJSON(wf, res); err != nil {
			h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		}
	})
}

// dispatch handles msgs concurrently and reports each response with the
// index of the message it answers.
func dispatch(ctx context.Context, srv *mcpserver.Server, msgs []jsonrpc.AnyMessage, call mcpserver.Call, emit func(int, *jsonrpc.Response)) {
	var g errgroup.Group
	for i := range msgs {
		g.Go(func() error {
			if res := srv.Handle(ctx, &msgs[i], call); res != nil {
				emit(i, res)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	if h.stateless {
		writeRPCError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, "Method not allowed in stateless mode")
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.log.InfoContext(ctx, "http.get.accept")
		writeRPCError(w, http.StatusNotAcceptable, jsonrpc.ErrorCodeServerError, "Not Acceptable: Client must accept text/event-stream")
		return
	}
	id := r.Header.Get(mcpSessionIDHeader)
	s, ok := h.sessions.Get(id)
	if id == "" || !ok {
		h.log.InfoContext(ctx, "http.get.session_miss", slog.String("session_id", id))
		http.Error(w, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: TransportName, Stateful: true})

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "flusher.missing")
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal server error")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	closed, ok := s.attachStream(wf)
	if !ok {
		writeRPCError(w, http.StatusConflict, jsonrpc.ErrorCodeServerError, "Conflict: Only one SSE stream is allowed per session")
		return
	}
	defer s.detachStream(wf)

	w.Header().Set(mcpSessionIDHeader, id)
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()
	h.log.InfoContext(ctx, "sse.stream.start")

	select {
	case <-ctx.Done():
	case <-closed:
	}
	h.log.InfoContext(ctx, "sse.stream.end", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stateless {
		writeRPCError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, "Method not allowed in stateless mode")
		return
	}
	id := r.Header.Get(mcpSessionIDHeader)
	if _, ok := h.sessions.Get(id); id == "" || !ok {
		h.log.InfoContext(ctx, "http.delete.session_miss", slog.String("session_id", id))
		http.Error(w, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}
	h.cleanup(id)
	w.WriteHeader(http.StatusOK)
	h.log.InfoContext(ctx, "http.delete.ok", slog.String("session_id", id))
}

// Close terminates every live session.
func (h *Handler) Close() {
	for _, s := range h.sessions.Drain() {
		s.closeStream()
		_ = s.srv.Close()
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// statusRecorder remembers whether a status line was written.
type statusRecorder struct {
	http.ResponseWriter
	wrote bool
	code  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.wrote, r.code = true, code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wrote {
		r.wrote, r.code = true, http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) status() int {
	if !r.wrote {
		return 0
	}
	return r.code
}
