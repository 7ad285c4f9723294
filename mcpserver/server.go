package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
)

// ErrClosed is returned when a message reaches a server after Close.
var ErrClosed = errors.New("server closed")

// Peer delivers server initiated notifications to the client.
type Peer interface {
	Notify(ctx context.Context, msg *jsonrpc.Request) error
}

// PeerFunc adapts a function to Peer.
type PeerFunc func(ctx context.Context, msg *jsonrpc.Request) error

func (f PeerFunc) Notify(ctx context.Context, msg *jsonrpc.Request) error { return f(ctx, msg) }

// SessionInfo identifies the session a server instance belongs to. An empty
// ID marks a stateless instance.
type SessionInfo struct {
	ID        string
	Transport string
}

// Call carries the per-call data handed to Handle.
type Call struct {
	// HTTPRequest is the request that carried the message, nil for stdio.
	HTTPRequest *http.Request
	// Peer, when set, receives notifications emitted while handling this
	// call instead of the server's own peer.
	Peer Peer
}

type handlerFunc func(ctx context.Context, req *jsonrpc.Request, call Call) *jsonrpc.Response

// Builder builds protocol server instances that share a registry and
// configuration.
type Builder struct {
	reg          *mcpservice.Registry
	info         mcp.ImplementationInfo
	instructions string
	base         mcp.ServerCapabilities
	log          *slog.Logger
	obs          Observer
}

// NewBuilder returns a Builder for servers backed by reg.
func NewBuilder(reg *mcpservice.Registry, opts ...Option) *Builder {
	b := &Builder{
		reg:  reg,
		info: mcp.ImplementationInfo{Name: "mcp-server", Version: "0.0.0"},
		log:  slog.Default(),
		obs:  nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logctx.Wrap(b.log)
	return b
}

// Registry returns the registry servers are built against.
func (b *Builder) Registry() *mcpservice.Registry { return b.reg }

// Server is a single protocol server instance.
type Server struct {
	b         *Builder
	sess      SessionInfo
	peer      Peer
	caps      mcp.ServerCapabilities
	handlers  map[string]handlerFunc
	log       *slog.Logger
	createdAt time.Time

	mu       sync.Mutex
	closed   bool
	inflight map[string][]*inflightCall
	minLevel mcp.LoggingLevel
	client   *mcp.InitializeRequest
	onClose  []func()
}

// Build creates a server for sess. peer may be nil, in which case
// notifications are dropped.
func (b *Builder) Build(sess SessionInfo, peer Peer) *Server {
	s := &Server{
		b:         b,
		sess:      sess,
		peer:      peer,
		caps:      Negotiate(b.reg, b.base),
		log:       b.log.With(slog.String("transport", sess.Transport)),
		createdAt: time.Now(),
		inflight:  make(map[string][]*inflightCall),
	}
	s.bindHandlers()
	return s
}

// bindHandlers installs the method table once for the lifetime of s.
func (s *Server) bindHandlers() {
	s.handlers = map[string]handlerFunc{
		string(mcp.InitializeMethod): s.handleInitialize,
		string(mcp.PingMethod):       s.handlePing,
	}
	if s.caps.Logging != nil {
		s.handlers[string(mcp.LoggingSetLevelMethod)] = s.handleSetLoggingLevel
	}

	tools, resources, prompts := s.b.reg.Counts()
	if tools > 0 {
		s.handlers[string(mcp.ToolsListMethod)] = s.handleToolsList
		s.handlers[string(mcp.ToolsCallMethod)] = s.handleToolCall
	} else {
		s.log.Debug("server.bind.skip", slog.String("kind", string(mcpservice.KindTool)))
	}
	if resources > 0 {
		s.handlers[string(mcp.ResourcesListMethod)] = s.handleResourcesList
		s.handlers[string(mcp.ResourcesTemplatesListMethod)] = s.handleResourcesTemplatesList
		s.handlers[string(mcp.ResourcesReadMethod)] = s.handleResourcesRead
	} else {
		s.log.Debug("server.bind.skip", slog.String("kind", string(mcpservice.KindResource)))
	}
	if prompts > 0 {
		s.handlers[string(mcp.PromptsListMethod)] = s.handlePromptsList
		s.handlers[string(mcp.PromptsGetMethod)] = s.handlePromptsGet
	} else {
		s.log.Debug("server.bind.skip", slog.String("kind", string(mcpservice.KindPrompt)))
	}
}

// SessionID returns the session id, empty for stateless servers.
func (s *Server) SessionID() string { return s.sess.ID }

// Stateful reports whether the server belongs to a session.
func (s *Server) Stateful() bool { return s.sess.ID != "" }

// Capabilities returns the negotiated capability advertisement.
func (s *Server) Capabilities() mcp.ServerCapabilities { return cloneCapabilities(s.caps) }

// HasHandler reports whether method is bound on this instance.
func (s *Server) HasHandler(method string) bool {
	_, ok := s.handlers[method]
	return ok
}

// OnClose registers fn to run once when the server is closed.
func (s *Server) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		go fn()
		return
	}
	s.onClose = append(s.onClose, fn)
}

// Close cancels in-flight calls and runs the OnClose callbacks. It is idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, calls := range s.inflight {
		for _, c := range calls {
			c.cancel(ErrClosed)
		}
		delete(s.inflight, id)
	}
	fns := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range slices.Backward(fns) {
		fn()
	}
	s.log.Debug("server.close", slog.String("session_id", s.sess.ID), slog.Int64("age_ms", time.Since(s.createdAt).Milliseconds()))
	return nil
}

// Closed reports whether Close was called.
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Handle processes one inbound message. Requests always yield a response;
// notifications and client responses yield nil.
func (s *Server) Handle(ctx context.Context, msg *jsonrpc.AnyMessage, call Call) (resp *jsonrpc.Response) {
	if s.Stateful() {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.sess.ID, Transport: s.sess.Transport, Stateful: true})
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: msg.Type()})

	switch msg.Type() {
	case "notification":
		s.handleNotification(ctx, msg.AsRequest())
		return nil
	case "response":
		s.log.DebugContext(ctx, "server.handle_response.ignored")
		return nil
	}

	req := msg.AsRequest()
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "server.handle_request.panic", slog.String("method", req.Method), slog.Any("panic", r))
			resp = internalError(req.ID)
		}
	}()
	if s.Closed() {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, ErrClosed.Error(), nil)
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		s.log.InfoContext(ctx, "server.handle_request.unsupported", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found", nil)
	}

	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	defer s.track(req.ID.String(), cancel)()

	return h(callCtx, req, call)
}

// inflightCall is one running request. Clients may reuse an id while an
// earlier request with it is still running, so each id maps to a list.
type inflightCall struct {
	cancel context.CancelCauseFunc
}

// track records cancel under id and returns the func that removes exactly
// that entry.
func (s *Server) track(id string, cancel context.CancelCauseFunc) func() {
	c := &inflightCall{cancel: cancel}
	s.mu.Lock()
	s.inflight[id] = append(s.inflight[id], c)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		calls := slices.DeleteFunc(s.inflight[id], func(o *inflightCall) bool { return o == c })
		if len(calls) == 0 {
			delete(s.inflight, id)
			return
		}
		s.inflight[id] = calls
	}
}

func (s *Server) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		s.log.DebugContext(ctx, "server.initialized")
	case string(mcp.CancelledNotificationMethod):
		var params struct {
			RequestID jsonrpc.RequestID `json:"requestId"`
			Reason    string            `json:"reason"`
		}
		if err := json.Unmarshal(note.Params, &params); err != nil {
			s.log.InfoContext(ctx, "server.cancel.invalid", slog.String("err", err.Error()))
			return
		}
		s.mu.Lock()
		calls := slices.Clone(s.inflight[params.RequestID.String()])
		s.mu.Unlock()
		cause := fmt.Errorf("cancelled by client: %s", params.Reason)
		for _, c := range calls {
			c.cancel(cause)
		}
		s.log.DebugContext(ctx, "server.cancel", slog.String("request_id", params.RequestID.String()), slog.Int("found", len(calls)))
	default:
		s.log.DebugContext(ctx, "server.notification.ignored", slog.String("method", note.Method))
	}
}

func (s *Server) handleInitialize(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	log := s.log.With(slog.String("method", req.Method))

	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "server.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	version := mcp.LatestProtocolVersion
	if slices.Contains(mcp.SupportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	s.mu.Lock()
	s.client = &params
	s.mu.Unlock()

	log.InfoContext(ctx, "server.initialize.ok",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("protocol_version", version),
	)

	res, err := jsonrpc.NewResultResponse(req.ID, &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.Capabilities(),
		ServerInfo:      s.b.info,
		Instructions:    s.b.instructions,
	})
	if err != nil {
		return internalError(req.ID)
	}
	return res
}

func (s *Server) handlePing(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	if err != nil {
		return internalError(req.ID)
	}
	return res
}

func (s *Server) handleSetLoggingLevel(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || !mcp.IsValidLoggingLevel(params.Level) {
		s.log.InfoContext(ctx, "server.handle_request.invalid", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	s.mu.Lock()
	s.minLevel = params.Level
	s.mu.Unlock()

	res, err := jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	if err != nil {
		return internalError(req.ID)
	}
	return res
}

// levelEnabled reports whether a log notification at level passes the
// threshold set through logging/setLevel. Without a threshold every level is sent.
func (s *Server) levelEnabled(level mcp.LoggingLevel) bool {
	s.mu.Lock()
	threshold := s.minLevel
	s.mu.Unlock()
	if threshold == "" {
		return true
	}
	return levelRank[level] >= levelRank[threshold]
}

var levelRank = map[mcp.LoggingLevel]int{
	mcp.LoggingLevelDebug:     0,
	mcp.LoggingLevelInfo:      1,
	mcp.LoggingLevelNotice:    2,
	mcp.LoggingLevelWarning:   3,
	mcp.LoggingLevelError:     4,
	mcp.LoggingLevelCritical:  5,
	mcp.LoggingLevelAlert:     6,
	mcp.LoggingLevelEmergency: 7,
}

func internalError(id *jsonrpc.RequestID) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", nil)
}

// resultResponse marshals result verbatim, falling back to an internal error.
func (s *Server) resultResponse(ctx context.Context, id *jsonrpc.RequestID, result any) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		s.log.ErrorContext(ctx, "server.handle_request.fail", slog.String("err", err.Error()))
		return internalError(id)
	}
	return res
}
