// Package mcpmodule assembles the registry, protocol servers and transports
// into one unit: an http.Handler for the SSE and streamable HTTP transports
// and a stdio loop.
package mcpmodule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/internal/endpoint"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/keepalive"
	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/mcpservice"
	"github.com/vyvu99/mcp-server/sse"
	"github.com/vyvu99/mcp-server/stdio"
	"github.com/vyvu99/mcp-server/streaminghttp"
)

// ErrTransportDisabled is returned when serving a transport that was not
// enabled.
var ErrTransportDisabled = errors.New("mcpmodule: transport disabled")

// Module owns every transport built from one registry.
type Module struct {
	opts options
	log  *slog.Logger

	builder *mcpserver.Builder
	live    *keepalive.Service

	sse        *sse.Handler
	streamable *streaminghttp.Handler
	stdio      *stdio.Handler

	mux    *http.ServeMux
	routes []string

	closeOnce sync.Once
}

// New seals reg and builds the enabled transports.
func New(reg *mcpservice.Registry, opts ...Option) (*Module, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	for _, t := range o.transports {
		switch t {
		case TransportSSE, TransportStreamable, TransportStdio:
		default:
			return nil, fmt.Errorf("mcpmodule: unknown transport %q", t)
		}
	}

	m := &Module{opts: o, log: logctx.Wrap(o.log), mux: http.NewServeMux()}

	reg.Seal()
	tools, resources, prompts := reg.Counts()
	m.log.Info("module.registry.sealed", slog.Int("tools", tools), slog.Int("resources", resources), slog.Int("prompts", prompts))

	bopts := []mcpserver.Option{
		mcpserver.WithServerInfo(o.info),
		mcpserver.WithInstructions(o.instructions),
		mcpserver.WithCapabilities(o.caps),
		mcpserver.WithLogger(m.log),
	}
	if o.obs != nil {
		bopts = append(bopts, mcpserver.WithObserver(o.obs))
	}
	m.builder = mcpserver.NewBuilder(reg, bopts...)

	if m.enabled(TransportSSE) {
		m.live = keepalive.New(keepalive.WithLogger(m.log))
		m.live.Configure(o.pingEnabled, o.pingInterval)

		sseOpts := []sse.Option{sse.WithLogger(m.log)}
		if o.newID != nil {
			sseOpts = append(sseOpts, sse.WithSessionIDGenerator(o.newID))
		}
		messagesRoute := endpoint.Route(o.apiPrefix, o.messagesEndpoint)
		m.sse = sse.New(m.builder, m.live, messagesRoute, sseOpts...)

		m.handle("GET "+endpoint.Route(o.apiPrefix, o.sseEndpoint), "sse", withRequestData(http.HandlerFunc(m.sse.ServeStream)))
		m.handle("POST "+messagesRoute, "messages", withRequestData(http.HandlerFunc(m.sse.ServeMessage)))
		if err := m.trackSessions(sse.TransportName, m.sse.Len); err != nil {
			return nil, err
		}
	}

	if m.enabled(TransportStreamable) {
		shOpts := []streaminghttp.Option{
			streaminghttp.WithLogger(m.log),
			streaminghttp.WithStatelessMode(o.stateless),
			streaminghttp.WithJSONResponse(o.jsonResponse),
		}
		if o.newID != nil {
			shOpts = append(shOpts, streaminghttp.WithSessionIDGenerator(o.newID))
		}
		m.streamable = streaminghttp.New(m.builder, shOpts...)
		m.handle(endpoint.Route(o.apiPrefix, o.mcpEndpoint), "mcp", m.streamable)
		if err := m.trackSessions(streaminghttp.TransportName, m.streamable.Len); err != nil {
			return nil, err
		}
	}

	if m.enabled(TransportStdio) {
		m.stdio = stdio.NewHandler(m.builder, stdio.WithLogger(m.log), stdio.WithIO(o.stdin, o.stdout))
	}

	m.log.Info("module.ready", slog.Any("transports", o.transports), slog.Any("routes", m.routes))
	return m, nil
}

func (m *Module) enabled(t Transport) bool {
	for _, have := range m.opts.transports {
		if have == t {
			return true
		}
	}
	return false
}

// handle mounts h behind the metrics and auth middleware.
func (m *Module) handle(pattern, route string, h http.Handler) {
	if m.opts.authn != nil {
		h = auth.Middleware(m.opts.authn, auth.WithRealm(m.opts.realm), auth.WithLogger(m.log))(h)
	}
	if m.opts.metrics != nil {
		h = m.opts.metrics.Middleware(route)(h)
	}
	m.mux.Handle(pattern, h)
	m.routes = append(m.routes, pattern)
}

func (m *Module) trackSessions(transport string, fn func() int) error {
	if m.opts.metrics == nil {
		return nil
	}
	return m.opts.metrics.TrackSessions(transport, fn)
}

// Handler returns the HTTP handler serving the enabled HTTP transports.
func (m *Module) Handler() http.Handler { return m.mux }

// Routes lists the mounted patterns.
func (m *Module) Routes() []string { return append([]string(nil), m.routes...) }

// ServeStdio runs the stdio transport until ctx is done or input ends.
func (m *Module) ServeStdio(ctx context.Context) error {
	if m.stdio == nil {
		return ErrTransportDisabled
	}
	return m.stdio.Serve(ctx)
}

// ConfigurePing updates the SSE keep-alive settings. It is a no-op when the
// SSE transport is disabled.
func (m *Module) ConfigurePing(enabled bool, interval time.Duration) {
	if m.live != nil {
		m.live.Configure(enabled, interval)
	}
}

// Close terminates all sessions and stops the keep-alive timer. It is safe to
// call more than once.
func (m *Module) Close() error {
	m.closeOnce.Do(func() {
		if m.sse != nil {
			m.sse.Close()
		}
		if m.streamable != nil {
			m.streamable.Close()
		}
		if m.live != nil {
			m.live.Stop()
		}
		m.log.Info("module.closed")
	})
	return nil
}

func withRequestData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
