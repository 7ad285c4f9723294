package mcpmodule

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpserver"
)

// Transport names a wire transport the module can serve.
type Transport string

const (
	TransportSSE        Transport = "sse"
	TransportStreamable Transport = "streamable-http"
	TransportStdio      Transport = "stdio"
)

// Metrics receives HTTP traffic and live session counts.
type Metrics interface {
	// Middleware wraps the handler mounted at route.
	Middleware(route string) func(http.Handler) http.Handler
	// TrackSessions reports fn as the open session count for transport.
	TrackSessions(transport string, fn func() int) error
}

// Option configures a Module.
type Option func(*options)

type options struct {
	info         mcp.ImplementationInfo
	instructions string
	caps         mcp.ServerCapabilities

	transports       []Transport
	apiPrefix        string
	sseEndpoint      string
	messagesEndpoint string
	mcpEndpoint      string

	stateless    bool
	jsonResponse bool
	newID        func() string

	pingEnabled  bool
	pingInterval time.Duration

	authn   auth.Authenticator
	realm   string
	log     *slog.Logger
	obs     mcpserver.Observer
	metrics Metrics

	stdin  io.Reader
	stdout io.Writer
}

func defaultOptions() options {
	return options{
		info:             mcp.ImplementationInfo{Name: "mcp-server", Version: "0.1.0"},
		transports:       []Transport{TransportSSE, TransportStreamable, TransportStdio},
		sseEndpoint:      "sse",
		messagesEndpoint: "messages",
		mcpEndpoint:      "mcp",
		stateless:        true,
		jsonResponse:     true,
		pingEnabled:      true,
		pingInterval:     30 * time.Second,
		realm:            "mcp",
		log:              slog.Default(),
	}
}

// WithServerInfo sets the name and version reported from initialize.
func WithServerInfo(name, version string) Option {
	return func(o *options) { o.info = mcp.ImplementationInfo{Name: name, Version: version} }
}

// WithInstructions sets the instructions reported from initialize.
func WithInstructions(s string) Option {
	return func(o *options) { o.instructions = s }
}

// WithCapabilities sets capabilities advertised in addition to the ones
// derived from the registry.
func WithCapabilities(caps mcp.ServerCapabilities) Option {
	return func(o *options) { o.caps = caps }
}

// WithTransports selects which transports are served. Unknown names are
// rejected by New.
func WithTransports(ts ...Transport) Option {
	return func(o *options) { o.transports = ts }
}

// WithAPIPrefix sets the global prefix every HTTP endpoint is mounted under.
func WithAPIPrefix(prefix string) Option {
	return func(o *options) { o.apiPrefix = prefix }
}

// WithEndpoints overrides the SSE stream, SSE messages and streamable HTTP
// endpoint names. Empty values keep the defaults.
func WithEndpoints(sse, messages, mcpEndpoint string) Option {
	return func(o *options) {
		if sse != "" {
			o.sseEndpoint = sse
		}
		if messages != "" {
			o.messagesEndpoint = messages
		}
		if mcpEndpoint != "" {
			o.mcpEndpoint = mcpEndpoint
		}
	}
}

// WithStatelessMode toggles stateless streamable HTTP.
func WithStatelessMode(stateless bool) Option {
	return func(o *options) { o.stateless = stateless }
}

// WithJSONResponse toggles plain JSON replies on streamable HTTP POSTs.
func WithJSONResponse(enabled bool) Option {
	return func(o *options) { o.jsonResponse = enabled }
}

// WithSessionIDGenerator overrides how stateful session ids are minted.
func WithSessionIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithPing configures the SSE keep-alive comments.
func WithPing(enabled bool, interval time.Duration) Option {
	return func(o *options) {
		o.pingEnabled = enabled
		o.pingInterval = interval
	}
}

// WithAuthenticator guards every HTTP endpoint with a bearer token check.
func WithAuthenticator(a auth.Authenticator, realm string) Option {
	return func(o *options) {
		o.authn = a
		if realm != "" {
			o.realm = realm
		}
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithObserver installs an invocation observer.
func WithObserver(obs mcpserver.Observer) Option {
	return func(o *options) { o.obs = obs }
}

// WithMetrics records HTTP traffic and live session counts in m.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStdio overrides the stdio transport's streams.
func WithStdio(r io.Reader, w io.Writer) Option {
	return func(o *options) {
		o.stdin = r
		o.stdout = w
	}
}
