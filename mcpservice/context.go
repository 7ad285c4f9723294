package mcpservice

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vyvu99/mcp-server/mcp"
)

// Request is the raw inbound protocol request handed to a provider method
// alongside its decoded arguments.
type Request struct {
	// Method is the JSON-RPC method, e.g. "tools/call".
	Method string
	// ID is the string form of the JSON-RPC request id.
	ID string
	// Params holds the undecoded params object.
	Params json.RawMessage
	// SessionID is empty for stateless invocations.
	SessionID string
	// HTTPRequest is the HTTP request that carried the message. It is nil for
	// the stdio transport.
	HTTPRequest *http.Request
}

// Context is the execution context handed to provider methods. It exposes
// progress reporting and leveled logging back to the caller.
//
// In a stateful session these emit notifications/progress and
// notifications/message to the client. For stateless invocations they are
// no-ops that log a single server side warning.
type Context interface {
	// Stateful reports whether notifications can reach the caller.
	Stateful() bool
	// ReportProgress emits a progress notification tagged with the request's
	// progress token. It does nothing when the caller supplied no token.
	ReportProgress(ctx context.Context, p mcp.Progress) error
	Debug(ctx context.Context, msg string, data any)
	Info(ctx context.Context, msg string, data any)
	Warn(ctx context.Context, msg string, data any)
	Error(ctx context.Context, msg string, data any)
}
