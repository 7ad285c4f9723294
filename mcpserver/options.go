package mcpserver

import (
	"log/slog"

	"github.com/vyvu99/mcp-server/mcp"
)

// Option configures a Builder.
type Option func(*Builder)

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(b *Builder) { b.info = info }
}

// WithInstructions sets the optional instructions returned from initialize.
func WithInstructions(instructions string) Option {
	return func(b *Builder) { b.instructions = instructions }
}

// WithCapabilities sets the caller supplied base capabilities. Categories set
// here are advertised verbatim and never overridden by negotiation.
func WithCapabilities(caps mcp.ServerCapabilities) Option {
	return func(b *Builder) { b.base = caps }
}

// WithLogger sets the logger used by every server built.
func WithLogger(log *slog.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithObserver installs an Observer notified of every capability invocation.
func WithObserver(o Observer) Option {
	return func(b *Builder) {
		if o != nil {
			b.obs = o
		}
	}
}
