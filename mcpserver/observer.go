package mcpserver

import (
	"context"

	"github.com/vyvu99/mcp-server/mcpservice"
)

// Outcome classifies how a capability invocation ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeError    Outcome = "error"
	OutcomeNotFound Outcome = "not_found"
)

// Observer is notified around every tool, resource and prompt invocation.
// ObserveCall may return a derived context, for example one carrying a span.
// The returned function is called exactly once when the invocation ends.
type Observer interface {
	ObserveCall(ctx context.Context, kind mcpservice.Kind, name string) (context.Context, func(Outcome))
}

type nopObserver struct{}

func (nopObserver) ObserveCall(ctx context.Context, _ mcpservice.Kind, _ string) (context.Context, func(Outcome)) {
	return ctx, func(Outcome) {}
}
