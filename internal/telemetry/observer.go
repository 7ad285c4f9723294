package telemetry

import (
	"context"
	"time"

	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/mcpservice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer reports invocations to Metrics and opens a span per call. Either
// part may be nil.
type Observer struct {
	Metrics *Metrics
	Tracer  trace.Tracer
}

var _ mcpserver.Observer = (*Observer)(nil)

func (o *Observer) ObserveCall(ctx context.Context, kind mcpservice.Kind, name string) (context.Context, func(mcpserver.Outcome)) {
	start := time.Now()
	var span trace.Span
	if o.Tracer != nil {
		ctx, span = o.Tracer.Start(ctx, "mcp."+string(kind), trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(callAttributes(string(kind), name)...))
	}
	return ctx, func(outcome mcpserver.Outcome) {
		if o.Metrics != nil {
			o.Metrics.observeCall(string(kind), name, string(outcome), time.Since(start))
		}
		if span != nil {
			span.SetAttributes(attribute.String("mcp.outcome", string(outcome)))
			if outcome != mcpserver.OutcomeOK {
				span.SetStatus(codes.Error, string(outcome))
			}
			span.End()
		}
	}
}
