// Package telemetry wires Prometheus metrics and OpenTelemetry tracing into
// the server. Observer reports every tool, resource and prompt invocation;
// Metrics.Middleware measures the HTTP transports.
package telemetry
