// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping JSON
// is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : One stateful session with the fixed id "stdio"
//	Transport        : Newline-delimited JSON-RPC
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	reg := mcpservice.NewRegistry()
//	// reg.RegisterTool(...), etc.
//	reg.Seal()
//	h := stdio.NewHandler(mcpserver.NewBuilder(reg))
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// For multi-client deployments prefer the streaming HTTP or SSE transports.
package stdio
