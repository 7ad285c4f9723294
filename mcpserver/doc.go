// Package mcpserver implements the protocol server: one instance per session
// (or per request in stateless mode) that answers JSON-RPC requests against a
// sealed mcpservice.Registry.
//
// A Builder holds everything that is shared between instances: server info,
// instructions, caller supplied base capabilities and the registry. Build
// negotiates the capability advertisement and binds request handlers exactly
// once for the new instance. Categories with no registered descriptors get no
// handlers at all, so a client sees "method not found" rather than an empty
// list.
//
//	b := mcpserver.NewBuilder(reg,
//	    mcpserver.WithServerInfo(mcp.ImplementationInfo{Name: "demo", Version: "1.0.0"}),
//	    mcpserver.WithLogger(log),
//	)
//	srv := b.Build(mcpserver.SessionInfo{ID: id, Transport: "sse"}, peer)
//	defer srv.Close()
//	res := srv.Handle(ctx, msg, mcpserver.Call{HTTPRequest: r})
//
// Per-call data (the HTTP request, an override peer for notifications) is
// passed explicitly to Handle through Call. Nothing is rebound per request.
package mcpserver
