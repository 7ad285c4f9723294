// Package mcp contains protocol data types and constants shared by the
// registry, the protocol server and the transports. It mirrors the wire
// representation of the Model Context Protocol while keeping the surface
// Go-friendly: exported structs with json tags and string constants for
// method names and enumerations.
//
// The package is free of transport logic. The SSE, streamable HTTP and stdio
// transports import these types but implement their own framing and session
// handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Capabilities
//
// ServerCapabilities is the advertisement returned from initialize. Each
// category is a pointer so that "absent" and "present with listChanged=false"
// remain distinguishable when merging caller supplied values with the
// categories derived from the registry.
//
// # Error Results
//
// Handler level failures are never transport faults. NewToolErrorResult,
// NewResourceErrorResult and NewPromptErrorResult build the protocol result for the
// relevant kind with isError set and the failure message as content.
package mcp
