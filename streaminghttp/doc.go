// Package streaminghttp implements the request/response HTTP transport with
// optional session reuse.
//
// In stateful mode a POST without an Mcp-Session-Id header whose body is, or
// contains, an initialize request creates a session. The assigned id is
// returned in the Mcp-Session-Id response header and must accompany every
// later request. GET opens a server-to-client notification stream for the
// session and DELETE terminates it.
//
// In stateless mode every POST is served by a freshly built protocol server
// that is torn down before the handler returns. Session headers are ignored
// and GET and DELETE answer 405.
//
// Responses are delivered either as a single JSON body or as a
// text/event-stream carrying one event per response, depending on
// WithJSONResponse.
package streaminghttp
