// Package sse implements the persistent event-stream transport: a client
// opens a long-lived GET stream, receives an "endpoint" event naming the
// companion POST URL, and posts JSON-RPC messages there. Responses and
// server notifications are delivered as "message" events on the stream.
//
// Each open stream owns one session and one protocol server instance. The
// session is removed, and its keep-alive registration dropped, when the
// client disconnects or a write to the stream fails.
package sse
