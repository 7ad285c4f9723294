// Package sessions holds the process-local session maps used by the HTTP
// transports.
//
// Store is a concurrency-safe map from session id to a transport-defined
// value. Tracker pairs a Store with the keep-alive service for event-stream
// transports: every id present in the liveness map is also present in the
// store, because both entries are inserted by Open and removed by Close.
//
// Sessions are never shared across processes.
package sessions
