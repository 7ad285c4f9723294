package streaminghttp

import "log/slog"

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used by the handler.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithStatelessMode serves every POST with a single-use server and rejects
// GET and DELETE.
func WithStatelessMode(stateless bool) Option {
	return func(h *Handler) { h.stateless = stateless }
}

// WithJSONResponse answers POSTs with a JSON body instead of an event stream.
func WithJSONResponse(enabled bool) Option {
	return func(h *Handler) { h.jsonResp = enabled }
}

// WithSessionIDGenerator overrides how session ids are minted. A generator
// returning "" disables session storage for that initialization.
func WithSessionIDGenerator(gen func() string) Option {
	return func(h *Handler) {
		if gen != nil {
			h.newID = gen
		}
	}
}
