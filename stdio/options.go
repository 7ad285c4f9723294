package stdio

import (
	"io"
	"log/slog"
)

// Option configures a Handler.
type Option func(*Handler)

// WithIO replaces stdin and stdout. A nil argument keeps the default for
// that side.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithMaxLineBytes bounds a single inbound message. Longer lines end Serve
// with bufio.ErrTooLong.
func WithMaxLineBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxLine = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}
