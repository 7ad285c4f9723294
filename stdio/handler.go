package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/mcpserver"
)

const (
	// TransportName labels the stdio session.
	TransportName = "stdio"
	// SessionID is the fixed id of the single stdio session.
	SessionID = "stdio"

	defaultMaxLineBytes = 4 << 20
)

// ErrAlreadyServing is returned by a second call to Serve.
var ErrAlreadyServing = errors.New("stdio: handler already serving")

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC messages from an io.Reader and writes replies to an io.Writer. By
// default, it uses os.Stdin and os.Stdout.
type Handler struct {
	b *mcpserver.Builder
	r io.Reader
	w io.Writer
	l *slog.Logger

	maxLine int

	wmu     sync.Mutex
	started atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(b *mcpserver.Builder, opts ...Option) *Handler {
	h := &Handler{
		b: b,
		r: os.Stdin,
		w: os.Stdout,
		l: slog.Default(),

		maxLine: defaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. Requests are handled concurrently and each reply is written as
// soon as it is ready. On EOF Serve waits for in-flight requests before
// closing the session.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	srv := h.b.Build(mcpserver.SessionInfo{ID: SessionID, Transport: TransportName}, mcpserver.PeerFunc(h.notify))
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: SessionID, Transport: TransportName, Stateful: true})
	h.l.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go h.readLines(ctx, lines, readErr)

	var inflight sync.WaitGroup
	defer func() {
		_ = srv.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancelled")
			_ = srv.Close()
			inflight.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				inflight.Wait()
				err := <-readErr
				if err != nil {
					h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
					return fmt.Errorf("stdio: read: %w", err)
				}
				h.l.InfoContext(ctx, "stdio.serve.eof")
				return nil
			}
			h.handleLine(ctx, srv, line, &inflight)
		}
	}
}

func (h *Handler) readLines(ctx context.Context, out chan<- []byte, errc chan<- error) {
	defer close(out)
	sc := bufio.NewScanner(h.r)
	sc.Buffer(make([]byte, 0, 64*1024), h.maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		select {
		case out <- buf:
		case <-ctx.Done():
			errc <- nil
			return
		}
	}
	errc <- sc.Err()
}

// handleLine dispatches one framed payload. Notifications are handled in
// arrival order; requests run on their own goroutine.
func (h *Handler) handleLine(ctx context.Context, srv *mcpserver.Server, line []byte, inflight *sync.WaitGroup) {
	msgs, batch, err := jsonrpc.ParseMessages(line)
	if err != nil {
		h.l.InfoContext(ctx, "stdio.parse.fail", slog.String("err", err.Error()))
		code, msg := jsonrpc.ErrorCodeParseError, "Parse error"
		if errors.Is(err, jsonrpc.ErrEmptyBatch) {
			code, msg = jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: empty batch"
		}
		h.write(ctx, jsonrpc.NewErrorResponse(nil, code, msg, nil))
		return
	}

	if batch {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			h.handleBatch(ctx, srv, msgs)
		}()
		return
	}

	msg := &msgs[0]
	if msg.Type() != "request" {
		srv.Handle(ctx, msg, mcpserver.Call{})
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		if res := srv.Handle(ctx, msg, mcpserver.Call{}); res != nil {
			h.write(ctx, res)
		}
	}()
}

func (h *Handler) handleBatch(ctx context.Context, srv *mcpserver.Server, msgs []jsonrpc.AnyMessage) {
	out := make([]*jsonrpc.Response, len(msgs))
	var wg sync.WaitGroup
	for i := range msgs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = srv.Handle(ctx, &msgs[i], mcpserver.Call{})
		}()
	}
	wg.Wait()

	responses := make([]*jsonrpc.Response, 0, len(out))
	for _, res := range out {
		if res != nil {
			responses = append(responses, res)
		}
	}
	if len(responses) > 0 {
		h.write(ctx, responses)
	}
}

func (h *Handler) notify(ctx context.Context, msg *jsonrpc.Request) error {
	return h.writeLine(msg)
}

func (h *Handler) write(ctx context.Context, v any) {
	if err := h.writeLine(v); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

// writeLine encodes v as a single line. Writes are serialized so replies
// from concurrent requests never interleave.
func (h *Handler) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}
