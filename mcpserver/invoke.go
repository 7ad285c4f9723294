package mcpserver

import (
	"context"
	"fmt"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/mcpservice"
)

// newRequest builds the raw request view handed to provider methods.
func (s *Server) newRequest(req *jsonrpc.Request, call Call) *mcpservice.Request {
	return &mcpservice.Request{
		Method:      req.Method,
		ID:          req.ID.String(),
		Params:      req.Params,
		SessionID:   s.sess.ID,
		HTTPRequest: call.HTTPRequest,
	}
}

// invoke resolves a provider through bind and runs it, converting panics
// into errors so a failing provider never takes the session down.
func invoke[F any](ctx context.Context, b mcpservice.Binder[F], req *mcpservice.Request, run func(F) (any, error)) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%v", r)
		}
	}()
	fn, err := b.Bind(ctx, req)
	if err != nil {
		return nil, err
	}
	return run(fn)
}
