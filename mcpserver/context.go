package mcpserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
)

// newExecContext builds the execution context for one call. Statefulness
// follows the session id of the server instance.
func (s *Server) newExecContext(call Call, meta *mcp.RequestMeta) mcpservice.Context {
	if !s.Stateful() {
		return &statelessContext{log: s.log}
	}
	peer := call.Peer
	if peer == nil {
		peer = s.peer
	}
	var token mcp.ProgressToken
	if meta != nil {
		token = meta.ProgressToken
	}
	return &statefulContext{srv: s, peer: peer, token: token}
}

type statefulContext struct {
	srv   *Server
	peer  Peer
	token mcp.ProgressToken
}

func (c *statefulContext) Stateful() bool { return true }

func (c *statefulContext) ReportProgress(ctx context.Context, p mcp.Progress) error {
	if c.token == nil || c.peer == nil {
		return nil
	}
	note, err := jsonrpc.NewNotification(string(mcp.ProgressNotificationMethod), &mcp.ProgressNotificationParams{
		ProgressToken: c.token,
		Progress:      p,
	})
	if err != nil {
		return err
	}
	return c.peer.Notify(ctx, note)
}

func (c *statefulContext) Debug(ctx context.Context, msg string, data any) {
	c.send(ctx, mcp.LoggingLevelDebug, msg, data)
}

func (c *statefulContext) Info(ctx context.Context, msg string, data any) {
	c.send(ctx, mcp.LoggingLevelInfo, msg, data)
}

func (c *statefulContext) Warn(ctx context.Context, msg string, data any) {
	c.send(ctx, mcp.LoggingLevelWarning, msg, data)
}

func (c *statefulContext) Error(ctx context.Context, msg string, data any) {
	c.send(ctx, mcp.LoggingLevelError, msg, data)
}

func (c *statefulContext) send(ctx context.Context, level mcp.LoggingLevel, msg string, data any) {
	if c.peer == nil || !c.srv.levelEnabled(level) {
		return
	}
	note, err := jsonrpc.NewNotification(string(mcp.LoggingMessageNotificationMethod), &mcp.LoggingMessageNotificationParams{
		Level: level,
		Data:  mcp.LogData{Message: msg, Context: data},
	})
	if err == nil {
		err = c.peer.Notify(ctx, note)
	}
	if err != nil {
		c.srv.log.DebugContext(ctx, "server.notify.fail", slog.String("level", string(level)), slog.String("err", err.Error()))
	}
}

// statelessContext drops progress and log output. The first attempt logs a
// warning on the server side only.
type statelessContext struct {
	log  *slog.Logger
	once sync.Once
}

func (c *statelessContext) Stateful() bool { return false }

func (c *statelessContext) warn(ctx context.Context, op string) {
	c.once.Do(func() {
		c.log.WarnContext(ctx, "server.context.stateless_unsupported", slog.String("op", op))
	})
}

func (c *statelessContext) ReportProgress(ctx context.Context, _ mcp.Progress) error {
	c.warn(ctx, "reportProgress")
	return nil
}

func (c *statelessContext) Debug(ctx context.Context, _ string, _ any) { c.warn(ctx, "log") }
func (c *statelessContext) Info(ctx context.Context, _ string, _ any)  { c.warn(ctx, "log") }
func (c *statelessContext) Warn(ctx context.Context, _ string, _ any)  { c.warn(ctx, "log") }
func (c *statelessContext) Error(ctx context.Context, _ string, _ any) { c.warn(ctx, "log") }
