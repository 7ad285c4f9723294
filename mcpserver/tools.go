package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/logctx"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
)

func (s *Server) handleToolsList(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	registered := s.b.reg.Tools()
	tools := make([]mcp.Tool, 0, len(registered))
	for _, t := range registered {
		tools = append(tools, mcpservice.ToMCPTool(t))
	}
	return s.resultResponse(ctx, req.ID, &mcp.ListToolsResult{Tools: tools})
}

func (s *Server) handleToolCall(ctx context.Context, req *jsonrpc.Request, call Call) *jsonrpc.Response {
	start := time.Now()
	log := s.log.With(slog.String("method", req.Method))

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "server.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	if params.Name == "" {
		log.InfoContext(ctx, "server.handle_request.invalid", slog.String("err", "missing tool name"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: string(mcpservice.KindTool), Name: params.Name})
	ctx, done := s.b.obs.ObserveCall(ctx, mcpservice.KindTool, params.Name)

	tool, ok := s.b.reg.FindTool(params.Name)
	if !ok {
		done(OutcomeNotFound)
		log.InfoContext(ctx, "server.tool_call.not_found")
		return s.resultResponse(ctx, req.ID, mcp.NewToolErrorResult("Unknown tool: "+params.Name))
	}

	ec := s.newExecContext(call, params.Meta)
	pr := s.newRequest(req, call)
	res, err := invoke(ctx, tool.Binder, pr, func(fn mcpservice.ToolFunc) (any, error) {
		return fn(ctx, params.Arguments, ec, pr)
	})
	if err != nil {
		msg := err.Error()
		outcome := OutcomeError
		if errors.Is(err, mcpservice.ErrProviderUnavailable) {
			msg = "Unknown tool: " + params.Name
			outcome = OutcomeNotFound
		}
		done(outcome)
		log.ErrorContext(ctx, "server.tool_call.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return s.resultResponse(ctx, req.ID, mcp.NewToolErrorResult(msg))
	}

	done(OutcomeOK)
	log.InfoContext(ctx, "server.tool_call.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return s.resultResponse(ctx, req.ID, res)
}
