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

func (s *Server) handlePromptsList(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	registered := s.b.reg.Prompts()
	prompts := make([]mcp.Prompt, 0, len(registered))
	for _, p := range registered {
		prompts = append(prompts, mcpservice.ToMCPPrompt(p))
	}
	return s.resultResponse(ctx, req.ID, &mcp.ListPromptsResult{Prompts: prompts})
}

func (s *Server) handlePromptsGet(ctx context.Context, req *jsonrpc.Request, call Call) *jsonrpc.Response {
	start := time.Now()
	log := s.log.With(slog.String("method", req.Method))

	var params mcp.GetPromptRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		log.InfoContext(ctx, "server.handle_request.invalid")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: string(mcpservice.KindPrompt), Name: params.Name})
	ctx, done := s.b.obs.ObserveCall(ctx, mcpservice.KindPrompt, params.Name)

	prompt, ok := s.b.reg.FindPrompt(params.Name)
	if !ok {
		done(OutcomeNotFound)
		log.InfoContext(ctx, "server.prompt_get.not_found")
		return s.resultResponse(ctx, req.ID, mcp.NewPromptErrorResult("Unknown prompt: "+params.Name))
	}

	args := params.Arguments
	if args == nil {
		args = map[string]string{}
	}
	ec := s.newExecContext(call, params.Meta)
	pr := s.newRequest(req, call)
	res, err := invoke(ctx, prompt.Binder, pr, func(fn mcpservice.PromptFunc) (any, error) {
		return fn(ctx, args, ec, pr)
	})
	if err != nil {
		msg := err.Error()
		outcome := OutcomeError
		if errors.Is(err, mcpservice.ErrProviderUnavailable) {
			msg = "Unknown prompt: " + params.Name
			outcome = OutcomeNotFound
		}
		done(outcome)
		log.ErrorContext(ctx, "server.prompt_get.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return s.resultResponse(ctx, req.ID, mcp.NewPromptErrorResult(msg))
	}

	done(OutcomeOK)
	log.InfoContext(ctx, "server.prompt_get.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return s.resultResponse(ctx, req.ID, res)
}
