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

// handleResourcesList advertises every registered resource. Templated URIs
// are listed verbatim and also appear in resources/templates/list.
func (s *Server) handleResourcesList(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	registered := s.b.reg.Resources()
	resources := make([]mcp.Resource, 0, len(registered))
	for _, r := range registered {
		resources = append(resources, mcpservice.ToMCPResource(r))
	}
	return s.resultResponse(ctx, req.ID, &mcp.ListResourcesResult{Resources: resources})
}

func (s *Server) handleResourcesTemplatesList(ctx context.Context, req *jsonrpc.Request, _ Call) *jsonrpc.Response {
	templates := []mcp.ResourceTemplate{}
	for _, r := range s.b.reg.Resources() {
		if r.IsTemplate() {
			templates = append(templates, mcpservice.ToMCPResourceTemplate(r))
		}
	}
	return s.resultResponse(ctx, req.ID, &mcp.ListResourceTemplatesResult{ResourceTemplates: templates})
}

func (s *Server) handleResourcesRead(ctx context.Context, req *jsonrpc.Request, call Call) *jsonrpc.Response {
	start := time.Now()
	log := s.log.With(slog.String("method", req.Method))

	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		log.InfoContext(ctx, "server.handle_request.invalid")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	match, ok := s.b.reg.FindResourceByURI(params.URI)
	name := params.URI
	if ok {
		name = match.Resource.Name
	}
	ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: string(mcpservice.KindResource), Name: name})
	ctx, done := s.b.obs.ObserveCall(ctx, mcpservice.KindResource, name)

	if !ok {
		done(OutcomeNotFound)
		log.InfoContext(ctx, "server.resource_read.not_found", slog.String("uri", params.URI))
		return s.resultResponse(ctx, req.ID, mcp.NewResourceErrorResult(params.URI, "Unknown resource: "+params.URI))
	}

	// Request params take precedence over values extracted from the template.
	merged := make(map[string]any, len(match.Params)+len(params.Extra))
	for k, v := range match.Params {
		merged[k] = v
	}
	for k, v := range params.Extra {
		merged[k] = v
	}

	ec := s.newExecContext(call, params.Meta)
	pr := s.newRequest(req, call)
	res, err := invoke(ctx, match.Resource.Binder, pr, func(fn mcpservice.ResourceFunc) (any, error) {
		return fn(ctx, merged, ec, pr)
	})
	if err != nil {
		msg := err.Error()
		outcome := OutcomeError
		if errors.Is(err, mcpservice.ErrProviderUnavailable) {
			msg = "Unknown resource: " + params.URI
			outcome = OutcomeNotFound
		}
		done(outcome)
		log.ErrorContext(ctx, "server.resource_read.fail", slog.String("uri", params.URI), slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return s.resultResponse(ctx, req.ID, mcp.NewResourceErrorResult(params.URI, msg))
	}

	done(OutcomeOK)
	log.InfoContext(ctx, "server.resource_read.ok", slog.String("uri", params.URI), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return s.resultResponse(ctx, req.ID, res)
}
