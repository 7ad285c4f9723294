package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/vyvu99/mcp-server/mcp"
)

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	annotations               *mcp.ToolAnnotations
	allowAdditionalProperties bool // default false (strict)
	output                    *jsonschema.Schema
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAnnotations sets the advisory behavior hints.
func WithToolAnnotations(a mcp.ToolAnnotations) ToolOption {
	return func(c *toolConfig) { c.annotations = &a }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// WithToolOutput advertises the schema reflected from O as the tool's output schema.
func WithToolOutput[O any]() ToolOption {
	return func(c *toolConfig) {
		c.output = SchemaFor[O](true)
	}
}

// NewTool builds a tool descriptor and a shared binding from a typed handler.
// The input schema is reflected from A and arguments are decoded into A
// before fn is called. The two results are meant to be passed straight to
// Registry.RegisterTool.
func NewTool[A any](name string, fn func(ctx context.Context, args A, ec Context, req *Request) (any, error), opts ...ToolOption) (Tool, ToolBinder) {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := Tool{
		Name:         name,
		Description:  cfg.description,
		Parameters:   SchemaFor[A](cfg.allowAdditionalProperties),
		Annotations:  cfg.annotations,
		OutputSchema: cfg.output,
	}

	bound := func(ctx context.Context, raw json.RawMessage, ec Context, req *Request) (any, error) {
		a, err := decodeArgs[A](raw, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, ec, req)
	}
	return desc, sharedBinder[ToolFunc]{fn: bound, name: name}
}

// NewPrompt builds a prompt descriptor and a shared binding from a typed
// handler. A must be a struct of string fields; its schema drives the
// advertised prompt arguments.
func NewPrompt[A any](name, description string, fn func(ctx context.Context, args A, ec Context, req *Request) (any, error)) (Prompt, PromptBinder) {
	desc := Prompt{
		Name:        name,
		Description: description,
		Parameters:  SchemaFor[A](true),
	}
	bound := func(ctx context.Context, args map[string]string, ec Context, req *Request) (any, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		a, err := decodeArgs[A](raw, true)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, ec, req)
	}
	return desc, sharedBinder[PromptFunc]{fn: bound, name: name}
}

func decodeArgs[A any](raw json.RawMessage, allowAdditional bool) (A, error) {
	var a A
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !allowAdditional {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&a); err != nil {
		return a, fmt.Errorf("invalid arguments: %w", err)
	}
	return a, nil
}

// TextResult returns a CallToolResult with a single text block.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}}}
}

// Errorf returns a CallToolResult flagged as an error with a formatted message.
func Errorf(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolErrorResult(fmt.Sprintf(format, args...))
}

// TextContents returns a ReadResourceResult holding one text entry for uri.
func TextContents(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}}}
}

// UserPrompt returns a GetPromptResult holding a single user text message.
func UserPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{{
			Role:    mcp.RoleUser,
			Content: mcp.ContentBlock{Type: mcp.ContentTypeText, Text: text},
		}},
	}
}
