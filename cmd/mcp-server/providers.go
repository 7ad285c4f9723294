package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
)

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=First operand"`
	B float64 `json:"b" jsonschema:"description=Second operand"`
}

type greetArgs struct {
	Name string `json:"name" jsonschema:"description=Who to greet"`
}

type whoamiArgs struct{}

// registerDemo adds the sample tool, resource template and prompt.
func registerDemo(reg *mcpservice.Registry) error {
	readOnly := true
	if err := reg.RegisterTool(mcpservice.NewTool("add", func(ctx context.Context, args addArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		_ = ec.ReportProgress(ctx, mcp.Progress{Progress: 1, Total: 1})
		return mcpservice.TextResult(strconv.FormatFloat(args.A+args.B, 'f', -1, 64)), nil
	}, mcpservice.WithToolDescription("Adds two numbers"),
		mcpservice.WithToolAnnotations(mcp.ToolAnnotations{Title: "Add", ReadOnlyHint: &readOnly}))); err != nil {
		return err
	}

	if err := reg.RegisterTool(mcpservice.NewTool("whoami", func(ctx context.Context, _ whoamiArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		if req.HTTPRequest != nil {
			if u, ok := auth.UserFromContext(req.HTTPRequest.Context()); ok {
				return mcpservice.TextResult(u.UserID()), nil
			}
		}
		return mcpservice.TextResult("anonymous"), nil
	}, mcpservice.WithToolDescription("Reports the authenticated caller"))); err != nil {
		return err
	}

	if err := reg.RegisterResource(mcpservice.Resource{
		URI:         "hello://{name}",
		Name:        "hello",
		Description: "A greeting for name",
		MimeType:    "text/plain",
	}, mcpservice.SharedResource(func(ctx context.Context, params map[string]any, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		name, _ := params["name"].(string)
		return mcpservice.TextContents("hello://"+name, "text/plain", fmt.Sprintf("Hello, %s!", name)), nil
	})); err != nil {
		return err
	}

	return reg.RegisterPrompt(mcpservice.NewPrompt("greet", "Asks the model to greet someone", func(ctx context.Context, args greetArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		return mcpservice.UserPrompt("Greeting", fmt.Sprintf("Please greet %s warmly.", args.Name)), nil
	}))
}
