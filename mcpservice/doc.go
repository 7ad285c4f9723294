// Package mcpservice is the capability registry: the set of tools, resources
// and prompts a server exposes, the bindings that resolve a provider for each
// call, and the execution context handed to provider methods.
//
// Capabilities are registered explicitly during application start-up:
//
//	reg := mcpservice.NewRegistry(mcpservice.WithLogger(log))
//
//	type AddArgs struct {
//	    A int `json:"a" jsonschema:"description=First operand"`
//	    B int `json:"b" jsonschema:"description=Second operand"`
//	}
//	reg.RegisterTool(mcpservice.NewTool("add",
//	    func(ctx context.Context, args AddArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
//	        return mcpservice.TextResult(strconv.Itoa(args.A + args.B)), nil
//	    },
//	    mcpservice.WithToolDescription("Add two numbers"),
//	))
//
//	reg.RegisterResource(mcpservice.Resource{
//	    URI:  "mcp://hello-world/{userName}",
//	    Name: "hello-world",
//	}, mcpservice.SharedResource(func(ctx context.Context, params map[string]any, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
//	    ...
//	}))
//
//	reg.Seal()
//
// Once sealed, the registry is read-only and safe to share between every
// protocol server instance in the process.
//
// # Providers
//
// A binding resolves the object that owns the invoked method for each call.
// Shared bindings reuse one function for every call. Method bindings call a
// Factory per call, so each invocation gets its own provider instance scoped to
// the inbound request.
//
// # Names
//
// Tool and prompt names are unique per kind at lookup time. Registering a
// second descriptor with the same name logs a warning and the last registration
// wins. Resource lookup is by URI template and the first matching template in
// registration order wins.
package mcpservice
