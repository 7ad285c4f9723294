package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"runtime"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/vyvu99/mcp-server/mcp"
)

// Kind is one of tool, resource or prompt.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// ErrProviderUnavailable is returned by a Factory when no provider instance
// can be resolved for the call. Handlers report it as an unknown capability.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ToolFunc is a bound tool method. The result is returned to the caller
// verbatim, so it is normally a *mcp.CallToolResult.
type ToolFunc func(ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error)

// ResourceFunc is a bound resource method. params holds the values extracted
// from the URI template merged with the request params.
type ResourceFunc func(ctx context.Context, params map[string]any, ec Context, req *Request) (any, error)

// PromptFunc is a bound prompt method.
type PromptFunc func(ctx context.Context, args map[string]string, ec Context, req *Request) (any, error)

// Binder resolves the callable for one inbound call. Implementations may
// construct a fresh provider instance per call or reuse a shared one.
type Binder[F any] interface {
	Bind(ctx context.Context, req *Request) (F, error)
}

// BinderFunc adapts a plain function to Binder.
type BinderFunc[F any] func(ctx context.Context, req *Request) (F, error)

func (f BinderFunc[F]) Bind(ctx context.Context, req *Request) (F, error) { return f(ctx, req) }

// Factory constructs the provider instance that serves a single call.
type Factory[P any] func(ctx context.Context, req *Request) (P, error)

type (
	ToolBinder     = Binder[ToolFunc]
	ResourceBinder = Binder[ResourceFunc]
	PromptBinder   = Binder[PromptFunc]
)

// Tool is the descriptor of a callable tool.
type Tool struct {
	// Name defaults to the bound method name when empty.
	Name        string
	Description string
	// Parameters describes the accepted arguments. A nil schema advertises an
	// empty object.
	Parameters *jsonschema.Schema
	// OutputSchema is advertised with type forced to "object".
	OutputSchema *jsonschema.Schema
	Annotations  *mcp.ToolAnnotations
}

// Resource is the descriptor of a resource addressed by a URI template.
type Resource struct {
	// URI is a literal URI or a template with {var} placeholders.
	URI string
	// Name defaults to the bound method name when empty.
	Name        string
	Description string
	MimeType    string
}

// Prompt is the descriptor of a prompt. Arguments are derived from the
// string-valued fields of Parameters.
type Prompt struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

type sharedBinder[F any] struct {
	fn   F
	name string
}

func (b sharedBinder[F]) Bind(context.Context, *Request) (F, error) { return b.fn, nil }
func (b sharedBinder[F]) MethodName() string                     { return b.name }

// SharedTool binds fn for every call.
func SharedTool(fn ToolFunc) ToolBinder {
	return sharedBinder[ToolFunc]{fn: fn, name: funcName(fn)}
}

// SharedResource binds fn for every call.
func SharedResource(fn ResourceFunc) ResourceBinder {
	return sharedBinder[ResourceFunc]{fn: fn, name: funcName(fn)}
}

// SharedPrompt binds fn for every call.
func SharedPrompt(fn PromptFunc) PromptBinder {
	return sharedBinder[PromptFunc]{fn: fn, name: funcName(fn)}
}

type methodBinder[P, F any] struct {
	factory Factory[P]
	bind    func(P) F
	name    string
}

func (b methodBinder[P, F]) Bind(ctx context.Context, req *Request) (F, error) {
	var zero F
	p, err := b.factory(ctx, req)
	if err != nil {
		return zero, err
	}
	return b.bind(p), nil
}

func (b methodBinder[P, F]) MethodName() string { return b.name }

// ToolMethod binds a method expression such as (*Weather).Forecast to a
// provider built by factory for each call.
func ToolMethod[P any](factory Factory[P], method func(p P, ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error)) ToolBinder {
	return methodBinder[P, ToolFunc]{
		factory: factory,
		name:    funcName(method),
		bind: func(p P) ToolFunc {
			return func(ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error) {
				return method(p, ctx, args, ec, req)
			}
		},
	}
}

// ResourceMethod binds a method expression to a provider built per call.
func ResourceMethod[P any](factory Factory[P], method func(p P, ctx context.Context, params map[string]any, ec Context, req *Request) (any, error)) ResourceBinder {
	return methodBinder[P, ResourceFunc]{
		factory: factory,
		name:    funcName(method),
		bind: func(p P) ResourceFunc {
			return func(ctx context.Context, params map[string]any, ec Context, req *Request) (any, error) {
				return method(p, ctx, params, ec, req)
			}
		},
	}
}

// PromptMethod binds a method expression to a provider built per call.
func PromptMethod[P any](factory Factory[P], method func(p P, ctx context.Context, args map[string]string, ec Context, req *Request) (any, error)) PromptBinder {
	return methodBinder[P, PromptFunc]{
		factory: factory,
		name:    funcName(method),
		bind: func(p P) PromptFunc {
			return func(ctx context.Context, args map[string]string, ec Context, req *Request) (any, error) {
				return method(p, ctx, args, ec, req)
			}
		},
	}
}

// methodNamer is implemented by binders that know the name of the function
// they bind.
type methodNamer interface {
	MethodName() string
}

func binderName(b any) string {
	if n, ok := b.(methodNamer); ok {
		return n.MethodName()
	}
	return ""
}

// funcName returns the bare method or function name of fn. Anonymous
// functions have no usable name and yield "".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	full := strings.TrimSuffix(rf.Name(), "-fm")
	name := full[strings.LastIndex(full, ".")+1:]
	if name == "" || strings.HasPrefix(name, "func") && strings.TrimLeft(name[4:], "0123456789") == "" {
		return ""
	}
	return name
}
