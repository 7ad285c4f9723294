package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/invopop/jsonschema"
	"github.com/vyvu99/mcp-server/mcp"
)

func nopTool(text string) ToolBinder {
	return SharedTool(func(ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error) {
		return TextResult(text), nil
	})
}

func nopResource(tag string) ResourceBinder {
	return SharedResource(func(ctx context.Context, params map[string]any, ec Context, req *Request) (any, error) {
		return tag, nil
	})
}

func TestRegistry_DuplicateToolNameLastWins(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if err := reg.RegisterTool(Tool{Name: "echo", Description: "first"}, nopTool("one")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterTool(Tool{Name: "other"}, nopTool("x")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterTool(Tool{Name: "echo", Description: "second"}, nopTool("two")); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.FindTool("echo")
	if !ok {
		t.Fatalf("expected echo to be found")
	}
	if got.Description != "second" {
		t.Fatalf("expected last registration to win, got %q", got.Description)
	}
	if !strings.Contains(buf.String(), "registry.register.duplicate") {
		t.Fatalf("expected duplicate warning, log was: %s", buf.String())
	}

	var names []string
	for _, tool := range reg.Tools() {
		names = append(names, tool.Name)
	}
	if diff := cmp.Diff([]string{"echo", "other"}, names); diff != "" {
		t.Fatalf("unexpected listing (-want +got):\n%s", diff)
	}

	if _, ok := reg.FindTool("missing"); ok {
		t.Fatalf("expected missing tool to be absent")
	}
}

func TestRegistry_FindResourceByURI(t *testing.T) {
	reg := NewRegistry()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(reg.RegisterResource(Resource{URI: "items/{id}", Name: "item"}, nopResource("item")))
	must(reg.RegisterResource(Resource{URI: "mcp://users/{name}/profile", Name: "profile"}, nopResource("profile")))
	must(reg.RegisterResource(Resource{URI: "mcp://users/{rest}/profile", Name: "shadowed"}, nopResource("shadowed")))
	must(reg.RegisterResource(Resource{URI: "mcp://static/readme", Name: "readme"}, nopResource("readme")))

	cases := []struct {
		name       string
		uri        string
		wantName   string
		wantParams map[string]string
		wantOK     bool
	}{
		{name: "scheme stripped", uri: "scheme://items/42", wantName: "item", wantParams: map[string]string{"id": "42"}, wantOK: true},
		{name: "no scheme", uri: "items/7", wantName: "item", wantParams: map[string]string{"id": "7"}, wantOK: true},
		{name: "first declared wins", uri: "mcp://users/ada/profile", wantName: "profile", wantParams: map[string]string{"name": "ada"}, wantOK: true},
		{name: "percent decoded", uri: "mcp://users/ada%20lovelace/profile", wantName: "profile", wantParams: map[string]string{"name": "ada lovelace"}, wantOK: true},
		{name: "trailing slash tolerated", uri: "mcp://items/9/", wantName: "item", wantParams: map[string]string{"id": "9"}, wantOK: true},
		{name: "literal", uri: "mcp://static/readme", wantName: "readme", wantParams: map[string]string{}, wantOK: true},
		{name: "placeholder spans one segment", uri: "mcp://items/1/2", wantOK: false},
		{name: "no match", uri: "mcp://nothing/here", wantOK: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := reg.FindResourceByURI(tc.uri)
			if ok != tc.wantOK {
				t.Fatalf("want ok=%v got %v", tc.wantOK, ok)
			}
			if !ok {
				return
			}
			if m.Resource.Name != tc.wantName {
				t.Fatalf("want %q got %q", tc.wantName, m.Resource.Name)
			}
			if diff := cmp.Diff(tc.wantParams, m.Params); diff != "" {
				t.Fatalf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegistry_InvalidTemplateRejected(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterResource(Resource{URI: "mcp://items/{id", Name: "bad"}, nopResource("bad")); err == nil {
		t.Fatalf("expected malformed template to be rejected")
	}
}

func TestRegistry_Sealed(t *testing.T) {
	reg := NewRegistry()
	reg.Seal()
	reg.Seal()
	if err := reg.RegisterTool(Tool{Name: "late"}, nopTool("x")); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected ErrRegistrySealed, got %v", err)
	}
	if !reg.Sealed() {
		t.Fatalf("expected sealed registry")
	}
}

type greeter struct{ greeting string }

func (g *greeter) SayHello(ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error) {
	return TextResult(g.greeting), nil
}

func TestRegistry_DefaultsNameToMethod(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	factory := func(ctx context.Context, req *Request) (*greeter, error) {
		calls++
		return &greeter{greeting: "hello"}, nil
	}
	if err := reg.RegisterTool(Tool{}, ToolMethod(factory, (*greeter).SayHello)); err != nil {
		t.Fatalf("register: %v", err)
	}
	rt, ok := reg.FindTool("SayHello")
	if !ok {
		t.Fatalf("expected tool named after method, have %+v", reg.Tools())
	}

	for i := 0; i < 2; i++ {
		fn, err := rt.Binder.Bind(context.Background(), &Request{})
		if err != nil {
			t.Fatalf("bind: %v", err)
		}
		if _, err := fn(context.Background(), nil, nil, &Request{}); err != nil {
			t.Fatalf("call: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected a provider instance per call, factory ran %d times", calls)
	}

	anon := SharedTool(func(ctx context.Context, args json.RawMessage, ec Context, req *Request) (any, error) { return nil, nil })
	if err := reg.RegisterTool(Tool{}, anon); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected ErrMissingName for anonymous function, got %v", err)
	}
}

func TestToMCPTool(t *testing.T) {
	type out struct {
		Sum int `json:"sum"`
	}
	plain := ToMCPTool(RegisteredTool{Tool: Tool{Name: "plain"}})
	if string(plain.InputSchema) != `{"type":"object"}` {
		t.Fatalf("expected empty object input schema, got %s", plain.InputSchema)
	}
	if plain.OutputSchema != nil {
		t.Fatalf("expected no output schema, got %s", plain.OutputSchema)
	}

	nonObject := &jsonschema.Schema{Type: "integer"}
	typed := ToMCPTool(RegisteredTool{Tool: Tool{Name: "typed", OutputSchema: nonObject, Parameters: SchemaFor[out](false)}})
	var outSchema map[string]any
	if err := json.Unmarshal(typed.OutputSchema, &outSchema); err != nil {
		t.Fatalf("decode output schema: %v", err)
	}
	if outSchema["type"] != "object" {
		t.Fatalf("expected output schema type forced to object, got %v", outSchema["type"])
	}
	if nonObject.Type != "integer" {
		t.Fatalf("projection must not mutate the descriptor schema")
	}
	var is map[string]any
	if err := json.Unmarshal(typed.InputSchema, &is); err != nil {
		t.Fatalf("decode input schema: %v", err)
	}
	if _, ok := is["properties"].(map[string]any)["sum"]; !ok {
		t.Fatalf("expected reflected property, got %v", is)
	}
}

func TestToMCPPromptArguments(t *testing.T) {
	type args struct {
		Topic string `json:"topic" jsonschema:"description=What to write about"`
		Tone  string `json:"tone,omitempty"`
		Count int    `json:"count,omitempty"`
	}
	p := ToMCPPrompt(RegisteredPrompt{Prompt: Prompt{Name: "essay", Parameters: SchemaFor[args](true)}})
	want := []mcp.PromptArgument{
		{Name: "topic", Description: "What to write about", Required: true},
		{Name: "tone"},
	}
	if diff := cmp.Diff(want, p.Arguments); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestNewToolDecodesArgs(t *testing.T) {
	type addArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	desc, b := NewTool("add", func(ctx context.Context, args addArgs, ec Context, req *Request) (any, error) {
		return args.A + args.B, nil
	})
	if desc.Name != "add" || desc.Parameters == nil {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
	fn, err := b.Bind(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	got, err := fn(context.Background(), json.RawMessage(`{"a":2,"b":3}`), nil, &Request{})
	if err != nil || got != 5 {
		t.Fatalf("want 5, got %v (err %v)", got, err)
	}
	if _, err := fn(context.Background(), json.RawMessage(`{"a":1,"c":1}`), nil, &Request{}); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
