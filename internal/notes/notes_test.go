package notes_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/auth/authtest"
	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/internal/notes"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/mcpservice"
	"github.com/vyvu99/mcp-server/storage/memory"
)

type fixture struct {
	b *mcpserver.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := memory.New(100)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := mcpservice.NewRegistry(mcpservice.WithLogger(log))
	if err := notes.New(store, log).Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.Seal()
	return &fixture{b: mcpserver.NewBuilder(reg, mcpserver.WithLogger(log))}
}

// call runs one request against a server for sessionID as user (empty for
// anonymous).
func (f *fixture) call(t *testing.T, sessionID, user, method string, params any) *jsonrpc.Response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, raw)
	msgs, _, err := jsonrpc.ParseMessages([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if user != "" {
		r = r.WithContext(auth.WithUser(r.Context(), authtest.User{ID: user}))
	}
	srv := f.b.Build(mcpserver.SessionInfo{ID: sessionID, Transport: "test"}, nil)
	defer srv.Close()
	res := srv.Handle(context.Background(), &msgs[0], mcpserver.Call{HTTPRequest: r})
	if res == nil {
		t.Fatalf("nil response")
	}
	return res
}

func (f *fixture) tool(t *testing.T, sessionID, user, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	res := f.call(t, sessionID, user, "tools/call", map[string]any{"name": name, "arguments": args})
	if res.Error != nil {
		t.Fatalf("%s: rpc error %+v", name, res.Error)
	}
	var out mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func text(r mcp.CallToolResult) string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func TestNotes_SetGetDelete(t *testing.T) {
	f := newFixture(t)

	f.tool(t, "", "alice", "notes_set", map[string]any{"key": "todo", "value": "buy milk"})
	if got := f.tool(t, "", "alice", "notes_get", map[string]any{"key": "todo"}); got.IsError || text(got) != "buy milk" {
		t.Fatalf("get = %+v", got)
	}

	// Another user does not see alice's notes.
	if got := f.tool(t, "", "bob", "notes_get", map[string]any{"key": "todo"}); !got.IsError {
		t.Fatalf("bob read alice's note: %+v", got)
	}

	f.tool(t, "", "alice", "notes_delete", map[string]any{"key": "todo"})
	if got := f.tool(t, "", "alice", "notes_get", map[string]any{"key": "todo"}); !got.IsError {
		t.Fatalf("note survived delete: %+v", got)
	}
}

func TestNotes_List(t *testing.T) {
	f := newFixture(t)
	for _, k := range []string{"b", "a", "c"} {
		f.tool(t, "", "", "notes_set", map[string]any{"key": k, "value": k})
	}
	if got := text(f.tool(t, "", "", "notes_list", map[string]any{})); got != "a\nb\nc" {
		t.Fatalf("list = %q", got)
	}
}

func TestNotes_SessionScope(t *testing.T) {
	f := newFixture(t)

	if got := f.tool(t, "", "alice", "notes_set", map[string]any{"key": "k", "value": "v", "scope": "session"}); !got.IsError {
		t.Fatalf("stateless call accepted session scope")
	}

	f.tool(t, "s1", "alice", "notes_set", map[string]any{"key": "k", "value": "v1", "scope": "session"})
	if got := f.tool(t, "s1", "alice", "notes_get", map[string]any{"key": "k", "scope": "session"}); text(got) != "v1" {
		t.Fatalf("s1 get = %+v", got)
	}
	if got := f.tool(t, "s2", "alice", "notes_get", map[string]any{"key": "k", "scope": "session"}); !got.IsError {
		t.Fatalf("s2 read s1's note: %+v", got)
	}
	if got := f.tool(t, "s1", "alice", "notes_get", map[string]any{"key": "k"}); !got.IsError {
		t.Fatalf("user scope read a session note: %+v", got)
	}
}

func TestNotes_ReadResource(t *testing.T) {
	f := newFixture(t)
	f.tool(t, "", "alice", "notes_set", map[string]any{"key": "greeting", "value": "hi"})

	res := f.call(t, "", "alice", "resources/read", map[string]any{"uri": "notes://greeting"})
	var out mcp.ReadResourceResult
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Contents) != 1 || out.Contents[0].Text != "hi" || out.Contents[0].URI != "notes://greeting" {
		t.Fatalf("contents = %+v", out.Contents)
	}

	res = f.call(t, "", "alice", "resources/read", map[string]any{"uri": "notes://missing"})
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.IsError {
		t.Fatalf("missing note should be an error result: %+v", out)
	}
}
