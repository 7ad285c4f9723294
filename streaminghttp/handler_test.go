package streaminghttp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	gosse "github.com/tmaxmax/go-sse"
	"github.com/vyvu99/mcp-server/internal/jsonrpc"
	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpserver"
	"github.com/vyvu99/mcp-server/mcpservice"
	"github.com/vyvu99/mcp-server/streaminghttp"
)

const initBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type sleepArgs struct {
	MS int `json:"ms"`
}

func newBuilder(t *testing.T) *mcpserver.Builder {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := mcpservice.NewRegistry(mcpservice.WithLogger(log))
	if err := reg.RegisterTool(mcpservice.NewTool("add", func(ctx context.Context, args addArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		ec.Info(ctx, "adding", nil)
		return mcpservice.TextResult(fmt.Sprint(args.A + args.B)), nil
	}, mcpservice.WithToolDescription("Adds two integers"))); err != nil {
		t.Fatalf("register add: %v", err)
	}
	if err := reg.RegisterTool(mcpservice.NewTool("sleep", func(ctx context.Context, args sleepArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
		select {
		case <-time.After(time.Duration(args.MS) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return mcpservice.TextResult("slept"), nil
	})); err != nil {
		t.Fatalf("register sleep: %v", err)
	}
	reg.Seal()
	return mcpserver.NewBuilder(reg, mcpserver.WithLogger(log), mcpserver.WithServerInfo(mcp.ImplementationInfo{Name: "test-server", Version: "1.0.0"}))
}

func newServer(t *testing.T, opts ...streaminghttp.Option) (*httptest.Server, *streaminghttp.Handler) {
	t.Helper()
	opts = append([]streaminghttp.Option{streaminghttp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	h := streaminghttp.New(newBuilder(t), opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return srv, h
}

func do(t *testing.T, method, url, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *jsonrpc.Error {
	t.Helper()
	defer resp.Body.Close()
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		Error   *jsonrpc.Error  `json:"error"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error == nil || env.JSONRPC != "2.0" || string(env.ID) != "null" {
		t.Fatalf("unexpected envelope: %+v id=%s", env, env.ID)
	}
	return env.Error
}

// readEvents collects every "message" event of an event-stream body.
func readEvents(t *testing.T, body io.Reader) []string {
	t.Helper()
	var out []string
	for ev, err := range gosse.Read(body, nil) {
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if ev.Type == "message" {
			out = append(out, ev.Data)
		}
	}
	return out
}

func toolText(t *testing.T, raw []byte) string {
	t.Helper()
	var res struct {
		Result mcp.CallToolResult `json:"result"`
		Error  *jsonrpc.Error     `json:"error"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode tool result %s: %v", raw, err)
	}
	if res.Error != nil || res.Result.IsError || len(res.Result.Content) == 0 {
		t.Fatalf("unexpected tool result: %s", raw)
	}
	return res.Result.Content[0].Text
}

func TestStateful_SessionLifecycle(t *testing.T) {
	srv, h := newServer(t, streaminghttp.WithJSONResponse(true))

	resp := do(t, http.MethodPost, srv.URL, "", initBody)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: want 200, got %d", resp.StatusCode)
	}
	id := resp.Header.Get("Mcp-Session-Id")
	if id == "" {
		t.Fatalf("initialize response carries no session id")
	}
	if h.Len() != 1 {
		t.Fatalf("want 1 stored session, got %d", h.Len())
	}

	resp = do(t, http.MethodPost, srv.URL, id, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("notification: want 202, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL, id, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := toolText(t, raw); got != "5" {
		t.Fatalf("add: want 5, got %q", got)
	}

	resp = do(t, http.MethodDelete, srv.URL, id, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", resp.StatusCode)
	}
	if h.Len() != 0 {
		t.Fatalf("session should be removed after delete")
	}

	resp = do(t, http.MethodPost, srv.URL, id, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("post after delete: want 404, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != jsonrpc.ErrorCodeServerError || e.Message != "Session not found" {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestStateful_Rejections(t *testing.T) {
	srv, _ := newServer(t, streaminghttp.WithJSONResponse(true))

	resp := do(t, http.MethodPost, srv.URL, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no session: want 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != jsonrpc.ErrorCodeServerError || e.Message != "Bad Request: No valid session ID provided" {
		t.Fatalf("unexpected error: %+v", e)
	}

	resp = do(t, http.MethodPost, srv.URL, "nope", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown session: want 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPost, srv.URL, "", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: want 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != jsonrpc.ErrorCodeParseError {
		t.Fatalf("want parse error, got %+v", e)
	}

	resp = do(t, http.MethodGet, srv.URL, "nope", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || strings.TrimSpace(string(body)) != "Invalid or missing session ID" {
		t.Fatalf("get unknown: got %d %q", resp.StatusCode, body)
	}

	resp = do(t, http.MethodDelete, srv.URL, "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("delete without id: want 400, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, srv.URL, "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("put: want 405, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(initBody))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain: want 415, got %d", resp.StatusCode)
	}
}

func TestStateful_BatchedInitialize(t *testing.T) {
	srv, h := newServer(t, streaminghttp.WithJSONResponse(true))

	resp := do(t, http.MethodPost, srv.URL, "", "["+initBody+"]")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Mcp-Session-Id") == "" {
		t.Fatalf("batched initialize: got %d", resp.StatusCode)
	}
	var out []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out) != 1 {
		t.Fatalf("want a one element array, got %v (%v)", out, err)
	}
	if h.Len() != 1 {
		t.Fatalf("want 1 session, got %d", h.Len())
	}

	resp2 := do(t, http.MethodPost, srv.URL, resp.Header.Get("Mcp-Session-Id"), initBody)
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("re-initialize: want 400, got %d", resp2.StatusCode)
	}
	if e := decodeError(t, resp2); e.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestStateful_EmptySessionIDIsNotStored(t *testing.T) {
	srv, h := newServer(t, streaminghttp.WithJSONResponse(true), streaminghttp.WithSessionIDGenerator(func() string { return "" }))

	resp := do(t, http.MethodPost, srv.URL, "", initBody)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: want 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("unexpected session header %q", got)
	}
	if h.Len() != 0 {
		t.Fatalf("session with empty id must not be stored")
	}
}

func TestStateful_EventStreamResponses(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL, "", initBody)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("want event stream, got %q", ct)
	}
	id := resp.Header.Get("Mcp-Session-Id")
	if events := readEvents(t, resp.Body); len(events) != 1 {
		t.Fatalf("want 1 event, got %v", events)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPost, srv.URL, id, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":1}}}`)
	events := readEvents(t, resp.Body)
	resp.Body.Close()
	if len(events) != 2 {
		t.Fatalf("want log notification and result, got %v", events)
	}
	if !strings.Contains(events[0], `"notifications/message"`) {
		t.Fatalf("first event should be the log notification: %s", events[0])
	}
	if got := toolText(t, []byte(events[1])); got != "2" {
		t.Fatalf("want 2, got %q", got)
	}
}

func TestStateful_GetStream(t *testing.T) {
	srv, h := newServer(t, streaminghttp.WithJSONResponse(true))

	resp := do(t, http.MethodPost, srv.URL, "", initBody)
	resp.Body.Close()
	id := resp.Header.Get("Mcp-Session-Id")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", id)
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("get: want 200, got %d", stream.StatusCode)
	}

	second := do(t, http.MethodGet, srv.URL, id, "")
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second stream: want 409, got %d", second.StatusCode)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(io.Discard, stream.Body)
	}()

	del := do(t, http.MethodDelete, srv.URL, id, "")
	del.Body.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("stream should end when the session is deleted")
	}
	if h.Len() != 0 {
		t.Fatalf("session should be gone")
	}
}

func TestStateless_ConcurrentCalls(t *testing.T) {
	srv, h := newServer(t, streaminghttp.WithStatelessMode(true), streaminghttp.WithJSONResponse(true))

	var wg sync.WaitGroup
	raws := make([][]byte, 8)
	for i := range raws {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"add","arguments":{"a":%d,"b":1}}}`, i, i)
			resp := do(t, http.MethodPost, srv.URL, "", body)
			defer resp.Body.Close()
			if resp.Header.Get("Mcp-Session-Id") != "" {
				t.Errorf("stateless reply carries a session id")
			}
			raws[i], _ = io.ReadAll(resp.Body)
		}()
	}
	wg.Wait()

	var results []string
	for _, raw := range raws {
		results = append(results, toolText(t, raw))
	}

	want := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 0 {
		t.Fatalf("stateless mode must not store sessions")
	}
}

func TestStateless_BatchKeepsOrder(t *testing.T) {
	srv, _ := newServer(t, streaminghttp.WithStatelessMode(true), streaminghttp.WithJSONResponse(true))

	body := `[` +
		`{"jsonrpc":"2.0","id":"slow","method":"tools/call","params":{"name":"sleep","arguments":{"ms":50}}},` +
		`{"jsonrpc":"2.0","method":"notifications/initialized"},` +
		`{"jsonrpc":"2.0","id":"fast","method":"ping"}` +
		`]`
	resp := do(t, http.MethodPost, srv.URL, "", body)
	defer resp.Body.Close()
	var out []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var ids []string
	for _, r := range out {
		ids = append(ids, string(r.ID))
	}
	if diff := cmp.Diff([]string{`"slow"`, `"fast"`}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestStateless_RejectsGetAndDelete(t *testing.T) {
	srv, _ := newServer(t, streaminghttp.WithStatelessMode(true))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := do(t, method, srv.URL, "any", "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s: want 405, got %d", method, resp.StatusCode)
		}
		if e := decodeError(t, resp); e.Message != "Method not allowed in stateless mode" {
			t.Fatalf("%s: unexpected error %+v", method, e)
		}
	}
}

func TestSDKClient(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	srv, _ := newServer(t)

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "1.0.0"}, &sdk.ClientOptions{})
	transport := &sdk.StreamableClientTransport{Endpoint: srv.URL}
	cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	if want, got := "test-server", cs.InitializeResult().ServerInfo.Name; want != got {
		t.Errorf("server name: want %q, got %q", want, got)
	}

	tools, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 2 {
		t.Fatalf("want 2 tools, got %d", len(tools.Tools))
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: "add", Arguments: map[string]any{"a": 20, "b": 22}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %v", res.Content)
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok || text.Text != "42" {
		t.Fatalf("unexpected content %#v", res.Content[0])
	}
}
