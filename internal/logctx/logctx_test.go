package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(slog.NewJSONHandler(&buf, nil)).With(slog.String("component", "test"))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", Transport: "sse", Stateful: true})
	ctx = WithCapabilityData(ctx, &CapabilityData{Kind: "tool", Name: "add"})
	log.InfoContext(ctx, "tool.call.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	sess, ok := rec["sess"].(map[string]any)
	if !ok || sess["id"] != "s1" {
		t.Fatalf("missing sess group: %v", rec)
	}
	capGroup, ok := rec["capability"].(map[string]any)
	if !ok || capGroup["name"] != "add" {
		t.Fatalf("missing capability group: %v", rec)
	}
	if rec["component"] != "test" {
		t.Fatalf("With attrs lost through wrapper: %v", rec)
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	once := Wrap(base)
	if _, ok := once.Handler().(Handler); !ok {
		t.Fatalf("expected wrapped handler")
	}
	if twice := Wrap(once); twice != once {
		t.Fatalf("wrapping an already wrapped logger should return it unchanged")
	}
}
