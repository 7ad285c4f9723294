package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMessages(t *testing.T) {
	t.Run("single request", func(t *testing.T) {
		msgs, batch, err := ParseMessages([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if batch {
			t.Fatalf("expected non-batch")
		}
		if len(msgs) != 1 || msgs[0].Type() != "request" {
			t.Fatalf("unexpected messages: %+v", msgs)
		}
	})

	t.Run("batch containing initialize", func(t *testing.T) {
		body := `[{"jsonrpc":"2.0","method":"notifications/initialized"},{"jsonrpc":"2.0","id":"a","method":"initialize"}]`
		msgs, batch, err := ParseMessages([]byte(body))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !batch || len(msgs) != 2 {
			t.Fatalf("expected batch of 2, got batch=%v len=%d", batch, len(msgs))
		}
		if !ContainsMethod(msgs, "initialize") {
			t.Fatalf("expected initialize to be detected inside batch")
		}
		if msgs[0].Type() != "notification" {
			t.Fatalf("expected first message to be a notification, got %s", msgs[0].Type())
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		if _, _, err := ParseMessages([]byte(` [] `)); !errors.Is(err, ErrEmptyBatch) {
			t.Fatalf("expected ErrEmptyBatch, got %v", err)
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		if _, _, err := ParseMessages([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`)); err == nil {
			t.Fatalf("expected version error")
		}
	})
}

func TestErrorResponseNullID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeServerError, "Session not found", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Session not found"},"id":null}`
	if got := string(b); got != want {
		t.Fatalf("unexpected envelope:\nwant %s\ngot  %s", want, got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, raw := range []string{`7`, `"abc"`} {
		var id RequestID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		b, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(b) != raw {
			t.Fatalf("want %s got %s", raw, b)
		}
	}
}
