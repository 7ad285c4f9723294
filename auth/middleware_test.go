package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/auth/authtest"
)

type scopeLimited struct{}

func (scopeLimited) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return nil, auth.ErrInsufficientScope
}

func guarded(t *testing.T, a auth.Authenticator) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.Middleware(a, auth.WithLogger(log))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.UserFromContext(r.Context())
		if !ok {
			t.Errorf("no user in context")
			return
		}
		_, _ = io.WriteString(w, u.UserID())
	}))
}

func TestMiddleware(t *testing.T) {
	tokens := authtest.Tokens{"good": {ID: "alice"}}

	tests := []struct {
		name      string
		a         auth.Authenticator
		header    string
		status    int
		challenge string
		body      string
	}{
		{name: "missing", a: tokens, status: http.StatusUnauthorized, challenge: `Bearer realm="mcp"`},
		{name: "wrong scheme", a: tokens, header: "Basic Zm9v", status: http.StatusBadRequest, challenge: `Bearer realm="mcp", error="invalid_request", error_description="malformed bearer authorization header"`},
		{name: "blank token", a: tokens, header: "Bearer    ", status: http.StatusBadRequest, challenge: `Bearer realm="mcp", error="invalid_request", error_description="empty bearer token"`},
		{name: "unknown token", a: tokens, header: "Bearer bad", status: http.StatusUnauthorized, challenge: `Bearer realm="mcp", error="invalid_token", error_description="token validation failed"`},
		{name: "insufficient scope", a: scopeLimited{}, header: "Bearer any", status: http.StatusForbidden, challenge: `Bearer realm="mcp", error="insufficient_scope", error_description="insufficient scope"`},
		{name: "ok", a: tokens, header: "Bearer good", status: http.StatusOK, body: "alice"},
		{name: "lowercase scheme", a: tokens, header: "bearer good", status: http.StatusOK, body: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			guarded(t, tt.a).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status: want %d, got %d", tt.status, rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tt.challenge {
				t.Fatalf("challenge: want %q, got %q", tt.challenge, got)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body: want %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestMiddleware_NilAuthenticatorPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	auth.Middleware(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("want pass-through, got %d", rec.Code)
	}
}

func TestNewHMAC(t *testing.T) {
	a, err := auth.NewHMAC("local", "mcp", []byte("dev-secret"), auth.WithRequiredScopes("mcp:call"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sign := func(scope string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   "local",
			"aud":   "mcp",
			"sub":   "bob",
			"scope": scope,
			"exp":   time.Now().Add(time.Minute).Unix(),
		}).SignedString([]byte("dev-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+sign("mcp:call"))
	rec := httptest.NewRecorder()
	guarded(t, a).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Fatalf("want 200 bob, got %d %q", rec.Code, rec.Body.String())
	}

	req.Header.Set("Authorization", "Bearer "+sign("mcp:read"))
	rec = httptest.NewRecorder()
	guarded(t, a).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403 for missing scope, got %d", rec.Code)
	}

	if _, err := auth.NewHMAC("local", "", []byte("x")); err == nil {
		t.Fatalf("expected error without audience")
	}
}
