package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vyvu99/mcp-server/internal/logctx"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// MiddlewareOption customizes Middleware.
type MiddlewareOption func(*guard)

// WithRealm sets the realm echoed in Bearer challenges.
func WithRealm(realm string) MiddlewareOption {
	return func(g *guard) { g.realm = strings.TrimSpace(realm) }
}

// WithLogger sets the logger used to record rejected requests.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(g *guard) {
		if l != nil {
			g.log = l
		}
	}
}

type guard struct {
	a     Authenticator
	realm string
	log   *slog.Logger
}

// Middleware rejects requests that do not carry a bearer token accepted by a
// and attaches the resulting principal to the request context. A nil
// Authenticator disables the guard.
func Middleware(a Authenticator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	g := &guard{a: a, realm: "mcp", log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.log = logctx.Wrap(g.log)
	return func(next http.Handler) http.Handler {
		if g.a == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := g.check(w, r)
			if u == nil {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func (g *guard) check(w http.ResponseWriter, r *http.Request) UserInfo {
	ctx := r.Context()
	authHeader := r.Header.Get(authorizationHeader)

	if authHeader == "" {
		// RFC 6750 §3.1: no error code when the request carries no credentials.
		g.log.InfoContext(ctx, "auth.check.missing", slog.String("err", "no authorization header"))
		g.challenge(w, http.StatusUnauthorized, nil)
		return nil
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		g.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		g.challenge(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"})
		return nil
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tok == "" {
		g.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "empty bearer token"))
		g.challenge(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "empty bearer token"})
		return nil
	}

	u, err := g.a.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		g.log.DebugContext(ctx, "auth.check.ok", slog.String("user_id", u.UserID()))
		return u
	case errors.Is(err, ErrInsufficientScope):
		g.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		g.challenge(w, http.StatusForbidden, map[string]string{"error": "insufficient_scope", "error_description": "insufficient scope"})
	default:
		g.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		g.challenge(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token", "error_description": "token validation failed"})
	}
	return nil
}

func (g *guard) challenge(w http.ResponseWriter, status int, params map[string]string) {
	w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(g.realm, params))
	w.WriteHeader(status)
}

// buildBearerChallenge builds a standardized Bearer challenge header value.
// Format:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Realm is omitted if empty. Known parameters are emitted in a fixed order.
func buildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
