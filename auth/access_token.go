package auth

import (
	"context"
	"errors"
	"time"

	"github.com/vyvu99/mcp-server/internal/jwtauth"
)

// AccessTokenAuthOption configures optional aspects of the JWT access token
// authenticators (scopes, algorithms, leeway, extra audiences).
type AccessTokenAuthOption func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithAdditionalAudiences accepts tokens minted for any of auds in addition
// to the primary audience.
func WithAdditionalAudiences(auds ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.ExpectedAudiences = append(c.ExpectedAudiences, auds...)
	}
}

// newAccessTokenAuth assembles the validator config for issuer and audience,
// applies opts and hands the result to mk.
func newAccessTokenAuth(issuer, audience string, opts []AccessTokenAuthOption, mk func(*jwtauth.Config) (*jwtauth.Validator, error)) (Authenticator, error) {
	if audience == "" {
		return nil, errors.New("auth: audience is required")
	}
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(cfg)
	}
	v, err := mk(cfg)
	if err != nil {
		return nil, err
	}
	return tokenAuth{v}, nil
}

// NewFromDiscovery verifies RFC 9068 access tokens (typ at+jwt) minted by
// issuer for audience, fetching signing keys through OpenID Connect
// discovery. The audience is usually the public URL of the MCP endpoint.
func NewFromDiscovery(ctx context.Context, issuer, audience string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	return newAccessTokenAuth(issuer, audience, opts, func(cfg *jwtauth.Config) (*jwtauth.Validator, error) {
		cfg.RequireAccessTokenType = true
		return jwtauth.NewFromDiscovery(ctx, cfg)
	})
}

// NewStatic verifies JWTs against the key set served at jwksURL.
func NewStatic(ctx context.Context, issuer, audience, jwksURL string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	return newAccessTokenAuth(issuer, audience, opts, func(cfg *jwtauth.Config) (*jwtauth.Validator, error) {
		return jwtauth.NewStatic(ctx, cfg, jwksURL)
	})
}

// NewHMAC verifies HS256 tokens signed with a shared secret.
func NewHMAC(issuer, audience string, secret []byte, opts ...AccessTokenAuthOption) (Authenticator, error) {
	return newAccessTokenAuth(issuer, audience, opts, func(cfg *jwtauth.Config) (*jwtauth.Validator, error) {
		return jwtauth.NewHMAC(cfg, secret)
	})
}

// tokenAuth translates validator failures into the package sentinels so
// Middleware can pick 401 or 403.
type tokenAuth struct {
	v *jwtauth.Validator
}

func (a tokenAuth) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := a.v.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		return ui, nil
	case errors.Is(err, jwtauth.ErrInsufficientScope):
		return nil, errors.Join(ErrInsufficientScope, err)
	default:
		return nil, errors.Join(ErrUnauthorized, err)
	}
}
