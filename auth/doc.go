// Package auth provides pluggable bearer token authentication for the HTTP
// transports. Tokens are JWTs verified with keys from OpenID Connect
// discovery, a static JWKS URL, or a shared HMAC secret.
//
// An Authenticator validates an incoming bearer token string and returns a
// UserInfo (or an error). Middleware extracts the token from the request,
// maps sentinel errors to RFC 6750 challenges and attaches the principal to
// the request context, where providers can read it with UserFromContext.
//
// Example:
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example", "https://mcp.example/api",
//	    auth.WithRequiredScopes("mcp:read", "mcp:write"),
//	)
//	if err != nil { log.Fatal(err) }
//	mux.Handle("/mcp", auth.Middleware(authn)(handler))
//
// # Scopes
//
// WithRequiredScopes enforces that all provided scopes are present in the
// token's space-delimited scope claim; WithAnyRequiredScope relaxes this so
// at least one matches. The last of these options wins.
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.) and maps to 401. ErrInsufficientScope signals successful
// authentication but missing required scope(s) and maps to 403.
package auth
