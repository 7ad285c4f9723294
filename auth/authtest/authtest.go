// Package authtest provides Authenticators for tests and local development.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/vyvu99/mcp-server/auth"
)

// NoAuth accepts any non-empty token and reports a fixed user.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a new NoAuth authenticator with the specified user ID
// If userID is empty, it defaults to "test-user"
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

// CheckAuthentication always returns an authenticated result
func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return User{ID: n.UserID}, nil
}

// Tokens maps literal tokens to users. Unknown tokens fail with
// auth.ErrUnauthorized.
type Tokens map[string]User

// CheckAuthentication looks tok up in the map.
func (t Tokens) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	u, ok := t[tok]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return u, nil
}

// User is a static principal with optional claims.
type User struct {
	ID         string
	ClaimsData map[string]any
}

func (u User) UserID() string { return u.ID }

func (u User) Claims(ref any) error {
	if u.ClaimsData == nil {
		return nil
	}
	b, err := json.Marshal(u.ClaimsData)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
