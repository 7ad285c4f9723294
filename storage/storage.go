// Package storage is the key-value store handed to providers. Every entry
// lives in one of three namespaces: global, a user's, or one session of a
// user. Deleting a user namespace also removes that user's sessions.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidOptions is returned when a namespace is missing an identifier or
// a key is empty.
var ErrInvalidOptions = errors.New("storage: invalid option combination")

// Storage is implemented by the memory and redis backends.
type Storage interface {
	// Get returns nil without error when key is absent or expired.
	Get(ctx context.Context, key string, opts ...Option) (*StorageItem, error)

	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes the key named by WithKey, or the whole namespace when
	// no key is given.
	Delete(ctx context.Context, opts ...Option) error

	// Keys lists the live keys stored directly in the namespace, sorted.
	// Session keys are not listed under their user.
	Keys(ctx context.Context, opts ...Option) ([]string, error)

	Close() error
}

// StorageItem is a stored value.
type StorageItem struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil never expires
}

// IsExpired reports whether ExpiresAt has passed.
func (si *StorageItem) IsExpired() bool {
	return si.ExpiresAt != nil && time.Now().After(*si.ExpiresAt)
}

// Namespace is one of UserNamespace or SessionNamespace. A nil Namespace is
// the global one.
type Namespace interface {
	prefix() string
}

type UserNamespace struct {
	UserID string
}

func (n UserNamespace) prefix() string { return "user:" + n.UserID + ":" }

type SessionNamespace struct {
	UserID    string
	SessionID string
}

func (n SessionNamespace) prefix() string {
	return "user:" + n.UserID + ":session:" + n.SessionID + ":"
}

// Option configures a single storage call.
type Option func(*Options)

// Options is the resolved form of a call's Option list.
type Options struct {
	Namespace Namespace
	Key       *string
	TTL       *time.Duration
}

func WithUser(userID string) Option {
	return func(o *Options) { o.Namespace = UserNamespace{UserID: userID} }
}

func WithUserSession(userID, sessionID string) Option {
	return func(o *Options) { o.Namespace = SessionNamespace{UserID: userID, SessionID: sessionID} }
}

// WithKey names the key Delete removes.
func WithKey(key string) Option {
	return func(o *Options) { o.Key = &key }
}

// WithTTL expires the value written by Set after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// Apply resolves opts and rejects incomplete namespaces.
func Apply(opts ...Option) (*Options, error) {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	switch ns := o.Namespace.(type) {
	case UserNamespace:
		if ns.UserID == "" {
			return nil, ErrInvalidOptions
		}
	case SessionNamespace:
		if ns.UserID == "" || ns.SessionID == "" {
			return nil, ErrInvalidOptions
		}
	}
	if o.Key != nil && *o.Key == "" {
		return nil, ErrInvalidOptions
	}
	if o.TTL != nil && *o.TTL <= 0 {
		return nil, ErrInvalidOptions
	}
	return o, nil
}

// Prefix is the backend-independent prefix shared by every entry of the
// namespace, including nested session namespaces of a user.
func (o *Options) Prefix() string {
	if o.Namespace == nil {
		return "global:"
	}
	return o.Namespace.prefix()
}

// KeyPrefix is the prefix of keys stored directly in the namespace.
func (o *Options) KeyPrefix() string { return o.Prefix() + "key:" }

// EntryKey is the backend-independent name of key in the namespace.
func (o *Options) EntryKey(key string) string { return o.KeyPrefix() + key }

// Resolve applies opts for a call on key, rejecting an empty key.
func Resolve(key string, opts ...Option) (*Options, error) {
	if key == "" {
		return nil, ErrInvalidOptions
	}
	return Apply(opts...)
}
