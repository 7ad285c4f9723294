// Package storagetest holds a conformance suite shared by storage backends.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vyvu99/mcp-server/storage"
)

// Factory creates an empty Storage for one subtest.
type Factory func(t *testing.T) storage.Storage

// Run runs the complete Storage test suite against the provided factory.
func Run(t *testing.T, factory Factory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory(t)) })
	t.Run("GetNonExistent", func(t *testing.T) { testGetNonExistent(t, factory(t)) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, factory(t)) })
	t.Run("Namespaces", func(t *testing.T) { testNamespaces(t, factory(t)) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, factory(t)) })
	t.Run("DeleteNamespace", func(t *testing.T) { testDeleteNamespace(t, factory(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, factory(t)) })
	t.Run("InvalidOptions", func(t *testing.T) { testInvalidOptions(t, factory(t)) })
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	data := []byte("test data")

	if err := s.Set(ctx, "test-key", data); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}
	// Mutating the caller's slice must not change the stored value.
	data[0] = 'X'

	item, err := s.Get(ctx, "test-key")
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	if item == nil {
		t.Fatal("Expected item to exist, got nil")
	}
	if string(item.Data) != "test data" {
		t.Errorf("Expected data %q, got %q", "test data", item.Data)
	}
	if item.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
	if item.ExpiresAt != nil {
		t.Error("ExpiresAt should be nil for data without TTL")
	}
}

func testGetNonExistent(t *testing.T, s storage.Storage) {
	item, err := s.Get(context.Background(), "non-existent-key")
	if err != nil {
		t.Fatalf("Failed to get non-existent key: %v", err)
	}
	if item != nil {
		t.Error("Expected nil for non-existent key, got item")
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ttl := 100 * time.Millisecond

	if err := s.Set(ctx, "ttl-key", []byte("ttl data"), storage.WithTTL(ttl)); err != nil {
		t.Fatalf("Failed to set data with TTL: %v", err)
	}
	item, err := s.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Failed to get data: %v", err)
	}
	if item == nil || item.ExpiresAt == nil {
		t.Fatalf("Expected item with expiry, got %+v", item)
	}

	time.Sleep(ttl + 50*time.Millisecond)

	item, err = s.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Failed to get expired data: %v", err)
	}
	if item != nil {
		t.Error("Expected nil for expired data, got item")
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after expiry, got %v", keys)
	}
}

func testNamespaces(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	key := "namespace-key"

	writes := []struct {
		data string
		opts []storage.Option
	}{
		{"global data", nil},
		{"user data", []storage.Option{storage.WithUser("user1")}},
		{"session data", []storage.Option{storage.WithUserSession("user1", "session1")}},
	}
	for _, w := range writes {
		if err := s.Set(ctx, key, []byte(w.data), w.opts...); err != nil {
			t.Fatalf("Failed to set %s: %v", w.data, err)
		}
	}
	for _, w := range writes {
		item, err := s.Get(ctx, key, w.opts...)
		if err != nil {
			t.Fatalf("Failed to get %s: %v", w.data, err)
		}
		if item == nil || string(item.Data) != w.data {
			t.Errorf("Expected %s, got %v", w.data, item)
		}
	}

	item, err := s.Get(ctx, key, storage.WithUser("user2"))
	if err != nil {
		t.Fatalf("Failed to get data for different user: %v", err)
	}
	if item != nil {
		t.Error("Expected nil for different user namespace, got item")
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	key := "delete-key"

	if err := s.Set(ctx, key, []byte("delete data")); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}
	if err := s.Set(ctx, "keep-key", []byte("keep")); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}
	if err := s.Delete(ctx, storage.WithKey(key)); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}

	item, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Failed to get data after deletion: %v", err)
	}
	if item != nil {
		t.Error("Expected nil after deletion, got item")
	}
	if item, _ := s.Get(ctx, "keep-key"); item == nil {
		t.Error("Deleting one key removed another")
	}
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	userID := "delete-user"

	for _, key := range []string{"key1", "key2", "key3"} {
		if err := s.Set(ctx, key, []byte("data for "+key), storage.WithUser(userID)); err != nil {
			t.Fatalf("Failed to set data for key %s: %v", key, err)
		}
	}
	if err := s.Set(ctx, "nested", []byte("x"), storage.WithUserSession(userID, "s1")); err != nil {
		t.Fatalf("Failed to set session data: %v", err)
	}
	if err := s.Set(ctx, "key1", []byte("other"), storage.WithUser("other-user")); err != nil {
		t.Fatalf("Failed to set other user data: %v", err)
	}

	if err := s.Delete(ctx, storage.WithUser(userID)); err != nil {
		t.Fatalf("Failed to delete user namespace: %v", err)
	}

	for _, key := range []string{"key1", "key2", "key3"} {
		if item, _ := s.Get(ctx, key, storage.WithUser(userID)); item != nil {
			t.Errorf("Expected nil after namespace deletion for key %s, got item", key)
		}
	}
	if item, _ := s.Get(ctx, "nested", storage.WithUserSession(userID, "s1")); item != nil {
		t.Error("Expected session data of the user to be deleted")
	}
	if item, _ := s.Get(ctx, "key1", storage.WithUser("other-user")); item == nil {
		t.Error("Deleting one user's namespace removed another user's data")
	}
}

func testKeys(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for _, key := range []string{"b", "a", "c"} {
		if err := s.Set(ctx, key, []byte(key), storage.WithUser("lister")); err != nil {
			t.Fatalf("Failed to set %s: %v", key, err)
		}
	}
	if err := s.Set(ctx, "hidden", []byte("x"), storage.WithUserSession("lister", "s")); err != nil {
		t.Fatalf("Failed to set session key: %v", err)
	}

	keys, err := s.Keys(ctx, storage.WithUser("lister"))
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	keys, err = s.Keys(ctx, storage.WithUserSession("lister", "s"))
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"hidden"}, keys); diff != "" {
		t.Errorf("session keys mismatch (-want +got):\n%s", diff)
	}
}

func testInvalidOptions(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	cases := []struct {
		name string
		call func() error
	}{
		{"empty key", func() error { return s.Set(ctx, "", []byte("v")) }},
		{"empty user", func() error { return s.Set(ctx, "k", []byte("v"), storage.WithUser("")) }},
		{"empty session", func() error { return s.Set(ctx, "k", []byte("v"), storage.WithUserSession("u", "")) }},
		{"negative ttl", func() error { return s.Set(ctx, "k", []byte("v"), storage.WithTTL(-time.Second)) }},
		{"get empty key", func() error { _, err := s.Get(ctx, ""); return err }},
		{"delete empty key", func() error { return s.Delete(ctx, storage.WithKey("")) }},
		{"keys empty user", func() error { _, err := s.Keys(ctx, storage.WithUser("")); return err }},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, storage.ErrInvalidOptions) {
			t.Fatalf("%s: err = %v, want ErrInvalidOptions", tc.name, err)
		}
	}
}
