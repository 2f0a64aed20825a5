// Package kvstore defines the key-value capability shared by the session store and
// the permission cache. Implementations are opened at startup and closed on shutdown.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string key-value store with per-key expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites key. A non-positive ttl keeps the entry until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// KeysMatching lists live keys starting with prefix.
	KeysMatching(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// DeletePrefix removes every key under prefix and reports how many were swept.
func DeletePrefix(ctx context.Context, store Store, prefix string) (int, error) {
	keys, err := store.KeysMatching(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}
