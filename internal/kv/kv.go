// Package kv defines the generic persistent key/value interface backing the
// device-local cache tiers.
package kv

import "context"

// Store is a minimal single-writer key/value store. Implementations must be
// safe for use from one logical session; no cross-process coordination is
// assumed.
type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value, replacing any previous value for the key.
	Set(ctx context.Context, key string, val []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys with the given prefix. Used by bulk
	// administrative scans across locally cached entries.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
