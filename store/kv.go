// ABOUTME: Local key-value storage primitive used by the sync engine
// ABOUTME: Defines the synchronous KV contract and the capacity sentinel error
package store

import "errors"

// ErrCapacity is returned by Set when the store's capacity bound is exceeded.
// Callers treat the write as best-effort and fall back to remote delivery
// only; it is an accepted degradation, not a fatal error.
var ErrCapacity = errors.New("store: capacity exceeded")

// KV is the durable local key-value primitive. All operations are synchronous
// and must not fail for valid inputs below the capacity bound.
type KV interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) ([]byte, bool)

	// Set stores a value. Returns ErrCapacity when the bound is exceeded.
	Set(key string, value []byte) error

	// Delete removes a key. Removing an absent key is a no-op.
	Delete(key string)
}
