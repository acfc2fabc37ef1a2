// Package credstore defines the key-value store with per-key expiry that backs
// revocation entries, rate counters, captcha answers, two-factor secrets and
// OAuth state.
package credstore

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

// Store is a string key-value store with per-key TTL. A ttl of zero means the
// key never expires. All methods are safe for concurrent use.
type Store interface {
	// Set writes value under key, replacing any previous value and ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value and true, or "" and false when key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrementAndExpire atomically increments the counter at key and sets its
	// ttl, returning the new count.
	IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Pop removes key and returns its previous value, if any.
	Pop(ctx context.Context, key string) (string, bool, error)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CREDSTORE")

var (
	CodeUnavailable = ErrRegistry.Register("UNAVAILABLE", errx.TypeUnavailable, "Credential store unavailable")
	CodeCorrupted   = ErrRegistry.Register("CORRUPTED", errx.TypeInternal, "Credential store returned an unexpected value")
)

// ErrUnavailable wraps a transport or timeout failure of the backing store.
func ErrUnavailable(op string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeUnavailable, cause).WithDetail("op", op)
}

// ErrCorrupted reports a value that could not be decoded.
func ErrCorrupted(key string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeCorrupted, cause).WithDetail("key", key)
}
