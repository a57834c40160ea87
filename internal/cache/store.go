package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks failures of the cache backend itself. Callers treat it
// as a miss on reads and ignore it on writes.
var ErrUnavailable = errors.New("cache unavailable")

// Store is a key-value store with per-entry TTL. Expiry is enforced by the
// store: Get must report an entry older than its TTL as absent.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the
	// key is absent or expired; that is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Close releases the backend connection.
	Close() error
}

// Entry is one stored value with its lifetime.
type Entry struct {
	Key      string
	Value    []byte
	TTL      time.Duration
	StoredAt time.Time
}

// ExpiresAt is the instant after which the entry reads as absent.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrUnavailable, op, key, err)
}
