package port

import (
	"context"
	"time"
)

// CounterStore is the shared substrate for lockout counters, rate-limit
// counters, and the token blacklist. Implementations must be safe for
// concurrent use and must keep every operation atomic: callers never do
// read-modify-write on top of it.
//
// When the backend is unreachable, every method returns an error wrapping
// repository.ErrStoreUnavailable instead of blocking; callers decide whether
// to fail open or closed.
type CounterStore interface {
	// Increment atomically increments the counter at key and applies
	// ttlIfNew when the increment created the key. The TTL of an existing
	// key is left untouched.
	Increment(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error)
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetIfAbsent stores value with ttl unless the key already exists.
	// Reports whether the write happened.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// TTL returns the remaining lifetime of the key, or zero when the key
	// does not exist or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
