package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/repository"
)

const defaultOpTimeout = 100 * time.Millisecond

// incrWithTTL increments a counter and arms the TTL only when the increment
// created the key, so concurrent callers cannot race the expiry and an
// existing window is never extended by later increments.
var incrWithTTL = red.NewScript(`
local v = redis.call("INCR", KEYS[1])
if v == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return v
`)

// CounterStore implements port.CounterStore on top of Redis. Every operation
// runs under a bounded timeout so a slow or unreachable backend degrades
// latency predictably; failures surface as repository.ErrStoreUnavailable.
type CounterStore struct {
	client    *red.Client
	opTimeout time.Duration
}

// NewCounterStore wires a Redis client into a counter store.
func NewCounterStore(client *red.Client, opTimeout time.Duration) *CounterStore {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &CounterStore{client: client, opTimeout: opTimeout}
}

// Increment atomically increments key, arming ttlIfNew on creation.
func (s *CounterStore) Increment(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	if ttlIfNew <= 0 {
		return 0, errors.New("ttl must be positive")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	value, err := incrWithTTL.Run(ctx, s.client, []string{key}, ttlIfNew.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("incr", err)
	}

	return value, nil
}

// Get returns the stored value and whether the key exists.
func (s *CounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, unavailable("get", err)
	}

	return value, true, nil
}

// SetIfAbsent stores value with ttl unless the key already exists.
func (s *CounterStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	written, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}

	return written, nil
}

// Delete removes the key. Missing keys are not an error.
func (s *CounterStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}

	return nil
}

// TTL returns the remaining lifetime of key, or zero when the key is missing
// or carries no expiry.
func (s *CounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	remaining, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", err)
	}
	if remaining < 0 {
		return 0, nil
	}

	return remaining, nil
}

func (s *CounterStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key must not be empty")
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", repository.ErrStoreUnavailable, op, err)
}

var _ port.CounterStore = (*CounterStore)(nil)
