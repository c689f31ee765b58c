package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/repository"
)

// Tier describes one fixed-window rate-limit policy.
type Tier struct {
	// Scope names the tier in counter keys ("anon", "user", "auth").
	Scope  string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a single tier check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// Degraded marks a check that was allowed only because the counter
	// store was unreachable.
	Degraded bool
}

// RateLimiter enforces per-subject request quotas on top of the counter
// store. Counting is fixed-window: the first request in a window creates the
// counter with TTL equal to the window, and every later request increments it
// whether or not it is allowed, so a tight retry loop cannot reset its own
// penalty.
type RateLimiter struct {
	store     port.CounterStore
	logger    *zap.Logger
	metrics   port.AuthMetrics
	whitelist map[string]struct{}
}

// NewRateLimiter constructs a rate limiter. whitelisted subjects (addresses
// or identities) bypass every tier.
func NewRateLimiter(store port.CounterStore, log *zap.Logger, whitelisted []string) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}

	whitelist := make(map[string]struct{}, len(whitelisted))
	for _, subject := range whitelisted {
		if subject != "" {
			whitelist[subject] = struct{}{}
		}
	}

	return &RateLimiter{store: store, logger: log, whitelist: whitelist}
}

// WithMetrics attaches telemetry counters.
func (l *RateLimiter) WithMetrics(metrics port.AuthMetrics) *RateLimiter {
	l.metrics = metrics
	return l
}

// Check counts the request against the tier for the given subject and
// endpoint class. A store outage fails open: the request is allowed and the
// degraded mode is logged and counted.
func (l *RateLimiter) Check(ctx context.Context, tier Tier, subject, endpointClass string) (Decision, error) {
	if tier.Limit <= 0 || tier.Window <= 0 {
		return Decision{Allowed: true, Limit: tier.Limit}, nil
	}
	if subject == "" {
		return Decision{}, errors.New("subject is required")
	}
	if _, ok := l.whitelist[subject]; ok {
		return Decision{Allowed: true, Limit: tier.Limit, Remaining: tier.Limit}, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s:%s", tier.Scope, subject, endpointClass)

	count, err := l.store.Increment(ctx, key, tier.Window)
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			l.degraded("rate_limit", endpointClass, err)
			return Decision{Allowed: true, Limit: tier.Limit, Degraded: true}, nil
		}
		return Decision{}, fmt.Errorf("increment rate counter: %w", err)
	}

	decision := Decision{Limit: tier.Limit}

	if count > int64(tier.Limit) {
		decision.RetryAfter = l.retryAfter(ctx, key, tier.Window)
		if l.metrics != nil {
			l.metrics.IncRateLimited(endpointClass)
		}
		return decision, nil
	}

	decision.Allowed = true
	decision.Remaining = tier.Limit - int(count)

	return decision, nil
}

// retryAfter derives the wait from the counter's TTL rather than recomputing
// the window boundary, so the guidance matches the key's actual expiry.
func (l *RateLimiter) retryAfter(ctx context.Context, key string, window time.Duration) time.Duration {
	remaining, err := l.store.TTL(ctx, key)
	if err != nil || remaining <= 0 {
		return window
	}
	return remaining
}

func (l *RateLimiter) degraded(component, endpointClass string, err error) {
	l.logger.Warn("counter store unavailable, failing open",
		zap.String("component", component),
		zap.String("endpoint_class", endpointClass),
		zap.Error(err),
	)
	if l.metrics != nil {
		l.metrics.IncStoreDegraded(component)
	}
}
