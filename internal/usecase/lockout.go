package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/logger"
	"github.com/okq550/muslim-compnion-sub002/internal/repository"
)

// LockoutService tracks failed authentication attempts per normalized
// identity and temporarily blocks authentication once the threshold is
// crossed. Failures aggregate across source addresses: a cross-IP attack
// against one identity counts into a single window.
//
// State lives in the counter store under lockout:fail:{identity} (attempt
// counter, TTL = attempt window) and lockout:locked:{identity} (unix lockout
// deadline, TTL = lockout duration). A store outage fails open so a cache
// failure degrades protection instead of blocking legitimate users.
type LockoutService struct {
	store     port.CounterStore
	logger    *zap.Logger
	metrics   port.AuthMetrics
	publisher port.EventPublisher
	threshold int
	window    time.Duration
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutService constructs a lockout service with the supplied policy.
func NewLockoutService(store port.CounterStore, log *zap.Logger, threshold int, window, duration time.Duration) *LockoutService {
	if log == nil {
		log = zap.NewNop()
	}

	return &LockoutService{
		store:     store,
		logger:    log,
		threshold: threshold,
		window:    window,
		duration:  duration,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches telemetry counters.
func (s *LockoutService) WithMetrics(metrics port.AuthMetrics) *LockoutService {
	s.metrics = metrics
	return s
}

// WithEventPublisher attaches the security-event publisher.
func (s *LockoutService) WithEventPublisher(publisher port.EventPublisher) *LockoutService {
	s.publisher = publisher
	return s
}

// WithClock overrides the internal clock for deterministic testing.
func (s *LockoutService) WithClock(clock func() time.Time) *LockoutService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RecordFailure counts a failed attempt. Crossing the threshold locks the
// identity immediately on the triggering call and reports the remaining
// lockout duration.
func (s *LockoutService) RecordFailure(ctx context.Context, identity, sourceAddress string) (bool, time.Duration, error) {
	id := domain.NormalizeIdentity(identity)
	if id == "" {
		return false, 0, errors.New("identity is required")
	}

	count, err := s.store.Increment(ctx, failKey(id), s.window)
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			s.degraded("record failure", err)
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("increment attempt counter: %w", err)
	}

	s.logger.Info("failed login attempt",
		zap.String("identity", logger.MaskEmail(id)),
		zap.String("source_address", logger.MaskIP(sourceAddress)),
		zap.Int64("attempt", count),
		zap.Int("threshold", s.threshold),
	)

	if count < int64(s.threshold) {
		return false, 0, nil
	}

	deadline := s.now().Add(s.duration)
	written, err := s.store.SetIfAbsent(ctx, lockKey(id), strconv.FormatInt(deadline.Unix(), 10), s.duration)
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			s.degraded("arm lockout", err)
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("arm lockout: %w", err)
	}

	if written {
		s.logger.Warn("account locked",
			zap.String("identity", logger.MaskEmail(id)),
			zap.String("source_address", logger.MaskIP(sourceAddress)),
			zap.Int64("failed_attempts", count),
			zap.Duration("duration", s.duration),
		)
		if s.metrics != nil {
			s.metrics.IncLockout()
		}
		if s.publisher != nil {
			event := domain.AccountLockedEvent{
				EventID:        uuid.NewString(),
				Identity:       id,
				SourceAddress:  sourceAddress,
				FailedAttempts: count,
				LockedAt:       s.now(),
				LockedUntil:    deadline,
			}
			if err := s.publisher.PublishAccountLocked(ctx, event); err != nil {
				s.logger.Warn("publish account locked event", zap.Error(err))
			}
		}
		return true, s.duration, nil
	}

	// Already locked by an earlier failure; report the live deadline.
	locked, remaining, err := s.IsLocked(ctx, id)
	if err != nil || !locked {
		return true, s.duration, nil
	}
	return true, remaining, nil
}

// RecordSuccess clears the failure counter. It never clears an active
// lockout: a correct password does not bypass the block.
func (s *LockoutService) RecordSuccess(ctx context.Context, identity string) error {
	id := domain.NormalizeIdentity(identity)
	if id == "" {
		return errors.New("identity is required")
	}

	if err := s.store.Delete(ctx, failKey(id)); err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			s.degraded("clear attempts", err)
			return nil
		}
		return fmt.Errorf("clear attempt counter: %w", err)
	}

	return nil
}

// IsLocked reports whether the identity is currently blocked and for how
// much longer. A store outage reads as not-locked (fail open).
func (s *LockoutService) IsLocked(ctx context.Context, identity string) (bool, time.Duration, error) {
	id := domain.NormalizeIdentity(identity)
	if id == "" {
		return false, 0, errors.New("identity is required")
	}

	value, exists, err := s.store.Get(ctx, lockKey(id))
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			s.degraded("lockout check", err)
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read lockout state: %w", err)
	}
	if !exists {
		return false, 0, nil
	}

	deadline, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("parse lockout deadline: %w", err)
	}

	remaining := time.Unix(deadline, 0).Sub(s.now())
	if remaining <= 0 {
		// Deadline passed but the key outlived it; clean up lazily.
		_ = s.store.Delete(ctx, lockKey(id))
		return false, 0, nil
	}

	return true, remaining, nil
}

func (s *LockoutService) degraded(operation string, err error) {
	s.logger.Warn("counter store unavailable, lockout failing open",
		zap.String("operation", operation),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.IncStoreDegraded("lockout")
	}
}

func failKey(identity string) string {
	return "lockout:fail:" + identity
}

func lockKey(identity string) string {
	return "lockout:locked:" + identity
}
