package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the identity or secret is wrong. It is
	// deliberately generic: callers never learn whether the account exists
	// or whether this failure triggered a lockout counter.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the identity is temporarily blocked after
	// too many failed attempts. Correct credentials do not bypass it.
	ErrAccountLocked = errors.New("account locked")
	// ErrTooManyRequests indicates a rate-limit tier rejected the request.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrTokenExpired indicates the token passed signature checks but is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates the token is malformed, mis-typed, or fails signature checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked indicates the token's jti or family is blacklisted.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReuseDetected indicates an already-rotated refresh token was
	// presented again. Treated as a security event, not a user mistake.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)

// LockedError carries the remaining lockout duration alongside ErrAccountLocked.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// RateLimitedError carries retry guidance alongside ErrTooManyRequests.
type RateLimitedError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded, retry in %s", e.Limit, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return ErrTooManyRequests }
