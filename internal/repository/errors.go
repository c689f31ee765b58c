package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrStoreUnavailable indicates the counter store backend could not be
	// reached. Lockout and rate-limit callers translate it into fail-open
	// behaviour; token rotation fails closed.
	ErrStoreUnavailable = errors.New("repository: counter store unavailable")
)
