package domain

import "time"

// AccountLockedEvent is emitted when a lockout threshold is crossed.
type AccountLockedEvent struct {
	EventID        string
	Identity       string
	SourceAddress  string
	FailedAttempts int64
	LockedAt       time.Time
	LockedUntil    time.Time
}

// TokenReuseDetectedEvent is emitted when an already-rotated refresh token is
// presented again. Reuse is treated as a possible token theft signal.
type TokenReuseDetectedEvent struct {
	EventID       string
	Identity      string
	FamilyID      string
	JTI           string
	DetectedAt    time.Time
	FamilyRevoked bool
}

// SessionRevokedEvent is emitted when a logout invalidates a token pair.
type SessionRevokedEvent struct {
	EventID    string
	Identity   string
	AccessJTI  string
	RefreshJTI string
	RevokedAt  time.Time
}
