package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, identity string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("identity", logger.MaskEmail(identity)),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"failed_attempts": event.FailedAttempts,
		"locked_at":       event.LockedAt,
		"locked_until":    event.LockedUntil,
	}
	p.logEvent("auth.account.locked", event.Identity, event.LockedAt, payload)
	return nil
}

// PublishTokenReuseDetected logs auth.token.reuse_detected events.
func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := map[string]any{
		"family_id":      event.FamilyID,
		"jti":            event.JTI,
		"detected_at":    event.DetectedAt,
		"family_revoked": event.FamilyRevoked,
	}
	p.logEvent("auth.token.reuse_detected", event.Identity, event.DetectedAt, payload)
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"access_jti":  event.AccessJTI,
		"refresh_jti": event.RefreshJTI,
		"revoked_at":  event.RevokedAt,
	}
	p.logEvent("auth.session.revoked", event.Identity, event.RevokedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
