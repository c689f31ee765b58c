package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed security event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Identity  string           `json:"identity,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, identity string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Identity:  identity,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(identity),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountLocked publishes auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		Identity       string    `json:"identity"`
		SourceAddress  string    `json:"source_address,omitempty"`
		FailedAttempts int64     `json:"failed_attempts"`
		LockedAt       time.Time `json:"locked_at"`
		LockedUntil    time.Time `json:"locked_until"`
	}{
		Identity:       event.Identity,
		SourceAddress:  event.SourceAddress,
		FailedAttempts: event.FailedAttempts,
		LockedAt:       event.LockedAt.UTC(),
		LockedUntil:    event.LockedUntil.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.account.locked", event.Identity, event.LockedAt, payload)
}

// PublishTokenReuseDetected publishes auth.token.reuse_detected events.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		Identity      string    `json:"identity"`
		FamilyID      string    `json:"family_id"`
		JTI           string    `json:"jti"`
		DetectedAt    time.Time `json:"detected_at"`
		FamilyRevoked bool      `json:"family_revoked"`
	}{
		Identity:      event.Identity,
		FamilyID:      event.FamilyID,
		JTI:           event.JTI,
		DetectedAt:    event.DetectedAt.UTC(),
		FamilyRevoked: event.FamilyRevoked,
	}

	return p.publish(ctx, event.EventID, "auth.token.reuse_detected", event.Identity, event.DetectedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		Identity   string    `json:"identity"`
		AccessJTI  string    `json:"access_jti,omitempty"`
		RefreshJTI string    `json:"refresh_jti,omitempty"`
		RevokedAt  time.Time `json:"revoked_at"`
	}{
		Identity:   event.Identity,
		AccessJTI:  event.AccessJTI,
		RefreshJTI: event.RefreshJTI,
		RevokedAt:  event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.revoked", event.Identity, event.RevokedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
