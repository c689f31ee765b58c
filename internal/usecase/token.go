package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/logger"
	"github.com/okq550/muslim-compnion-sub002/internal/repository"
)

// SessionClaims augments registered claims with the token type discriminator
// and the refresh-token family identifier.
type SessionClaims struct {
	TokenType string `json:"token_type"`
	FamilyID  string `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig bundles the signing material and lifetimes for the service.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeFamilyOnReuse blacklists the whole refresh family when an
	// already-rotated token is presented again.
	RevokeFamilyOnReuse bool
}

// TokenService issues, verifies, rotates, and blacklists HS256 JWT pairs.
//
// Blacklist entries live in the counter store under blacklist:{jti} with TTL
// equal to the token's remaining lifetime, so they expire together with the
// token and never need explicit deletion. Rotation claims the presented jti
// through the store's atomic increment: the caller that observes 1 owns the
// rotation, every other caller observes a reuse.
type TokenService struct {
	store     port.CounterStore
	logger    *zap.Logger
	metrics   port.AuthMetrics
	publisher port.EventPublisher
	cfg       TokenConfig
	now       func() time.Time
}

// NewTokenService constructs a token service.
func NewTokenService(store port.CounterStore, log *zap.Logger, cfg TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &TokenService{
		store:  store,
		logger: log,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithMetrics attaches telemetry counters.
func (s *TokenService) WithMetrics(metrics port.AuthMetrics) *TokenService {
	s.metrics = metrics
	return s
}

// WithEventPublisher attaches the security-event publisher.
func (s *TokenService) WithEventPublisher(publisher port.EventPublisher) *TokenService {
	s.publisher = publisher
	return s
}

// WithClock overrides the internal clock for deterministic testing.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue mints a fresh refresh-token family and returns an access+refresh
// pair for the identity. No blacklist interaction.
func (s *TokenService) Issue(ctx context.Context, identity string) (*domain.TokenPair, error) {
	id := domain.NormalizeIdentity(identity)
	if id == "" {
		return nil, errors.New("identity is required")
	}

	return s.issuePair(id, uuid.NewString())
}

// Verify checks structural validity of an access token and then consults the
// blacklist. The blacklist lookup fails open on a store outage: structural
// validity stands and the degraded mode is logged.
func (s *TokenService) Verify(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.parse(accessToken, domain.TokenTypeAccess)
	if err != nil {
		return "", err
	}

	revoked, err := s.isBlacklisted(ctx, blacklistKey(claims.ID))
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			s.degraded("verify", err)
			return claims.Subject, nil
		}
		return "", err
	}
	if revoked {
		s.logger.Warn("revoked access token presented",
			zap.String("identity", logger.MaskEmail(claims.Subject)),
		)
		return "", ErrTokenRevoked
	}

	return claims.Subject, nil
}

// Rotate invalidates the presented refresh token and issues a new pair in
// the same family. The invalidation is a single-winner claim on the token's
// jti: two concurrent rotations of one token yield exactly one success and
// one ErrTokenReuseDetected. The claim fails closed on a store outage,
// because rotating without a working blacklist would allow silent replay.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.parse(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.isBlacklisted(ctx, familyKey(claims.FamilyID))
	if err != nil {
		return nil, fmt.Errorf("check family blacklist: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil, ErrTokenExpired
	}

	generation, err := s.store.Increment(ctx, blacklistKey(claims.ID), remaining)
	if err != nil {
		return nil, fmt.Errorf("claim refresh rotation: %w", err)
	}

	if generation > 1 {
		s.handleReuse(ctx, claims)
		return nil, ErrTokenReuseDetected
	}

	return s.issuePair(claims.Subject, claims.FamilyID)
}

// Revoke blacklists both tokens of a pair. Best effort and idempotent:
// malformed or expired tokens are skipped and blacklisting an
// already-blacklisted jti leaves its TTL untouched.
func (s *TokenService) Revoke(ctx context.Context, accessToken, refreshToken string) {
	var identity, accessJTI, refreshJTI string

	if claims, err := s.parseLenient(accessToken, domain.TokenTypeAccess); err == nil {
		identity = claims.Subject
		accessJTI = claims.ID
		s.blacklistClaims(ctx, claims)
	}
	if claims, err := s.parseLenient(refreshToken, domain.TokenTypeRefresh); err == nil {
		identity = claims.Subject
		refreshJTI = claims.ID
		s.blacklistClaims(ctx, claims)
	}

	if s.publisher != nil && (accessJTI != "" || refreshJTI != "") {
		event := domain.SessionRevokedEvent{
			EventID:    uuid.NewString(),
			Identity:   identity,
			AccessJTI:  accessJTI,
			RefreshJTI: refreshJTI,
			RevokedAt:  s.now(),
		}
		if err := s.publisher.PublishSessionRevoked(ctx, event); err != nil {
			s.logger.Warn("publish session revoked event", zap.Error(err))
		}
	}
}

func (s *TokenService) issuePair(identity, familyID string) (*domain.TokenPair, error) {
	now := s.now()

	access, err := s.sign(SessionClaims{
		TokenType: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.sign(SessionClaims{
		TokenType: domain.TokenTypeRefresh,
		FamilyID:  familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) sign(claims SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.SigningKey)
}

func (s *TokenService) parse(tokenStr, wantType string) (*SessionClaims, error) {
	return s.parseWith(tokenStr, wantType)
}

// parseLenient accepts expired tokens so logout can still blacklist them.
func (s *TokenService) parseLenient(tokenStr, wantType string) (*SessionClaims, error) {
	claims, err := s.parseWith(tokenStr, wantType, jwt.WithoutClaimsValidation())
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return nil, err
	}
	return claims, nil
}

func (s *TokenService) parseWith(tokenStr, wantType string, extra ...jwt.ParserOption) (*SessionClaims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}
	options = append(options, extra...)

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	if wantType == domain.TokenTypeRefresh && claims.FamilyID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (s *TokenService) isBlacklisted(ctx context.Context, key string) (bool, error) {
	_, exists, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *TokenService) blacklistClaims(ctx context.Context, claims *SessionClaims) {
	if claims == nil || claims.ExpiresAt == nil {
		return
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return
	}

	if _, err := s.store.Increment(ctx, blacklistKey(claims.ID), remaining); err != nil {
		s.logger.Warn("blacklist token on logout",
			zap.String("identity", logger.MaskEmail(claims.Subject)),
			zap.Error(err),
		)
	}
}

func (s *TokenService) handleReuse(ctx context.Context, claims *SessionClaims) {
	familyRevoked := false

	if s.cfg.RevokeFamilyOnReuse {
		written, err := s.store.SetIfAbsent(ctx, familyKey(claims.FamilyID), "reuse", s.cfg.RefreshTTL)
		if err != nil {
			s.logger.Warn("revoke refresh family", zap.Error(err))
		} else {
			familyRevoked = written
		}
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("identity", logger.MaskEmail(claims.Subject)),
		zap.String("family_id", claims.FamilyID),
		zap.Bool("family_revoked", familyRevoked),
	)
	if s.metrics != nil {
		s.metrics.IncTokenReuse()
	}
	if s.publisher != nil {
		event := domain.TokenReuseDetectedEvent{
			EventID:       uuid.NewString(),
			Identity:      claims.Subject,
			FamilyID:      claims.FamilyID,
			JTI:           claims.ID,
			DetectedAt:    s.now(),
			FamilyRevoked: familyRevoked,
		}
		if err := s.publisher.PublishTokenReuseDetected(ctx, event); err != nil {
			s.logger.Warn("publish token reuse event", zap.Error(err))
		}
	}
}

func (s *TokenService) degraded(operation string, err error) {
	s.logger.Warn("counter store unavailable, blacklist check skipped",
		zap.String("operation", operation),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.IncStoreDegraded("token")
	}
}

func blacklistKey(jti string) string {
	return "blacklist:" + jti
}

func familyKey(familyID string) string {
	return "blacklist:family:" + familyID
}
