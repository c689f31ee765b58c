package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/logger"
)

// AuthTiers holds the rate-limit tiers enforced on the authentication flows.
// The anonymous tier throttles any caller by source address, the endpoint
// tier additionally protects the credential check with a much lower budget.
type AuthTiers struct {
	Anonymous    Tier
	AuthEndpoint Tier
}

// AuthService coordinates the rate limiter, lockout service, credential
// verifier and token service into the login, refresh and logout flows.
//
// Order on login: rate limits first, lockout second, credentials last. A
// locked or throttled caller never reaches the credential verifier, so
// hammering a locked account cannot probe password validity.
type AuthService struct {
	limiter  *RateLimiter
	lockout  *LockoutService
	tokens   *TokenService
	verifier port.CredentialVerifier
	logger   *zap.Logger
	metrics  port.AuthMetrics
	tiers    AuthTiers
}

// NewAuthService wires the orchestrator.
func NewAuthService(
	limiter *RateLimiter,
	lockout *LockoutService,
	tokens *TokenService,
	verifier port.CredentialVerifier,
	log *zap.Logger,
	tiers AuthTiers,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		limiter:  limiter,
		lockout:  lockout,
		tokens:   tokens,
		verifier: verifier,
		logger:   log,
		tiers:    tiers,
	}
}

// WithMetrics attaches telemetry counters.
func (s *AuthService) WithMetrics(metrics port.AuthMetrics) *AuthService {
	s.metrics = metrics
	return s
}

// Login authenticates an identity and returns a fresh token pair.
//
// Both the anonymous tier and the auth-endpoint tier are charged for every
// attempt, whichever rejects first wins. Failed credentials feed the lockout
// counter, the attempt that crosses the threshold is reported as locked
// rather than as invalid credentials.
func (s *AuthService) Login(ctx context.Context, identity, secret, sourceAddress string) (*domain.TokenPair, error) {
	id := domain.NormalizeIdentity(identity)

	if err := s.checkRate(ctx, sourceAddress, "login"); err != nil {
		s.countLogin("rate_limited")
		return nil, err
	}

	locked, remaining, err := s.lockout.IsLocked(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check lockout: %w", err)
	}
	if locked {
		s.countLogin("locked")
		return nil, &LockedError{Remaining: remaining}
	}

	ok, err := s.verifier.Verify(ctx, id, secret)
	if err != nil || !ok {
		if err != nil {
			s.logger.Error("verify credentials",
				zap.String("identity", logger.MaskEmail(id)),
				zap.Error(err),
			)
		}

		nowLocked, lockRemaining, failErr := s.lockout.RecordFailure(ctx, id, sourceAddress)
		if failErr != nil {
			s.logger.Error("record failed attempt", zap.Error(failErr))
		}
		if nowLocked {
			s.countLogin("locked")
			return nil, &LockedError{Remaining: lockRemaining}
		}

		s.countLogin("failure")
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.RecordSuccess(ctx, id); err != nil {
		s.logger.Warn("reset failure counter", zap.Error(err))
	}

	pair, err := s.tokens.Issue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	s.countLogin("success")
	s.logger.Info("login succeeded",
		zap.String("identity", logger.MaskEmail(id)),
		zap.String("source_address", logger.MaskIP(sourceAddress)),
	)
	return pair, nil
}

// Refresh rotates a refresh token into a new pair. The anonymous tier
// throttles the caller by source address before any token work happens.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sourceAddress string) (*domain.TokenPair, error) {
	decision, err := s.limiter.Check(ctx, s.tiers.Anonymous, sourceAddress, "refresh")
	if err != nil {
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	if !decision.Allowed {
		return nil, &RateLimitedError{Limit: decision.Limit, RetryAfter: decision.RetryAfter}
	}

	return s.tokens.Rotate(ctx, refreshToken)
}

// Verify resolves an access token to its identity.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (string, error) {
	return s.tokens.Verify(ctx, accessToken)
}

// Logout blacklists the presented pair. It never fails: revocation is best
// effort and an already-invalid token is simply skipped.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) {
	s.tokens.Revoke(ctx, accessToken, refreshToken)
}

// checkRate charges both login tiers and returns the stricter rejection.
func (s *AuthService) checkRate(ctx context.Context, sourceAddress, class string) error {
	anon, err := s.limiter.Check(ctx, s.tiers.Anonymous, sourceAddress, class)
	if err != nil {
		return fmt.Errorf("check anonymous tier: %w", err)
	}

	endpoint, err := s.limiter.Check(ctx, s.tiers.AuthEndpoint, sourceAddress, class)
	if err != nil {
		return fmt.Errorf("check auth endpoint tier: %w", err)
	}

	switch {
	case !endpoint.Allowed:
		return &RateLimitedError{Limit: endpoint.Limit, RetryAfter: endpoint.RetryAfter}
	case !anon.Allowed:
		return &RateLimitedError{Limit: anon.Limit, RetryAfter: anon.RetryAfter}
	}
	return nil
}

func (s *AuthService) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncLogin(outcome)
	}
}
