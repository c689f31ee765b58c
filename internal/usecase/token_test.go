package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		SigningKey:          []byte("test-signing-key-32-bytes-long!!"),
		Issuer:              "companion-auth-test",
		AccessTTL:           30 * time.Minute,
		RefreshTTL:          14 * 24 * time.Hour,
		RevokeFamilyOnReuse: true,
	}
}

func newTestTokens(t *testing.T) (*TokenService, *fakeStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := newFakeStore(clock)
	svc, err := NewTokenService(store, nil, testTokenConfig())
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc.WithClock(clock.Now), store, clock
}

func TestTokenIssueAndVerify(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "User@Example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("issued pair must contain both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	identity, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity != "user@example.com" {
		t.Fatalf("identity = %q, want normalized form", identity)
	}
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Verify(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verifying a refresh token as access: err = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, _, clock := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(31 * time.Minute)

	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired access token: err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	otherCfg := testTokenConfig()
	otherCfg.SigningKey = []byte("another-key-entirely-32-bytes!!!")
	other, err := NewTokenService(newFakeStore(newFakeClock()), nil, otherCfg)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	pair, err := other.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("foreign-key token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestRotateIssuesNewPairInSameFamily(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a new refresh token")
	}

	first := parseTestClaims(t, pair.RefreshToken)
	second := parseTestClaims(t, rotated.RefreshToken)
	if first.FamilyID != second.FamilyID {
		t.Fatalf("family changed across rotation: %q -> %q", first.FamilyID, second.FamilyID)
	}
	if first.ID == second.ID {
		t.Fatal("rotation must mint a new jti")
	}
}

func TestRotateDetectsReuse(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	metrics := newCountingMetrics()
	publisher := &capturingPublisher{}
	svc.WithMetrics(metrics).WithEventPublisher(publisher)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	if _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("second rotate of same token: err = %v, want ErrTokenReuseDetected", err)
	}
	if metrics.tokenReuse != 1 {
		t.Fatalf("reuse metric = %d, want 1", metrics.tokenReuse)
	}
	if len(publisher.reused) != 1 {
		t.Fatalf("published %d reuse events, want 1", len(publisher.reused))
	}
	if !publisher.reused[0].FamilyRevoked {
		t.Fatal("reuse event should report the family as revoked")
	}

	// Family revocation invalidates the legitimately rotated token too.
	if _, err := svc.Rotate(ctx, rotated.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("rotating within a revoked family: err = %v, want ErrTokenRevoked", err)
	}
}

func TestRotateReuseWithoutFamilyRevocation(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	cfg := testTokenConfig()
	cfg.RevokeFamilyOnReuse = false
	svc, err := NewTokenService(store, nil, cfg)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	svc.WithClock(clock.Now)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("reuse: err = %v, want ErrTokenReuseDetected", err)
	}

	if _, err := svc.Rotate(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token should stay valid when family revocation is off: %v", err)
	}
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = svc.Rotate(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, ErrTokenReuseDetected) && !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("rotation winners = %d, want exactly 1", winners)
	}
}

func TestRotateFailsClosedOnOutage(t *testing.T) {
	svc, store, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store.SetFailing(true)

	if _, err := svc.Rotate(ctx, pair.RefreshToken); err == nil {
		t.Fatal("rotation during a store outage must fail")
	}
}

func TestVerifyFailsOpenOnOutage(t *testing.T) {
	svc, store, _ := newTestTokens(t)
	metrics := newCountingMetrics()
	svc.WithMetrics(metrics)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store.SetFailing(true)

	identity, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify during outage: %v", err)
	}
	if identity != "user@example.com" {
		t.Fatalf("identity = %q", identity)
	}
	if metrics.degraded["token"] != 1 {
		t.Fatalf("degraded metric = %d, want 1", metrics.degraded["token"])
	}
}

func TestRevokeBlacklistsBothTokens(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	publisher := &capturingPublisher{}
	svc.WithEventPublisher(publisher)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.Revoke(ctx, pair.AccessToken, pair.RefreshToken)

	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("revoked access token: err = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("revoked refresh token: err = %v, want ErrTokenReuseDetected", err)
	}
	if len(publisher.revoked) != 1 {
		t.Fatalf("published %d revocation events, want 1", len(publisher.revoked))
	}
}

func TestRevokeToleratesGarbage(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	ctx := context.Background()

	// Must not panic or error on junk input.
	svc.Revoke(ctx, "not-a-token", "")
	svc.Revoke(ctx, "", "")
}

func TestBlacklistEntryExpiresWithToken(t *testing.T) {
	svc, store, clock := newTestTokens(t)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.Revoke(ctx, pair.AccessToken, "")

	claims := parseTestClaims(t, pair.AccessToken)
	key := "blacklist:" + claims.ID
	if _, exists, _ := store.Get(ctx, key); !exists {
		t.Fatal("blacklist entry should exist right after revocation")
	}

	clock.Advance(31 * time.Minute)

	if _, exists, _ := store.Get(ctx, key); exists {
		t.Fatal("blacklist entry should expire with the token")
	}
}

func TestRotateRejectsTokenWithoutExpiry(t *testing.T) {
	svc, _, clock := newTestTokens(t)
	ctx := context.Background()

	// Correctly signed and carrying every claim the refresh path checks,
	// except exp.
	cfg := testTokenConfig()
	claims := SessionClaims{
		TokenType: domain.TokenTypeRefresh,
		FamilyID:  "family-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "user@example.com",
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(clock.Now()),
			ID:       "jti-1",
		},
	}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.Rotate(ctx, tokenStr); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("rotate without exp: err = %v, want ErrTokenInvalid", err)
	}

	claims.TokenType = domain.TokenTypeAccess
	claims.FamilyID = ""
	tokenStr, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.Verify(ctx, tokenStr); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verify without exp: err = %v, want ErrTokenInvalid", err)
	}
}

func parseTestClaims(t *testing.T, tokenStr string) *SessionClaims {
	t.Helper()
	claims := &SessionClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		t.Fatalf("parse claims: %v", err)
	}
	return claims
}
