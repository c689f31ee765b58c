package usecase

import (
	"context"
	"testing"
	"time"
)

func testTier() Tier {
	return Tier{Scope: "anon", Limit: 5, Window: time.Minute}
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, nil)

	tier := testTier()
	for i := 1; i <= tier.Limit; i++ {
		decision, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login")
		if err != nil {
			t.Fatalf("check %d: unexpected error: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d of %d should be allowed", i, tier.Limit)
		}
		if want := tier.Limit - i; decision.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i, decision.Remaining, want)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, nil)

	tier := testTier()
	for i := 0; i < tier.Limit; i++ {
		if _, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login"); err != nil {
			t.Fatalf("warmup check: %v", err)
		}
	}

	decision, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("request past the limit should be rejected")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > tier.Window {
		t.Fatalf("retry after = %s, want within (0, %s]", decision.RetryAfter, tier.Window)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, nil)

	tier := testTier()
	for i := 0; i <= tier.Limit; i++ {
		if _, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login"); err != nil {
			t.Fatalf("warmup check: %v", err)
		}
	}

	clock.Advance(tier.Window + time.Second)

	decision, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("request after window expiry should be allowed")
	}
	if want := tier.Limit - 1; decision.Remaining != want {
		t.Fatalf("remaining after reset = %d, want %d", decision.Remaining, want)
	}
}

func TestRateLimiterSubjectsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, nil)

	tier := testTier()
	for i := 0; i <= tier.Limit; i++ {
		if _, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login"); err != nil {
			t.Fatalf("warmup check: %v", err)
		}
	}

	decision, err := limiter.Check(context.Background(), tier, "198.51.100.4", "login")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("different subject should not share the exhausted budget")
	}
}

func TestRateLimiterWhitelistBypasses(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, []string{"203.0.113.7"})

	tier := Tier{Scope: "anon", Limit: 1, Window: time.Minute}
	for i := 0; i < 10; i++ {
		decision, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("whitelisted subject rejected on request %d", i)
		}
	}

	if _, exists, _ := store.Get(context.Background(), "ratelimit:anon:203.0.113.7:login"); exists {
		t.Fatal("whitelisted subject should not be counted")
	}
}

func TestRateLimiterFailsOpenOnOutage(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	metrics := newCountingMetrics()
	limiter := NewRateLimiter(store, nil, nil).WithMetrics(metrics)

	store.SetFailing(true)

	decision, err := limiter.Check(context.Background(), testTier(), "203.0.113.7", "login")
	if err != nil {
		t.Fatalf("outage should not surface as an error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("request during outage should be allowed")
	}
	if !decision.Degraded {
		t.Fatal("decision during outage should be marked degraded")
	}
	if metrics.degraded["rate_limit"] != 1 {
		t.Fatalf("degraded metric = %d, want 1", metrics.degraded["rate_limit"])
	}
}

func TestRateLimiterRejectionStillCounts(t *testing.T) {
	clock := newFakeClock()
	store := newFakeStore(clock)
	limiter := NewRateLimiter(store, nil, nil)

	tier := Tier{Scope: "anon", Limit: 2, Window: time.Minute}
	for i := 0; i < 6; i++ {
		if _, err := limiter.Check(context.Background(), tier, "203.0.113.7", "login"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	value, exists, err := store.Get(context.Background(), "ratelimit:anon:203.0.113.7:login")
	if err != nil || !exists {
		t.Fatalf("counter should exist: value=%q exists=%v err=%v", value, exists, err)
	}
	if value != "6" {
		t.Fatalf("counter = %s, want 6: rejected requests must still be charged", value)
	}
}
