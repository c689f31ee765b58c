package config_test

import (
	"testing"
	"time"

	"github.com/okq550/muslim-compnion-sub002/internal/infra/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.App.Name != "companion-auth" {
		t.Fatalf("expected app name companion-auth, got %q", cfg.App.Name)
	}
	if cfg.Lockout.Threshold != 10 {
		t.Fatalf("expected lockout threshold 10, got %d", cfg.Lockout.Threshold)
	}
	if cfg.Lockout.Window != time.Hour || cfg.Lockout.Duration != time.Hour {
		t.Fatalf("unexpected lockout window/duration: %v/%v", cfg.Lockout.Window, cfg.Lockout.Duration)
	}
	if cfg.JWT.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("expected access TTL 30m, got %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.JWT.RefreshTokenTTL != 336*time.Hour {
		t.Fatalf("expected refresh TTL 336h, got %v", cfg.JWT.RefreshTokenTTL)
	}
	if !cfg.JWT.RevokeFamilyOnReuse {
		t.Fatal("expected revoke_family_on_reuse to default on")
	}
	if cfg.RateLimit.AnonymousLimit != 20 || cfg.RateLimit.AnonymousWindow != time.Minute {
		t.Fatalf("unexpected anonymous tier: %d/%v", cfg.RateLimit.AnonymousLimit, cfg.RateLimit.AnonymousWindow)
	}
	if cfg.RateLimit.AuthEndpointLimit != 5 || cfg.RateLimit.AuthEndpointWindow != 15*time.Minute {
		t.Fatalf("unexpected auth endpoint tier: %d/%v", cfg.RateLimit.AuthEndpointLimit, cfg.RateLimit.AuthEndpointWindow)
	}
	if cfg.CounterStore.OpTimeout != 100*time.Millisecond {
		t.Fatalf("expected counter store op timeout 100ms, got %v", cfg.CounterStore.OpTimeout)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTH_LOCKOUT_THRESHOLD", "3")
	t.Setenv("AUTH_JWT_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("AUTH_RATE_LIMIT_AUTH_ENDPOINT_LIMIT", "2")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Lockout.Threshold != 3 {
		t.Fatalf("expected lockout threshold 3, got %d", cfg.Lockout.Threshold)
	}
	if cfg.JWT.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("expected access TTL 5m, got %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.RateLimit.AuthEndpointLimit != 2 {
		t.Fatalf("expected auth endpoint limit 2, got %d", cfg.RateLimit.AuthEndpointLimit)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	base := func() *config.AppConfig {
		return &config.AppConfig{
			App: config.AppSettings{Env: "development"},
			JWT: config.JWTSettings{
				AccessTokenTTL:  30 * time.Minute,
				RefreshTokenTTL: 336 * time.Hour,
			},
			Lockout: config.LockoutSettings{
				Threshold: 10,
				Window:    time.Hour,
				Duration:  time.Hour,
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"zero lockout threshold", func(c *config.AppConfig) { c.Lockout.Threshold = 0 }},
		{"zero lockout window", func(c *config.AppConfig) { c.Lockout.Window = 0 }},
		{"zero access ttl", func(c *config.AppConfig) { c.JWT.AccessTokenTTL = 0 }},
		{"access ttl exceeds refresh ttl", func(c *config.AppConfig) { c.JWT.AccessTokenTTL = 400 * time.Hour }},
		{"production without signing key", func(c *config.AppConfig) { c.App.Env = "production" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsProductionWithSigningKey(t *testing.T) {
	cfg := &config.AppConfig{
		App: config.AppSettings{Env: "production"},
		JWT: config.JWTSettings{
			SigningKey:      "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  30 * time.Minute,
			RefreshTokenTTL: 336 * time.Hour,
		},
		Lockout: config.LockoutSettings{
			Threshold: 10,
			Window:    time.Hour,
			Duration:  time.Hour,
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
