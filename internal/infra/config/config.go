package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	JWT          JWTSettings          `mapstructure:"jwt"`
	Lockout      LockoutSettings      `mapstructure:"lockout"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	CounterStore CounterStoreSettings `mapstructure:"counter_store"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the counter store backend.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the security-event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	SigningKey          string        `mapstructure:"signing_key"`
	Issuer              string        `mapstructure:"issuer"`
	AccessTokenTTL      time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `mapstructure:"refresh_token_ttl"`
	RevokeFamilyOnReuse bool          `mapstructure:"revoke_family_on_reuse"`
}

// LockoutSettings controls the failed-attempt counter and lockout window.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
	Duration  time.Duration `mapstructure:"duration"`
}

// RateLimitSettings holds the three throttling tiers plus the bypass list.
type RateLimitSettings struct {
	AnonymousLimit      int           `mapstructure:"anonymous_limit"`
	AnonymousWindow     time.Duration `mapstructure:"anonymous_window"`
	AuthenticatedLimit  int           `mapstructure:"authenticated_limit"`
	AuthenticatedWindow time.Duration `mapstructure:"authenticated_window"`
	AuthEndpointLimit   int           `mapstructure:"auth_endpoint_limit"`
	AuthEndpointWindow  time.Duration `mapstructure:"auth_endpoint_window"`
	Whitelist           []string      `mapstructure:"whitelist"`
}

// CounterStoreSettings bounds every counter store round-trip.
type CounterStoreSettings struct {
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.signing_key",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.revoke_family_on_reuse",
		"lockout.threshold",
		"lockout.window",
		"lockout.duration",
		"rate_limit.anonymous_limit",
		"rate_limit.anonymous_window",
		"rate_limit.authenticated_limit",
		"rate_limit.authenticated_window",
		"rate_limit.auth_endpoint_limit",
		"rate_limit.auth_endpoint_window",
		"rate_limit.whitelist",
		"counter_store.op_timeout",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would silently disable protection.
func (c *AppConfig) Validate() error {
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Window <= 0 || c.Lockout.Duration <= 0 {
		return errors.New("lockout window and duration must be positive")
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.JWT.AccessTokenTTL >= c.JWT.RefreshTokenTTL {
		return errors.New("access token TTL must be shorter than refresh token TTL")
	}
	if c.App.Env == "production" && c.JWT.SigningKey == "" {
		return errors.New("jwt signing key is required in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "companion-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "companion")
	v.SetDefault("postgres.password", "companion_password")
	v.SetDefault("postgres.database", "companion")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.signing_key", "")
	v.SetDefault("jwt.issuer", "companion-auth")
	v.SetDefault("jwt.access_token_ttl", "30m")
	v.SetDefault("jwt.refresh_token_ttl", "336h")
	v.SetDefault("jwt.revoke_family_on_reuse", true)

	v.SetDefault("lockout.threshold", 10)
	v.SetDefault("lockout.window", "1h")
	v.SetDefault("lockout.duration", "1h")

	v.SetDefault("rate_limit.anonymous_limit", 20)
	v.SetDefault("rate_limit.anonymous_window", "1m")
	v.SetDefault("rate_limit.authenticated_limit", 100)
	v.SetDefault("rate_limit.authenticated_window", "1m")
	v.SetDefault("rate_limit.auth_endpoint_limit", 5)
	v.SetDefault("rate_limit.auth_endpoint_window", "15m")
	v.SetDefault("rate_limit.whitelist", []string{})

	v.SetDefault("counter_store.op_timeout", "100ms")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "companion-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
