package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/config"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/database"
	kafkainfra "github.com/okq550/muslim-compnion-sub002/internal/infra/kafka"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/logger"
	redisinfra "github.com/okq550/muslim-compnion-sub002/internal/infra/redis"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/telemetry"
	postgresrepo "github.com/okq550/muslim-compnion-sub002/internal/repository/postgres"
	redisrepo "github.com/okq550/muslim-compnion-sub002/internal/repository/redis"
	"github.com/okq550/muslim-compnion-sub002/internal/transport/http/middleware"
	"github.com/okq550/muslim-compnion-sub002/internal/transport/http/routes"
	"github.com/okq550/muslim-compnion-sub002/internal/usecase"
)

// Application bundles the wired service with its infrastructure handles.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracing  *telemetry.TracerProvider
}

// New wires every layer from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracing, continuing without it", zap.Error(err))
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			producer = nil
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	metrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	store := redisrepo.NewCounterStore(redisClient.Client(), cfg.CounterStore.OpTimeout)

	limiter := usecase.NewRateLimiter(store, log, cfg.RateLimit.Whitelist).
		WithMetrics(metrics)

	lockout := usecase.NewLockoutService(store, log, cfg.Lockout.Threshold, cfg.Lockout.Window, cfg.Lockout.Duration).
		WithMetrics(metrics).
		WithEventPublisher(eventPublisher)

	tokens, err := usecase.NewTokenService(store, log, usecase.TokenConfig{
		SigningKey:          []byte(cfg.JWT.SigningKey),
		Issuer:              cfg.JWT.Issuer,
		AccessTTL:           cfg.JWT.AccessTokenTTL,
		RefreshTTL:          cfg.JWT.RefreshTokenTTL,
		RevokeFamilyOnReuse: cfg.JWT.RevokeFamilyOnReuse,
	})
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}
	tokens.WithMetrics(metrics).WithEventPublisher(eventPublisher)

	credentials := postgresrepo.NewCredentialRepository(pool)

	authService := usecase.NewAuthService(limiter, lockout, tokens, credentials, log, usecase.AuthTiers{
		Anonymous: usecase.Tier{
			Scope:  "anon",
			Limit:  cfg.RateLimit.AnonymousLimit,
			Window: cfg.RateLimit.AnonymousWindow,
		},
		AuthEndpoint: usecase.Tier{
			Scope:  "auth",
			Limit:  cfg.RateLimit.AuthEndpointLimit,
			Window: cfg.RateLimit.AuthEndpointWindow,
		},
	}).WithMetrics(metrics)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		RateLimiter: limiter,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracing:  tracing,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()
	defer func() {
		if a.tracing != nil {
			_ = a.tracing.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
