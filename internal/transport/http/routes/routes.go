package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/infra/config"
	"github.com/okq550/muslim-compnion-sub002/internal/transport/http/handlers"
	"github.com/okq550/muslim-compnion-sub002/internal/transport/http/middleware"
	"github.com/okq550/muslim-compnion-sub002/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        *usecase.AuthService
	RateLimiter *usecase.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Auth, deps.Config.JWT.AccessTokenTTL)

		// Login and refresh charge their tiers inside the service; only
		// the authenticated session endpoint needs middleware throttling.
		sessionMiddlewares := buildSessionMiddlewares(deps)
		authHandler.RegisterRoutes(authGroup, sessionMiddlewares...)
	}

	return r
}

// buildSessionMiddlewares protects authenticated endpoints with bearer auth
// and the per-identity tier.
func buildSessionMiddlewares(deps Dependencies) []gin.HandlerFunc {
	middlewares := []gin.HandlerFunc{middleware.RequireAuth(deps.Auth)}

	if deps.RateLimiter != nil {
		tier := usecase.Tier{
			Scope:  "user",
			Limit:  deps.Config.RateLimit.AuthenticatedLimit,
			Window: deps.Config.RateLimit.AuthenticatedWindow,
		}
		middlewares = append(middlewares, middleware.RateLimit(
			deps.RateLimiter,
			tier,
			"session",
			middleware.IdentityIdentifier(),
			deps.Logger,
		))
	}

	return middlewares
}
