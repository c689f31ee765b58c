package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/okq550/muslim-compnion-sub002/internal/usecase"
)

const (
	rateLimitProblemType  = "https://auth.companion.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the subject a rate limit is scoped to, typically
// the client IP or the authenticated identity.
type IdentifierFunc func(*gin.Context) (string, bool)

// ClientIPIdentifier scopes a rate limit by the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// IdentityIdentifier scopes a rate limit by the authenticated identity.
// It must run after RequireAuth.
func IdentityIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		identity := GetIdentity(c)
		if identity == "" {
			return "", false
		}
		return identity, true
	}
}

// ProblemDetails is an RFC 9457 compatible error payload for throttled
// requests.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimit enforces the tier for every request passing through, scoped by
// the identifier. Requests without a resolvable identifier pass through
// unchecked, as do requests during a counter store outage.
func RateLimit(limiter *usecase.RateLimiter, tier usecase.Tier, endpointClass string, identify IdentifierFunc, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if limiter == nil || identify == nil {
			c.Next()
			return
		}

		subject, ok := identify(c)
		if !ok {
			c.Next()
			return
		}

		decision, err := limiter.Check(c.Request.Context(), tier, subject, endpointClass)
		if err != nil {
			log.Warn("rate limit check failed",
				zap.String("endpoint_class", endpointClass),
				zap.Error(err),
			)
			c.Next()
			return
		}

		ApplyRateLimitHeaders(c, decision.Limit, decision.Remaining, decision.RetryAfter)

		if !decision.Allowed {
			RespondRateLimited(c, decision.Limit, decision.RetryAfter)
			return
		}

		c.Next()
	}
}

// ApplyRateLimitHeaders sets the standard X-RateLimit headers.
func ApplyRateLimitHeaders(c *gin.Context, limit, remaining int, retryAfter time.Duration) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if retryAfter > 0 {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
	}
}

// RespondRateLimited aborts the request with a 429 problem payload and a
// Retry-After header.
func RespondRateLimited(c *gin.Context, limit int, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     "request rate limit of " + strconv.Itoa(limit) + " exceeded",
		Instance:   c.Request.URL.Path,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
