package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader is the HTTP header name for the trace ID.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for the trace ID.
	TraceIDKey = "trace_id"
	// IdentityKey is the context key for the authenticated identity.
	IdentityKey = "identity"
)

// EnrichContext adds a trace ID to each request, honoring one supplied by
// the caller.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetIdentity retrieves the authenticated identity set by RequireAuth.
func GetIdentity(c *gin.Context) string {
	if identity, exists := c.Get(IdentityKey); exists {
		if id, ok := identity.(string); ok {
			return id
		}
	}
	return ""
}
