package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okq550/muslim-compnion-sub002/internal/transport/http/middleware"
	"github.com/okq550/muslim-compnion-sub002/internal/usecase"
)

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	auth      *usecase.AuthService
	accessTTL time.Duration
}

// NewAuthHandler constructs AuthHandler. accessTTL is reported to clients as
// expires_in on issued pairs.
func NewAuthHandler(auth *usecase.AuthService, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, accessTTL: accessTTL}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the session endpoint.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, sessionMiddlewares ...gin.HandlerFunc) {
	r.POST("/login", h.login)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)

	chain := append([]gin.HandlerFunc{}, sessionMiddlewares...)
	chain = append(chain, h.session)
	r.GET("/session", chain...)
}

// Login authenticates an identity and returns a token pair. Throttled and
// locked callers are rejected before credentials are checked.
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier and password are required"))
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password, c.ClientIP())
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.accessTTL.Seconds()),
	})
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP())
	if err != nil {
		var limited *usecase.RateLimitedError
		if errors.As(err, &limited) {
			middleware.ApplyRateLimitHeaders(c, limited.Limit, 0, limited.RetryAfter)
			middleware.RespondRateLimited(c, limited.Limit, limited.RetryAfter)
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenReuseDetected, Status: http.StatusConflict, Message: "refresh token reuse detected"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "refresh token revoked"},
			{Err: usecase.ErrTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.accessTTL.Seconds()),
	})
}

// Logout revokes the presented pair. It always responds 204: revocation of
// an already-invalid token is a no-op, not an error.
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	accessToken, _ := middleware.BearerToken(c)

	h.auth.Logout(c.Request.Context(), accessToken, req.RefreshToken)

	c.Status(http.StatusNoContent)
}

// Session returns the identity behind the presented access token.
func (h *AuthHandler) session(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if identity == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, SessionResponse{Identity: identity})
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	var limited *usecase.RateLimitedError
	if errors.As(err, &limited) {
		middleware.ApplyRateLimitHeaders(c, limited.Limit, 0, limited.RetryAfter)
		middleware.RespondRateLimited(c, limited.Limit, limited.RetryAfter)
		return
	}

	var locked *usecase.LockedError
	if errors.As(err, &locked) {
		seconds := int(math.Ceil(locked.Remaining.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusLocked, NewErrorResponse(c, "account temporarily locked"))
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account temporarily locked"},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	}, http.StatusInternalServerError, "failed to authenticate")
}
