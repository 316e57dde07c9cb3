package httpapi

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

const ctxUserKey = "auth.user"

// Authenticator verifies access tokens. It is the only piece of the auth
// core the Access Gate needs.
type Authenticator interface {
	VerifyAccess(ctx context.Context, token string) (models.TokenPayload, error)
}

// RequireAuth is the Access Gate. It rejects requests without a valid bearer
// access token and stores the decoded payload on the context.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := common.BearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if token == "" {
			abortWith(c, http.StatusUnauthorized, "TOKEN_REQUIRED", "Access token required")
			return
		}

		payload, err := a.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(ctxUserKey, payload)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abortWith(c, http.StatusUnauthorized, "TOKEN_REQUIRED", "Authentication required")
			return
		}
		if !user.IsAdmin {
			abortWith(c, http.StatusForbidden, "ADMIN_REQUIRED", "Admin access required")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the payload stored by RequireAuth.
func CurrentUser(c *gin.Context) (models.TokenPayload, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return models.TokenPayload{}, false
	}
	p, ok := v.(models.TokenPayload)
	return p, ok
}

// requestLogger logs one line per request through the server logger.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if user, ok := CurrentUser(c); ok {
			args = append(args, "user_id", user.UserID)
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed", args...)
			return
		}
		logger.Debug(c.Request.Context(), "request", args...)
	}
}

// cors answers preflight requests and sets CORS headers for allowed origins.
func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (slices.Contains(allowed, origin) || slices.Contains(allowed, "*")) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
