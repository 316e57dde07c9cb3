// Package httpapi is the REST surface of the server: the auth endpoints, the
// admin endpoints and the Access Gate middleware guarding them.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparkbridge/server/internal/logging"
)

// RouterOptions carries transport settings that are not part of the auth core.
type RouterOptions struct {
	AllowedOrigins []string
	// Notifier receives admin actions, e.g. the websocket hub.
	Notifier Notifier
	// Extra registers additional routes, e.g. the websocket endpoint.
	Extra func(r *gin.Engine)
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(svc AuthService, logger logging.Logger, opts RouterOptions) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors(opts.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	authH := NewAuthHandler(svc, logger.With("handler", "auth"))
	gate := RequireAuth(svc)

	api := r.Group("/api/auth")
	api.POST("/register", authH.Register)
	api.POST("/login", authH.Login)
	api.POST("/refresh", authH.Refresh)
	api.POST("/logout", gate, authH.Logout)
	api.GET("/me", gate, authH.Me)

	adminH := NewAdminHandler(svc, opts.Notifier, logger.With("handler", "admin"))
	admin := r.Group("/api/admin", gate, RequireAdmin())
	admin.POST("/users/:id/revoke-sessions", adminH.RevokeSessions)
	admin.PUT("/users/:id/admin", adminH.SetAdmin)

	if opts.Extra != nil {
		opts.Extra(r)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	})

	return r
}
