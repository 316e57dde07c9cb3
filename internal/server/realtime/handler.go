package realtime

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

// Authenticator is the access token check shared with the REST Access Gate.
type Authenticator interface {
	VerifyAccess(ctx context.Context, token string) (models.TokenPayload, error)
}

// Handler authenticates websocket handshakes and attaches clients to the hub.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHandler builds a Handler. Browser origins must be in allowedOrigins;
// requests without an Origin header (non-browser clients) are accepted.
func NewHandler(hub *Hub, auth Authenticator, allowedOrigins []string, logger logging.Logger) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin) || slices.Contains(allowedOrigins, "*")
			},
		},
		logger: logger,
	}
}

// HandleConnection verifies the access token from ?token= or the
// Authorization header and refuses the upgrade when it is missing or invalid.
func (h *Handler) HandleConnection(c *gin.Context) {
	token := c.Query(common.TokenQueryParam)
	if token == "" {
		token = common.BearerToken(c.GetHeader(common.AuthorizationHeaderName))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := h.auth.VerifyAccess(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, user, h.logger)
	if !h.hub.attach(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
