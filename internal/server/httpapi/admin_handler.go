package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

// Notifier tells connected clients about admin actions. A nil Notifier is
// allowed.
type Notifier interface {
	SessionsRevoked(userID string, revoked int64)
	ProfileUpdated(p *models.Profile)
}

// AdminHandler serves operator actions on other users' sessions.
type AdminHandler struct {
	svc    AuthService
	notify Notifier
	logger logging.Logger
}

func NewAdminHandler(svc AuthService, notify Notifier, logger logging.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, notify: notify, logger: logger}
}

type setAdminRequest struct {
	IsAdmin *bool `json:"isAdmin" binding:"required"`
}

// userParam returns the :id path parameter. User ids are UUIDs; anything
// else cannot name a user and is answered with 404.
func userParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		abortWithError(c, common.ErrUserNotFound)
		return "", false
	}
	return id, true
}

// RevokeSessions handles POST /api/admin/users/:id/revoke-sessions.
func (h *AdminHandler) RevokeSessions(c *gin.Context) {
	admin, _ := CurrentUser(c)
	userID, ok := userParam(c)
	if !ok {
		return
	}

	n, err := h.svc.RevokeAll(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "sessions revoked by admin",
		"admin_id", admin.UserID, "user_id", userID, "revoked", n)
	if h.notify != nil {
		h.notify.SessionsRevoked(userID, n)
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// SetAdmin handles PUT /api/admin/users/:id/admin.
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	admin, _ := CurrentUser(c)
	userID, ok := userParam(c)
	if !ok {
		return
	}

	var req setAdminRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.svc.SetAdmin(c.Request.Context(), userID, *req.IsAdmin)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "admin flag changed by admin",
		"admin_id", admin.UserID, "user_id", userID, "is_admin", profile.IsAdmin)
	if h.notify != nil {
		h.notify.ProfileUpdated(profile)
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}
