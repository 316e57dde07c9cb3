package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
	"github.com/sparkbridge/server/internal/server/services"
)

// AuthService is the part of services.AuthService the REST layer calls.
type AuthService interface {
	Authenticator
	Register(ctx context.Context, in services.RegisterInput) (*models.User, *models.Profile, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, token string) (*models.TokenPair, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
	GetCurrentUser(ctx context.Context, userID string) (*models.User, *models.Profile, error)
	SetAdmin(ctx context.Context, userID string, isAdmin bool) (*models.Profile, error)
}

type AuthHandler struct {
	svc    AuthService
	logger logging.Logger
}

func NewAuthHandler(svc AuthService, logger logging.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type registerRequest struct {
	Email        string  `json:"email" binding:"required,email"`
	Password     string  `json:"password" binding:"required,min=8"`
	FirstName    string  `json:"firstName" binding:"required"`
	LastName     string  `json:"lastName" binding:"required"`
	Company      *string `json:"company"`
	JobTitle     *string `json:"jobTitle"`
	AttendeeType string  `json:"attendeeType" binding:"required,attendee_type"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	FirstName    string              `json:"firstName"`
	LastName     string              `json:"lastName"`
	Company      *string             `json:"company"`
	JobTitle     *string             `json:"jobTitle"`
	AttendeeType models.AttendeeType `json:"attendeeType"`
	IsAdmin      bool                `json:"isAdmin"`
}

func newUserResponse(u *models.User, p *models.Profile) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Company:      p.Company,
		JobTitle:     p.JobTitle,
		AttendeeType: p.AttendeeType,
		IsAdmin:      p.IsAdmin,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, profile, err := h.svc.Register(c.Request.Context(), services.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Company:      emptyToNil(req.Company),
		JobTitle:     emptyToNil(req.JobTitle),
		AttendeeType: models.AttendeeType(req.AttendeeType),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    gin.H{"id": user.ID, "email": user.Email},
		"profile": profile,
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
		"user":         newUserResponse(res.User, res.Profile),
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req tokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		abortWith(c, http.StatusBadRequest, "TOKEN_REQUIRED", "Refresh token required")
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /api/auth/logout. With a refresh token in the body only
// that session ends; without one every session of the caller ends.
func (h *AuthHandler) Logout(c *gin.Context) {
	user, _ := CurrentUser(c)

	var req tokenRequest
	_ = c.ShouldBindJSON(&req)

	var err error
	if req.RefreshToken != "" {
		err = h.svc.Revoke(c.Request.Context(), req.RefreshToken)
	} else {
		_, err = h.svc.RevokeAll(c.Request.Context(), user.UserID)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, _ := CurrentUser(c)

	u, p, err := h.svc.GetCurrentUser(c.Request.Context(), user.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(u, p)})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Validation error",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
