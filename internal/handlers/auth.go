package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/middleware"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/services"
	apperrors "github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/errors"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/response"
)

// AuthHandler exposes registration, login, and the password reset flow.
type AuthHandler struct {
	users *services.UserService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type userDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

func mapUser(user *models.User) userDTO {
	dto := userDTO{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
	if user.LastLoginAt != nil {
		dto.LastLoginAt = user.LastLoginAt.Format(time.RFC3339)
	}
	return dto
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	if h == nil || h.users == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body registerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapUser(user))
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	if h == nil || h.users == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.users.Login(requestContext(c), body.Username, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": result.Token,
		"user":  mapUser(result.User),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword handles POST /api/auth/forgot-password. The reply never
// reveals whether the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	if h == nil || h.users == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body forgotPasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.users.RequestPasswordReset(requestContext(c), body.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If the account exists, a reset email has been sent",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// ResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	if h == nil || h.users == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body resetPasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.users.ResetPassword(requestContext(c), body.Token, body.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password updated"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	if h == nil || h.users == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapUser(user))
}
