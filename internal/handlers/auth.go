package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/internal/services"
	appErrors "github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/logger"
	"github.com/hireloop/hireloop/pkg/metrics"
	"github.com/hireloop/hireloop/pkg/response"
)

// genericTokenMessage deliberately hides whether a reset token was unknown
// or merely expired, so the endpoint cannot be used to probe for values.
const genericTokenMessage = "invalid or expired token"

// AuthHandler manages registration, login and the token-backed account flows.
type AuthHandler struct {
	accounts *services.AccountService
	jwt      *iauth.JWTService
}

func NewAuthHandler(accounts *services.AccountService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{accounts: accounts, jwt: jwt}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			response.Error(c, appErrors.NewConflict("email already registered"))
		case errors.Is(err, services.ErrPasswordTooShort):
			response.Error(c, appErrors.NewBadRequest("password must be at least 6 characters"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusCreated, userPayload(user))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	companyID := ""
	if user.CompanyID != nil {
		companyID = *user.CompanyID
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    user.ID,
		CompanyID: companyID,
		Role:      user.Role,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"user":         userPayload(user),
	})
}

type resetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/reset-password/request
//
// Always answers 200 for well-formed input; whether the email exists is
// not disclosed.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequestRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		logger.WithModule("auth").Warn("password reset request failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If the address is registered, a reset email is on its way.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound),
			errors.Is(err, services.ErrTokenExpired),
			errors.Is(err, services.ErrTokenUsed),
			errors.Is(err, services.ErrUserNotFound):
			response.Error(c, appErrors.NewBadRequest(genericTokenMessage))
		case errors.Is(err, services.ErrPasswordTooShort):
			response.Error(c, appErrors.NewBadRequest("password must be at least 6 characters"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "password updated"})
}

type sendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/send-verification
func (h *AuthHandler) SendVerification(c *gin.Context) {
	var req sendVerificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.accounts.SendVerification(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			// Same shape as success; do not confirm account existence.
			response.Success(c, http.StatusOK, gin.H{"message": "verification email sent"})
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "verification email sent"})
}

// GET /api/auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("token is required"))
		return
	}

	user, err := h.accounts.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenUsed):
			response.Error(c, appErrors.NewConflict("email already verified"))
		case errors.Is(err, services.ErrTokenNotFound), errors.Is(err, services.ErrTokenExpired):
			response.Error(c, appErrors.NewBadRequest(genericTokenMessage))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "email verified",
		"user":    userPayload(user),
	})
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"role":           user.Role,
		"company_id":     user.CompanyID,
		"email_verified": user.EmailVerifiedAt != nil,
	}
}
