package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/hireloop/internal/services"
	appErrors "github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/response"
)

// CompanySetupHandler serves the public invitation onboarding flow.
type CompanySetupHandler struct {
	invitations *services.InvitationService
	onboarding  *services.OnboardingService
}

func NewCompanySetupHandler(invitations *services.InvitationService, onboarding *services.OnboardingService) *CompanySetupHandler {
	return &CompanySetupHandler{invitations: invitations, onboarding: onboarding}
}

type verifyInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/company-setup/verify-token
//
// Answers 200 with valid=false for any unusable token. The distinction
// between unknown, expired and already-used is kept out of the public
// surface.
func (h *CompanySetupHandler) VerifyInvitation(c *gin.Context) {
	var req verifyInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.invitations.Verify(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvitationNotFound),
			errors.Is(err, services.ErrInvitationExpired),
			errors.Is(err, services.ErrInvitationUsed):
			response.Success(c, http.StatusOK, gin.H{"valid": false})
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"valid": true,
		"invitation": gin.H{
			"email":        invitation.Email,
			"company_name": invitation.CompanyName,
			"expires_at":   invitation.ExpiresAt,
		},
	})
}

type completeSetupRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"`
}

// POST /api/company-setup/complete
func (h *CompanySetupHandler) CompleteSetup(c *gin.Context) {
	var req completeSetupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, company, err := h.onboarding.CompleteSetup(c.Request.Context(), services.CompleteSetupInput{
		Token:    req.Token,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvitationNotFound),
			errors.Is(err, services.ErrInvitationExpired):
			response.Error(c, appErrors.NewBadRequest(genericTokenMessage))
		case errors.Is(err, services.ErrInvitationUsed):
			response.Error(c, appErrors.NewConflict("invitation already completed"))
		case errors.Is(err, services.ErrEmailTaken):
			response.Error(c, appErrors.NewConflict("email already registered"))
		case errors.Is(err, services.ErrPasswordTooShort):
			response.Error(c, appErrors.NewBadRequest("password must be at least 6 characters"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user": userPayload(user),
		"company": gin.H{
			"id":   company.ID,
			"name": company.Name,
		},
	})
}
