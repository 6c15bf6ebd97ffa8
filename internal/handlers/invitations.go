package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/internal/services"
	appErrors "github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/response"
)

// InvitationHandler lets administrators invite companies to the platform.
type InvitationHandler struct {
	invitations *services.InvitationService
}

func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type customPlanRequest struct {
	JobLimit   int   `json:"job_limit" validate:"min=0"`
	PriceCents int64 `json:"price_cents" validate:"min=0"`
	TrialDays  int   `json:"trial_days" validate:"min=0"`
}

type createInvitationRequest struct {
	Email       string             `json:"email" validate:"required,email"`
	CompanyName string             `json:"company_name" validate:"required"`
	TTLHours    int                `json:"ttl_hours" validate:"min=0"`
	CustomPlan  *customPlanRequest `json:"custom_plan"`
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateInvitationInput{
		Email:       req.Email,
		CompanyName: req.CompanyName,
		TTL:         time.Duration(req.TTLHours) * time.Hour,
	}
	if req.CustomPlan != nil {
		input.CustomPlan = &models.CustomPlanSpec{
			JobLimit:   req.CustomPlan.JobLimit,
			PriceCents: req.CustomPlan.PriceCents,
			TrialDays:  req.CustomPlan.TrialDays,
		}
	}

	token, invitation, err := h.invitations.Create(c.Request.Context(), principal, input)
	if err != nil {
		if errors.Is(err, services.ErrAdminRequired) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	// The raw token is surfaced once, for operators relaying the link
	// out of band when mail delivery is disabled.
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": gin.H{
			"id":           invitation.ID,
			"email":        invitation.Email,
			"company_name": invitation.CompanyName,
			"status":       invitation.Status,
			"expires_at":   invitation.ExpiresAt,
		},
		"token": token,
	})
}
