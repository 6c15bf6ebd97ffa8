package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/internal/services"
	appErrors "github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/response"
)

// SubscriptionHandler exposes the ledger to authenticated companies and
// the reactivation lever to administrators.
type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptions *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// GET /api/subscriptions/current
func (h *SubscriptionHandler) Current(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok || principal.CompanyID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	sub, err := h.subscriptions.Current(c.Request.Context(), principal.CompanyID)
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("no current subscription"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, subscriptionPayload(sub))
}

// POST /api/subscriptions/:id/reactivate
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sub, err := h.subscriptions.Reactivate(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAdminRequired):
			response.Error(c, appErrors.ErrForbidden)
		case errors.Is(err, services.ErrSubscriptionNotFound):
			response.Error(c, appErrors.ErrNotFound.WithMessage("subscription not found"))
		case errors.Is(err, services.ErrNotSuspended):
			response.Error(c, appErrors.NewConflict("subscription is not suspended"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, subscriptionPayload(sub))
}

func subscriptionPayload(sub *models.Subscription) gin.H {
	payload := gin.H{
		"id":            sub.ID,
		"company_id":    sub.CompanyID,
		"status":        sub.Status,
		"trial_ends_at": sub.TrialEndsAt,
		"ends_at":       sub.EndsAt,
		"grace_period_ends_at":    sub.GracePeriodEndsAt,
		"jobs_created_this_month": sub.JobsCreatedThisMonth,
	}
	if sub.Plan != nil {
		payload["plan"] = gin.H{
			"id":          sub.Plan.ID,
			"name":        sub.Plan.Name,
			"job_limit":   sub.Plan.JobLimit,
			"price_cents": sub.Plan.PriceCents,
		}
	}
	return payload
}
