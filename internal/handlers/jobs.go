package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/services"
	appErrors "github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/response"
)

// JobHandler exposes the entitlement-gated job posting operations.
type JobHandler struct {
	jobs *services.JobService
}

func NewJobHandler(jobs *services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// POST /api/jobs
func (h *JobHandler) Create(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok || principal.CompanyID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	var req createJobRequest
	if !bindAndValidate(c, &req) {
		return
	}

	job, decision, err := h.jobs.Create(c.Request.Context(), principal, services.CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !decision.Allowed() {
		response.Error(c, decisionError(decision))
		return
	}

	response.Success(c, http.StatusCreated, job)
}

// GET /api/jobs
func (h *JobHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok || principal.CompanyID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), principal.CompanyID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, jobs)
}

// POST /api/jobs/:id/close
func (h *JobHandler) Close(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok || principal.CompanyID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	job, err := h.jobs.Close(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("job not found"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, job)
}

// decisionError maps a blocked entitlement decision onto the error the
// client sees. Quota exhaustion and suspension both answer 402 so billing
// UIs can key off a single status.
func decisionError(d services.Decision) *appErrors.AppError {
	switch d {
	case services.DecisionBlockedQuotaExceeded:
		return appErrors.New("QUOTA_EXCEEDED", "monthly job limit reached", http.StatusPaymentRequired)
	case services.DecisionBlockedSuspended:
		return appErrors.New("SUBSCRIPTION_SUSPENDED", "subscription is suspended", http.StatusPaymentRequired)
	default:
		return appErrors.New("SUBSCRIPTION_EXPIRED", "no active subscription", http.StatusPaymentRequired)
	}
}
