package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/models"
)

// ErrJobNotFound indicates the job does not exist or belongs to another company.
var ErrJobNotFound = errors.New("job: not found")

// JobService creates and lists job postings. Creation is gated by the
// entitlement guard and counted against the subscription quota.
type JobService struct {
	db            *gorm.DB
	guard         *EntitlementGuard
	subscriptions *SubscriptionService
}

// NewJobService constructs a JobService.
func NewJobService(db *gorm.DB, guard *EntitlementGuard, subscriptions *SubscriptionService) (*JobService, error) {
	if db == nil {
		return nil, errors.New("job service: db is required")
	}
	if guard == nil {
		return nil, errors.New("job service: entitlement guard is required")
	}
	if subscriptions == nil {
		return nil, errors.New("job service: subscription service is required")
	}
	return &JobService{db: db, guard: guard, subscriptions: subscriptions}, nil
}

// CreateJobInput carries the fields of a new posting.
type CreateJobInput struct {
	Title       string
	Description string
	Location    string
}

// Create checks the principal's entitlement and, when allowed, persists the
// posting and increments the monthly counter. A blocked decision is
// returned without error so callers can render the precise reason.
func (s *JobService) Create(ctx context.Context, principal auth.Principal, input CreateJobInput) (*models.Job, Decision, error) {
	if principal.CompanyID == "" {
		return nil, DecisionBlockedExpired, nil
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, "", errors.New("job service: title is required")
	}

	decision, sub, err := s.guard.CheckJobCreation(ctx, principal.CompanyID)
	if err != nil {
		return nil, "", err
	}
	if !decision.Allowed() {
		return nil, decision, nil
	}

	job := models.Job{
		CompanyID:   principal.CompanyID,
		CreatedBy:   principal.UserID,
		Title:       title,
		Description: input.Description,
		Location:    input.Location,
		Status:      models.JobOpen,
	}

	// The guarded counter increment is the authoritative quota gate; the
	// posting only commits when the increment lands, so two racing
	// creations cannot both consume the last slot.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("job service: create: %w", err)
		}
		return s.subscriptions.incrementJobCount(tx, sub)
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, DecisionBlockedQuotaExceeded, nil
		}
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrSubscriptionNotFound) {
			// The subscription moved under us between the check and the
			// write. Re-derive the precise denial reason.
			decision, _, derr := s.guard.CheckJobCreation(ctx, principal.CompanyID)
			if derr == nil && !decision.Allowed() {
				return nil, decision, nil
			}
		}
		return nil, "", err
	}

	return &job, decision, nil
}

// List returns the company's postings, newest first.
func (s *JobService) List(ctx context.Context, companyID string) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("job service: list: %w", err)
	}
	return jobs, nil
}

// Close marks a posting closed. Scoped to the principal's company.
func (s *JobService) Close(ctx context.Context, principal auth.Principal, jobID string) (*models.Job, error) {
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND company_id = ? AND status = ?", jobID, principal.CompanyID, models.JobOpen).
		Update("status", models.JobClosed)
	if result.Error != nil {
		return nil, fmt.Errorf("job service: close: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrJobNotFound
	}

	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("job service: reload: %w", err)
	}
	return &job, nil
}
