package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/crypto"
)

// OnboardingService turns a verified company invitation into a live
// account: company, administrator user and an initial subscription. When
// the invitation carries a custom plan, a bespoke inactive plan row is
// created so the override never appears in the public catalogue.
type OnboardingService struct {
	db            *gorm.DB
	invitations   *InvitationService
	subscriptions *SubscriptionService
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(db *gorm.DB, invitations *InvitationService, subscriptions *SubscriptionService) (*OnboardingService, error) {
	if db == nil {
		return nil, errors.New("onboarding service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("onboarding service: invitation service is required")
	}
	if subscriptions == nil {
		return nil, errors.New("onboarding service: subscription service is required")
	}
	return &OnboardingService{db: db, invitations: invitations, subscriptions: subscriptions}, nil
}

// CompleteSetupInput carries the onboarding form fields.
type CompleteSetupInput struct {
	Token    string
	Password string
	Name     string
}

// CompleteSetup finishes onboarding for a pending invitation. The
// invitation is completed only after the account writes commit, so a
// failure partway leaves the invitation reusable rather than burned.
func (s *OnboardingService) CompleteSetup(ctx context.Context, input CompleteSetupInput) (*models.User, *models.Company, error) {
	if len(input.Password) < minPasswordLength {
		return nil, nil, ErrPasswordTooShort
	}

	invitation, err := s.invitations.Verify(ctx, input.Token)
	if err != nil {
		return nil, nil, err
	}

	spec, err := s.invitations.CustomPlanSpec(invitation)
	if err != nil {
		return nil, nil, err
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("onboarding service: hash password: %w", err)
	}

	var (
		user    models.User
		company models.Company
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user = models.User{
			Email:        invitation.Email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(input.Name),
			Role:         models.RoleAdmin,
		}
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		company = models.Company{
			Name:        invitation.CompanyName,
			OwnerUserID: user.ID,
		}
		if err := tx.Create(&company).Error; err != nil {
			return fmt.Errorf("create company: %w", err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("company_id", company.ID).Error; err != nil {
			return fmt.Errorf("attach user to company: %w", err)
		}
		user.CompanyID = &company.ID

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	trialDays := 0
	planID := ""
	if spec != nil {
		plan := models.Plan{
			Name:        fmt.Sprintf("custom-%s", company.ID),
			DisplayName: fmt.Sprintf("Custom (%s)", invitation.CompanyName),
			JobLimit:    spec.JobLimit,
			PriceCents:  spec.PriceCents,
			IsActive:    false,
		}
		// Select("*") forces the zero-value IsActive past the column default,
		// keeping bespoke plans out of the public catalogue.
		if err := s.db.WithContext(ctx).Select("*").Create(&plan).Error; err != nil {
			return nil, nil, fmt.Errorf("onboarding service: create custom plan: %w", err)
		}
		planID = plan.ID
		trialDays = spec.TrialDays
	}

	if planID != "" {
		_, err = s.subscriptions.StartWithPlan(ctx, company.ID, planID, trialDays)
	} else {
		_, err = s.subscriptions.StartTrial(ctx, company.ID, trialDays)
	}
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.invitations.Complete(ctx, input.Token); err != nil {
		return nil, nil, err
	}

	return &user, &company, nil
}
