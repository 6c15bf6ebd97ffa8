package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/database/testutil"
	"github.com/hireloop/hireloop/internal/models"
)

func newOnboardingFixture(t *testing.T, clock *time.Time) (*gorm.DB, *OnboardingService, *InvitationService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	invitations, err := NewInvitationService(db, nil,
		WithInvitationClock(func() time.Time { return *clock }),
	)
	require.NoError(t, err)

	subscriptions, err := NewSubscriptionService(db,
		WithSubscriptionClock(func() time.Time { return *clock }),
	)
	require.NoError(t, err)

	onboarding, err := NewOnboardingService(db, invitations, subscriptions)
	require.NoError(t, err)

	return db, onboarding, invitations
}

func TestCompleteSetupCreatesCompanyAdminAndTrial(t *testing.T) {
	current := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	db, onboarding, invitations := newOnboardingFixture(t, &current)

	token, _, err := invitations.Create(context.Background(), adminPrincipal(), CreateInvitationInput{
		Email:       "founder@acme.example",
		CompanyName: "Acme Recruiting",
	})
	require.NoError(t, err)

	user, company, err := onboarding.CompleteSetup(context.Background(), CompleteSetupInput{
		Token:    token,
		Password: "founders-pass",
		Name:     "Sam Founder",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, user.Role)
	require.Equal(t, "founder@acme.example", user.Email)
	require.NotNil(t, user.CompanyID)
	require.Equal(t, company.ID, *user.CompanyID)
	require.Equal(t, user.ID, company.OwnerUserID)

	// The company starts on the seeded trial plan.
	var sub models.Subscription
	require.NoError(t, db.Preload("Plan").Where("company_id = ?", company.ID).First(&sub).Error)
	require.Equal(t, models.SubscriptionTrial, sub.Status)
	require.Equal(t, "trial", sub.Plan.Name)

	var invitation models.CompanyInvitation
	require.NoError(t, db.Where("email = ?", "founder@acme.example").First(&invitation).Error)
	require.Equal(t, models.InvitationCompleted, invitation.Status)

	// A completed invitation cannot be replayed.
	_, _, err = onboarding.CompleteSetup(context.Background(), CompleteSetupInput{
		Token:    token,
		Password: "founders-pass",
	})
	require.ErrorIs(t, err, ErrInvitationUsed)
}

func TestCompleteSetupWithCustomPlan(t *testing.T) {
	current := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	db, onboarding, invitations := newOnboardingFixture(t, &current)

	token, _, err := invitations.Create(context.Background(), adminPrincipal(), CreateInvitationInput{
		Email:       "founder@globex.example",
		CompanyName: "Globex Talent",
		CustomPlan:  &models.CustomPlanSpec{JobLimit: 40, PriceCents: 19900, TrialDays: 21},
	})
	require.NoError(t, err)

	_, company, err := onboarding.CompleteSetup(context.Background(), CompleteSetupInput{
		Token:    token,
		Password: "founders-pass",
	})
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, db.Preload("Plan").Where("company_id = ?", company.ID).First(&sub).Error)
	require.Equal(t, 40, sub.Plan.JobLimit)
	require.False(t, sub.Plan.IsActive)
	require.WithinDuration(t, current.Add(21*24*time.Hour), sub.EndsAt, time.Second)
}

func TestCompleteSetupExpiredInvitation(t *testing.T) {
	current := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	_, onboarding, invitations := newOnboardingFixture(t, &current)

	token, _, err := invitations.Create(context.Background(), adminPrincipal(), CreateInvitationInput{
		Email:       "founder@late.example",
		CompanyName: "Late Hiring Co",
		TTL:         24 * time.Hour,
	})
	require.NoError(t, err)

	current = current.Add(48 * time.Hour)

	_, _, err = onboarding.CompleteSetup(context.Background(), CompleteSetupInput{
		Token:    token,
		Password: "founders-pass",
	})
	require.ErrorIs(t, err, ErrInvitationExpired)
}

func TestCompleteSetupFailureKeepsInvitationPending(t *testing.T) {
	current := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	db, onboarding, invitations := newOnboardingFixture(t, &current)

	// An account with the invited address already exists.
	require.NoError(t, db.Create(&models.User{
		Email:        "founder@dup.example",
		PasswordHash: "x",
	}).Error)

	token, _, err := invitations.Create(context.Background(), adminPrincipal(), CreateInvitationInput{
		Email:       "founder@dup.example",
		CompanyName: "Duplicate Inc",
	})
	require.NoError(t, err)

	_, _, err = onboarding.CompleteSetup(context.Background(), CompleteSetupInput{
		Token:    token,
		Password: "founders-pass",
	})
	require.ErrorIs(t, err, ErrEmailTaken)

	// The invitation survives the failed attempt.
	var invitation models.CompanyInvitation
	require.NoError(t, db.Where("email = ?", "founder@dup.example").First(&invitation).Error)
	require.Equal(t, models.InvitationPending, invitation.Status)
}
