package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/database/testutil"
	"github.com/hireloop/hireloop/internal/models"
)

func newSubscriptionFixture(t *testing.T, clock *time.Time) (*gorm.DB, *SubscriptionService, *models.Company) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	svc, err := NewSubscriptionService(db, WithSubscriptionClock(func() time.Time { return *clock }))
	require.NoError(t, err)

	company := models.Company{Name: "Acme Recruiting"}
	require.NoError(t, db.Create(&company).Error)

	return db, svc, &company
}

func adminPrincipal() iauth.Principal {
	return iauth.Principal{UserID: "admin-1", Role: models.RoleAdmin}
}

func memberPrincipal() iauth.Principal {
	return iauth.Principal{UserID: "member-1", CompanyID: "company-1", Role: models.RoleMember}
}

func TestStartTrialCreatesCurrentSubscription(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	sub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionTrial, sub.Status)
	require.Equal(t, current.Add(14*24*time.Hour), sub.EndsAt)
	require.NotNil(t, sub.TrialEndsAt)

	// Only one current subscription per company.
	_, err = svc.StartTrial(context.Background(), company.ID, 14)
	require.ErrorIs(t, err, ErrSubscriptionExists)

	got, err := svc.Current(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, got.ID)
	require.NotNil(t, got.Plan)
}

func TestActivateExtendsFromRemainingTerm(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	sub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)
	trialEnd := sub.EndsAt

	activated, err := svc.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionActive, activated.Status)
	// Remaining trial time is credited before the plan term is added.
	require.WithinDuration(t, trialEnd.Add(30*24*time.Hour), activated.EndsAt, time.Second)
	require.Nil(t, activated.TrialEndsAt)
}

func TestPastDueAndSuspensionFlow(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	sub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), sub.ID)
	require.NoError(t, err)

	pastDue, err := svc.MarkPastDue(context.Background(), sub.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionPastDue, pastDue.Status)
	require.NotNil(t, pastDue.GracePeriodEndsAt)
	require.WithinDuration(t, current.Add(7*24*time.Hour), *pastDue.GracePeriodEndsAt, time.Second)

	// Payment failure on a subscription that is not active matches nothing.
	_, err = svc.MarkPastDue(context.Background(), sub.ID, 7)
	require.ErrorIs(t, err, ErrInvalidTransition)

	suspended, err := svc.Suspend(context.Background(), sub.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionSuspended, suspended.Status)
	require.NotNil(t, suspended.SuspensionReason)
	require.Equal(t, "grace period elapsed", *suspended.SuspensionReason)
}

func TestReactivateRequiresAdminAndSuspendedState(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	sub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), sub.ID)
	require.NoError(t, err)
	_, err = svc.MarkPastDue(context.Background(), sub.ID, 7)
	require.NoError(t, err)
	_, err = svc.Suspend(context.Background(), sub.ID, "payment failure")
	require.NoError(t, err)

	_, err = svc.Reactivate(context.Background(), memberPrincipal(), sub.ID)
	require.ErrorIs(t, err, ErrAdminRequired)

	reactivated, err := svc.Reactivate(context.Background(), adminPrincipal(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionActive, reactivated.Status)
	require.WithinDuration(t, current.Add(30*24*time.Hour), reactivated.EndsAt, time.Second)
	require.Nil(t, reactivated.SuspensionReason)
	require.Nil(t, reactivated.GracePeriodDays)
	require.Nil(t, reactivated.GracePeriodEndsAt)

	// A second reactivation finds nothing suspended.
	_, err = svc.Reactivate(context.Background(), adminPrincipal(), sub.ID)
	require.ErrorIs(t, err, ErrNotSuspended)

	_, err = svc.Reactivate(context.Background(), adminPrincipal(), "no-such-id")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancelIsTerminal(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	sub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)

	canceled, err := svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionCanceled, canceled.Status)

	_, err = svc.Cancel(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Activate(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEffectiveStatusReconcilesLapsedRows(t *testing.T) {
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	end := now.Add(-time.Hour)
	grace := now.Add(-time.Minute)

	trial := &models.Subscription{Status: models.SubscriptionTrial, EndsAt: end}
	require.Equal(t, models.SubscriptionExpired, EffectiveStatus(trial, now))
	require.True(t, IsExpired(trial, now))

	active := &models.Subscription{Status: models.SubscriptionActive, EndsAt: now.Add(time.Hour)}
	require.Equal(t, models.SubscriptionActive, EffectiveStatus(active, now))

	pastDue := &models.Subscription{Status: models.SubscriptionPastDue, EndsAt: end, GracePeriodEndsAt: &grace}
	require.Equal(t, models.SubscriptionSuspended, EffectiveStatus(pastDue, now))

	inGrace := now.Add(time.Hour)
	pastDue.GracePeriodEndsAt = &inGrace
	require.Equal(t, models.SubscriptionPastDue, EffectiveStatus(pastDue, now))
}

func TestCurrentReportsLapsedTrialAsExpired(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	_, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)

	// The sweeper has not run, but a read after the trial lapses already
	// reports expired.
	current = current.Add(15 * 24 * time.Hour)
	got, err := svc.Current(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionExpired, got.Status)
}

func TestCanCreateJobQuota(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	db, svc, company := newSubscriptionFixture(t, &current)

	var starter models.Plan
	require.NoError(t, db.Where("name = ?", "starter").First(&starter).Error)

	sub, err := svc.StartWithPlan(context.Background(), company.ID, starter.ID, 14)
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, svc.CanCreateJob(got))

	// Exhaust the quota.
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Update("jobs_created_this_month", starter.JobLimit).Error)
	got, err = svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.False(t, svc.CanCreateJob(got))

	reset, err := svc.ResetMonthlyCounters(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, reset)
	got, err = svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, svc.CanCreateJob(got))
}

func TestCanCreateJobUnlimitedPlan(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	db, svc, company := newSubscriptionFixture(t, &current)

	var unlimited models.Plan
	require.NoError(t, db.Where("name = ?", "unlimited").First(&unlimited).Error)

	sub, err := svc.StartWithPlan(context.Background(), company.ID, unlimited.ID, 14)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Update("jobs_created_this_month", 5000).Error)

	got, err := svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, svc.CanCreateJob(got))
}

func TestBulkReconciliationTransitions(t *testing.T) {
	current := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	db, svc, company := newSubscriptionFixture(t, &current)

	other := models.Company{Name: "Globex Talent"}
	require.NoError(t, db.Create(&other).Error)
	third := models.Company{Name: "Initech Hiring"}
	require.NoError(t, db.Create(&third).Error)

	trialSub, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)

	activeSub, err := svc.StartTrial(context.Background(), other.ID, 14)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), activeSub.ID)
	require.NoError(t, err)

	graceSub, err := svc.StartTrial(context.Background(), third.ID, 14)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), graceSub.ID)
	require.NoError(t, err)
	_, err = svc.MarkPastDue(context.Background(), graceSub.ID, 7)
	require.NoError(t, err)

	// Nothing has lapsed yet.
	n, err := svc.ExpireLapsedTrials(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	current = current.Add(60 * 24 * time.Hour)

	n, err = svc.ExpireLapsedTrials(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = svc.ExpireLapsedActive(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = svc.SuspendLapsedGrace(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	for id, want := range map[string]string{
		trialSub.ID: models.SubscriptionExpired,
		activeSub.ID: models.SubscriptionExpired,
		graceSub.ID: models.SubscriptionSuspended,
	} {
		var sub models.Subscription
		require.NoError(t, db.First(&sub, "id = ?", id).Error)
		require.Equal(t, want, sub.Status)
	}

	// Re-running the sweep matches nothing.
	n, err = svc.ExpireLapsedTrials(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
