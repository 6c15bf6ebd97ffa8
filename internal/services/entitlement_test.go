package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/models"
)

func TestEntitlementDecisions(t *testing.T) {
	current := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	db, svc, company := newSubscriptionFixture(t, &current)

	guard, err := NewEntitlementGuard(svc)
	require.NoError(t, err)

	// No subscription at all.
	decision, sub, err := guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionBlockedExpired, decision)
	require.Nil(t, sub)
	require.False(t, decision.Allowed())

	created, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)

	decision, sub, err = guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionAllowed, decision)
	require.NotNil(t, sub)

	// Trial plan quota exhausted.
	var trialPlan models.Plan
	require.NoError(t, db.Where("name = ?", "trial").First(&trialPlan).Error)
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("id = ?", created.ID).
		Update("jobs_created_this_month", trialPlan.JobLimit).Error)

	decision, _, err = guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionBlockedQuotaExceeded, decision)
}

func TestEntitlementBlocksGraceAndSuspension(t *testing.T) {
	current := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	guard, err := NewEntitlementGuard(svc)
	require.NoError(t, err)

	created, err := svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), created.ID)
	require.NoError(t, err)
	_, err = svc.MarkPastDue(context.Background(), created.ID, 7)
	require.NoError(t, err)

	// A grace-period subscription keeps read access but cannot post jobs.
	decision, _, err := guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionBlockedSuspended, decision)

	_, err = svc.Suspend(context.Background(), created.ID, "payment failure")
	require.NoError(t, err)

	// Suspended drops out of the current set, so the company looks expired.
	decision, _, err = guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionBlockedExpired, decision)
}

func TestEntitlementBlocksLapsedTrialBeforeSweep(t *testing.T) {
	current := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	_, svc, company := newSubscriptionFixture(t, &current)

	guard, err := NewEntitlementGuard(svc)
	require.NoError(t, err)

	_, err = svc.StartTrial(context.Background(), company.ID, 14)
	require.NoError(t, err)

	current = current.Add(20 * 24 * time.Hour)

	decision, _, err := guard.CheckJobCreation(context.Background(), company.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionBlockedExpired, decision)
}
