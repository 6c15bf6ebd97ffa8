package services

import (
	"context"
	"errors"

	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/metrics"
)

// Decision is the outcome of an entitlement check.
type Decision string

const (
	DecisionAllowed              Decision = "allowed"
	DecisionBlockedExpired       Decision = "blocked_expired"
	DecisionBlockedSuspended     Decision = "blocked_suspended"
	DecisionBlockedQuotaExceeded Decision = "blocked_quota_exceeded"
)

// Allowed reports whether the gated action may proceed.
func (d Decision) Allowed() bool {
	return d == DecisionAllowed
}

// EntitlementGuard composes ledger state into an allow/deny decision for
// subscription-gated mutations. It holds no state of its own and recomputes
// from the ledger on every call; decisions are never cached across requests.
type EntitlementGuard struct {
	subscriptions *SubscriptionService
}

// NewEntitlementGuard constructs a guard over the given ledger.
func NewEntitlementGuard(subscriptions *SubscriptionService) (*EntitlementGuard, error) {
	if subscriptions == nil {
		return nil, errors.New("entitlement guard: subscription service is required")
	}
	return &EntitlementGuard{subscriptions: subscriptions}, nil
}

// CheckJobCreation decides whether the company may create another job
// posting. A company without a current subscription is blocked as expired.
func (g *EntitlementGuard) CheckJobCreation(ctx context.Context, companyID string) (Decision, *models.Subscription, error) {
	sub, err := g.subscriptions.Current(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return g.record(DecisionBlockedExpired), nil, nil
		}
		return "", nil, err
	}

	switch sub.Status {
	case models.SubscriptionTrial, models.SubscriptionActive:
	case models.SubscriptionSuspended, models.SubscriptionPastDue:
		return g.record(DecisionBlockedSuspended), sub, nil
	default:
		return g.record(DecisionBlockedExpired), sub, nil
	}

	if !g.subscriptions.CanCreateJob(sub) {
		return g.record(DecisionBlockedQuotaExceeded), sub, nil
	}

	return g.record(DecisionAllowed), sub, nil
}

func (g *EntitlementGuard) record(d Decision) Decision {
	metrics.EntitlementChecks.WithLabelValues(string(d)).Inc()
	return d
}
