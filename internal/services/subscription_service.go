package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/metrics"
)

const (
	defaultPlanTerm         = 30 * 24 * time.Hour
	defaultReactivationTerm = 30 * 24 * time.Hour
	defaultTrialDays        = 14
	defaultGraceDays        = 7

	graceElapsedReason = "grace period elapsed"
)

var (
	// ErrSubscriptionNotFound indicates the company has no matching subscription.
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	// ErrSubscriptionExists signals that the company already has a current subscription.
	ErrSubscriptionExists = errors.New("subscription: current subscription already exists")
	// ErrNotSuspended is returned when reactivation targets a subscription that is not suspended.
	ErrNotSuspended = errors.New("subscription: not suspended")
	// ErrInvalidTransition is returned when an event is applied from a state
	// the transition table does not allow.
	ErrInvalidTransition = errors.New("subscription: illegal transition")
	// ErrQuotaExceeded is returned when a guarded counter increment finds
	// the monthly quota already exhausted.
	ErrQuotaExceeded = errors.New("subscription: monthly job quota exhausted")
	// ErrAdminRequired is returned when a privileged transition is invoked by a non-admin principal.
	ErrAdminRequired = errors.New("subscription: administrator role required")
)

// SubscriptionOption customises the SubscriptionService.
type SubscriptionOption func(*SubscriptionService)

// WithSubscriptionClock injects a custom time source.
func WithSubscriptionClock(clock func() time.Time) SubscriptionOption {
	return func(s *SubscriptionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPlanTerm overrides the billing term applied on activation and renewal.
func WithPlanTerm(d time.Duration) SubscriptionOption {
	return func(s *SubscriptionService) {
		if d > 0 {
			s.planTerm = d
		}
	}
}

// WithTrialDays overrides the trial length used when callers do not supply one.
func WithTrialDays(days int) SubscriptionOption {
	return func(s *SubscriptionService) {
		if days > 0 {
			s.trialDays = days
		}
	}
}

// WithGraceDays overrides the grace window used when callers do not supply one.
func WithGraceDays(days int) SubscriptionOption {
	return func(s *SubscriptionService) {
		if days > 0 {
			s.graceDays = days
		}
	}
}

// SubscriptionService owns the subscription state machine.
//
// Every transition is a single conditional UPDATE keyed on the current
// status, so a concurrent attempt (request path versus sweeper) loses the
// race by matching zero rows instead of corrupting state.
type SubscriptionService struct {
	db               *gorm.DB
	now              func() time.Time
	planTerm         time.Duration
	reactivationTerm time.Duration
	trialDays        int
	graceDays        int
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, opts ...SubscriptionOption) (*SubscriptionService, error) {
	if db == nil {
		return nil, errors.New("subscription service: db is required")
	}

	service := &SubscriptionService{
		db:               db,
		now:              time.Now,
		planTerm:         defaultPlanTerm,
		reactivationTerm: defaultReactivationTerm,
		trialDays:        defaultTrialDays,
		graceDays:        defaultGraceDays,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// StartTrial creates the initial trial subscription for a company on the
// seeded trial plan. Companies with a current subscription are rejected.
func (s *SubscriptionService) StartTrial(ctx context.Context, companyID string, trialDays int) (*models.Subscription, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).Where("name = ?", "trial").First(&plan).Error; err != nil {
		return nil, fmt.Errorf("subscription service: load trial plan: %w", err)
	}
	return s.StartWithPlan(ctx, companyID, plan.ID, trialDays)
}

// StartWithPlan creates a trial subscription on an explicit plan. Used by
// company onboarding when an invitation carries a bespoke plan.
func (s *SubscriptionService) StartWithPlan(ctx context.Context, companyID, planID string, trialDays int) (*models.Subscription, error) {
	if companyID == "" {
		return nil, errors.New("subscription service: company id is required")
	}
	if trialDays <= 0 {
		trialDays = s.trialDays
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("company_id = ? AND status IN ?", companyID, models.CurrentStatuses()).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("subscription service: check current: %w", err)
	}
	if existing > 0 {
		return nil, ErrSubscriptionExists
	}

	now := s.now()
	trialEnd := now.Add(time.Duration(trialDays) * 24 * time.Hour)
	sub := models.Subscription{
		CompanyID:   companyID,
		PlanID:      planID,
		Status:      models.SubscriptionTrial,
		TrialEndsAt: &trialEnd,
		EndsAt:      trialEnd,
	}

	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("subscription service: create trial: %w", err)
	}

	return &sub, nil
}

// Current returns the company's current subscription, the latest created
// among trial, active and past_due, with its plan preloaded. The returned
// status is the read-time reconciled one: a lapsed row the sweeper has not
// visited yet is already reported as expired (or suspended for a lapsed
// grace period), closing the stale-read window.
func (s *SubscriptionService) Current(ctx context.Context, companyID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("company_id = ? AND status IN ?", companyID, models.CurrentStatuses()).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subscription service: find current: %w", err)
	}

	sub.Status = EffectiveStatus(&sub, s.now())
	return &sub, nil
}

// EffectiveStatus computes the status a subscription should hold at the
// given instant, without persisting anything. It is the pure half of
// reconciliation; the sweeper applies the same transitions durably.
func EffectiveStatus(sub *models.Subscription, now time.Time) string {
	switch sub.Status {
	case models.SubscriptionTrial, models.SubscriptionActive:
		if now.After(sub.EndsAt) {
			return models.SubscriptionExpired
		}
	case models.SubscriptionPastDue:
		if sub.GracePeriodEndsAt != nil && now.After(*sub.GracePeriodEndsAt) {
			return models.SubscriptionSuspended
		}
	}
	return sub.Status
}

// IsExpired reports whether the subscription should be treated as expired
// at the given instant, even if the sweeper has not reconciled it yet.
func IsExpired(sub *models.Subscription, now time.Time) bool {
	return EffectiveStatus(sub, now) == models.SubscriptionExpired
}

// Activate applies a confirmed payment or billing renewal: the subscription
// moves to active and its end date is extended by one plan term. Grace and
// suspension bookkeeping is cleared.
func (s *SubscriptionService) Activate(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := s.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	base := now
	if sub.EndsAt.After(now) {
		base = sub.EndsAt
	}

	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", subscriptionID, models.CurrentStatuses()).
		Updates(map[string]any{
			"status":               models.SubscriptionActive,
			"ends_at":              base.Add(s.planTerm),
			"trial_ends_at":        nil,
			"suspension_reason":    nil,
			"grace_period_days":    nil,
			"grace_period_ends_at": nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("subscription service: activate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	return s.get(ctx, subscriptionID)
}

// MarkPastDue records a failed payment: active moves to past_due and a
// grace window opens.
func (s *SubscriptionService) MarkPastDue(ctx context.Context, subscriptionID string, graceDays int) (*models.Subscription, error) {
	if graceDays <= 0 {
		graceDays = s.graceDays
	}

	now := s.now()
	graceEnd := now.Add(time.Duration(graceDays) * 24 * time.Hour)

	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionActive).
		Updates(map[string]any{
			"status":               models.SubscriptionPastDue,
			"grace_period_days":    graceDays,
			"grace_period_ends_at": graceEnd,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("subscription service: mark past due: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionConflict(ctx, subscriptionID)
	}

	return s.get(ctx, subscriptionID)
}

// Suspend closes an elapsed grace period: past_due moves to suspended with
// the supplied reason recorded.
func (s *SubscriptionService) Suspend(ctx context.Context, subscriptionID, reason string) (*models.Subscription, error) {
	if reason == "" {
		reason = graceElapsedReason
	}

	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionPastDue).
		Updates(map[string]any{
			"status":            models.SubscriptionSuspended,
			"suspension_reason": reason,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("subscription service: suspend: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionConflict(ctx, subscriptionID)
	}

	return s.get(ctx, subscriptionID)
}

// Reactivate is the administrative escape hatch from suspension. The
// conditional write keys on status=suspended, so repeating the call on an
// already-active subscription fails with ErrNotSuspended instead of
// silently extending the end date again.
func (s *SubscriptionService) Reactivate(ctx context.Context, principal auth.Principal, subscriptionID string) (*models.Subscription, error) {
	if !principal.IsAdmin() {
		return nil, ErrAdminRequired
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionSuspended).
		Updates(map[string]any{
			"status":               models.SubscriptionActive,
			"ends_at":              now.Add(s.reactivationTerm),
			"suspension_reason":    nil,
			"grace_period_days":    nil,
			"grace_period_ends_at": nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("subscription service: reactivate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.get(ctx, subscriptionID); err != nil {
			return nil, err
		}
		return nil, ErrNotSuspended
	}

	return s.get(ctx, subscriptionID)
}

// Cancel terminates the subscription. Canceled is terminal; repeated
// cancellation or cancelling an expired subscription reports ErrInvalidTransition.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", subscriptionID, models.CurrentStatuses()).
		Update("status", models.SubscriptionCanceled)
	if result.Error != nil {
		return nil, fmt.Errorf("subscription service: cancel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionConflict(ctx, subscriptionID)
	}

	return s.get(ctx, subscriptionID)
}

// CanCreateJob evaluates the plan quota against the monthly counter.
// JobLimit == 0 means unlimited. The subscription must carry its Plan.
func (s *SubscriptionService) CanCreateJob(sub *models.Subscription) bool {
	if sub == nil || sub.Plan == nil {
		return false
	}

	switch EffectiveStatus(sub, s.now()) {
	case models.SubscriptionTrial, models.SubscriptionActive:
	default:
		return false
	}

	if sub.Plan.Unlimited() {
		return true
	}
	return sub.JobsCreatedThisMonth < sub.Plan.JobLimit
}

// IncrementJobCount bumps the monthly counter for a job creation. The
// write is conditional on the subscription still being current and, for
// bounded plans, on the counter sitting below the plan limit, so two
// concurrent creations cannot both slip past the quota.
func (s *SubscriptionService) IncrementJobCount(ctx context.Context, sub *models.Subscription) error {
	return s.incrementJobCount(s.db.WithContext(ctx), sub)
}

func (s *SubscriptionService) incrementJobCount(db *gorm.DB, sub *models.Subscription) error {
	if sub == nil || sub.Plan == nil {
		return ErrSubscriptionNotFound
	}

	query := db.Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", sub.ID, []string{models.SubscriptionTrial, models.SubscriptionActive})
	if !sub.Plan.Unlimited() {
		query = query.Where("jobs_created_this_month < ?", sub.Plan.JobLimit)
	}

	result := query.Update("jobs_created_this_month", gorm.Expr("jobs_created_this_month + 1"))
	if result.Error != nil {
		return fmt.Errorf("subscription service: increment job count: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var current models.Subscription
	if err := db.First(&current, "id = ?", sub.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return fmt.Errorf("subscription service: increment job count: %w", err)
	}
	switch current.Status {
	case models.SubscriptionTrial, models.SubscriptionActive:
		return ErrQuotaExceeded
	default:
		return ErrInvalidTransition
	}
}

// ResetMonthlyCounters zeroes every current subscription's job counter.
// Scheduled at each monthly boundary by the sweeper.
func (s *SubscriptionService) ResetMonthlyCounters(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status IN ?", models.CurrentStatuses()).
		Update("jobs_created_this_month", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("subscription service: reset counters: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ExpireLapsedTrials moves trial subscriptions whose end date has passed to
// expired. Idempotent: rows already reconciled match nothing.
func (s *SubscriptionService) ExpireLapsedTrials(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND ends_at < ?", models.SubscriptionTrial, s.now()).
		Update("status", models.SubscriptionExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("subscription service: expire trials: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.SweeperTransitions.WithLabelValues("trial_expired").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ExpireLapsedActive moves active subscriptions whose paid term lapsed
// without a renewal or an explicit payment-failure event to expired.
func (s *SubscriptionService) ExpireLapsedActive(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND ends_at < ?", models.SubscriptionActive, s.now()).
		Update("status", models.SubscriptionExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("subscription service: expire active: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.SweeperTransitions.WithLabelValues("active_expired").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// SuspendLapsedGrace suspends past_due subscriptions whose grace window has
// closed, recording the standard reason.
func (s *SubscriptionService) SuspendLapsedGrace(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND grace_period_ends_at < ?", models.SubscriptionPastDue, s.now()).
		Updates(map[string]any{
			"status":            models.SubscriptionSuspended,
			"suspension_reason": graceElapsedReason,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("subscription service: suspend lapsed grace: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.SweeperTransitions.WithLabelValues("grace_suspended").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// Get returns a subscription by id with its plan preloaded.
func (s *SubscriptionService) Get(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return s.get(ctx, subscriptionID)
}

func (s *SubscriptionService) get(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("id = ?", subscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subscription service: find: %w", err)
	}
	return &sub, nil
}

// transitionConflict inspects why a conditional transition matched nothing.
func (s *SubscriptionService) transitionConflict(ctx context.Context, subscriptionID string) error {
	if _, err := s.get(ctx, subscriptionID); err != nil {
		return err
	}
	return ErrInvalidTransition
}
