package models

import "time"

// Subscription statuses. A company has at most one current subscription,
// the latest created among trial, active and past_due.
const (
	SubscriptionTrial     = "trial"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionSuspended = "suspended"
	SubscriptionCanceled  = "canceled"
	SubscriptionExpired   = "expired"
)

// Subscription tracks a company's entitlement to the platform.
//
// Suspension and grace fields are populated only while the corresponding
// status is held and are cleared again on reactivation.
type Subscription struct {
	BaseModel

	CompanyID string `gorm:"type:uuid;not null;index" json:"company_id"`
	PlanID    string `gorm:"type:uuid;not null" json:"plan_id"`
	Status    string `gorm:"not null;index" json:"status"`

	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	EndsAt      time.Time  `gorm:"index" json:"ends_at"`

	SuspensionReason  *string    `json:"suspension_reason,omitempty"`
	GracePeriodDays   *int       `json:"grace_period_days,omitempty"`
	GracePeriodEndsAt *time.Time `gorm:"index" json:"grace_period_ends_at,omitempty"`

	JobsCreatedThisMonth int `gorm:"not null;default:0" json:"jobs_created_this_month"`

	Plan *Plan `json:"plan,omitempty"`
}

// CurrentStatuses are the statuses that make a subscription "current".
func CurrentStatuses() []string {
	return []string{SubscriptionTrial, SubscriptionActive, SubscriptionPastDue}
}

// Terminal reports whether no further transitions are possible other than
// an administrative reactivation of a suspended subscription.
func (s *Subscription) Terminal() bool {
	switch s.Status {
	case SubscriptionSuspended, SubscriptionCanceled, SubscriptionExpired:
		return true
	}
	return false
}
