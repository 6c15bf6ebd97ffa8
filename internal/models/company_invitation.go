package models

import (
	"time"

	"gorm.io/datatypes"
)

// Company invitation statuses. Transitions only move forward:
// pending -> completed, pending -> expired.
const (
	InvitationPending   = "pending"
	InvitationCompleted = "completed"
	InvitationExpired   = "expired"
)

// CompanyInvitation invites a prospective company onto the platform,
// optionally with a bespoke plan override negotiated out of band.
type CompanyInvitation struct {
	BaseModel

	Email       string         `gorm:"not null;index" json:"email"`
	CompanyName string         `gorm:"not null" json:"company_name"`
	TokenHash   string         `gorm:"uniqueIndex;not null" json:"-"`
	Status      string         `gorm:"not null;default:pending;index" json:"status"`
	CustomPlan  datatypes.JSON `json:"custom_plan,omitempty"`
	ExpiresAt   time.Time      `gorm:"index" json:"expires_at"`
	CreatedBy   string         `gorm:"type:uuid" json:"created_by"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// CustomPlanSpec is the payload stored in CustomPlan.
type CustomPlanSpec struct {
	JobLimit   int   `json:"job_limit"`
	PriceCents int64 `json:"price_cents"`
	TrialDays  int   `json:"trial_days"`
}
