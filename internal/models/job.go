package models

// Job posting statuses.
const (
	JobOpen   = "open"
	JobClosed = "closed"
)

// Job is a job posting published by a company. Creation is gated by the
// company's subscription entitlement and counted against the plan quota.
type Job struct {
	BaseModel

	CompanyID   string `gorm:"type:uuid;not null;index" json:"company_id"`
	CreatedBy   string `gorm:"type:uuid;not null" json:"created_by"`
	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Status      string `gorm:"not null;default:open;index" json:"status"`

	Company *Company `json:"company,omitempty"`
}
