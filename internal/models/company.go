package models

// Company is the account that owns subscriptions and job postings.
type Company struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	OwnerUserID string `gorm:"type:uuid;index" json:"owner_user_id"`
	Website     string `json:"website,omitempty"`
	Location    string `json:"location,omitempty"`
}
