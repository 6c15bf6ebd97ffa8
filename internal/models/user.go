package models

import "time"

// User roles within a company account.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User represents a company account member.
type User struct {
	BaseModel

	Email           string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash    string     `gorm:"not null" json:"-"`
	Name            string     `json:"name"`
	Role            string     `gorm:"not null;default:member" json:"role"`
	CompanyID       *string    `gorm:"type:uuid;index" json:"company_id,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	Company *Company `json:"company,omitempty"`
}

// IsAdmin reports whether the user carries the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
