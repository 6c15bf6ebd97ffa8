package models

import "time"

// Single-use token kinds.
const (
	TokenKindPasswordReset = "password_reset"
	TokenKindEmailVerify   = "email_verify"
	TokenKindCompanyInvite = "company_invite"
)

// Token is a single-use, time-bound credential. Only the SHA-256 hash of the
// raw value is stored; the raw value leaves the process exactly once, inside
// the email handed to the subject.
type Token struct {
	BaseModel

	SubjectID  string     `gorm:"not null;index:idx_tokens_subject_kind" json:"subject_id"`
	Kind       string     `gorm:"not null;index:idx_tokens_subject_kind" json:"kind"`
	TokenHash  string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Live reports whether the token is still consumable at the given instant.
func (t *Token) Live(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
