package models

// Plan describes a subscription tier and its job posting quota.
//
// JobLimit == 0 means unlimited postings; bounded plans carry a positive cap.
type Plan struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"not null" json:"display_name"`
	JobLimit    int    `gorm:"not null;default:0" json:"job_limit"`
	PriceCents  int64  `gorm:"not null;default:0" json:"price_cents"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
}

// Unlimited reports whether the plan places no cap on job postings.
func (p *Plan) Unlimited() bool {
	return p.JobLimit == 0
}
