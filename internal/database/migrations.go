package database

import (
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Company{},
		&models.Plan{},
		&models.Subscription{},
		&models.Token{},
		&models.CompanyInvitation{},
		&models.Job{},
	)
}

// SeedData populates the default subscription plans.
//
// The trial plan backs every new account; JobLimit == 0 on the unlimited
// plan means no posting cap.
func SeedData(db *gorm.DB) error {
	plans := []models.Plan{
		{
			BaseModel:   models.BaseModel{ID: "plan-trial"},
			Name:        "trial",
			DisplayName: "Trial",
			JobLimit:    3,
			PriceCents:  0,
			IsActive:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: "plan-starter"},
			Name:        "starter",
			DisplayName: "Starter",
			JobLimit:    10,
			PriceCents:  4900,
			IsActive:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: "plan-growth"},
			Name:        "growth",
			DisplayName: "Growth",
			JobLimit:    50,
			PriceCents:  14900,
			IsActive:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: "plan-unlimited"},
			Name:        "unlimited",
			DisplayName: "Unlimited",
			JobLimit:    0,
			PriceCents:  29900,
			IsActive:    true,
		},
	}

	for _, plan := range plans {
		if err := db.Where(models.Plan{Name: plan.Name}).Attrs(plan).FirstOrCreate(&models.Plan{}).Error; err != nil {
			return err
		}
	}

	return nil
}
