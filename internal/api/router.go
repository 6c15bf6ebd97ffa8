package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/handlers"
	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/services"
)

// Services bundles the domain services the router exposes. The caller owns
// construction so the same instances can feed the maintenance sweeper.
type Services struct {
	Accounts      *services.AccountService
	Subscriptions *services.SubscriptionService
	Invitations   *services.InvitationService
	Onboarding    *services.OnboardingService
	Jobs          *services.JobService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if svcs.Accounts == nil || svcs.Subscriptions == nil || svcs.Invitations == nil ||
		svcs.Onboarding == nil || svcs.Jobs == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(svcs.Accounts, jwt)
	setupHandler := handlers.NewCompanySetupHandler(svcs.Invitations, svcs.Onboarding)
	subscriptionHandler := handlers.NewSubscriptionHandler(svcs.Subscriptions)
	jobHandler := handlers.NewJobHandler(svcs.Jobs)
	invitationHandler := handlers.NewInvitationHandler(svcs.Invitations)

	// Public routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/reset-password/request", authHandler.RequestPasswordReset)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/send-verification", authHandler.SendVerification)
		auth.GET("/verify-email", authHandler.VerifyEmail)
	}

	setup := r.Group("/api/company-setup")
	{
		setup.POST("/verify-token", setupHandler.VerifyInvitation)
		setup.POST("/complete", setupHandler.CompleteSetup)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.GET("/subscriptions/current", subscriptionHandler.Current)
	api.POST("/subscriptions/:id/reactivate", middleware.RequireAdmin(), subscriptionHandler.Reactivate)

	jobs := api.Group("/jobs")
	{
		jobs.POST("", jobHandler.Create)
		jobs.GET("", jobHandler.List)
		jobs.POST("/:id/close", jobHandler.Close)
	}

	api.POST("/invitations", middleware.RequireAdmin(), invitationHandler.Create)

	return r, nil
}
