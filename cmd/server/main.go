package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/api"
	"github.com/hireloop/hireloop/internal/app"
	"github.com/hireloop/hireloop/internal/app/maintenance"
	iauth "github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/database"
	"github.com/hireloop/hireloop/internal/services"
	"github.com/hireloop/hireloop/pkg/logger"
	"github.com/hireloop/hireloop/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hireloop-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	mailer, err := mail.NewSMTPMailer(cfg.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp disabled; account and invitation emails will not be sent")
	}

	jwtService, err := iauth.NewJWTService(cfg.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	vault, err := services.NewTokenVault(db)
	if err != nil {
		return fmt.Errorf("initialise token vault: %w", err)
	}

	accounts, err := services.NewAccountService(db, vault, mailer,
		services.WithResetBaseURL(cfg.Links.PasswordReset),
		services.WithVerifyBaseURL(cfg.Links.EmailVerification),
	)
	if err != nil {
		return fmt.Errorf("initialise account service: %w", err)
	}

	subscriptions, err := services.NewSubscriptionService(db,
		services.WithPlanTerm(cfg.Subscriptions.PlanTerm),
		services.WithTrialDays(cfg.Subscriptions.TrialDays),
		services.WithGraceDays(cfg.Subscriptions.GraceDays),
	)
	if err != nil {
		return fmt.Errorf("initialise subscription service: %w", err)
	}

	invitations, err := services.NewInvitationService(db, mailer,
		services.WithInvitationBaseURL(cfg.Links.CompanySetup),
	)
	if err != nil {
		return fmt.Errorf("initialise invitation service: %w", err)
	}

	onboarding, err := services.NewOnboardingService(db, invitations, subscriptions)
	if err != nil {
		return fmt.Errorf("initialise onboarding service: %w", err)
	}

	guard, err := services.NewEntitlementGuard(subscriptions)
	if err != nil {
		return fmt.Errorf("initialise entitlement guard: %w", err)
	}

	jobs, err := services.NewJobService(db, guard, subscriptions)
	if err != nil {
		return fmt.Errorf("initialise job service: %w", err)
	}

	sweeper := maintenance.NewSweeper(db, subscriptions, invitations,
		maintenance.WithSweepSchedule(cfg.Maintenance.SweepSchedule),
		maintenance.WithCounterResetSchedule(cfg.Maintenance.CounterResetSchedule),
		maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
	)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		<-sweeper.Stop().Done()
	}()

	router, err := api.NewRouter(db, jwtService, api.Services{
		Accounts:      accounts,
		Subscriptions: subscriptions,
		Invitations:   invitations,
		Onboarding:    onboarding,
		Jobs:          jobs,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseConfigValue())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("acquire database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
