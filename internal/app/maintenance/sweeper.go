package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/internal/services"
	"github.com/hireloop/hireloop/pkg/logger"
)

const (
	defaultSweepSpec        = "@hourly"
	defaultCounterResetSpec = "@monthly"
	defaultTokenRetention   = 7 * 24 * time.Hour
)

// Sweeper advances time-driven transitions that no request has triggered
// yet: lapsed trials and paid terms, elapsed grace periods, pending
// invitations past expiry, and stale token rows.
//
// Every transition it applies is a conditional update keyed on the current
// status, so overlapping invocations and races with request-path checks
// are harmless; a stale read simply matches zero rows. A TryLock guard
// additionally keeps one process from running two sweeps at once.
type Sweeper struct {
	db            *gorm.DB
	subscriptions *services.SubscriptionService
	invitations   *services.InvitationService
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger

	sweepSchedule        string
	counterResetSchedule string
	tokenRetention       time.Duration

	running sync.Mutex
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepSchedule overrides the cron specification for the reconciliation pass.
func WithSweepSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// WithCounterResetSchedule overrides the cron specification for the monthly
// job counter reset.
func WithCounterResetSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.counterResetSchedule = spec
		}
	}
}

// WithTokenRetention adjusts how long consumed or expired token rows are
// kept before purging.
func WithTokenRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.tokenRetention = d
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(db *gorm.DB, subscriptions *services.SubscriptionService, invitations *services.InvitationService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		db:                   db,
		subscriptions:        subscriptions,
		invitations:          invitations,
		now:                  time.Now,
		sweepSchedule:        defaultSweepSpec,
		counterResetSchedule: defaultCounterResetSpec,
		tokenRetention:       defaultTokenRetention,
		log:                  logger.WithModule("sweeper"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper
}

// Start registers the sweep jobs with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("reconciliation sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if s.subscriptions != nil {
		if _, err := s.cron.AddFunc(s.counterResetSchedule, func() {
			if n, err := s.subscriptions.ResetMonthlyCounters(context.Background()); err != nil {
				s.log.Warn("monthly counter reset failed", zap.Error(err))
			} else {
				s.log.Info("monthly job counters reset", zap.Int64("subscriptions", n))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// SweepStats captures the number of rows each pass transitioned.
type SweepStats struct {
	TrialsExpired      int64
	ActiveExpired      int64
	GraceSuspended     int64
	InvitationsExpired int64
	TokensPurged       int64
}

// RunOnce executes a full reconciliation pass. If another pass is already
// running in this process it returns immediately without doing work.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stats := SweepStats{}

	if !s.running.TryLock() {
		return stats, nil
	}
	defer s.running.Unlock()

	var errs error

	if s.subscriptions != nil {
		if n, err := s.subscriptions.ExpireLapsedTrials(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			stats.TrialsExpired = n
		}

		if n, err := s.subscriptions.ExpireLapsedActive(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			stats.ActiveExpired = n
		}

		if n, err := s.subscriptions.SuspendLapsedGrace(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			stats.GraceSuspended = n
		}
	}

	if s.invitations != nil {
		if n, err := s.invitations.ExpireLapsed(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			stats.InvitationsExpired = n
		}
	}

	if s.db != nil {
		if n, err := s.purgeTokens(ctx); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			stats.TokensPurged = n
		}
	}

	if errs != nil {
		return stats, errs
	}
	return stats, nil
}

// purgeTokens removes token rows that were consumed, or expired longer ago
// than the retention window.
func (s *Sweeper) purgeTokens(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errors.New("purge tokens: db is required")
	}

	cutoff := s.now().Add(-s.tokenRetention)
	result := s.db.WithContext(ctx).
		Where("consumed_at IS NOT NULL OR expires_at < ?", cutoff).
		Delete(&models.Token{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
