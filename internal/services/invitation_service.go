package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/crypto"
	"github.com/hireloop/hireloop/pkg/mail"
)

const defaultInvitationExpiry = 7 * 24 * time.Hour

var (
	// ErrInvitationNotFound indicates no invitation matches the provided token.
	ErrInvitationNotFound = errors.New("invitation: not found")
	// ErrInvitationExpired indicates the invitation is past its expiry.
	ErrInvitationExpired = errors.New("invitation: expired")
	// ErrInvitationUsed signals that the invitation has already been completed.
	ErrInvitationUsed = errors.New("invitation: already used")
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the base URL used in onboarding links.
func WithInvitationBaseURL(url string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInvitationExpiry overrides the default invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService manages company onboarding invitations.
//
// Invitation status only moves forward: pending to completed when
// onboarding finishes, or pending to expired once the expiry lapses.
type InvitationService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(db *gorm.DB, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultInvitationExpiry,
		tokenLength: defaultTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateInput carries the parameters for a new company invitation.
type CreateInvitationInput struct {
	Email       string
	CompanyName string
	CustomPlan  *models.CustomPlanSpec
	TTL         time.Duration
}

// Create issues a company invitation and emails the onboarding link.
// Only administrator principals may invite companies.
func (s *InvitationService) Create(ctx context.Context, principal auth.Principal, input CreateInvitationInput) (string, *models.CompanyInvitation, error) {
	if !principal.IsAdmin() {
		return "", nil, ErrAdminRequired
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return "", nil, errors.New("invitation service: email is required")
	}
	companyName := strings.TrimSpace(input.CompanyName)
	if companyName == "" {
		return "", nil, errors.New("invitation service: company name is required")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.expiry
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	invitation := models.CompanyInvitation{
		Email:       email,
		CompanyName: companyName,
		TokenHash:   hashToken(rawToken),
		Status:      models.InvitationPending,
		ExpiresAt:   now.Add(ttl),
		CreatedBy:   principal.UserID,
	}

	if input.CustomPlan != nil {
		payload, err := json.Marshal(input.CustomPlan)
		if err != nil {
			return "", nil, fmt.Errorf("invitation service: encode custom plan: %w", err)
		}
		invitation.CustomPlan = datatypes.JSON(payload)
	}

	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		return "", nil, fmt.Errorf("invitation service: create: %w", err)
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "You're invited to HireLoop",
			Body:    s.invitationBody(s.invitationLink(rawToken), companyName),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return "", nil, fmt.Errorf("invitation service: send email: %w", mailErr)
		}
	}

	return rawToken, &invitation, nil
}

// Verify checks an invitation token ahead of onboarding without consuming
// it. A lapsed pending invitation is flipped to expired durably; the write
// is conditional on status=pending so repeated verifications stay
// idempotent and report ErrInvitationExpired consistently.
func (s *InvitationService) Verify(ctx context.Context, rawToken string) (*models.CompanyInvitation, error) {
	invitation, err := s.find(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if invitation.Status == models.InvitationCompleted {
		return nil, ErrInvitationUsed
	}

	if s.now().After(invitation.ExpiresAt) {
		if invitation.Status == models.InvitationPending {
			if err := s.db.WithContext(ctx).Model(&models.CompanyInvitation{}).
				Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
				Update("status", models.InvitationExpired).Error; err != nil {
				return nil, fmt.Errorf("invitation service: mark expired: %w", err)
			}
		}
		return nil, ErrInvitationExpired
	}

	if invitation.Status == models.InvitationExpired {
		return nil, ErrInvitationExpired
	}

	return invitation, nil
}

// Complete marks the invitation used once the invited company finishes
// onboarding. The update keys on status=pending; a second completion
// attempt reports ErrInvitationUsed.
func (s *InvitationService) Complete(ctx context.Context, rawToken string) (*models.CompanyInvitation, error) {
	invitation, err := s.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.CompanyInvitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
		Updates(map[string]any{
			"status":       models.InvitationCompleted,
			"completed_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: complete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvitationUsed
	}

	invitation.Status = models.InvitationCompleted
	invitation.CompletedAt = &now
	return invitation, nil
}

// ExpireLapsed durably expires every pending invitation whose expiry has
// passed. Called by the reconciliation sweeper.
func (s *InvitationService) ExpireLapsed(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.CompanyInvitation{}).
		Where("status = ? AND expires_at < ?", models.InvitationPending, s.now()).
		Update("status", models.InvitationExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("invitation service: expire lapsed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CustomPlanSpec decodes the invitation's plan override, if any.
func (s *InvitationService) CustomPlanSpec(invitation *models.CompanyInvitation) (*models.CustomPlanSpec, error) {
	if invitation == nil || len(invitation.CustomPlan) == 0 {
		return nil, nil
	}

	var spec models.CustomPlanSpec
	if err := json.Unmarshal(invitation.CustomPlan, &spec); err != nil {
		return nil, fmt.Errorf("invitation service: decode custom plan: %w", err)
	}
	return &spec, nil
}

func (s *InvitationService) find(ctx context.Context, rawToken string) (*models.CompanyInvitation, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvitationNotFound
	}

	var invitation models.CompanyInvitation
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", hashToken(rawToken)).
		First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: find: %w", err)
	}

	return &invitation, nil
}

func (s *InvitationService) invitationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *InvitationService) invitationBody(link, companyName string) string {
	return fmt.Sprintf("Hello,\n\n%s has been invited to recruit on HireLoop. Use the following link to set up your company account:\n%s\n\nIf you did not expect this email, you can ignore it.\n", companyName, link)
}
