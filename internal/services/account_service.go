package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/crypto"
	"github.com/hireloop/hireloop/pkg/mail"
)

var (
	// ErrEmailTaken indicates a registration against an existing email.
	ErrEmailTaken = errors.New("account: email already registered")
	// ErrUserNotFound indicates no user matches the identifier.
	ErrUserNotFound = errors.New("account: user not found")
	// ErrInvalidLogin covers both unknown email and wrong password.
	ErrInvalidLogin = errors.New("account: invalid credentials")
	// ErrPasswordTooShort rejects passwords under the minimum length.
	ErrPasswordTooShort = errors.New("account: password must be at least 6 characters")
)

const minPasswordLength = 6

// AccountOption customises the AccountService.
type AccountOption func(*AccountService)

// WithResetBaseURL sets the base URL embedded in password reset emails.
func WithResetBaseURL(url string) AccountOption {
	return func(s *AccountService) {
		s.resetBaseURL = strings.TrimRight(url, "/")
	}
}

// WithVerifyBaseURL sets the base URL embedded in verification emails.
func WithVerifyBaseURL(url string) AccountOption {
	return func(s *AccountService) {
		s.verifyBaseURL = strings.TrimRight(url, "/")
	}
}

// AccountService handles registration, login and the password reset and
// email verification flows built on the token vault.
//
// Password reset tokens are keyed by email; email verification tokens are
// keyed by user id so the vault can flip the verified flag on consumption.
type AccountService struct {
	db            *gorm.DB
	vault         *TokenVault
	mailer        mail.Mailer
	resetBaseURL  string
	verifyBaseURL string
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *gorm.DB, vault *TokenVault, mailer mail.Mailer, opts ...AccountOption) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if vault == nil {
		return nil, errors.New("account service: token vault is required")
	}

	service := &AccountService{db: db, vault: vault, mailer: mailer}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RegisterInput carries the fields of a new user account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a user and dispatches the verification email.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, errors.New("account service: email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.RoleMember,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	if _, err := s.SendVerification(ctx, email); err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	return &user, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, fmt.Errorf("account service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidLogin
	}

	return &user, nil
}

// RequestPasswordReset issues a reset token and emails the link. Unknown
// emails return success without side effects so the endpoint cannot be
// used to enumerate accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("account service: email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("account service: find user: %w", err)
	}

	raw, _, err := s.vault.Issue(ctx, email, models.TokenKindPasswordReset, 0)
	if err != nil {
		return err
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Reset your HireLoop password",
			Body: fmt.Sprintf("Hello,\n\nUse the link below to choose a new password. It expires in %s.\n%s\n\nIf you did not request this, you can ignore this message.\n",
				DefaultPasswordResetTTL, s.link(s.resetBaseURL, raw)),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return fmt.Errorf("account service: send email: %w", mailErr)
		}
	}

	return nil
}

// ResetPassword validates the token, commits the new password, then
// consumes the token. The password update lands first so a crash between
// the two writes leaves a usable password rather than a locked-out user;
// the still-live token is revoked on the next issue or sweep.
func (s *AccountService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	token, err := s.vault.Verify(ctx, rawToken)
	if err != nil {
		return err
	}
	if token.Kind != models.TokenKindPasswordReset {
		return ErrTokenNotFound
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", token.SubjectID).
		Update("password_hash", hash)
	if result.Error != nil {
		return fmt.Errorf("account service: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	if _, err := s.vault.Consume(ctx, rawToken); err != nil {
		return err
	}
	return nil
}

// SendVerification issues an email verification token for the address and
// mails the confirmation link. The returned link aids tests and logging.
func (s *AccountService) SendVerification(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("account service: find user: %w", err)
	}

	raw, _, err := s.vault.Issue(ctx, user.ID, models.TokenKindEmailVerify, 0)
	if err != nil {
		return "", err
	}

	link := s.link(s.verifyBaseURL, raw)
	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Confirm your HireLoop account",
			Body: fmt.Sprintf("Welcome to HireLoop!\n\nPlease confirm your email address by visiting the link below:\n%s\n\nIf you did not create an account, you can ignore this message.\n",
				link),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return "", fmt.Errorf("account service: send email: %w", mailErr)
		}
	}

	return link, nil
}

// VerifyEmail consumes a verification token. The vault marks the user's
// email verified inside the consume transaction; the updated user is
// returned for rendering. The kind is checked before consuming so a
// token of another kind posted here stays live for its own flow.
func (s *AccountService) VerifyEmail(ctx context.Context, rawToken string) (*models.User, error) {
	token, err := s.vault.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if token.Kind != models.TokenKindEmailVerify {
		return nil, ErrTokenNotFound
	}

	if _, err := s.vault.Consume(ctx, rawToken); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", token.SubjectID).Error; err != nil {
		return nil, fmt.Errorf("account service: load user: %w", err)
	}
	return &user, nil
}

func (s *AccountService) link(baseURL, token string) string {
	if baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", baseURL, token)
}
