package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/hireloop/internal/models"
	"github.com/hireloop/hireloop/pkg/crypto"
	"github.com/hireloop/hireloop/pkg/metrics"
)

const defaultTokenBytes = 32

// Default lifetimes per token kind. Company invitations usually carry a
// business-set expiry supplied by the caller; this is only the fallback.
const (
	DefaultPasswordResetTTL = time.Hour
	DefaultEmailVerifyTTL   = 24 * time.Hour
	DefaultCompanyInviteTTL = 7 * 24 * time.Hour
)

var (
	// ErrTokenNotFound indicates no token matches the provided value.
	ErrTokenNotFound = errors.New("token: not found")
	// ErrTokenExpired indicates the token is past its validity window.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenUsed signals that the token has already been consumed.
	ErrTokenUsed = errors.New("token: already used")
)

// VaultOption customises the TokenVault.
type VaultOption func(*TokenVault)

// WithVaultClock injects a custom time source.
func WithVaultClock(clock func() time.Time) VaultOption {
	return func(v *TokenVault) {
		if clock != nil {
			v.now = clock
		}
	}
}

// WithVaultTokenSize adjusts the number of random bytes in generated tokens.
func WithVaultTokenSize(size int) VaultOption {
	return func(v *TokenVault) {
		if size > 0 {
			v.tokenLength = size
		}
	}
}

// TokenVault issues, verifies and consumes single-use, time-bound tokens.
//
// Only the SHA-256 hash of a token is persisted. At most one live token
// exists per (subject, kind) pair: issuing a replacement revokes the
// previous one inside the same transaction.
type TokenVault struct {
	db          *gorm.DB
	tokenLength int
	now         func() time.Time
}

// NewTokenVault constructs a TokenVault with the provided dependencies.
func NewTokenVault(db *gorm.DB, opts ...VaultOption) (*TokenVault, error) {
	if db == nil {
		return nil, errors.New("token vault: db is required")
	}

	vault := &TokenVault{
		db:          db,
		tokenLength: defaultTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(vault)
	}

	return vault, nil
}

// DefaultTTL returns the fallback lifetime for a token kind.
func DefaultTTL(kind string) time.Duration {
	switch kind {
	case models.TokenKindPasswordReset:
		return DefaultPasswordResetTTL
	case models.TokenKindEmailVerify:
		return DefaultEmailVerifyTTL
	case models.TokenKindCompanyInvite:
		return DefaultCompanyInviteTTL
	}
	return DefaultPasswordResetTTL
}

func validTokenKind(kind string) bool {
	switch kind {
	case models.TokenKindPasswordReset, models.TokenKindEmailVerify, models.TokenKindCompanyInvite:
		return true
	}
	return false
}

// Issue creates a fresh token for (subject, kind), revoking any live
// predecessor in the same transaction so concurrent issuances cannot leave
// two consumable tokens behind. The raw value is returned exactly once.
func (v *TokenVault) Issue(ctx context.Context, subject, kind string, ttl time.Duration) (string, *models.Token, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, errors.New("token vault: subject is required")
	}
	if !validTokenKind(kind) {
		return "", nil, fmt.Errorf("token vault: unknown kind %q", kind)
	}
	if ttl <= 0 {
		ttl = DefaultTTL(kind)
	}

	raw, err := crypto.GenerateToken(v.tokenLength)
	if err != nil {
		return "", nil, fmt.Errorf("token vault: generate token: %w", err)
	}

	now := v.now()
	token := models.Token{
		SubjectID: subject,
		Kind:      kind,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(ttl),
	}

	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("subject_id = ? AND kind = ? AND consumed_at IS NULL", subject, kind).
			Delete(&models.Token{}).Error; err != nil {
			return fmt.Errorf("revoke previous: %w", err)
		}
		if err := tx.Create(&token).Error; err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("token vault: issue: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(kind).Inc()
	return raw, &token, nil
}

// Verify checks a raw token without consuming it. Expired rows are deleted
// as a side effect so repeated probes converge on ErrTokenNotFound.
func (v *TokenVault) Verify(ctx context.Context, raw string) (*models.Token, error) {
	token, err := v.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Consume validates the raw token and marks it used. The consumed_at update
// is conditional on the token still being unconsumed, so a second Consume of
// the same value fails with ErrTokenUsed.
//
// Consuming an email_verify token additionally marks the subject user's
// email as verified, inside the same transaction.
func (v *TokenVault) Consume(ctx context.Context, raw string) (*models.Token, error) {
	token, err := v.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := v.now()
	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Token{}).
			Where("id = ? AND consumed_at IS NULL", token.ID).
			Update("consumed_at", now)
		if result.Error != nil {
			return fmt.Errorf("mark consumed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTokenUsed
		}

		if token.Kind == models.TokenKindEmailVerify {
			if err := tx.Model(&models.User{}).
				Where("id = ? AND email_verified_at IS NULL", token.SubjectID).
				Update("email_verified_at", now).Error; err != nil {
				return fmt.Errorf("mark email verified: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenUsed) {
			metrics.TokensConsumed.WithLabelValues(token.Kind, "used").Inc()
			return nil, ErrTokenUsed
		}
		return nil, fmt.Errorf("token vault: consume: %w", err)
	}

	metrics.TokensConsumed.WithLabelValues(token.Kind, "success").Inc()
	token.ConsumedAt = &now
	return token, nil
}

func (v *TokenVault) lookup(ctx context.Context, raw string) (*models.Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenNotFound
	}

	var token models.Token
	if err := v.db.WithContext(ctx).
		Where("token_hash = ?", hashToken(raw)).
		First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("token vault: find token: %w", err)
	}

	if token.ConsumedAt != nil {
		return nil, ErrTokenUsed
	}

	if v.now().After(token.ExpiresAt) {
		// Stale row; remove it so the table does not accumulate garbage
		// between sweeper passes.
		if err := v.db.WithContext(ctx).Delete(&models.Token{}, "id = ?", token.ID).Error; err != nil {
			return nil, fmt.Errorf("token vault: delete expired: %w", err)
		}
		metrics.TokensConsumed.WithLabelValues(token.Kind, "expired").Inc()
		return nil, ErrTokenExpired
	}

	return &token, nil
}

func hashToken(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}
