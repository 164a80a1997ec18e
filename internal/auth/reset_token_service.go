package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/crypto"
)

const (
	defaultResetExpiry     = time.Hour
	defaultResetTokenBytes = 48
)

var (
	// ErrResetTokenNotFound indicates the token does not exist.
	ErrResetTokenNotFound = errors.New("reset token: not found")
	// ErrResetTokenReplay signals a token that expired or was already consumed.
	ErrResetTokenReplay = errors.New("reset token: already used or expired")
)

// ResetOption customises the ResetTokenService.
type ResetOption func(*ResetTokenService)

// WithResetExpiry overrides the token lifetime.
func WithResetExpiry(d time.Duration) ResetOption {
	return func(s *ResetTokenService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithResetTokenSize adjusts the number of random bytes in generated tokens.
func WithResetTokenSize(size int) ResetOption {
	return func(s *ResetTokenService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithResetClock injects a custom time source.
func WithResetClock(clock func() time.Time) ResetOption {
	return func(s *ResetTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ResetTokenService manages single-use password reset tokens. Unlike
// session tokens, reset tokens are tracked server-side so they can be
// invalidated after first use.
type ResetTokenService struct {
	db          *gorm.DB
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewResetTokenService constructs a reset token service.
func NewResetTokenService(db *gorm.DB, opts ...ResetOption) (*ResetTokenService, error) {
	if db == nil {
		return nil, errors.New("reset token service: db is required")
	}

	service := &ResetTokenService{
		db:          db,
		expiry:      defaultResetExpiry,
		tokenLength: defaultResetTokenBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Issue generates a high-entropy single-use secret for the given user and
// records its hash. Any previous outstanding token for the user is
// replaced.
func (s *ResetTokenService) Issue(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("reset token service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", fmt.Errorf("reset token service: generate token: %w", err)
	}

	record := models.PasswordResetToken{
		UserID:    userID,
		TokenHash: resetTokenHash(token),
		ExpiresAt: s.now().Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.PasswordResetToken{}).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("reset token service: cleanup existing: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("reset token service: create token: %w", err)
	}

	return token, nil
}

// Consume atomically validates and marks the token as used, returning the
// owning user id. The check-and-mark runs as one conditional UPDATE so
// that of two concurrent consume attempts exactly one succeeds; the loser
// observes ErrResetTokenReplay.
func (s *ResetTokenService) Consume(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("reset token service: token is required")
	}

	hash := resetTokenHash(token)
	now := s.now()

	result := s.db.WithContext(ctx).
		Model(&models.PasswordResetToken{}).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
		Update("used_at", now)
	if result.Error != nil {
		return "", fmt.Errorf("reset token service: consume: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish unknown tokens from replayed/expired ones.
		var record models.PasswordResetToken
		err := s.db.WithContext(ctx).
			Where("token_hash = ?", hash).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrResetTokenNotFound
		}
		if err != nil {
			return "", fmt.Errorf("reset token service: lookup: %w", err)
		}
		return "", ErrResetTokenReplay
	}

	var record models.PasswordResetToken
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", hash).
		First(&record).Error; err != nil {
		return "", fmt.Errorf("reset token service: lookup consumed token: %w", err)
	}

	return record.UserID, nil
}

// PurgeExpired deletes tokens past their expiry or already consumed.
// Called by the maintenance cleaner.
func (s *ResetTokenService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", now).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}

func resetTokenHash(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
