package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/crypto"
	apperrors "github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/errors"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/logger"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/mail"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/metrics"
)

// RegisterInput describes the fields accepted when registering an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult bundles the authenticated user with their session token.
type LoginResult struct {
	User  *models.User
	Token string
}

// UserService manages accounts and the credential flows around them:
// registration, login, and the password-reset round trip.
type UserService struct {
	db       *gorm.DB
	tokens   *auth.TokenService
	resets   *auth.ResetTokenService
	mailer   mail.Mailer
	resetURL string
	log      *zap.Logger
}

// UserServiceConfig collects the dependencies for NewUserService.
type UserServiceConfig struct {
	DB       *gorm.DB
	Tokens   *auth.TokenService
	Resets   *auth.ResetTokenService
	Mailer   mail.Mailer
	ResetURL string
}

// NewUserService constructs a UserService.
func NewUserService(cfg UserServiceConfig) (*UserService, error) {
	if cfg.DB == nil {
		return nil, errors.New("user service: db is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("user service: token service is required")
	}
	if cfg.Resets == nil {
		return nil, errors.New("user service: reset token service is required")
	}

	return &UserService{
		db:       cfg.DB,
		tokens:   cfg.Tokens,
		resets:   cfg.Resets,
		mailer:   cfg.Mailer,
		resetURL: strings.TrimRight(cfg.ResetURL, "/"),
		log:      logger.WithModule("services.user"),
	}, nil
}

// Register provisions a new account with a hashed password. The first
// account on a fresh database becomes the admin.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Role:     models.RoleUser,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return fmt.Errorf("user service: count users: %w", err)
		}
		if count == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("username or email already exists")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown users
// and wrong passwords surface identically as invalid credentials.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, strings.ToLower(username)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("user service: issue token: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&user).
		Update("last_login_at", now).Error; err != nil {
		s.log.Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &LoginResult{User: &user, Token: token}, nil
}

// GetByID loads an account by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// RequestPasswordReset issues a reset token for the account matching the
// email and dispatches it best-effort. It reports nothing about whether
// the account exists; callers always answer success.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.NewBadRequest("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("user service: lookup account: %w", err)
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("user service: issue reset token: %w", err)
	}

	s.sendResetMail(ctx, user.Email, token)
	return nil
}

// ResetPassword consumes a reset token and installs a new password hash.
// Replayed or expired tokens are rejected without touching the account.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)

	if len(newPassword) < 8 {
		return apperrors.NewBadRequest("password must be at least 8 characters")
	}

	userID, err := s.resets.Consume(ctx, token)
	if errors.Is(err, auth.ErrResetTokenNotFound) {
		return apperrors.ErrNotFound
	}
	if errors.Is(err, auth.ErrResetTokenReplay) {
		return apperrors.ErrTokenReplay
	}
	if err != nil {
		return fmt.Errorf("user service: consume reset token: %w", err)
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("user service: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("User not found")
	}

	s.log.Info("password reset completed", zap.String("user_id", userID))
	return nil
}

func (s *UserService) sendResetMail(ctx context.Context, email, token string) {
	if s.mailer == nil {
		return
	}

	link := token
	if s.resetURL != "" {
		link = fmt.Sprintf("%s?token=%s", s.resetURL, token)
	}

	message := mail.Message{
		To:      []string{email},
		Subject: "Reset your AddressBook password",
		Body: fmt.Sprintf("A password reset was requested for your account.\n\n"+
			"Use the link below within the next hour:\n%s\n\n"+
			"If you did not request this, you can ignore this message.\n", link),
	}

	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("reset email dispatch failed", zap.Error(err))
	}
}
