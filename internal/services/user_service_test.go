package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	apperrors "github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/errors"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type userFixture struct {
	service *UserService
	tokens  *auth.TokenService
	mailer  *recordingMailer
	db      *gorm.DB
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PasswordResetToken{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret", Issuer: "addressbook"})
	require.NoError(t, err)
	resets, err := auth.NewResetTokenService(db)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	service, err := NewUserService(UserServiceConfig{
		DB:       db,
		Tokens:   tokens,
		Resets:   resets,
		Mailer:   mailer,
		ResetURL: "https://addressbook.test/reset",
	})
	require.NoError(t, err)

	return &userFixture{service: service, tokens: tokens, mailer: mailer, db: db}
}

func TestUserServiceRegisterFirstUserIsAdmin(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	first, err := f.service.Register(ctx, RegisterInput{Username: "root", Email: "root@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, first.Role)

	second, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, second.Role)
}

func TestUserServiceRegisterRejectsDuplicates(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = f.service.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "password123"})
	require.Error(t, err)
}

func TestUserServiceRegisterRejectsShortPassword(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.service.Register(context.Background(), RegisterInput{Username: "alice", Email: "alice@example.com", Password: "short"})
	require.Error(t, err)
}

func TestUserServiceLoginIssuesVerifiableToken(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	registered, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	result, err := f.service.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NotNil(t, result.User.LastLoginAt)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.Equal(t, registered.ID, claims.UserID)
	require.Equal(t, models.RoleAdmin, claims.Role)
}

func TestUserServiceLoginByEmail(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
}

func TestUserServiceLoginRejectsBadCredentials(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "alice", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "nobody", "password123")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServicePasswordResetRoundTrip(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@example.com"))

	messages := f.mailer.sent()
	require.Len(t, messages, 1)
	token := resetTokenFromBody(t, messages[0].Body)

	require.NoError(t, f.service.ResetPassword(ctx, token, "replacement-pass"))

	// Old password no longer works, new one does.
	_, err = f.service.Login(ctx, "alice", "password123")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "alice", "replacement-pass")
	require.NoError(t, err)

	// The token is spent.
	err = f.service.ResetPassword(ctx, token, "third-pass")
	require.ErrorIs(t, err, apperrors.ErrTokenReplay)
}

// resetTokenFromBody extracts the raw token from the "token=" query
// parameter embedded in the reset link.
func resetTokenFromBody(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, "token=")
	require.GreaterOrEqual(t, idx, 0)

	token := body[idx+len("token="):]
	if cut := strings.IndexAny(token, " \n"); cut >= 0 {
		token = token[:cut]
	}
	require.NotEmpty(t, token)
	return token
}

func TestUserServiceForgotPasswordHidesUnknownAccounts(t *testing.T) {
	f := newUserFixture(t)

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "ghost@example.com"))
	require.Empty(t, f.mailer.sent())
}

func TestUserServiceResetPasswordUnknownToken(t *testing.T) {
	f := newUserFixture(t)

	err := f.service.ResetPassword(context.Background(), "bogus-token", "replacement-pass")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
