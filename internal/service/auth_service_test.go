package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrack/api/internal/models"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/security"
)

type memoryUserStore struct {
	users map[string]*models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: map[string]*models.User{}}
}

func (s *memoryUserStore) Create(_ context.Context, user models.User) error {
	s.users[user.ID] = &user
	return nil
}

func (s *memoryUserStore) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	for _, u := range s.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memoryUserStore) SetResetToken(_ context.Context, id string, tokenHash []byte, expires time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = tokenHash
	u.PasswordResetExpires = &expires
	return nil
}

func (s *memoryUserStore) ClearResetToken(_ context.Context, id string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (s *memoryUserStore) FindByResetToken(_ context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	for _, u := range s.users {
		if bytes.Equal(u.PasswordResetToken, tokenHash) &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memoryUserStore) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (s *memoryUserStore) SetNotification(_ context.Context, id string, enabled bool) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Notification = enabled
	return nil
}

type recordingMailer struct {
	sentTo     []string
	lastSecret string
	fail       bool
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, _, rawToken string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sentTo = append(m.sentTo, to)
	m.lastSecret = rawToken
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *memoryUserStore, *recordingMailer) {
	t.Helper()
	tokens, err := security.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	store := newMemoryUserStore()
	mailer := &recordingMailer{}
	svc := NewAuthService(store, tokens, mailer, 24*time.Hour, zerolog.Nop())
	return svc, store, mailer
}

func registerTestUser(t *testing.T, svc *AuthService) AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), RegisterInput{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "correct-horse",
		FirstName: "Alice",
		LastName:  "Smith",
	})
	require.NoError(t, err)
	return result
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	result := registerTestUser(t, svc)

	assert.NotEmpty(t, result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEqual(t, result.AccessToken, result.RefreshToken)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerTestUser(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:  "alice2",
		Email:     "Alice@Example.com", // same address, different case
		Password:  "irrelevant1",
		FirstName: "Alice",
		LastName:  "Smith",
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:  "bob",
		Email:     "bob@example.com",
		Password:  "short",
		FirstName: "Bob",
		LastName:  "Jones",
	})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerTestUser(t, svc)

	result, err := svc.Login(context.Background(), "ALICE@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)

	_, err = svc.Login(context.Background(), "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesPair(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registered := registerTestUser(t, svc)

	refreshed, err := svc.Refresh(context.Background(), registered.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, refreshed.User.ID)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registered := registerTestUser(t, svc)

	_, err := svc.Refresh(context.Background(), registered.AccessToken)
	assert.ErrorIs(t, err, security.ErrTokenSignature)
}

func TestRefreshUnknownUser(t *testing.T) {
	svc, store, _ := newTestAuthService(t)
	registered := registerTestUser(t, svc)

	delete(store.users, registered.User.ID)

	_, err := svc.Refresh(context.Background(), registered.RefreshToken)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)

	err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, mailer.sentTo)
}

func TestForgotPasswordStoresHashAndMailsSecret(t *testing.T) {
	svc, store, mailer := newTestAuthService(t)
	registered := registerTestUser(t, svc)

	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))
	require.Equal(t, []string{"alice@example.com"}, mailer.sentTo)
	require.NotEmpty(t, mailer.lastSecret)

	stored := store.users[registered.User.ID]
	require.NotNil(t, stored.PasswordResetExpires)
	assert.Equal(t, security.HashResetSecret(mailer.lastSecret), stored.PasswordResetToken)
	assert.NotContains(t, string(stored.PasswordResetToken), mailer.lastSecret,
		"raw secret must never be persisted")
}

func TestForgotPasswordRollsBackOnMailFailure(t *testing.T) {
	svc, store, mailer := newTestAuthService(t)
	registered := registerTestUser(t, svc)
	mailer.fail = true

	err := svc.ForgotPassword(context.Background(), "alice@example.com")
	require.Error(t, err)

	stored := store.users[registered.User.ID]
	assert.Nil(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
}

func TestResetPassword(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)
	registerTestUser(t, svc)
	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))

	err := svc.ResetPassword(context.Background(), mailer.lastSecret, "brand-new-pass")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.com", "brand-new-pass")
	assert.NoError(t, err)
	_, err = svc.Login(context.Background(), "alice@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)
	registerTestUser(t, svc)
	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))

	require.NoError(t, svc.ResetPassword(context.Background(), mailer.lastSecret, "brand-new-pass"))

	err := svc.ResetPassword(context.Background(), mailer.lastSecret, "another-pass")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)
	registerTestUser(t, svc)
	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	err := svc.ResetPassword(context.Background(), mailer.lastSecret, "brand-new-pass")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordWeakPasswordLeavesTokenValid(t *testing.T) {
	svc, store, mailer := newTestAuthService(t)
	registered := registerTestUser(t, svc)
	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@example.com"))

	err := svc.ResetPassword(context.Background(), mailer.lastSecret, "tiny")
	assert.ErrorIs(t, err, ErrWeakPassword)

	// weak password must not consume the token
	stored := store.users[registered.User.ID]
	assert.NotNil(t, stored.PasswordResetToken)
	require.NoError(t, svc.ResetPassword(context.Background(), mailer.lastSecret, "long-enough-pass"))
}

func TestResetPasswordBogusToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerTestUser(t, svc)

	err := svc.ResetPassword(context.Background(), "made-up-token", "long-enough-pass")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestToggleNotifications(t *testing.T) {
	svc, store, _ := newTestAuthService(t)
	registered := registerTestUser(t, svc)

	require.NoError(t, svc.ToggleNotifications(context.Background(), registered.User.ID, true))
	assert.True(t, store.users[registered.User.ID].Notification)

	require.NoError(t, svc.ToggleNotifications(context.Background(), registered.User.ID, false))
	assert.False(t, store.users[registered.User.ID].Notification)
}
