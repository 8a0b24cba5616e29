package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrack/api/internal/config"
	"unitrack/api/internal/models"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/security"
	"unitrack/api/internal/service"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*models.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, user models.User) error {
	s.users[user.ID] = &user
	return nil
}

func (s *fakeUserStore) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	for _, u := range s.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) SetResetToken(_ context.Context, id string, tokenHash []byte, expires time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = tokenHash
	u.PasswordResetExpires = &expires
	return nil
}

func (s *fakeUserStore) ClearResetToken(_ context.Context, id string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (s *fakeUserStore) FindByResetToken(_ context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	for _, u := range s.users {
		if u.PasswordResetExpires == nil || !u.PasswordResetExpires.After(now) {
			continue
		}
		if string(u.PasswordResetToken) == string(tokenHash) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (s *fakeUserStore) SetNotification(_ context.Context, id string, enabled bool) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Notification = enabled
	return nil
}

type fakeMailer struct {
	lastSecret string
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _, _, rawToken string) error {
	m.lastSecret = rawToken
	return nil
}

type fakeTaskStore struct{}

func (fakeTaskStore) Create(context.Context, models.Task) error { return nil }
func (fakeTaskStore) ListByUser(context.Context, string) ([]models.Task, error) {
	return nil, nil
}
func (fakeTaskStore) GetByOwner(context.Context, string, string) (models.Task, error) {
	return models.Task{}, repository.ErrTaskNotFound
}
func (fakeTaskStore) Update(context.Context, models.Task) error { return nil }
func (fakeTaskStore) Delete(context.Context, string, string) error { return nil }
func (fakeTaskStore) AddAttachment(context.Context, models.Attachment) error { return nil }
func (fakeTaskStore) ListAttachments(context.Context, string) ([]models.Attachment, error) {
	return nil, nil
}
func (fakeTaskStore) GetAttachment(context.Context, string, string) (models.Attachment, error) {
	return models.Attachment{}, repository.ErrAttachmentNotFound
}
func (fakeTaskStore) DeleteAttachment(context.Context, string, string) error { return nil }

type fakeBlobStore struct{}

func (fakeBlobStore) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (fakeBlobStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, repository.ErrAttachmentNotFound
}
func (fakeBlobStore) Remove(context.Context, string) error { return nil }

type testAPI struct {
	router *gin.Engine
	users  *fakeUserStore
	mailer *fakeMailer
	tokens *security.TokenService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := security.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	users := newFakeUserStore()
	mailer := &fakeMailer{}
	logger := zerolog.Nop()

	auth := service.NewAuthService(users, tokens, mailer, 24*time.Hour, logger)
	tasks := service.NewTaskService(fakeTaskStore{}, fakeBlobStore{}, logger)

	cfg := &config.AppConfig{Environment: "test"}
	handlerSet := NewHandlerSet(logger, cfg, auth, tasks, users, tokens, nil, nil)

	router := gin.New()
	handlerSet.Register(router.Group("/api"))

	return &testAPI{router: router, users: users, mailer: mailer, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(t *testing.T) (accessToken, refreshToken string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username":  "alice",
		"email":     "alice@example.com",
		"password":  "correct-horse",
		"firstName": "Alice",
		"lastName":  "Smith",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.AccessToken, body.RefreshToken
}

func TestRegisterResponseOmitsPasswordFields(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username":  "alice",
		"email":     "alice@example.com",
		"password":  "correct-horse",
		"firstName": "Alice",
		"lastName":  "Smith",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	user, ok := payload["user"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")
	assert.NotEmpty(t, payload["accessToken"])
	assert.NotEmpty(t, payload["refreshToken"])
}

func TestRegisterDuplicateConflict(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	rec := api.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username":  "alice",
		"email":     "alice@example.com",
		"password":  "correct-horse",
		"firstName": "Alice",
		"lastName":  "Smith",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "DUPLICATE_RESOURCE")
}

func TestProfileRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	access, _ := api.register(t)

	rec := api.do(t, http.MethodGet, "/api/users/profile", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
}

func TestProfileExpiredToken(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	expired, err := security.NewTokenService("access-secret", "refresh-secret", -time.Minute, time.Hour)
	require.NoError(t, err)
	var userID string
	for id := range api.users.users {
		userID = id
	}
	staleAccess, _, err := expired.IssuePair(userID)
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/api/users/profile", staleAccess, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
}

func TestRefreshTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)
	_, refresh := api.register(t)

	rec := api.do(t, http.MethodPost, "/api/users/refresh-token", "", map[string]string{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)

	profile := api.do(t, http.MethodGet, "/api/users/profile", body.AccessToken, nil)
	assert.Equal(t, http.StatusOK, profile.Code)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	api := newTestAPI(t)
	access, _ := api.register(t)

	rec := api.do(t, http.MethodPost, "/api/users/refresh-token", "", map[string]string{
		"refreshToken": access,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_INVALID")
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	known := api.do(t, http.MethodPost, "/api/users/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	})
	unknown := api.do(t, http.MethodPost, "/api/users/forgot-password", "", map[string]string{
		"email": "nobody@example.com",
	})

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String(),
		"known and unknown emails must be indistinguishable")
	assert.NotEmpty(t, api.mailer.lastSecret)
}

func TestResetPasswordEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	rec := api.do(t, http.MethodPost, "/api/users/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, api.mailer.lastSecret)

	rec = api.do(t, http.MethodPost, "/api/users/reset-password/"+api.mailer.lastSecret, "", map[string]string{
		"newPass": "brand-new-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	login := api.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "brand-new-pass",
	})
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestResetPasswordWeakPassword(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/users/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	}).Code)

	rec := api.do(t, http.MethodPost, "/api/users/reset-password/"+api.mailer.lastSecret, "", map[string]string{
		"newPass": "tiny",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "WEAK_PASSWORD")
}

func TestResetPasswordBadToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/users/reset-password/bogus", "", map[string]string{
		"newPass": "long-enough-pass",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_INVALID_OR_EXPIRED")
}

func TestToggleNotificationsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	access, _ := api.register(t)

	rec := api.do(t, http.MethodPost, "/api/users/notifications/toggle", access, map[string]bool{
		"enabled": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, u := range api.users.users {
		assert.True(t, u.Notification)
	}
}

func TestTasksRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_REQUIRED")
}
