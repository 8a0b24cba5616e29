package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"unitrack/api/internal/ids"
	"unitrack/api/internal/models"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/security"
)

var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateUser      = errors.New("user with this email or username already exists")
	ErrWeakPassword       = errors.New("password must be at least 6 characters long")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or expired")
)

const minPasswordLength = 6

// UserStore is the credential store as the auth flow sees it. Every method
// is a single find or find-and-mutate; no multi-request transactions exist.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetResetToken(ctx context.Context, id string, tokenHash []byte, expires time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	FindByResetToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	SetNotification(ctx context.Context, id string, enabled bool) error
}

// ResetMailer delivers the raw reset secret to the user.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, firstName, rawToken string) error
}

type AuthService struct {
	users    UserStore
	tokens   *security.TokenService
	mailer   ResetMailer
	resetTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(users UserStore, tokens *security.TokenService, mailer ResetMailer, resetTTL time.Duration, log zerolog.Logger) *AuthService {
	if resetTTL == 0 {
		resetTTL = 24 * time.Hour
	}
	return &AuthService{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		resetTTL: resetTTL,
		log:      log,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Notification bool
}

type AuthResult struct {
	User         models.User
	AccessToken  string
	RefreshToken string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if input.Username == "" || input.Email == "" || input.Password == "" || input.FirstName == "" || input.LastName == "" {
		return AuthResult{}, fmt.Errorf("%w: username, email, password, firstName and lastName are required", ErrValidation)
	}
	if len(input.Password) < minPasswordLength {
		return AuthResult{}, ErrWeakPassword
	}

	exists, err := s.users.ExistsByEmailOrUsername(ctx, input.Email, input.Username)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, ErrDuplicateUser
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Notification: input.Notification,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	return s.issueResult(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issueResult(user)
}

// Refresh mints a fresh pair from a valid refresh token. Token verification
// errors pass through typed so the handler can answer with the right 401.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}

	return s.issueResult(user)
}

// ForgotPassword answers identically whether or not the email is known, so
// the endpoint cannot be used to enumerate accounts. On a match the token
// hash and expiry are persisted and the raw secret is mailed; if anything
// fails after the write, the deferred compensation clears the fields again.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (retErr error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	raw, hash, err := security.NewResetSecret()
	if err != nil {
		return err
	}

	if err := s.users.SetResetToken(ctx, user.ID, hash, s.now().Add(s.resetTTL)); err != nil {
		return err
	}
	defer func() {
		if retErr == nil {
			return
		}
		if cerr := s.users.ClearResetToken(ctx, user.ID); cerr != nil {
			s.log.Error().Err(cerr).Str("user_id", user.ID).Msg("reset token rollback failed")
		}
	}()

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FirstName, raw); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword redeems a reset token. The lookup hashes the supplied raw
// token and requires a future expiry; the update consumes the token, so a
// second redemption finds nothing.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	user, err := s.users.FindByResetToken(ctx, security.HashResetSecret(rawToken), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.users.UpdatePassword(ctx, user.ID, passwordHash)
}

func (s *AuthService) ToggleNotifications(ctx context.Context, userID string, enabled bool) error {
	return s.users.SetNotification(ctx, userID, enabled)
}

func (s *AuthService) issueResult(user models.User) (AuthResult, error) {
	access, refresh, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
