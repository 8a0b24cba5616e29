package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"unitrack/api/internal/httpx"
	"unitrack/api/internal/models"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/security"
)

// ContextUserKey is where Auth stores the resolved user for handlers.
const ContextUserKey = "current_user"

// UserFinder resolves a verified token subject to a live user record.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth is the bearer-token request gate. Outcomes, in order:
// no token 401 TOKEN_REQUIRED, expired 401 TOKEN_EXPIRED, bad signature or
// malformed 401 TOKEN_INVALID, subject no longer in the store 401
// USER_NOT_FOUND (stale tokens of deleted accounts), store failure 500.
func Auth(tokens *security.TokenService, users UserFinder, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			httpx.AbortError(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "access token required")
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		userID, err := tokens.VerifyAccess(tokenStr)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				httpx.AbortError(c, http.StatusUnauthorized, httpx.CodeTokenExpired, "access token expired")
				return
			}
			httpx.AbortError(c, http.StatusUnauthorized, httpx.CodeTokenInvalid, "access token invalid")
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				httpx.AbortError(c, http.StatusUnauthorized, httpx.CodeUserNotFound, "user not found")
				return
			}
			log.Error().Err(err).Str("user_id", userID).Msg("auth user lookup failed")
			httpx.AbortError(c, http.StatusInternalServerError, httpx.CodeInternal, "internal server error")
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser reads the identity attached by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
