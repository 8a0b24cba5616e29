package httpx

import "github.com/gin-gonic/gin"

// Code is the machine-readable error code surfaced in JSON responses.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeTokenRequired      Code = "TOKEN_REQUIRED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeDuplicateResource  Code = "DUPLICATE_RESOURCE"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeResetTokenInvalid  Code = "TOKEN_INVALID_OR_EXPIRED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL"
)

type errorBody struct {
	Success bool   `json:"success"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Error writes the structured failure body. Internal detail never leaks here;
// callers log it and pass a generic message for 500s.
func Error(c *gin.Context, status int, code Code, message string) {
	c.JSON(status, errorBody{Success: false, Code: code, Message: message})
}

// AbortError is Error for middleware, stopping the handler chain.
func AbortError(c *gin.Context, status int, code Code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Success: false, Code: code, Message: message})
}
