package auth

import (
	"errors"
	"fmt"
)

// Error codes for local identity failures
const (
	// Credential errors
	ErrInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	ErrUserExists         = "AUTH_USER_EXISTS"
	ErrWeakPassword       = "AUTH_WEAK_PASSWORD"

	// Session errors
	ErrSessionInvalid     = "AUTH_SESSION_INVALID"
	ErrSessionStoreFailed = "AUTH_SESSION_STORE_FAILED"
	ErrRefreshFailed      = "AUTH_REFRESH_FAILED"

	// Token errors
	ErrTokenInvalid       = "AUTH_TOKEN_INVALID"
	ErrTokenExpired       = "AUTH_TOKEN_EXPIRED"
	ErrTokenMalformed     = "AUTH_TOKEN_MALFORMED"
	ErrTokenSigningFailed = "AUTH_TOKEN_SIGNING_FAILED"
)

// AuthError represents an authentication error with code and context.
type AuthError struct {
	// Code is the error code (e.g., AUTH_TOKEN_EXPIRED)
	Code string

	// Message is a human-readable error message
	Message string

	// Context provides additional details about the error
	Context map[string]interface{}

	// Cause is the underlying error that caused this error
	Cause error
}

// Error returns the message; the code is kept for matching.
// The message is what the client shows when both sign-in and registration fail.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AuthError.
func NewError(code, message string, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// WrapError wraps an existing error with an AuthError.
func WrapError(code, message string, cause error, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// IsAuthError checks if err's chain holds an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}
