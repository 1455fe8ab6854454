package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeAuthFailed      ErrorCode = "AUTH-001"
	ErrCodeAuthCredentials ErrorCode = "AUTH-002"
	ErrCodeAuthProvider    ErrorCode = "AUTH-003"

	// Analysis errors (ANALYSIS-001 to ANALYSIS-099)
	ErrCodeAnalysisTransport ErrorCode = "ANALYSIS-001"
	ErrCodeAnalysisInvalid   ErrorCode = "ANALYSIS-002"
	ErrCodeAnalysisImage     ErrorCode = "ANALYSIS-003"

	// Persistence errors (STORE-001 to STORE-099)
	ErrCodeStoreRead    ErrorCode = "STORE-001"
	ErrCodeStoreWrite   ErrorCode = "STORE-002"
	ErrCodeStoreInvalid ErrorCode = "STORE-003"

	// Capture pipeline errors (CAPTURE-001 to CAPTURE-099)
	ErrCodeCaptureNoImage   ErrorCode = "CAPTURE-001"
	ErrCodeCaptureInFlight  ErrorCode = "CAPTURE-002"
	ErrCodeCaptureNoSession ErrorCode = "CAPTURE-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
)

// MacroError represents an error with a code, a user-facing message and optional suggestions
type MacroError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *MacroError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *MacroError) Unwrap() error {
	return e.Cause
}

// New creates a new MacroError
func New(code ErrorCode, message string) *MacroError {
	return &MacroError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new MacroError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *MacroError {
	return &MacroError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *MacroError) WithSuggestion(suggestion string) *MacroError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *MacroError) WithSuggestions(suggestions ...string) *MacroError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first MacroError in err's chain, or "" if there is none
func CodeOf(err error) ErrorCode {
	var macroErr *MacroError
	if stderrors.As(err, &macroErr) {
		return macroErr.Code
	}
	return ""
}

// Is reports whether err's chain contains a MacroError with the given code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var macroErr *MacroError
		if !stderrors.As(err, &macroErr) {
			return false
		}
		if macroErr.Code == code {
			return true
		}
		err = macroErr.Cause
	}
	return false
}

// UserMessage returns the text shown in the single message slot of the client.
// Codes and suggestions are left out; plain errors are shown as-is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var macroErr *MacroError
	if stderrors.As(err, &macroErr) {
		return macroErr.Message
	}
	return err.Error()
}

// Common error constructors for frequently used errors

// NewAuthFailedError reports that both sign-in and registration were rejected.
// The registration failure is the message shown to the user.
func NewAuthFailedError(signInErr, signUpErr error) *MacroError {
	msg := "sign in failed"
	if signUpErr != nil {
		msg = signUpErr.Error()
	}
	return Wrap(ErrCodeAuthFailed, msg, stderrors.Join(signInErr, signUpErr)).
		WithSuggestion("Check the email address and password")
}

// NewAnalysisStatusError creates an error for a non-success analysis response
func NewAnalysisStatusError(status int) *MacroError {
	return New(ErrCodeAnalysisTransport, "Failed to analyze image").
		WithSuggestion(fmt.Sprintf("The analysis service answered with HTTP %d", status)).
		WithSuggestion("Retry the capture")
}

// NewAnalysisTransportError creates an error for a failed analysis round trip
func NewAnalysisTransportError(cause error) *MacroError {
	return Wrap(ErrCodeAnalysisTransport, "Failed to analyze image", cause).
		WithSuggestion("Check that the analysis service is running and MACROCAM_API_BASE points at it")
}

// NewStoreReadError creates a meal query failure
func NewStoreReadError(cause error) *MacroError {
	return Wrap(ErrCodeStoreRead, "Could not load today's meals", cause)
}

// NewStoreWriteError creates a meal insert failure
func NewStoreWriteError(cause error) *MacroError {
	return Wrap(ErrCodeStoreWrite, "Meal analyzed but could not be saved", cause).
		WithSuggestion("The result is still shown; capture again to retry saving")
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *MacroError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Check ~/.macrocam/config.yaml and MACROCAM_* environment variables")
}
