package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/macrocam/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ConfigError indicates an invalid configuration
	ConfigError = 3

	// StoreError indicates the meal store could not be read or written
	StoreError = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps coded errors by category and falls back to
// matching the message of plain errors.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if code := string(errors.CodeOf(err)); code != "" {
		switch {
		case strings.HasPrefix(code, "AUTH-"):
			return AuthError
		case strings.HasPrefix(code, "STORE-"):
			return StoreError
		case strings.HasPrefix(code, "CONFIG-"):
			return ConfigError
		case code == string(errors.ErrCodeAnalysisTransport):
			return NetworkError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "api key") {
		return AuthError
	}
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "timeout") {
		return NetworkError
	}
	if strings.Contains(errMsg, "unknown command") || strings.Contains(errMsg, "unknown flag") ||
		strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ConfigError:
		return "Configuration error"
	case StoreError:
		return "Meal store error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
