package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeCaptureNoImage, "no image selected")

	if err.Code != ErrCodeCaptureNoImage {
		t.Errorf("expected code %s, got %s", ErrCodeCaptureNoImage, err.Code)
	}

	if err.Message != "no image selected" {
		t.Errorf("expected message 'no image selected', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeStoreWrite, "insert failed", cause)

	if err.Code != ErrCodeStoreWrite {
		t.Errorf("expected code %s, got %s", ErrCodeStoreWrite, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *MacroError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeAnalysisInvalid, "bad payload"),
			wantCode: "ANALYSIS-002",
			wantMsg:  "bad payload",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStoreRead, "query failed", fmt.Errorf("permission denied")),
			wantCode: "STORE-001",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestions(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad config").
		WithSuggestion("one").
		WithSuggestions("two", "three")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "Suggestions:") {
		t.Errorf("error string should contain suggestions section")
	}
	for _, s := range err.Suggestions {
		if !strings.Contains(errStr, s) {
			t.Errorf("error string should contain suggestion: %s", s)
		}
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("capture: %w", New(ErrCodeCaptureInFlight, "busy"))

	if got := CodeOf(wrapped); got != ErrCodeCaptureInFlight {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeCaptureInFlight)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestIs(t *testing.T) {
	inner := New(ErrCodeStoreWrite, "insert failed")
	outer := Wrap(ErrCodeAnalysisTransport, "outer", fmt.Errorf("ctx: %w", inner))

	if !Is(outer, ErrCodeAnalysisTransport) {
		t.Error("expected outer code to match")
	}
	if !Is(outer, ErrCodeStoreWrite) {
		t.Error("expected nested code to match")
	}
	if Is(outer, ErrCodeAuthFailed) {
		t.Error("unexpected match for AUTH-001")
	}
	if Is(nil, ErrCodeAuthFailed) {
		t.Error("nil error should not match")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", fmt.Errorf("boom"), "boom"},
		{"macro", NewAnalysisStatusError(500), "Failed to analyze image"},
		{"wrapped macro", fmt.Errorf("x: %w", NewStoreReadError(fmt.Errorf("io"))), "Could not load today's meals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewAuthFailedError(t *testing.T) {
	signIn := fmt.Errorf("Invalid login credentials")
	signUp := fmt.Errorf("User already registered")

	err := NewAuthFailedError(signIn, signUp)

	if err.Code != ErrCodeAuthFailed {
		t.Errorf("expected code %s, got %s", ErrCodeAuthFailed, err.Code)
	}
	if err.Message != "User already registered" {
		t.Errorf("expected registration message, got %q", err.Message)
	}
	if !errors.Is(err, signIn) || !errors.Is(err, signUp) {
		t.Error("both causes should be reachable")
	}
}

func TestNewStoreWriteError(t *testing.T) {
	err := NewStoreWriteError(fmt.Errorf("timeout"))

	if err.Code != ErrCodeStoreWrite {
		t.Errorf("expected code %s, got %s", ErrCodeStoreWrite, err.Code)
	}
	if len(err.Suggestions) == 0 {
		t.Error("expected a suggestion")
	}
}
