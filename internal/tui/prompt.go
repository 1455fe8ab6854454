package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// Credentials is an email and password pair entered at a prompt.
type Credentials struct {
	Email    string
	Password string
}

// PromptForCredentials runs the sign-in form outside the full-screen client
func PromptForCredentials(defaultEmail string) (Credentials, error) {
	creds := Credentials{Email: defaultEmail}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&creds.Email),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password),
		),
	)

	if err := form.Run(); err != nil {
		return Credentials{}, fmt.Errorf("prompt failed: %w", err)
	}

	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("email and password are required")
	}
	return creds, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	return shouldPrompt(os.Getenv, IsInteractive())
}

func shouldPrompt(getenv func(string) string, interactive bool) bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if getenv(envVar) != "" {
			return false
		}
	}

	return interactive
}
