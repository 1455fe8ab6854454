// Package supabase talks to a Supabase project over its REST APIs. It provides
// the identity provider (GoTrue, /auth/v1) and the meal store (PostgREST, /rest/v1)
// used by the client.
package supabase

import (
	"net/http"
	"time"
)

// Config holds Supabase client configuration.
type Config struct {
	// URL is the project URL (e.g., https://xxx.supabase.co)
	URL string

	// AnonKey is the public anon key sent as the apikey header
	AnonKey string

	// Timeout for HTTP requests (default: 30s)
	Timeout time.Duration

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// User represents a Supabase user.
type User struct {
	ID               string     `json:"id"`
	Aud              string     `json:"aud,omitempty"`
	Role             string     `json:"role,omitempty"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AuthSession is the token response of the auth API.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest for user registration.
type SignUpRequest struct {
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// OrderDirection for query ordering.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// Error represents a Supabase API error.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unauthorized reports whether the API rejected the credentials or token.
func (e *Error) Unauthorized() bool {
	return e.StatusCode == http.StatusBadRequest ||
		e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden
}
