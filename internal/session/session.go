// Package session owns the client's authentication state.
//
// The Manager is the only holder of the current Session. Other components read
// it through accessors or receive replacements through Subscribe.
package session

import (
	"context"
	"time"
)

// Session is proof of authenticated identity plus the user identifier.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero ExpiresAt never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// State is either Unauthenticated or Authenticated.
type State interface {
	isState()
}

// Unauthenticated is the state with no session.
type Unauthenticated struct{}

// Authenticated carries the current session.
type Authenticated struct {
	Session Session
}

func (Unauthenticated) isState() {}
func (Authenticated) isState()   {}

// StateOf maps an optional session onto a State.
func StateOf(s *Session) State {
	if s == nil {
		return Unauthenticated{}
	}
	return Authenticated{Session: *s}
}

// EventKind names an identity provider notification.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is one provider notification. Session is nil for sign-out.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the identity provider boundary.
//
// OnChange listeners must be called in emission order, one at a time.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	OnChange(fn func(Event)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}
