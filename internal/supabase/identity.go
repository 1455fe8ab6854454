package supabase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/macrocam/internal/auth"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/session"
)

// refreshMargin renews sessions this long before the access token expires.
const refreshMargin = time.Minute

// IdentityProvider implements session.Provider on Supabase Auth.
// The session is cached on disk so it survives restarts.
type IdentityProvider struct {
	client   *Client
	cache    *auth.TokenCache
	notifier *auth.Notifier
	logger   *log.Logger
	now      func() time.Time

	// refreshMu keeps AutoRefresh and GetSession from spending the same refresh token twice.
	refreshMu sync.Mutex
}

// NewIdentityProvider creates a provider that caches its session in cache.
func NewIdentityProvider(client *Client, cache *auth.TokenCache, logger *log.Logger) *IdentityProvider {
	return &IdentityProvider{
		client:   client,
		cache:    cache,
		notifier: auth.NewNotifier(),
		logger:   log.OrDefault(logger).With("component", "supabase_identity"),
		now:      time.Now,
	}
}

// OnChange implements session.Provider.
func (p *IdentityProvider) OnChange(fn func(session.Event)) func() {
	return p.notifier.Subscribe(fn)
}

// GetSession returns the cached session, refreshing it when it is about to expire.
// A rejected refresh token clears the cache and reports no session.
func (p *IdentityProvider) GetSession(ctx context.Context) (*session.Session, error) {
	cached, err := p.cache.Load()
	if err != nil || cached == nil {
		return nil, err
	}
	if !cached.Expired(p.now().Add(refreshMargin)) {
		return cached, nil
	}

	s, err := p.refresh(ctx, cached)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			p.logger.Info("stored session rejected, signing out", "status", apiErr.StatusCode)
			return nil, p.cache.Clear()
		}
		return nil, err
	}
	return s, nil
}

// AutoRefresh renews the session before it expires until ctx is done.
// Renewals emit TOKEN_REFRESHED; a rejected refresh token emits SIGNED_OUT.
func (p *IdentityProvider) AutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshIfDue(ctx)
		}
	}
}

func (p *IdentityProvider) refreshIfDue(ctx context.Context) {
	cached, err := p.cache.Load()
	if err != nil || cached == nil || !cached.Expired(p.now().Add(refreshMargin)) {
		return
	}

	if _, err := p.refresh(ctx, cached); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			p.logger.Info("refresh token rejected, signing out", "status", apiErr.StatusCode)
			if clearErr := p.cache.Clear(); clearErr != nil {
				p.logger.LogError("failed to clear session cache", clearErr)
			}
			p.notifier.Emit(session.Event{Kind: session.EventSignedOut})
			return
		}
		p.logger.WithError(err).Warn("session refresh failed, will retry")
	}
}

func (p *IdentityProvider) refresh(ctx context.Context, cached *session.Session) (*session.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if current, err := p.cache.Load(); err == nil && current != nil && current.AccessToken != cached.AccessToken {
		return current, nil
	}

	resp, err := p.client.Auth().RefreshToken(ctx, cached.RefreshToken)
	if err != nil {
		return nil, err
	}
	s, err := p.toSession(resp)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Save(s); err != nil {
		return nil, err
	}

	p.logger.Debug("session refreshed", "user_id", s.UserID)
	p.notifier.Emit(session.Event{Kind: session.EventTokenRefreshed, Session: s})
	return s, nil
}

// SignIn implements session.Provider.
func (p *IdentityProvider) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	resp, err := p.client.Auth().SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.establish(resp)
}

// SignUp implements session.Provider. Projects that require email confirmation
// return no session; the user signs in after confirming.
func (p *IdentityProvider) SignUp(ctx context.Context, email, password string) (*session.Session, error) {
	resp, err := p.client.Auth().SignUp(ctx, SignUpRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		p.logger.Info("registration pending email confirmation", "email", email)
		return nil, nil
	}
	return p.establish(resp)
}

// SignOut revokes the session remotely when possible and always ends it locally.
func (p *IdentityProvider) SignOut(ctx context.Context) error {
	cached, err := p.cache.Load()
	if err == nil && cached != nil {
		if err := p.client.Auth().SignOut(ctx, cached.AccessToken); err != nil {
			p.logger.WithError(err).Warn("remote sign out failed")
		}
	}

	if err := p.cache.Clear(); err != nil {
		return err
	}
	p.notifier.Emit(session.Event{Kind: session.EventSignedOut})
	return nil
}

func (p *IdentityProvider) establish(resp *AuthSession) (*session.Session, error) {
	s, err := p.toSession(resp)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Save(s); err != nil {
		return nil, err
	}
	p.notifier.Emit(session.Event{Kind: session.EventSignedIn, Session: s})
	return s, nil
}

// toSession maps a token response. The user id and expiry fall back to the
// access token's claims when the response omits them.
func (p *IdentityProvider) toSession(resp *AuthSession) (*session.Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("auth response has no access token")
	}

	s := &session.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.User != nil {
		s.UserID = resp.User.ID
		s.Email = resp.User.Email
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if s.UserID == "" || s.ExpiresAt.IsZero() {
		claims, err := accessClaims(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		if s.UserID == "" {
			s.UserID = claims.Subject
		}
		if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("auth response has no user id")
	}
	return s, nil
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// accessClaims reads the claims without verifying the signature; only the
// project can verify its own tokens.
func accessClaims(token string) (*accessTokenClaims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &accessTokenClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	claims, ok := parsed.Claims.(*accessTokenClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected access token claims")
	}
	return claims, nil
}
