// Package auth implements the local identity provider: sqlite user accounts
// with bcrypt password hashes and HS256 session tokens, a session file cache
// and ordered change notifications.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/session"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

const createUsers = `CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
)`

// LocalProvider implements session.Provider without a network identity service.
type LocalProvider struct {
	db       *sql.DB
	tokens   *TokenIssuer
	cache    *TokenCache
	notifier *Notifier
	logger   *log.Logger
	now      func() time.Time
	cost     int
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalLogger sets the provider logger.
func WithLocalLogger(l *log.Logger) LocalOption {
	return func(p *LocalProvider) {
		p.logger = l
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) LocalOption {
	return func(p *LocalProvider) {
		p.cost = cost
	}
}

// NewLocalProvider creates the users table if needed and returns a provider.
func NewLocalProvider(ctx context.Context, db *sql.DB, tokens *TokenIssuer, cache *TokenCache, opts ...LocalOption) (*LocalProvider, error) {
	if _, err := db.ExecContext(ctx, createUsers); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	p := &LocalProvider{
		db:       db,
		tokens:   tokens,
		cache:    cache,
		notifier: NewNotifier(),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger).With("component", "local_identity")
	return p, nil
}

// OnChange implements session.Provider.
func (p *LocalProvider) OnChange(fn func(session.Event)) func() {
	return p.notifier.Subscribe(fn)
}

// GetSession returns the cached session. An expired access token is renewed
// with the refresh token; a rejected refresh token clears the cache.
func (p *LocalProvider) GetSession(ctx context.Context) (*session.Session, error) {
	cached, err := p.cache.Load()
	if err != nil || cached == nil {
		return nil, err
	}

	if _, err := p.tokens.Validate(cached.AccessToken, KindAccess); err == nil {
		return cached, nil
	} else if !IsAuthError(err, ErrTokenExpired) {
		p.logger.WithError(err).Warn("discarding invalid cached session")
		return nil, p.cache.Clear()
	}

	refreshed, err := p.Refresh(ctx, cached.RefreshToken)
	if err != nil {
		p.logger.WithError(err).Info("cached session could not be refreshed")
		return nil, p.cache.Clear()
	}
	return refreshed, nil
}

// Refresh exchanges a refresh token for a new session and emits TOKEN_REFRESHED.
func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	claims, err := p.tokens.Validate(refreshToken, KindRefresh)
	if err != nil {
		return nil, WrapError(ErrRefreshFailed, "refresh token rejected", err, nil)
	}

	var exists int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, claims.Subject).Scan(&exists)
	if err != nil {
		return nil, WrapError(ErrRefreshFailed, "user no longer exists", err, map[string]interface{}{
			"user_id": claims.Subject,
		})
	}

	s, err := p.establish(claims.Subject, claims.Email)
	if err != nil {
		return nil, err
	}
	p.notifier.Emit(session.Event{Kind: session.EventTokenRefreshed, Session: s})
	return s, nil
}

// SignIn implements session.Provider.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	email = normalizeEmail(email)

	var id, hash string
	err := p.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(ErrInvalidCredentials, "Invalid login credentials", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, NewError(ErrInvalidCredentials, "Invalid login credentials", nil)
	}

	s, err := p.establish(id, email)
	if err != nil {
		return nil, err
	}
	p.logger.Info("signed in", "user_id", id)
	p.notifier.Emit(session.Event{Kind: session.EventSignedIn, Session: s})
	return s, nil
}

// SignUp implements session.Provider. Registration signs the new user in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*session.Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, NewError(ErrInvalidCredentials, "Unable to validate email address: invalid format", nil)
	}
	if len(password) < MinPasswordLength {
		return nil, NewError(ErrWeakPassword, fmt.Sprintf("Password should be at least %d characters", MinPasswordLength), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), p.now().UnixNano(),
	)
	if err != nil {
		if p.emailTaken(ctx, email) {
			return nil, NewError(ErrUserExists, "User already registered", nil)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s, err := p.establish(id, email)
	if err != nil {
		return nil, err
	}
	p.logger.Info("registered", "user_id", id)
	p.notifier.Emit(session.Event{Kind: session.EventSignedIn, Session: s})
	return s, nil
}

// SignOut implements session.Provider.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	if err := p.cache.Clear(); err != nil {
		return err
	}
	p.notifier.Emit(session.Event{Kind: session.EventSignedOut})
	return nil
}

func (p *LocalProvider) establish(userID, email string) (*session.Session, error) {
	pair, err := p.tokens.Issue(userID, email)
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       userID,
		Email:        email,
		ExpiresAt:    pair.ExpiresAt,
	}
	if err := p.cache.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *LocalProvider) emailTaken(ctx context.Context, email string) bool {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n)
	return err == nil && n > 0
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
