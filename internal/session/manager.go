package session

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

// AuthObserver records sign-in attempt outcomes (signin, signup, failed).
type AuthObserver func(outcome string)

// Manager tracks the authentication state and reacts to provider notifications.
type Manager struct {
	provider Provider
	logger   *log.Logger
	observe  AuthObserver

	mu          sync.Mutex
	state       State
	version     uint64
	initialized bool
	stop        func()

	// deliverMu serializes listener calls so they observe provider order.
	deliverMu sync.Mutex
	listeners map[int]func(State)
	nextID    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithAuthObserver reports sign-in attempt outcomes.
func WithAuthObserver(fn AuthObserver) Option {
	return func(m *Manager) {
		m.observe = fn
	}
}

// NewManager creates a manager in the Unauthenticated state.
func NewManager(p Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:  p,
		state:     Unauthenticated{},
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).With("component", "session")
	return m
}

// Start attaches to provider notifications. The returned stop func detaches
// and may be called more than once.
func (m *Manager) Start() (stop func()) {
	m.mu.Lock()
	if m.stop == nil {
		unsubscribe := m.provider.OnChange(m.handleEvent)
		var once sync.Once
		m.stop = func() { once.Do(unsubscribe) }
	}
	stop = m.stop
	m.mu.Unlock()
	return stop
}

// Initialize loads the provider's stored session. Calls after the first
// successful one are no-ops. A notification that arrives while the lookup is
// in flight wins over the lookup result.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	seen := m.version
	m.mu.Unlock()

	s, err := m.provider.GetSession(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuthProvider, "could not restore session", err)
	}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	if m.version != seen {
		m.mu.Unlock()
		m.logger.Debug("stored session superseded by notification")
		return nil
	}
	next := StateOf(s)
	m.state = next
	m.version++
	m.mu.Unlock()

	m.deliver(next)
	return nil
}

func (m *Manager) handleEvent(ev Event) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	next := StateOf(ev.Session)
	if ev.Kind == EventSignedOut {
		next = Unauthenticated{}
	}

	m.mu.Lock()
	m.state = next
	m.version++
	m.mu.Unlock()

	m.logger.Debug("auth state changed", "event", string(ev.Kind))
	m.deliver(next)
}

// deliver must be called with deliverMu held.
func (m *Manager) deliver(s State) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		m.mu.Lock()
		fn, ok := m.listeners[id]
		m.mu.Unlock()
		if ok {
			fn(s)
		}
	}
}

// Subscribe registers fn for every state replacement.
// The returned func removes it and is safe to call more than once.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the signed-in user's id.
func (m *Manager) UserID() (string, bool) {
	if a, ok := m.State().(Authenticated); ok {
		return a.Session.UserID, true
	}
	return "", false
}

// AccessToken returns the current access token, or "" when signed out.
func (m *Manager) AccessToken() string {
	if a, ok := m.State().(Authenticated); ok {
		return a.Session.AccessToken
	}
	return ""
}

// SignInOrRegister tries sign-in and falls back to registration on any failure.
// An error is returned only when both fail; it carries the registration message.
// The state itself changes through the provider's notification.
func (m *Manager) SignInOrRegister(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errors.New(errors.ErrCodeAuthCredentials, "Email and password are required")
	}

	_, inErr := m.provider.SignIn(ctx, email, password)
	if inErr == nil {
		m.record("signin")
		m.logger.Info("signed in", "email", email)
		return nil
	}

	m.logger.Debug("sign in failed, trying registration", "error", inErr.Error())
	if _, upErr := m.provider.SignUp(ctx, email, password); upErr != nil {
		m.record("failed")
		authErr := errors.NewAuthFailedError(inErr, upErr)
		m.logger.WithError(authErr).Warn("sign in and registration failed", "email", email)
		return authErr
	}

	m.record("signup")
	m.logger.Info("registered", "email", email)
	return nil
}

// SignOut ends the session at the provider.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeAuthProvider, "Sign out failed", err)
	}
	return nil
}

func (m *Manager) record(outcome string) {
	if m.observe != nil {
		m.observe(outcome)
	}
}
