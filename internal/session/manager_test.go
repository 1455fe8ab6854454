package session

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

func newTestManager(p Provider, opts ...Option) *Manager {
	return NewManager(p, append([]Option{WithLogger(log.Nop())}, opts...)...)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, Unauthenticated{}, StateOf(nil))
	assert.Equal(t, Authenticated{Session: *sessionFor(1)}, StateOf(sessionFor(1)))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Session{}.Expired(now))
	assert.False(t, Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Session{ExpiresAt: now}.Expired(now))
}

func TestLastNotificationWins(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 25; round++ {
		p := newFakeProvider()
		m := newTestManager(p)
		stop := m.Start()

		var last State = Unauthenticated{}
		for i := 0; i < rng.Intn(20)+1; i++ {
			var ev Event
			switch rng.Intn(3) {
			case 0:
				ev = Event{Kind: EventSignedOut}
				last = Unauthenticated{}
			case 1:
				ev = Event{Kind: EventSignedIn, Session: sessionFor(i)}
				last = Authenticated{Session: *sessionFor(i)}
			default:
				ev = Event{Kind: EventTokenRefreshed, Session: sessionFor(i + 100)}
				last = Authenticated{Session: *sessionFor(i + 100)}
			}
			p.emit(ev)
			require.Equal(t, last, m.State())
		}
		stop()
	}
}

func TestSignedOutIgnoresStaleSession(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)
	defer m.Start()()

	p.emit(Event{Kind: EventSignedIn, Session: sessionFor(1)})
	p.emit(Event{Kind: EventSignedOut, Session: sessionFor(1)})

	assert.Equal(t, Unauthenticated{}, m.State())
}

func TestSubscribeDeliversInOrderOnce(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)
	defer m.Start()()

	var got []State
	unsubscribe := m.Subscribe(func(s State) { got = append(got, s) })
	defer unsubscribe()

	p.emit(Event{Kind: EventSignedIn, Session: sessionFor(1)})
	p.emit(Event{Kind: EventTokenRefreshed, Session: sessionFor(2)})
	p.emit(Event{Kind: EventSignedOut})

	assert.Equal(t, []State{
		Authenticated{Session: *sessionFor(1)},
		Authenticated{Session: *sessionFor(2)},
		Unauthenticated{},
	}, got)
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)
	defer m.Start()()

	calls := 0
	unsubscribe := m.Subscribe(func(State) { calls++ })

	p.emit(Event{Kind: EventSignedIn, Session: sessionFor(1)})
	unsubscribe()
	unsubscribe()
	p.emit(Event{Kind: EventSignedOut})

	assert.Equal(t, 1, calls)
}

func TestStartStop(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)

	stop := m.Start()
	again := m.Start()
	assert.Equal(t, 1, p.listenerCount(), "Start should attach once")

	stop()
	again()
	assert.Equal(t, 0, p.listenerCount())

	p.emit(Event{Kind: EventSignedIn, Session: sessionFor(1)})
	assert.Equal(t, Unauthenticated{}, m.State(), "no updates after stop")
}

func TestInitialize(t *testing.T) {
	t.Run("restores stored session", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = sessionFor(7)
		m := newTestManager(p)

		var seen []State
		m.Subscribe(func(s State) { seen = append(seen, s) })

		require.NoError(t, m.Initialize(context.Background()))
		assert.Equal(t, Authenticated{Session: *sessionFor(7)}, m.State())
		assert.Len(t, seen, 1)

		id, ok := m.UserID()
		assert.True(t, ok)
		assert.Equal(t, "u7", id)
		assert.Equal(t, "t7", m.AccessToken())
	})

	t.Run("no stored session", func(t *testing.T) {
		p := newFakeProvider()
		m := newTestManager(p)

		require.NoError(t, m.Initialize(context.Background()))
		assert.Equal(t, Unauthenticated{}, m.State())
		_, ok := m.UserID()
		assert.False(t, ok)
		assert.Empty(t, m.AccessToken())
	})

	t.Run("idempotent", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = sessionFor(1)
		m := newTestManager(p)

		require.NoError(t, m.Initialize(context.Background()))
		require.NoError(t, m.Initialize(context.Background()))
		assert.Equal(t, 1, p.getCalls)
	})

	t.Run("provider failure", func(t *testing.T) {
		p := newFakeProvider()
		p.getErr = fmt.Errorf("keychain locked")
		m := newTestManager(p)

		err := m.Initialize(context.Background())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeAuthProvider, errors.CodeOf(err))
		assert.Equal(t, Unauthenticated{}, m.State())

		p.getErr = nil
		require.NoError(t, m.Initialize(context.Background()), "a failed initialize can be retried")
	})

	t.Run("notification during lookup wins", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = sessionFor(1)
		p.getGate = make(chan struct{})
		m := newTestManager(p)
		defer m.Start()()

		done := make(chan error)
		go func() { done <- m.Initialize(context.Background()) }()

		require.Eventually(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.getCalls == 1
		}, time.Second, time.Millisecond)

		p.emit(Event{Kind: EventSignedOut})
		close(p.getGate)
		require.NoError(t, <-done)

		assert.Equal(t, Unauthenticated{}, m.State())
	})
}

func TestSignInOrRegister(t *testing.T) {
	tests := []struct {
		name      string
		signInErr error
		signUpErr error
		wantCalls []string
		wantErr   string
		wantCode  errors.ErrorCode
	}{
		{
			name:      "sign in succeeds",
			wantCalls: []string{"signin"},
		},
		{
			name:      "sign in fails, registration succeeds",
			signInErr: fmt.Errorf("Invalid login credentials"),
			wantCalls: []string{"signin", "signup"},
		},
		{
			name:      "both fail",
			signInErr: fmt.Errorf("Invalid login credentials"),
			signUpErr: fmt.Errorf("User already registered"),
			wantCalls: []string{"signin", "signup"},
			wantErr:   "User already registered",
			wantCode:  errors.ErrCodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.signInErr = tt.signInErr
			p.signUpErr = tt.signUpErr

			var outcomes []string
			m := newTestManager(p, WithAuthObserver(func(o string) { outcomes = append(outcomes, o) }))
			defer m.Start()()

			err := m.SignInOrRegister(context.Background(), "a@b.c", "secret")
			assert.Equal(t, tt.wantCalls, p.calls)
			require.Len(t, outcomes, 1)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.IsType(t, Authenticated{}, m.State())
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.Equal(t, tt.wantErr, errors.UserMessage(err))
			assert.Equal(t, Unauthenticated{}, m.State())
			assert.Equal(t, "failed", outcomes[0])
		})
	}
}

func TestSignInOrRegisterRequiresCredentials(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)

	for _, c := range []struct{ email, password string }{{"", "x"}, {"  ", "x"}, {"a@b.c", ""}} {
		err := m.SignInOrRegister(context.Background(), c.email, c.password)
		assert.Equal(t, errors.ErrCodeAuthCredentials, errors.CodeOf(err))
	}
	assert.Empty(t, p.calls)
}

func TestSignOut(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(p)
	defer m.Start()()

	require.NoError(t, m.SignInOrRegister(context.Background(), "a@b.c", "pw"))
	require.IsType(t, Authenticated{}, m.State())

	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, Unauthenticated{}, m.State())
}
