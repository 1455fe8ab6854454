package tui

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/session"
	"github.com/felixgeelhaar/macrocam/internal/view"
)

type fakeSessions struct {
	fakeAuth

	mu       sync.Mutex
	subs     []func(session.State)
	restored session.State
}

func (s *fakeSessions) Initialize(ctx context.Context) error {
	s.mu.Lock()
	subs := append([]func(session.State){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(s.restored)
	}
	return nil
}

func (s *fakeSessions) Subscribe(fn func(session.State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = nil
	}
}

func (s *fakeSessions) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAppRunRestoresSession(t *testing.T) {
	sessions := &fakeSessions{
		restored: session.Authenticated{Session: session.Session{UserID: "u1"}},
	}
	fetcher := &stubFetcher{}
	controller := view.NewController(fetcher, view.WithLogger(log.Nop()))
	app := NewApp(sessions, controller,
		WithAppLogger(log.Nop()),
		WithProgramOptions(tea.WithInput(nil), tea.WithOutput(io.Discard)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, &fakeCapturer{}) }()

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, view.ScreenCapture, controller.Screen())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, sessions.subscribers())
}

func TestObserveCaptureWithoutProgram(t *testing.T) {
	app := NewApp(&fakeSessions{}, view.NewController(&stubFetcher{}))

	assert.NotPanics(t, func() {
		app.ObserveCapture(capture.Snapshot{State: capture.Analyzing})
	})
}
