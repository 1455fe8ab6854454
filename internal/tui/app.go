package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/session"
	"github.com/felixgeelhaar/macrocam/internal/view"
)

// SessionSource is the session manager as seen by the client.
type SessionSource interface {
	Auth
	Initialize(ctx context.Context) error
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// App bridges session and capture notifications onto a running tea.Program.
type App struct {
	sessions   SessionSource
	controller *view.Controller
	opts       []Option
	programOpt []tea.ProgramOption
	logger     *log.Logger

	mu      sync.Mutex
	program *tea.Program
}

// AppOption configures an App.
type AppOption func(*App)

// WithModelOptions passes options through to NewModel.
func WithModelOptions(opts ...Option) AppOption {
	return func(a *App) {
		a.opts = append(a.opts, opts...)
	}
}

// WithProgramOptions adds tea.Program options, replacing the alt-screen default.
func WithProgramOptions(opts ...tea.ProgramOption) AppOption {
	return func(a *App) {
		a.programOpt = opts
	}
}

// WithAppLogger sets the logger.
func WithAppLogger(l *log.Logger) AppOption {
	return func(a *App) {
		a.logger = l
	}
}

// NewApp creates an App. ObserveCapture must be installed as the capture
// pipeline's observer before Run.
func NewApp(sessions SessionSource, controller *view.Controller, opts ...AppOption) *App {
	a := &App{
		sessions:   sessions,
		controller: controller,
		programOpt: []tea.ProgramOption{tea.WithAltScreen()},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ObserveCapture forwards pipeline snapshots to the program. The pipeline
// calls observers while Update may be running, so delivery is asynchronous.
func (a *App) ObserveCapture(s capture.Snapshot) {
	a.send(SnapshotMsg{Snapshot: s})
}

func (a *App) send(msg tea.Msg) {
	a.mu.Lock()
	p := a.program
	a.mu.Unlock()
	if p == nil {
		return
	}
	go p.Send(msg)
}

// Run shows the client until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context, c Capturer) error {
	model := NewModel(ctx, a.sessions, c, a.controller, a.opts...)
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, a.programOpt...)
	p := tea.NewProgram(model, opts...)

	a.mu.Lock()
	a.program = p
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.program = nil
		a.mu.Unlock()
	}()

	unsubscribe := a.sessions.Subscribe(func(st session.State) {
		p.Send(SessionMsg{State: st})
	})
	defer unsubscribe()

	go func() {
		if err := a.sessions.Initialize(ctx); err != nil {
			a.logger.Warn("session restore failed", "error", err)
			p.Send(ErrorMsg{Err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
