// Package tui renders the MacroCam client in the terminal: an auth screen
// while signed out and the capture screen while signed in.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/macrocam/internal/analysis"
	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/session"
	"github.com/felixgeelhaar/macrocam/internal/view"
)

// Auth signs the user in and out.
type Auth interface {
	SignInOrRegister(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// Capturer is the capture pipeline as seen by the UI.
type Capturer interface {
	Select(img analysis.Image) error
	Submit(ctx context.Context) (capture.Outcome, error)
	Snapshot() capture.Snapshot
	Reset()
}

// ImageLoader reads an image file chosen by path.
type ImageLoader func(path string) (analysis.Image, error)

// Model is the bubbletea model for the client.
type Model struct {
	ctx        context.Context
	auth       Auth
	capture    Capturer
	controller *view.Controller
	loadImage  ImageLoader

	form      *huh.Form
	lastEmail string
	signingIn bool

	pathInput textinput.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap

	width    int
	quitting bool

	styles Styles
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
	Card    lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2).
			MarginRight(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(10),
		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")), // Cyan
	}
}

type keyMap struct {
	Analyze key.Binding
	Refresh key.Binding
	SignOut key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Analyze, k.Refresh, k.SignOut, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Analyze: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "analyze")),
	Refresh: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh totals")),
	SignOut: key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "sign out")),
	Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

// Option configures a Model.
type Option func(*Model)

// WithImageLoader replaces analysis.LoadImage.
func WithImageLoader(fn ImageLoader) Option {
	return func(m *Model) {
		m.loadImage = fn
	}
}

// NewModel creates the model on the auth screen.
func NewModel(ctx context.Context, auth Auth, c Capturer, controller *view.Controller, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = "path/to/meal.jpg"
	input.Prompt = "Photo › "
	input.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		auth:       auth,
		capture:    c,
		controller: controller,
		loadImage:  analysis.LoadImage,
		pathInput:  input,
		spinner:    sp,
		help:       help.New(),
		keys:       defaultKeys,
		styles:     DefaultStyles(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.form = newAuthForm("")
	return m
}

func newAuthForm(email string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("email").
				Title("Email").
				Value(&email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New(errors.ErrCodeAuthCredentials, "email is required")
					}
					return nil
				}),
			huh.NewInput().
				Key("password").
				Title("Password").
				EchoMode(huh.EchoModePassword),
		).
			Title("Sign in").
			Description("New here? The same form creates your account."),
	).WithShowHelp(false)
}

// Messages

// SessionMsg carries a session state change.
type SessionMsg struct {
	State session.State
}

// SnapshotMsg reports a capture pipeline transition.
type SnapshotMsg struct {
	Snapshot capture.Snapshot
}

// ErrorMsg puts an error into the message slot.
type ErrorMsg struct {
	Err error
}

type credentialsMsg struct {
	email    string
	password string
}

type authDoneMsg struct {
	err error
}

type signOutDoneMsg struct {
	err error
}

type captureDoneMsg struct {
	outcome capture.Outcome
	err     error
}

type fetchDoneMsg struct {
	result view.FetchResult
}

// Init initializes the TUI model (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case SessionMsg:
		return m.handleSession(msg.State)

	case ErrorMsg:
		m.controller.SetMessage(errors.UserMessage(msg.Err))
		return m, nil

	case credentialsMsg:
		m.signingIn = true
		m.lastEmail = msg.email
		m.controller.ClearMessage()
		return m, tea.Batch(m.spinner.Tick, m.signIn(msg.email, msg.password))

	case authDoneMsg:
		m.signingIn = false
		if msg.err != nil {
			m.controller.SetMessage(errors.UserMessage(msg.err))
			m.form = newAuthForm(m.lastEmail)
			return m, m.form.Init()
		}
		// the session notification is delivered before the sign-in returns,
		// so still being signed out means the account awaits confirmation
		if m.controller.Screen() == view.ScreenAuth {
			m.controller.SetMessage("Account created; confirm your email, then sign in")
			m.form = newAuthForm(m.lastEmail)
			return m, m.form.Init()
		}
		return m, nil

	case signOutDoneMsg:
		if msg.err != nil {
			m.controller.SetMessage(errors.UserMessage(msg.err))
		}
		return m, nil

	case captureDoneMsg:
		ticket, ok := m.controller.HandleCapture(msg.outcome, msg.err)
		if !ok {
			return m, nil
		}
		return m, m.fetch(ticket)

	case fetchDoneMsg:
		m.controller.ApplyFetch(msg.result)
		return m, nil

	case SnapshotMsg:
		if msg.Snapshot.State.InFlight() {
			return m, m.spinner.Tick
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.controller.Screen() == view.ScreenAuth {
		return m.updateAuth(msg)
	}
	return m.updateCapture(msg)
}

func (m Model) busy() bool {
	return m.signingIn || m.capture.Snapshot().State.InFlight()
}

func (m Model) handleSession(st session.State) (tea.Model, tea.Cmd) {
	before := m.controller.Screen()
	ticket, fetch := m.controller.HandleSession(st)
	after := m.controller.Screen()

	var cmds []tea.Cmd
	if before != after {
		switch after {
		case view.ScreenAuth:
			m.capture.Reset()
			m.pathInput.Reset()
			m.pathInput.Blur()
			m.form = newAuthForm(m.lastEmail)
			cmds = append(cmds, m.form.Init())
		case view.ScreenCapture:
			m.signingIn = false
			cmds = append(cmds, m.pathInput.Focus())
		}
	}
	if fetch {
		cmds = append(cmds, m.fetch(ticket))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateAuth(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.signingIn {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
		if m.form.State == huh.StateCompleted {
			email, password := m.form.GetString("email"), m.form.GetString("password")
			return m, func() tea.Msg {
				return credentialsMsg{email: email, password: password}
			}
		}
	}
	return m, cmd
}

func (m Model) updateCapture(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, m.keys.SignOut):
			return m, m.signOut()

		case key.Matches(k, m.keys.Refresh):
			if ticket, ok := m.controller.NextFetch(); ok {
				return m, m.fetch(ticket)
			}
			return m, nil

		case key.Matches(k, m.keys.Analyze):
			if m.capture.Snapshot().State.InFlight() {
				return m, nil
			}
			path := strings.TrimSpace(m.pathInput.Value())
			if path != "" {
				// a new image discards the previous error
				m.controller.ClearMessage()
			}
			return m, tea.Batch(m.spinner.Tick, m.submit(path))
		}
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

// Commands

func (m Model) signIn(email, password string) tea.Cmd {
	return func() tea.Msg {
		return authDoneMsg{err: m.auth.SignInOrRegister(m.ctx, email, password)}
	}
}

func (m Model) signOut() tea.Cmd {
	return func() tea.Msg {
		return signOutDoneMsg{err: m.auth.SignOut(m.ctx)}
	}
}

func (m Model) fetch(t view.Ticket) tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{result: m.controller.Fetch(m.ctx, t)}
	}
}

// submit selects the image at path, or reuses the current selection when
// path is empty, and runs one capture.
func (m Model) submit(path string) tea.Cmd {
	return func() tea.Msg {
		if path != "" {
			img, err := m.loadImage(path)
			if err != nil {
				return captureDoneMsg{err: err}
			}
			if err := m.capture.Select(img); err != nil {
				return captureDoneMsg{err: err}
			}
		}
		out, err := m.capture.Submit(m.ctx)
		return captureDoneMsg{outcome: out, err: err}
	}
}
