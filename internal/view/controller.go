// Package view decides which screen to show and owns the today record set
// displayed on the capture screen. It does no rendering.
package view

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
	"github.com/felixgeelhaar/macrocam/internal/session"
)

// Screen is one of the two top-level screens.
type Screen int

const (
	ScreenAuth Screen = iota
	ScreenCapture
)

func (s Screen) String() string {
	if s == ScreenCapture {
		return "capture"
	}
	return "auth"
}

// ScreenFor maps a session state to the screen that renders it.
func ScreenFor(st session.State) Screen {
	if _, ok := st.(session.Authenticated); ok {
		return ScreenCapture
	}
	return ScreenAuth
}

// Fetcher loads the current user's meals for today.
type Fetcher interface {
	FetchToday(ctx context.Context, userID string) ([]meal.Record, error)
}

// Ticket identifies one fetch. Only the latest issued ticket may be applied.
type Ticket struct {
	Seq    uint64
	UserID string
}

// FetchResult is the completion of a Ticket.
type FetchResult struct {
	Ticket  Ticket
	Records []meal.Record
	Err     error
}

// Controller tracks the session-derived screen, the today records and the
// single message slot.
type Controller struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *log.Logger

	mu      sync.Mutex
	state   session.State
	userID  string
	seq     uint64
	records []meal.Record
	totals  meal.DailyTotals
	message string
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics counts fetch results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController starts on the auth screen.
func NewController(f Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher: f,
		state:   session.Unauthenticated{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "view")
	return c
}

// Screen returns the screen for the last handled session state.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ScreenFor(c.state)
}

// State returns the last handled session state.
func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleSession applies a session state. Entering Authenticated, or switching
// user, issues a fetch ticket. Signing out drops the records and invalidates
// every outstanding ticket.
func (c *Controller) HandleSession(st session.State) (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.userID
	c.state = st

	auth, ok := st.(session.Authenticated)
	if !ok {
		c.userID = ""
		c.seq++
		c.records = nil
		c.totals = meal.DailyTotals{}
		return Ticket{}, false
	}

	c.userID = auth.Session.UserID
	if prev == c.userID {
		// token refresh or user update for the same user
		return Ticket{}, false
	}
	if prev != "" {
		c.records = nil
		c.totals = meal.DailyTotals{}
	}
	return c.issueLocked(), true
}

// NextFetch issues a ticket for the signed-in user.
func (c *Controller) NextFetch() (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" {
		return Ticket{}, false
	}
	return c.issueLocked(), true
}

func (c *Controller) issueLocked() Ticket {
	c.seq++
	return Ticket{Seq: c.seq, UserID: c.userID}
}

// Fetch runs the query for t. It does not touch controller state.
func (c *Controller) Fetch(ctx context.Context, t Ticket) FetchResult {
	records, err := c.fetcher.FetchToday(ctx, t.UserID)
	return FetchResult{Ticket: t, Records: records, Err: err}
}

// ApplyFetch installs r if its ticket is still the latest issued and reports
// whether it did. A failed fetch shows empty totals and sets the message.
func (c *Controller) ApplyFetch(r FetchResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Ticket.Seq != c.seq || r.Ticket.UserID != c.userID {
		c.metrics.RecordFetch(metrics.FetchStale)
		c.logger.Debug("discarding stale fetch", "seq", r.Ticket.Seq, "latest", c.seq)
		return false
	}

	if r.Err != nil {
		c.records = nil
		c.totals = meal.DailyTotals{}
		c.message = errors.UserMessage(r.Err)
		c.metrics.RecordFetch(metrics.FetchFailed)
		c.logger.WithError(r.Err).Warn("today fetch failed")
		return true
	}

	c.records = r.Records
	c.totals = meal.Aggregate(r.Records)
	c.metrics.RecordFetch(metrics.FetchApplied)
	return true
}

// Refresh fetches and applies t in one call.
func (c *Controller) Refresh(ctx context.Context, t Ticket) bool {
	return c.ApplyFetch(c.Fetch(ctx, t))
}

// HandleCapture mirrors a finished capture into the message slot. A saved
// meal issues a fetch ticket.
func (c *Controller) HandleCapture(out capture.Outcome, err error) (Ticket, bool) {
	switch {
	case err != nil:
		c.SetMessage(errors.UserMessage(err))
		return Ticket{}, false
	case out.Warning != nil:
		c.SetMessage(errors.UserMessage(out.Warning))
		return Ticket{}, false
	}

	c.ClearMessage()
	if !out.Saved {
		return Ticket{}, false
	}
	return c.NextFetch()
}

// Totals returns the aggregate of the displayed records.
func (c *Controller) Totals() meal.DailyTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// Records returns a copy of the displayed records, newest first.
func (c *Controller) Records() []meal.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]meal.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Message returns the message slot, "" when empty.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// SetMessage replaces the message slot.
func (c *Controller) SetMessage(msg string) {
	c.mu.Lock()
	c.message = msg
	c.mu.Unlock()
}

// ClearMessage empties the message slot.
func (c *Controller) ClearMessage() {
	c.SetMessage("")
}
