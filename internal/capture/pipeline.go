// Package capture runs the single-slot image → analysis → persistence workflow.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/macrocam/internal/analysis"
	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
)

// State is the pipeline position.
type State int

const (
	// Idle has no image selected
	Idle State = iota
	// Ready has an image selected and nothing in flight
	Ready
	// Analyzing waits for the analysis service
	Analyzing
	// Persisting shows the result while the record is written
	Persisting
	// Settled finished a capture; the result is shown
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Analyzing:
		return "analyzing"
	case Persisting:
		return "persisting"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// InFlight reports whether a capture is running.
func (s State) InFlight() bool {
	return s == Analyzing || s == Persisting
}

// Analyzer turns image bytes into a macro estimate.
type Analyzer interface {
	Analyze(ctx context.Context, img analysis.Image) (meal.MacroEstimate, error)
}

// Writer persists a meal record.
type Writer interface {
	Insert(ctx context.Context, r meal.Record) error
}

// Identity reports the signed-in user.
type Identity interface {
	UserID() (string, bool)
}

// Snapshot is a read-only view of the pipeline.
type Snapshot struct {
	State     State
	HasImage  bool
	ImageName string

	// Last is the most recent successful estimate, nil before the first one.
	Last *meal.MacroEstimate

	// Err is the failure of the latest capture; the prior result is kept.
	Err error

	// Warning is a save failure after a successful analysis.
	Warning error
}

// Outcome describes one finished capture.
type Outcome struct {
	Estimate meal.MacroEstimate
	Record   meal.Record
	Saved    bool
	Warning  error
}

// Pipeline serializes captures: at most one runs at a time.
type Pipeline struct {
	analyzer Analyzer
	writer   Writer
	identity Identity
	now      func() time.Time
	observer func(Snapshot)
	metrics  *metrics.Metrics
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	image   *analysis.Image
	last    *meal.MacroEstimate
	err     error
	warning error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock that stamps meal_time.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithObserver is called with a snapshot after every transition.
func WithObserver(fn func(Snapshot)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithMetrics records capture outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates an Idle pipeline.
func New(analyzer Analyzer, writer Writer, identity Identity, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer: analyzer,
		writer:   writer,
		identity: identity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger).With("component", "capture")
	return p
}

// Snapshot returns the current pipeline view.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pipeline) snapshotLocked() Snapshot {
	s := Snapshot{
		State:   p.state,
		Last:    p.last,
		Err:     p.err,
		Warning: p.warning,
	}
	if p.image != nil {
		s.HasImage = true
		s.ImageName = p.image.Name
	}
	return s
}

// Select makes img the pending image and returns to Ready, discarding any
// pending error or warning. It is rejected while a capture is in flight.
func (p *Pipeline) Select(img analysis.Image) error {
	p.mu.Lock()
	if p.state.InFlight() {
		p.mu.Unlock()
		return errors.New(errors.ErrCodeCaptureInFlight, "A capture is already in progress")
	}
	p.image = &img
	p.state = Ready
	p.err = nil
	p.warning = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
	return nil
}

// Reset drops the selection, the last result and any messages.
// Used on sign-out; an in-flight capture finishes but cannot be reset.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	if p.state.InFlight() {
		p.mu.Unlock()
		return
	}
	p.state = Idle
	p.image = nil
	p.last = nil
	p.err = nil
	p.warning = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
}

// Submit runs one capture for the selected image.
//
// Without an image or while another capture runs, it returns an error and
// does nothing else. An analysis failure keeps the prior result and the
// selection, sets Err and returns to Ready. After a successful analysis the
// estimate is published before the record is written; a failed write keeps
// the estimate and is reported as Outcome.Warning.
func (p *Pipeline) Submit(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	if p.state.InFlight() {
		p.mu.Unlock()
		p.metrics.RecordCapture(metrics.CaptureRejected)
		return Outcome{}, errors.New(errors.ErrCodeCaptureInFlight, "A capture is already in progress")
	}
	if p.image == nil {
		p.mu.Unlock()
		p.metrics.RecordCapture(metrics.CaptureRejected)
		return Outcome{}, errors.New(errors.ErrCodeCaptureNoImage, "Select an image first")
	}
	if _, ok := p.identity.UserID(); !ok {
		p.mu.Unlock()
		p.metrics.RecordCapture(metrics.CaptureRejected)
		return Outcome{}, errors.New(errors.ErrCodeCaptureNoSession, "Sign in to capture meals")
	}
	img := *p.image
	p.state = Analyzing
	p.err = nil
	p.warning = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	started := p.now()
	est, err := p.analyzer.Analyze(ctx, img)
	if err != nil {
		p.mu.Lock()
		p.state = Ready
		p.err = err
		snap = p.snapshotLocked()
		p.mu.Unlock()
		p.notify(snap)

		p.metrics.RecordCapture(metrics.CaptureAnalysisFail)
		p.logger.WithError(err).Warn("analysis failed", "image", img.Name)
		return Outcome{}, err
	}

	p.mu.Lock()
	p.last = &est
	p.state = Persisting
	snap = p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	out := Outcome{Estimate: est}
	out.Record, out.Warning = p.persist(ctx, est)
	out.Saved = out.Warning == nil

	p.mu.Lock()
	p.state = Settled
	p.warning = out.Warning
	snap = p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	if out.Saved {
		p.metrics.RecordCapture(metrics.CaptureSaved)
		p.logger.Info("capture saved", "image", img.Name, "calories", est.Calories, "elapsed", p.now().Sub(started))
	} else {
		p.metrics.RecordCapture(metrics.CaptureSaveFailed)
		p.logger.WithError(out.Warning).Warn("capture analyzed but not saved", "image", img.Name)
	}
	return out, nil
}

// persist stamps the record with the user and time at persistence, not at capture.
func (p *Pipeline) persist(ctx context.Context, est meal.MacroEstimate) (meal.Record, error) {
	userID, ok := p.identity.UserID()
	if !ok {
		return meal.Record{}, errors.New(errors.ErrCodeCaptureNoSession, "Signed out before the meal could be saved")
	}

	record, err := meal.NewRecord(userID, est, p.now())
	if err != nil {
		return meal.Record{}, errors.NewStoreWriteError(err)
	}
	if err := p.writer.Insert(ctx, record); err != nil {
		if errors.CodeOf(err) != errors.ErrCodeStoreWrite {
			err = errors.NewStoreWriteError(err)
		}
		return record, err
	}
	return record, nil
}

func (p *Pipeline) notify(s Snapshot) {
	if p.observer != nil {
		p.observer(s)
	}
}
