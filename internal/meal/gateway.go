package meal

import (
	"context"
	"time"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

// Gateway reads and writes the current user's meal records through a Store.
type Gateway struct {
	store  Store
	now    func() time.Time
	logger *log.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithClock overrides the clock used to compute today's bounds.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *log.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway creates a gateway over store.
func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = log.OrDefault(g.logger).With("component", "meal_gateway")
	return g
}

// Now returns the gateway clock reading.
func (g *Gateway) Now() time.Time {
	return g.now()
}

// FetchToday returns userID's records within today's local bounds, newest first.
// Bounds are recomputed on every call. Malformed rows are dropped.
func (g *Gateway) FetchToday(ctx context.Context, userID string) ([]Record, error) {
	start, end := DayBounds(g.now())

	rows, err := g.store.Query(ctx, Query{UserID: userID, From: start, To: end})
	if err != nil {
		return nil, errors.NewStoreReadError(err)
	}

	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			g.logger.WithError(err).Warn("dropping malformed meal record", "record_id", r.ID)
			continue
		}
		if r.UserID != userID || r.MealTime.Before(start) || r.MealTime.After(end) {
			g.logger.Warn("dropping meal record outside query window", "record_id", r.ID)
			continue
		}
		records = append(records, r)
	}
	SortNewestFirst(records)

	g.logger.Debug("fetched today's meals", "user_id", userID, "count", len(records))
	return records, nil
}

// Insert validates and writes one record.
func (g *Gateway) Insert(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := g.store.Insert(ctx, r); err != nil {
		return errors.NewStoreWriteError(err)
	}
	g.logger.Info("meal saved", "user_id", r.UserID, "calories", r.Calories)
	return nil
}
