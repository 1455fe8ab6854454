package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/macrocam/internal/analysis"
	"github.com/felixgeelhaar/macrocam/internal/auth"
	"github.com/felixgeelhaar/macrocam/internal/config"
	"github.com/felixgeelhaar/macrocam/internal/health"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/meal/sqlite"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
	"github.com/felixgeelhaar/macrocam/internal/session"
	"github.com/felixgeelhaar/macrocam/internal/supabase"
)

// refreshInterval is how often the Supabase session is checked for renewal.
const refreshInterval = time.Minute

// clientStack is the client side of MacroCam assembled from configuration:
// the identity provider behind a session manager, the meal store behind a
// gateway and the analysis service client.
type clientStack struct {
	manager  *session.Manager
	gateway  *meal.Gateway
	analysis *analysis.Client
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	// storeCheck pings the configured meal store
	storeCheck health.PingFunc

	closers []func() error
}

func newClientStack(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *clientStack, err error) {
	reg, m := metrics.NewRegistry()
	s := &clientStack{
		analysis: analysis.NewClient(cfg.API.BaseURL, nil),
		metrics:  m,
		registry: reg,
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var db *sqlite.Store
	if cfg.Store == config.DriverSQLite || cfg.Identity == config.DriverLocal {
		db, err = sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
	}

	var sb *supabase.Client
	if cfg.Identity == config.DriverSupabase || cfg.Store == config.DriverSupabase {
		sb, err = supabase.New(supabase.Config{URL: cfg.Supabase.URL, AnonKey: cfg.Supabase.AnonKey})
		if err != nil {
			return nil, err
		}
	}

	cache := auth.NewTokenCache(cfg.SessionPath())

	var provider session.Provider
	switch cfg.Identity {
	case config.DriverSupabase:
		p := supabase.NewIdentityProvider(sb, cache, logger)
		refreshCtx, cancel := context.WithCancel(ctx)
		go p.AutoRefresh(refreshCtx, refreshInterval)
		s.closers = append(s.closers, func() error { cancel(); return nil })
		provider = p
	case config.DriverLocal:
		key, err := cfg.SigningKeyBytes()
		if err != nil {
			return nil, err
		}
		p, err := auth.NewLocalProvider(ctx, db.DB(), auth.NewTokenIssuer(key, "macrocam"), cache, auth.WithLocalLogger(logger))
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown identity driver %q", cfg.Identity)
	}

	s.manager = session.NewManager(provider,
		session.WithLogger(logger),
		session.WithAuthObserver(m.RecordAuth),
	)
	stop := s.manager.Start()
	s.closers = append(s.closers, func() error { stop(); return nil })

	var store meal.Store
	switch cfg.Store {
	case config.DriverSQLite:
		store = db
		s.storeCheck = func(ctx context.Context) error { return db.DB().PingContext(ctx) }
	case config.DriverSupabase:
		store = supabase.NewMealStore(sb, s.manager)
		s.storeCheck = func(ctx context.Context) error {
			_, err := sb.Database().From("meals").Select("id").Limit(1).Execute(ctx)
			return err
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store)
	}
	s.gateway = meal.NewGateway(store, meal.WithLogger(logger))

	return s, nil
}

// Close releases everything the stack opened, newest first.
func (s *clientStack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return stderrors.Join(errs...)
}
