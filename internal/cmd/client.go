package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
	"github.com/felixgeelhaar/macrocam/internal/tui"
	"github.com/felixgeelhaar/macrocam/internal/view"
)

func runClient(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !tui.IsInteractive() {
		return fmt.Errorf("the macrocam client needs a terminal; use \"macrocam today\" for scripted access")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// the client draws on the terminal, so logs go to a file
	out, err := log.OutputFile(cfg.Logging.File)
	if err != nil {
		return err
	}
	defer out.Close()
	logger := newLogger(cfg, out)

	stack, err := newClientStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if cfg.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(cfg.MetricsAddr, stack, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	controller := view.NewController(stack.gateway,
		view.WithMetrics(stack.metrics),
		view.WithLogger(logger),
	)
	app := tui.NewApp(stack.manager, controller, tui.WithAppLogger(logger))

	pipeline := capture.New(stack.analysis, stack.gateway, stack.manager,
		capture.WithObserver(app.ObserveCapture),
		capture.WithClock(stack.gateway.Now),
		capture.WithMetrics(stack.metrics),
		capture.WithLogger(logger),
	)

	logger.Info("client starting", "identity", cfg.Identity, "store", cfg.Store, "api_base", stack.analysis.BaseURL())
	return app.Run(ctx, pipeline)
}

// serveMetrics exposes the client registry on addr until the returned stop
// function is called.
func serveMetrics(addr string, stack *clientStack, logger *log.Logger) (stop func(), err error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(stack.registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()
	logger.Info("client metrics listening", "addr", l.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
