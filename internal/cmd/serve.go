package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/analyzer"
	"github.com/felixgeelhaar/macrocam/internal/config"
	"github.com/felixgeelhaar/macrocam/internal/health"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
	"github.com/felixgeelhaar/macrocam/internal/server"
	"github.com/felixgeelhaar/macrocam/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meal analysis service",
	Long: `Run the HTTP service the client sends meal photos to.

Endpoints:
  POST /analyze        - multipart field "image"; returns estimated macros
  GET  /health         - {"status":"ok"}
  /health/live         - Liveness probe
  /health/ready        - Readiness probe (OpenAI key configured)
  /health/startup      - Startup probe
  /healthz             - Backward-compatible readiness endpoint
  /metrics             - Prometheus metrics

Images are analyzed by an OpenAI vision model (OPENAI_API_KEY, OPENAI_MODEL).
Browsers may call the service from ALLOWED_ORIGINS. The server drains
connections on SIGINT or SIGTERM.

Example:
  # Listen on the default 0.0.0.0:8000
  macrocam serve

  # Custom address, at most 2 analyses per second
  macrocam serve --addr 127.0.0.1:9000 --rate-limit 2`,
	RunE: runServe,
}

var (
	serveAddr            string
	serveRateLimit       float64
	serveShutdownTimeout time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (default from MACROCAM_ADDR or 0.0.0.0:8000)")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", -1, "sustained /analyze requests per second, 0 for unlimited (default from config)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time to wait for connections to drain during shutdown")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveRateLimit >= 0 {
		cfg.Server.RateLimit = serveRateLimit
	}

	logger := newLogger(cfg, log.OutputStdout())

	srv, err := newAnalysisServer(cfg, logger)
	if err != nil {
		return err
	}

	info := version.GetInfo()
	fmt.Fprintf(cmd.OutOrStdout(), "MacroCam analysis service %s\n", info.Version)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on: http://%s\n", cfg.Server.Addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl+C to stop the server\n\n")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutdown requested")

		// ctx is already cancelled; the drain gets its own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout+5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	}
}

// newAnalysisServer assembles the OpenAI model, the result cache and the
// HTTP server with /analyze mounted behind the rate limiter.
func newAnalysisServer(cfg *config.Config, logger *log.Logger) (*server.Server, error) {
	reg, m := metrics.NewRegistry()

	model, err := analyzer.NewOpenAI(analyzer.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		return nil, err
	}

	svc := analyzer.NewService(model,
		analyzer.WithCache(analyzer.NewCache(cfg.Server.CacheSize)),
		analyzer.WithMetrics(m),
		analyzer.WithLogger(logger),
	)

	pm := health.NewProbeManager(version.GetInfo().Version,
		health.NewOpenAIChecker(cfg.OpenAI.APIKey, model.ModelName()),
	)

	srv := server.NewServer(pm, server.Config{
		Address:         cfg.Server.Addr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		ShutdownTimeout: serveShutdownTimeout,
	},
		server.WithMetrics(m, reg),
		server.WithLogger(logger),
	)
	srv.HandleLimited("/analyze", analyzer.NewHandler(svc, m, logger))
	return srv, nil
}
