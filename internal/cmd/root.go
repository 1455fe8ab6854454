// Package cmd defines the macrocam command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/config"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "macrocam",
	Short: "Photograph a meal, get its macros, track today's totals",
	Long: `macrocam is an interactive terminal client for meal macro tracking.

Sign in (or register) with an email and password, point it at a photo of a
meal and it asks the analysis service for calories, protein, carbs and fat.
Each result is saved under your account and today's totals are shown next
to it.

Run without a subcommand to start the client. Use "macrocam serve" to run
the analysis service itself.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:         runClient,
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.macrocam/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

// loadConfig merges the config file, .env and the environment, then applies
// command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger for cfg writing to out and installs it
// as the default.
func newLogger(cfg *config.Config, out log.Output) *log.Logger {
	logger := log.New(log.Config{
		Level:       log.ParseLevel(cfg.Logging.Level),
		Format:      log.ParseFormat(cfg.Logging.Format),
		Output:      out,
		ServiceName: "macrocam",
	})
	log.SetDefaultLogger(logger)
	return logger
}
