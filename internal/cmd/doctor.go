package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/health"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that MacroCam can reach its services",
	Long: `Run diagnostics against the configured services:

  • analysis service  GET <API base>/health
  • meal store        local database or Supabase meals table
  • openai            API key configured for "macrocam serve" (optional)

Examples:
  macrocam doctor
  macrocam doctor --format json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var (
	doctorFormat  string
	doctorTimeout time.Duration
)

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text", "output format: text or json")
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 5*time.Second, "timeout for each check")

	rootCmd.AddCommand(doctorCmd)
}

// DoctorReport is the outcome of every check.
type DoctorReport struct {
	Status string                    `json:"status"`
	Checks map[string]*health.Result `json:"checks"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, log.OutputDiscard())

	stack, err := newClientStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	mgr := health.NewManager(
		health.NewPingChecker("analysis", stack.analysis.BaseURL(), stack.analysis.Health),
		health.NewPingChecker("store", cfg.Store, stack.storeCheck),
		health.Optional(health.NewOpenAIChecker(cfg.OpenAI.APIKey, cfg.OpenAI.Model)),
	).WithTimeout(doctorTimeout)

	results := mgr.Check(ctx)
	report := DoctorReport{
		Status: mgr.OverallStatus(results).String(),
		Checks: results,
	}

	if err := writeDoctorReport(cmd, report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy.String() {
		return fmt.Errorf("doctor found unhealthy services")
	}
	return nil
}

func writeDoctorReport(cmd *cobra.Command, report DoctorReport) error {
	out := cmd.OutOrStdout()

	if doctorFormat == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := report.Checks[name]
		fmt.Fprintf(out, "%s %-10s %s\n", statusIcon(r.Status), name, r.Message)
	}
	fmt.Fprintf(out, "\nOverall: %s\n", report.Status)
	return nil
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusDegraded:
		return "⚠"
	default:
		return "✗"
	}
}
