package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Print today's meals and macro totals",
	Long: `Print the meals recorded today (local time) for the signed-in user and
their summed calories, protein, carbs and fat.

Examples:
  macrocam today
  macrocam today --json`,
	Args: cobra.NoArgs,
	RunE: runToday,
}

var todayJSON bool

func init() {
	todayCmd.Flags().BoolVar(&todayJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(todayCmd)
}

// TodayReport is the JSON output of "macrocam today".
type TodayReport struct {
	Meals  []meal.Record    `json:"meals"`
	Totals meal.DailyTotals `json:"totals"`
}

func runToday(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := newClientStack(ctx, cfg, newLogger(cfg, log.OutputDiscard()))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.manager.Initialize(ctx); err != nil {
		return err
	}
	uid, ok := stack.manager.UserID()
	if !ok {
		return errors.New(errors.ErrCodeCaptureNoSession, "Not signed in").
			WithSuggestion("Run \"macrocam login\" first")
	}

	records, err := stack.gateway.FetchToday(ctx, uid)
	if err != nil {
		return err
	}
	report := TodayReport{Meals: records, Totals: meal.Aggregate(records)}
	if report.Meals == nil {
		report.Meals = []meal.Record{}
	}

	out := cmd.OutOrStdout()
	if todayJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCALORIES\tPROTEIN\tCARBS\tFAT")
	for _, r := range report.Meals {
		fmt.Fprintf(w, "%s\t%.0f\t%.1f\t%.1f\t%.1f\n",
			r.MealTime.Local().Format("15:04"), r.Calories, r.ProteinG, r.CarbsG, r.FatG)
	}
	t := report.Totals
	fmt.Fprintf(w, "TOTAL\t%.0f\t%.1f\t%.1f\t%.1f\n", t.Calories, t.Protein, t.Carbs, t.Fat)
	return w.Flush()
}
