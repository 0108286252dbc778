package cmd

import (
	"encoding/json"
	"time"

	"therapyportal/cohort"

	"github.com/spf13/cobra"
)

func newCohortsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohorts",
		Short: "Cluster patients by their recent session metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			days := a.cfg.Cohorts.LookbackDays
			if cmd.Flags().Changed("days") {
				days, _ = cmd.Flags().GetInt("days")
			}
			reporter := &cohort.Reporter{Source: a.store, Logger: a.logger.Named("cohort")}
			report, err := reporter.Build(cmd.Context(), time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().Int("days", 0, "Look-back window in days (overrides cohorts.lookback_days)")
	return cmd
}
