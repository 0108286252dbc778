package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRecommendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend ACCURACY AVG_TIME_MS",
		Short: "Print the difficulty recommendation for one session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accuracy, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("accuracy: %w", err)
			}
			avgTime, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("avg_time: %w", err)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			rec, err := svc.Recommend(cmd.Context(), accuracy, avgTime)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s (confidence %.2f)\n", rec.Code, rec.Text, rec.Confidence)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the full recommendation as JSON")
	return cmd
}
