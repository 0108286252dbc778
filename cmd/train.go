package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the difficulty classifier and overwrite the model artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("samples") {
				a.trainer.Samples, _ = cmd.Flags().GetInt("samples")
			}
			if cmd.Flags().Changed("seed") {
				a.trainer.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("type") {
				a.trainer.ModelType, _ = cmd.Flags().GetString("type")
			}

			report, err := a.trainer.Train(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %s (%s) saved to %s\n", report.ModelID, report.ModelType, report.Path)
			fmt.Fprintf(out, "samples=%d accuracy=%.3f duration=%s\n", report.Samples, report.Accuracy, report.Duration.Round(1e6))
			for _, code := range []int{0, 1, 2} {
				fmt.Fprintf(out, "  class %d: %d\n", code, report.ClassCounts[code])
			}
			return nil
		},
	}
	cmd.Flags().Int("samples", 0, "Number of synthetic sessions (overrides models.samples)")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 draws from the clock (overrides models.seed)")
	cmd.Flags().String("type", "", "Model type: svm or decision_tree (overrides models.type)")
	return cmd
}
