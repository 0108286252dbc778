// Package cmd implements the therapyportal command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "therapyportal",
		Short:         "Adaptive difficulty engine for the therapy portal",
		Long:          "Recommends game difficulty adjustments from session metrics and groups patients into cohorts.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "config.yaml", "Path to the YAML config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newTrainCommand())
	root.AddCommand(newRecommendCommand())
	root.AddCommand(newCohortsCommand())
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}
