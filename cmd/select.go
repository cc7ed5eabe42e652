package cmd

import (
	"github.com/spf13/cobra"
)

// selectCmd represents the select command.
var selectCmd = newSelectCmd()

func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "Select the schema elements covering every leaf field",
		Long: `Select a low-cost set of schema elements whose leaves cover every leaf
field of the schema. The selection is written to coverage.txt and
coverage.json in the output directory.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.Select(cmd.Context(), selectArgs())
		},
	}
}

func init() {
	rootCmd.AddCommand(selectCmd)
}
