package cmd

import (
	"github.com/spf13/cobra"

	"fracture.dev/pkg/fracture/internal/domain"
)

// pairsCmd represents the pairs command.
var pairsCmd = newPairsCmd()

func newPairsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "Export field pairs for rule synthesis",
		Long: `List the leaf field pairs inside each selected element and the
identifier fields shared between elements, written to pairs.json.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.Pairs(cmd.Context(), domain.PairsArgs{SelectArgs: selectArgs()})
		},
	}
}

func init() {
	rootCmd.AddCommand(pairsCmd)
}
