package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge sharded runs into a single directory",
		Long:  "Merge reports, test cases and payloads from shard_* subdirectories into the reports directory.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			reportsPath := m.Path(viper.GetString(outputFlagName))
			return workflow.Merge(cmd.Context(), domain.MergeArgs{Reports: reportsPath})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
