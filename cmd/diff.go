package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

var diffOutputFlag string

// diffCmd represents the diff command.
var diffCmd = newDiffCmd()

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <base> <mutated>",
		Short: "Compute the byte patches between two encoded messages",
		Long: `Compare two encoded messages (.hex or .bin) and print the bytes that
differ as an offset file. With --patch-file the offset file is also written
to disk.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Diff(cmd.Context(), domain.DiffArgs{
				Base:              m.Path(args[0]),
				Mutated:           m.Path(args[1]),
				AllowLengthChange: viper.GetBool(allowLengthChangeKey),
				FrameOffset:       viper.GetInt(frameOffsetKey),
				Output:            m.Path(diffOutputFlag),
			})
		},
	}

	cmd.Flags().StringVar(&diffOutputFlag, "patch-file", "", "write the offset file to this path")

	return cmd
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
