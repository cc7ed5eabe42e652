package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

var applyOutputFlag string

// applyCmd represents the apply command.
var applyCmd = newApplyCmd()

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <base> <patches>",
		Short: "Apply a patch file to an encoded message",
		Long: `Apply an offset file or a .cbor payload document to an encoded message
and write the patched message to --out (hex when the name ends in .hex).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Apply(cmd.Context(), domain.ApplyArgs{
				Base:        m.Path(args[0]),
				Patches:     m.Path(args[1]),
				FrameOffset: viper.GetInt(frameOffsetKey),
				Output:      m.Path(applyOutputFlag),
			})
		},
	}

	cmd.Flags().StringVar(&applyOutputFlag, "out", "", "write the patched message to this path")

	return cmd
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
