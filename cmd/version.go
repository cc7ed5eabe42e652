package cmd

import (
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"fracture.dev/pkg/fracture/internal/adapter"
	m "fracture.dev/pkg/fracture/internal/model"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long: `Displays the build version, the Go version used to build fracture, and the
predicate kinds and payload formats this build supports.`,
		Run: func(cmd *cobra.Command, _ []string) {
			version, goVersion := "unknown", "unknown"
			if info, ok := debug.ReadBuildInfo(); ok {
				goVersion = info.GoVersion
				if info.Main.Version != "" {
					version = info.Main.Version
				}
			}

			kinds := make([]string, 0, len(m.PredicateKinds))
			for _, k := range m.PredicateKinds {
				kinds = append(kinds, string(k))
			}

			cmd.Println("fracture version\t", version)
			cmd.Println("go version\t", goVersion)
			cmd.Println("predicates\t", strings.Join(kinds, ", "))
			cmd.Println("payload formats\t", strings.Join(adapter.PayloadFormats, ", "))
		},
	}
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
