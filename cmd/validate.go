package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

// validateCmd represents the validate command.
var validateCmd = newValidateCmd()

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rule files...]",
		Short: "Check constraint rules against the schema",
		Long: `Run constraint rules through the ingestion gate without generating
payloads. Accepted constraints and refused rules are written to
constraints.json. Rule files given as arguments are added to --rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := parsePaths(viper.GetStringSlice(rulesFlagName))
			rules = append(rules, parsePaths(args)...)

			return workflow.Validate(cmd.Context(), domain.ValidateArgs{
				Schema:        m.Path(viper.GetString(schemaFlagName)),
				Rules:         rules,
				MinConfidence: m.Confidence(viper.GetString(minConfidenceKey)),
				Output:        m.Path(viper.GetString(outputFlagName)),
			})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
