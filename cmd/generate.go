package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

var generateShardFlag string

// generateCmd represents the generate command.
var generateCmd = newGenerateCmd()

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [baselines...]",
		Short: "Generate constraint-violating payloads",
		Long:  generateLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			shardIndex, totalShards := parseShardFlag(generateShardFlag)

			return workflow.Generate(ctx, domain.GenerateArgs{
				SelectArgs:        selectArgs(),
				Rules:             parsePaths(viper.GetStringSlice(rulesFlagName)),
				Baselines:         parsePaths(args),
				MessageType:       viper.GetString(typeFlagName),
				MinConfidence:     m.Confidence(viper.GetString(minConfidenceKey)),
				Threads:           viper.GetInt(parallelKey),
				ShardIndex:        shardIndex,
				TotalShardCount:   totalShards,
				MaxCandidates:     viper.GetInt(maxCandidatesKey),
				AllowLengthChange: viper.GetBool(allowLengthChangeKey),
				Payload:           payloadOptions(),
			})
		},
	}

	configureGenerateFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func configureGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().IntP(parallelFlagName, "p", viper.GetInt(parallelKey), "number of units generated in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelKey)

	cmd.Flags().StringVarP(&generateShardFlag, shardFlagName, "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")

	cmd.Flags().StringP(typeFlagName, "t", "", "message type of binary and hex baselines")
	bindFlagToConfig(cmd.Flags().Lookup(typeFlagName), typeFlagName)

	cmd.Flags().Int(maxCandidatesFlagName, viper.GetInt(maxCandidatesKey), "candidates synthesized per unit")
	bindFlagToConfig(cmd.Flags().Lookup(maxCandidatesFlagName), maxCandidatesKey)

	cmd.Flags().String(pluginFilterFlagName, viper.GetString(pluginFilterKey), "filter name of the generated replay plugin")
	bindFlagToConfig(cmd.Flags().Lookup(pluginFilterFlagName), pluginFilterKey)

	cmd.Flags().Int(pluginHeaderFlagName, viper.GetInt(pluginHeaderKey), "header length subtracted from plugin buffer offsets")
	bindFlagToConfig(cmd.Flags().Lookup(pluginHeaderFlagName), pluginHeaderKey)

	cmd.Flags().StringSlice(formatsFlagName, viper.GetStringSlice(formatsKey), "payload formats to write: offsets, cbor, cpp, diff (default all)")
	bindFlagToConfig(cmd.Flags().Lookup(formatsFlagName), formatsKey)
}

func payloadOptions() m.PayloadOptions {
	return m.PayloadOptions{
		Formats:            viper.GetStringSlice(formatsKey),
		FrameOffset:        viper.GetInt(frameOffsetKey),
		PluginFilter:       viper.GetString(pluginFilterKey),
		PluginHeaderOffset: viper.GetInt(pluginHeaderKey),
	}
}

func parseShardFlag(shard string) (int, int) {
	if shard == "" {
		return 0, 1
	}

	var index, total int

	_, err := fmt.Sscanf(shard, "%d/%d", &index, &total)
	if err != nil || total <= 0 || index < 0 || index >= total {
		return 0, 1
	}

	return index, total
}
