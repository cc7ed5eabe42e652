// Package cmd provides the root command and CLI setup for fracture.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fracture.dev/pkg/fracture/internal/adapter"
	"fracture.dev/pkg/fracture/internal/controller"
	"fracture.dev/pkg/fracture/internal/domain"
	m "fracture.dev/pkg/fracture/internal/model"
)

var inputStore adapter.InputStore
var ruleStore adapter.RuleStore
var reportStore adapter.ReportStore
var payloadStore adapter.PayloadStore
var unitStreamer domain.UnitStreamer
var workflow domain.Workflow
var ui controller.UI

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

var schemaFlag string

var rulesFlag []string

var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	inputStore = adapter.NewLocalInputStore()
	ruleStore = adapter.NewLocalRuleStore()
	reportStore = adapter.NewLocalReportStore()
	payloadStore = adapter.NewLocalPayloadStore()
	unitStreamer = domain.NewUnitStreamer()
	workflow = domain.NewWorkflow(
		inputStore,
		ruleStore,
		reportStore,
		payloadStore,
		ui,
		unitStreamer,
	)
}

const rootLongDescription = `Fracture generates binary test payloads that violate the semantic
constraints of a message schema. It selects a cheap set of schema elements
covering every leaf field, gates constraint rules against the schema,
synthesizes violating instances from baseline messages, re-encodes them and
emits byte patches ready for a replay harness.`

const generateLongDescription = `Generate constraint-violating payloads.

Every baseline is paired with every accepted constraint whose subject lives
in the baseline's message type. Each pair is one unit of work; units are
sharded round-robin with --shard INDEX/TOTAL and run --parallel at a time.
Accepted candidates are written to <output>/payloads.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fracture",
		Short: "Constraint-violating binary payload generator",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

// newRootCmd builds a root command with its persistent flags, without
// subcommands.
func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for coverage, reports and payloads",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringVar(&schemaFlag, schemaFlagName, viper.GetString(schemaFlagName), "message schema file (yaml or json)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(schemaFlagName), schemaFlagName)

	cmd.PersistentFlags().StringArrayVarP(&rulesFlag, rulesFlagName, "r", viper.GetStringSlice(rulesFlagName), "constraint rule file or directory (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(rulesFlagName), rulesFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	configureCoverageFlags(cmd.PersistentFlags())
	configurePayloadFlags(cmd.PersistentFlags())
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}

// selectArgs reads the coverage settings shared by select, pairs and
// generate.
func selectArgs() domain.SelectArgs {
	return domain.SelectArgs{
		Schema:       m.Path(viper.GetString(schemaFlagName)),
		Costs:        m.Path(viper.GetString(costsFlagName)),
		CostMode:     viper.GetString(costModeKey),
		MinFields:    viper.GetInt(minFieldsKey),
		MaxFields:    viper.GetInt(maxFieldsKey),
		SearchBounds: viper.GetBool(searchBoundsKey),
		BoundsStep:   viper.GetInt(boundsStepKey),
		Output:       m.Path(viper.GetString(outputFlagName)),
	}
}

// Coverage, gate and payload flags are shared by several commands. They live on
// the root so each config key is bound to exactly one flag.
func configureCoverageFlags(flags *pflag.FlagSet) {
	flags.String(costsFlagName, viper.GetString(costsFlagName), "cost table file (yaml) used with --cost-mode table")
	bindFlagToConfig(flags.Lookup(costsFlagName), costsFlagName)

	flags.String(costModeFlagName, viper.GetString(costModeKey), "element cost: occurrence, order or table")
	bindFlagToConfig(flags.Lookup(costModeFlagName), costModeKey)

	flags.Int(minFieldsFlagName, viper.GetInt(minFieldsKey), "skip elements covering fewer leaves (0: no bound)")
	bindFlagToConfig(flags.Lookup(minFieldsFlagName), minFieldsKey)

	flags.Int(maxFieldsFlagName, viper.GetInt(maxFieldsKey), "skip elements covering more leaves (0: no bound)")
	bindFlagToConfig(flags.Lookup(maxFieldsFlagName), maxFieldsKey)

	flags.Bool(searchBoundsFlagName, viper.GetBool(searchBoundsKey), "search min/max field bounds and select with the best pair covering every leaf")
	bindFlagToConfig(flags.Lookup(searchBoundsFlagName), searchBoundsKey)

	flags.Int(boundsStepFlagName, viper.GetInt(boundsStepKey), "step between maximum bounds tried by --search-bounds (0: 1)")
	bindFlagToConfig(flags.Lookup(boundsStepFlagName), boundsStepKey)

	flags.String(minConfidenceFlagName, viper.GetString(minConfidenceKey), "lowest rule confidence admitted (HIGH, MEDIUM, LOW, VERY_LOW)")
	bindFlagToConfig(flags.Lookup(minConfidenceFlagName), minConfidenceKey)
}

func configurePayloadFlags(flags *pflag.FlagSet) {
	flags.Int(frameOffsetFlagName, viper.GetInt(frameOffsetKey), "offset of the message inside the captured frame")
	bindFlagToConfig(flags.Lookup(frameOffsetFlagName), frameOffsetKey)

	flags.Bool(allowLengthChangeFlagName, viper.GetBool(allowLengthChangeKey), "accept candidates whose encoding changes length")
	bindFlagToConfig(flags.Lookup(allowLengthChangeFlagName), allowLengthChangeKey)
}
