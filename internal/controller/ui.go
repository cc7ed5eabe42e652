// Package controller provides the output adapters of the fracture CLI.
package controller

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "fracture.dev/pkg/fracture/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeReport StartMode = iota
	ModeGenerate
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithReportMode renders static results and returns.
func WithReportMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeReport
	}
}

// WithGenerateMode tracks a generation run as units complete.
func WithGenerateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeGenerate
	}
}

func startConfig(options []StartOption) StartConfig {
	cfg := StartConfig{mode: ModeReport}
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// UI displays progress and results. Implementations can use different
// output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayCoverage(ctx context.Context, coverage m.CoverageSet) error
	DisplayRules(ctx context.Context, constraints []m.Constraint, issues []m.RuleIssue) error
	DisplayConcurrencyInfo(ctx context.Context, threads int, shardIndex int, shardCount int, units int)
	DisplayUnitStarted(ctx context.Context, unit m.Unit)
	DisplayUnitCompleted(ctx context.Context, report m.UnitReport)
	DisplaySummary(ctx context.Context, summary m.Summary)
	DisplayPatches(ctx context.Context, ps m.PatchSet, frameOffset int) error
	DisplayPairs(ctx context.Context, pairs []m.FieldPair) error
	DisplayReport(ctx context.Context, report m.Report, summary m.Summary) error
}

// NewUI picks the interactive TUI for terminals and SimpleUI otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
