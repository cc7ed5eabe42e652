package controller

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "fracture.dev/pkg/fracture/internal/model"
)

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(_ context.Context) {}

// DisplayCoverage prints the selected elements.
func (s *SimpleUI) DisplayCoverage(ctx context.Context, coverage m.CoverageSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderCoverageTable(coverage))

	if b := coverage.Bounds; b != nil {
		s.printf("Field bounds %d..%d (score %.2f, %d pairs)\n", b.MinFields, b.MaxFields, b.Score, b.Pairs)
	}

	return nil
}

// DisplayRules prints the gated constraints and the refused rules.
func (s *SimpleUI) DisplayRules(ctx context.Context, constraints []m.Constraint, issues []m.RuleIssue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderConstraintTable(constraints))

	if len(issues) > 0 {
		s.printf("\n%s", renderIssueTable(issues))
	}

	s.printf("Accepted %d rule(s), rejected %d\n", len(constraints), len(issues))

	return nil
}

// DisplayConcurrencyInfo shows concurrency settings.
func (s *SimpleUI) DisplayConcurrencyInfo(ctx context.Context, threads int, shardIndex int, shardCount int, units int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Running %d unit(s) with %d worker(s) (Shard %d/%d)\n", units, threads, shardIndex, shardCount)
}

// DisplayUnitStarted shows the unit being worked on.
func (s *SimpleUI) DisplayUnitStarted(ctx context.Context, unit m.Unit) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Starting unit %s (%s)\n", unit.ID, unit.Constraint.Kind)
}

// DisplayUnitCompleted shows a finished unit.
func (s *SimpleUI) DisplayUnitCompleted(ctx context.Context, report m.UnitReport) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Completed unit %s -> %s (%d accepted, %d rejected)\n", report.UnitID, report.Status, report.Accepted, report.Rejected)

	if report.Error != "" {
		s.printf("  error: %s\n", report.Error)
	}
}

// DisplaySummary prints the run summary.
func (s *SimpleUI) DisplaySummary(ctx context.Context, summary m.Summary) {
	if ctx.Err() != nil {
		return
	}

	s.printf("%s\n", summaryLine(summary))
}

// DisplayPatches prints a patch set in offset file form.
func (s *SimpleUI) DisplayPatches(ctx context.Context, ps m.PatchSet, frameOffset int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderPatches(ps, frameOffset))

	return nil
}

// DisplayPairs prints the exported field pairs.
func (s *SimpleUI) DisplayPairs(ctx context.Context, pairs []m.FieldPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderPairTable(pairs))

	return nil
}

// DisplayReport prints a saved run report.
func (s *SimpleUI) DisplayReport(ctx context.Context, report m.Report, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("Run %s (shard %d/%d)\n", report.RunID, report.Shard, report.Shards)
	s.printf("%s", renderUnitTable(report.Units))
	s.printf("%s\n", summaryLine(summary))

	return nil
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

func newTable(buf *bytes.Buffer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	return table
}

func renderCoverageTable(coverage m.CoverageSet) string {
	var buf bytes.Buffer

	table := newTable(&buf, "Element", "Cost", "Leaves", "New")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})

	for _, e := range coverage.Selected {
		table.Append([]string{
			e.Path.String(),
			strconv.FormatFloat(e.Cost, 'g', -1, 64),
			strconv.Itoa(len(e.Covers)),
			strconv.Itoa(e.NewlyCovered),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Elements %d", len(coverage.Selected)),
		strconv.FormatFloat(coverage.TotalCost, 'g', -1, 64),
		strconv.Itoa(len(coverage.Leaves)),
		"",
	})
	table.Render()

	return buf.String()
}

func renderConstraintTable(constraints []m.Constraint) string {
	var buf bytes.Buffer

	table := newTable(&buf, "Rule", "ID", "Constraint", "Confidence")

	for _, c := range constraints {
		table.Append([]string{c.RuleID, c.ID, c.String(), string(c.Evidence.Confidence)})
	}

	table.Render()

	return buf.String()
}

func renderIssueTable(issues []m.RuleIssue) string {
	var buf bytes.Buffer

	table := newTable(&buf, "Rule", "Source", "Reason")

	for _, issue := range issues {
		table.Append([]string{issue.RuleID, string(issue.Source), issue.Reason})
	}

	table.Render()

	return buf.String()
}

func renderPairTable(pairs []m.FieldPair) string {
	var buf bytes.Buffer

	table := newTable(&buf, "Scope", "Left", "Right", "Element")

	for _, p := range pairs {
		element := p.Element
		if p.Other != "" {
			element += " / " + p.Other
		}

		table.Append([]string{string(p.Scope), p.Left, p.Right, element})
	}

	table.SetFooter([]string{fmt.Sprintf("Total %d", len(pairs)), "", "", ""})
	table.Render()

	return buf.String()
}

func renderUnitTable(units []m.UnitReport) string {
	var buf bytes.Buffer

	table := newTable(&buf, "Unit", "Element", "Scope", "Status", "Accepted", "Rejected")

	for _, u := range units {
		table.Append([]string{
			u.UnitID, u.Element, string(u.Scope), u.Status.String(),
			strconv.Itoa(u.Accepted), strconv.Itoa(u.Rejected),
		})
	}

	table.Render()

	return buf.String()
}

func renderPatches(ps m.PatchSet, frameOffset int) string {
	var b strings.Builder

	for _, p := range ps.Patches {
		fmt.Fprintf(&b, "Offset: %d, New Value: %02x\n", int(p.Offset)+frameOffset, p.Value)
	}

	fmt.Fprintf(&b, "%d patch(es), target length %d\n", len(ps.Patches), ps.Length)

	return b.String()
}

func summaryLine(s m.Summary) string {
	return fmt.Sprintf("Units: %d | Generated: %d | Exhausted: %d | Rejected: %d | Failed: %d | Skipped: %d | Payloads: %d | Yield: %.1f%%",
		s.Units, s.Generated, s.Exhausted, s.Rejected, s.Failed, s.Skipped, s.Payloads, s.Yield*100)
}
