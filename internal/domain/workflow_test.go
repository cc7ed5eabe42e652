package domain

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fracture.dev/pkg/fracture/internal/adapter"
	"fracture.dev/pkg/fracture/internal/controller"
	uimocks "fracture.dev/pkg/fracture/internal/controller/mocks"
	m "fracture.dev/pkg/fracture/internal/model"
)

const examplesDir = "../../examples"

func example(parts ...string) m.Path {
	return m.Path(filepath.Join(append([]string{examplesDir}, parts...)...))
}

func newTestWorkflow(ui controller.UI) Workflow {
	return NewWorkflow(
		adapter.NewLocalInputStore(),
		adapter.NewLocalRuleStore(),
		adapter.NewLocalReportStore(),
		adapter.NewLocalPayloadStore(),
		ui,
		NewUnitStreamer(),
	)
}

func newSimpleUI() (controller.UI, *bytes.Buffer) {
	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	return controller.NewSimpleUI(cmd), &out
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func generateArgs(t *testing.T, output string) GenerateArgs {
	t.Helper()

	return GenerateArgs{
		SelectArgs: SelectArgs{
			Schema:   example("schema.yaml"),
			CostMode: CostOccurrence,
			Output:   m.Path(output),
		},
		Rules:         []m.Path{example("rules")},
		Baselines:     []m.Path{example("baselines")},
		MinConfidence: m.ConfidenceLow,
		Threads:       2,
		MaxCandidates: 2,
		SpillDir:      t.TempDir(),
	}
}

func TestWorkflow_Generate(t *testing.T) {
	output := t.TempDir()
	ui, out := newSimpleUI()

	err := newTestWorkflow(ui).Generate(t.Context(), generateArgs(t, output))
	require.NoError(t, err)

	var report m.Report
	readJSON(t, filepath.Join(output, adapter.ReportFile), &report)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Shards)
	require.Len(t, report.Units, 6)

	for i, u := range report.Units {
		assert.Equal(t, i, u.Index)
	}

	require.Len(t, report.Rules, 1)
	assert.Equal(t, "unknown_field", report.Rules[0].RuleID)
	assert.Empty(t, report.Baselines)

	var summary m.Summary
	readJSON(t, filepath.Join(output, adapter.SummaryFile), &summary)

	assert.Equal(t, 6, summary.Units)
	assert.Equal(t, 5, summary.Generated)
	assert.Equal(t, 1, summary.Rejected)
	assert.InDelta(t, 5.0/6.0, summary.Yield, 1e-9)

	assert.FileExists(t, filepath.Join(output, adapter.CoverageFile))
	assert.FileExists(t, filepath.Join(output, adapter.CoverageTableFile))

	cases, err := os.ReadFile(filepath.Join(output, adapter.TestCasesFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(cases)), "\n"), summary.Candidates)

	offsets, err := filepath.Glob(filepath.Join(output, adapter.PayloadDir, "*_offset.txt"))
	require.NoError(t, err)
	assert.Len(t, offsets, summary.Payloads)

	assert.Contains(t, out.String(), "Running 6 unit(s) with 2 worker(s)")
	assert.Contains(t, out.String(), "Units: 6 | Generated: 5")
}

func TestWorkflow_GenerateSharded(t *testing.T) {
	output := t.TempDir()
	ui, _ := newSimpleUI()
	w := newTestWorkflow(ui)

	for shard := range 2 {
		args := generateArgs(t, output)
		args.ShardIndex = shard
		args.TotalShardCount = 2

		require.NoError(t, w.Generate(t.Context(), args))
	}

	var first, second m.Report
	readJSON(t, filepath.Join(string(adapter.ShardDir(m.Path(output), 0)), adapter.ReportFile), &first)
	readJSON(t, filepath.Join(string(adapter.ShardDir(m.Path(output), 1)), adapter.ReportFile), &second)

	assert.Len(t, first.Units, 3)
	assert.Len(t, second.Units, 3)

	require.NoError(t, w.Merge(t.Context(), MergeArgs{Reports: m.Path(output)}))

	var merged m.Report
	readJSON(t, filepath.Join(output, adapter.ReportFile), &merged)

	require.Len(t, merged.Units, 6)

	for i, u := range merged.Units {
		assert.Equal(t, i, u.Index)
	}
}

func TestWorkflow_GenerateSkipsBadBaseline(t *testing.T) {
	output := t.TempDir()
	baselines := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(baselines, "short.hex"), []byte("01 00"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(baselines, "good.hex"), []byte("01 00 03 05 00"), 0o600))

	args := generateArgs(t, output)
	args.Baselines = []m.Path{m.Path(baselines)}

	ui, _ := newSimpleUI()
	require.NoError(t, newTestWorkflow(ui).Generate(t.Context(), args))

	var report m.Report
	readJSON(t, filepath.Join(output, adapter.ReportFile), &report)

	require.Len(t, report.Baselines, 1)
	assert.Equal(t, "short", report.Baselines[0].Name)
	assert.Len(t, report.Units, 3)
}

func TestWorkflow_Select(t *testing.T) {
	output := t.TempDir()

	ui := uimocks.NewMockUI(t)
	ui.On("Start", mock.Anything, mock.Anything).Return(nil)
	ui.On("Close", mock.Anything).Return()
	ui.On("DisplayCoverage", mock.Anything, mock.MatchedBy(func(cs m.CoverageSet) bool {
		return len(cs.Selected) == 3 && cs.TotalCost == 4
	})).Return(nil)

	err := newTestWorkflow(ui).Select(t.Context(), SelectArgs{
		Schema:   example("schema.yaml"),
		CostMode: CostTable,
		Costs:    example("costs.yaml"),
		Output:   m.Path(output),
	})
	require.NoError(t, err)

	var coverage m.CoverageSet
	readJSON(t, filepath.Join(output, adapter.CoverageFile), &coverage)
	assert.Len(t, coverage.Selected, 3)
	assert.InDelta(t, 4.0, coverage.TotalCost, 0)
}

func TestWorkflow_SelectSearchBounds(t *testing.T) {
	output := t.TempDir()

	ui := uimocks.NewMockUI(t)
	ui.On("Start", mock.Anything, mock.Anything).Return(nil)
	ui.On("Close", mock.Anything).Return()
	ui.On("DisplayCoverage", mock.Anything, mock.Anything).Return(nil)

	err := newTestWorkflow(ui).Select(t.Context(), SelectArgs{
		Schema:       example("schema.yaml"),
		MinFields:    2,
		SearchBounds: true,
		Output:       m.Path(output),
	})
	require.NoError(t, err)

	var coverage m.CoverageSet
	readJSON(t, filepath.Join(output, adapter.CoverageFile), &coverage)

	require.NotNil(t, coverage.Bounds)
	assert.Equal(t, 1, coverage.Bounds.MinFields)
	assert.Equal(t, 2, coverage.Bounds.MaxFields)
	assert.True(t, coverage.Bounds.Complete())
	assert.Len(t, coverage.Selected, 3)
}

func TestWorkflow_SelectCostModes(t *testing.T) {
	tests := []struct {
		name    string
		args    SelectArgs
		wantErr string
	}{
		{name: "unknown mode", args: SelectArgs{CostMode: "random"}, wantErr: `unknown cost mode "random"`},
		{name: "table without file", args: SelectArgs{CostMode: CostTable}, wantErr: "needs a cost table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui := uimocks.NewMockUI(t)
			ui.On("Start", mock.Anything, mock.Anything).Return(nil)
			ui.On("Close", mock.Anything).Return()

			tt.args.Schema = example("schema.yaml")
			tt.args.Output = m.Path(t.TempDir())

			err := newTestWorkflow(ui).Select(t.Context(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkflow_Validate(t *testing.T) {
	output := t.TempDir()

	ui := uimocks.NewMockUI(t)
	ui.On("Start", mock.Anything, mock.Anything).Return(nil)
	ui.On("Close", mock.Anything).Return()
	ui.On("DisplayRules", mock.Anything,
		mock.MatchedBy(func(cs []m.Constraint) bool { return len(cs) == 2 }),
		mock.MatchedBy(func(issues []m.RuleIssue) bool { return len(issues) == 2 }),
	).Return(nil)

	err := newTestWorkflow(ui).Validate(t.Context(), ValidateArgs{
		Schema:        example("schema.yaml"),
		Rules:         []m.Path{example("rules")},
		MinConfidence: m.ConfidenceHigh,
		Output:        m.Path(output),
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(output, adapter.ConstraintsFile))
}

func TestWorkflow_DiffAndApply(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.hex")
	mutated := filepath.Join(dir, "mutated.hex")
	offsets := filepath.Join(dir, "mutated_offset.txt")
	replayed := filepath.Join(dir, "replayed.bin")

	require.NoError(t, os.WriteFile(base, []byte("00 00 00"), 0o600))
	require.NoError(t, os.WriteFile(mutated, []byte("00 ff 00"), 0o600))

	want := m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0xFF}}, Length: 3}

	ui := uimocks.NewMockUI(t)
	ui.On("DisplayPatches", mock.Anything, want, 0).Return(nil).Once()
	ui.On("DisplayPatches", mock.Anything, m.PatchSet{Patches: want.Patches}, 0).Return(nil).Once()

	w := newTestWorkflow(ui)

	require.NoError(t, w.Diff(t.Context(), DiffArgs{Base: m.Path(base), Mutated: m.Path(mutated), Output: m.Path(offsets)}))

	text, err := os.ReadFile(offsets)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Offset: 1, New Value: ff")

	require.NoError(t, w.Apply(t.Context(), ApplyArgs{Base: m.Path(base), Patches: m.Path(offsets), Output: m.Path(replayed)}))

	got, err := os.ReadFile(replayed)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF, 0x00}, got)
}

func TestWorkflow_DiffLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.hex")
	mutated := filepath.Join(dir, "mutated.hex")

	require.NoError(t, os.WriteFile(base, []byte("00 00"), 0o600))
	require.NoError(t, os.WriteFile(mutated, []byte("00 00 01"), 0o600))

	ui := uimocks.NewMockUI(t)

	err := newTestWorkflow(ui).Diff(t.Context(), DiffArgs{Base: m.Path(base), Mutated: m.Path(mutated)})
	require.ErrorIs(t, err, m.ErrLengthMismatchUnsupported)
}

func TestWorkflow_Pairs(t *testing.T) {
	output := t.TempDir()

	ui := uimocks.NewMockUI(t)
	ui.On("DisplayPairs", mock.Anything, mock.MatchedBy(func(pairs []m.FieldPair) bool {
		return len(pairs) == 2
	})).Return(nil)

	err := newTestWorkflow(ui).Pairs(t.Context(), PairsArgs{SelectArgs: SelectArgs{
		Schema: example("schema.yaml"),
		Output: m.Path(output),
	}})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(output, adapter.PairsFile))
}

func TestWorkflow_View(t *testing.T) {
	output := t.TempDir()

	report := m.Report{
		RunID: "run-1",
		Units: []m.UnitReport{
			{UnitID: "a", Status: m.UnitGenerated, Accepted: 1, Candidates: 1},
			{UnitID: "b", Index: 1, Status: m.UnitExhausted},
		},
	}
	require.NoError(t, adapter.NewLocalReportStore().SaveReport(m.Path(output), report, Summarize(report.Units)))

	ui := uimocks.NewMockUI(t)
	ui.On("Start", mock.Anything, mock.Anything).Return(nil)
	ui.On("Close", mock.Anything).Return()
	ui.On("Wait", mock.Anything).Return()
	ui.On("DisplayReport", mock.Anything, mock.MatchedBy(func(r m.Report) bool {
		return r.RunID == "run-1"
	}), mock.MatchedBy(func(s m.Summary) bool {
		return s.Units == 2 && s.Generated == 1 && s.Yield == 0.5
	})).Return(nil)

	require.NoError(t, newTestWorkflow(ui).View(t.Context(), ViewArgs{Reports: m.Path(output)}))
}

func TestWorkflow_ViewMissingReport(t *testing.T) {
	ui := uimocks.NewMockUI(t)

	err := newTestWorkflow(ui).View(t.Context(), ViewArgs{Reports: m.Path(t.TempDir())})
	require.Error(t, err)
}
