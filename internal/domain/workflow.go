package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fracture.dev/pkg/fracture/internal/adapter"
	"fracture.dev/pkg/fracture/internal/codec"
	"fracture.dev/pkg/fracture/internal/controller"
	m "fracture.dev/pkg/fracture/internal/model"
	pkg "fracture.dev/pkg/fracture/pkg"
)

// Cost modes accepted by SelectArgs.CostMode.
const (
	CostOccurrence = "occurrence"
	CostOrder      = "order"
	CostTable      = "table"
)

// SelectArgs configures coverage selection. SearchBounds replaces MinFields
// and MaxFields with the best complete pair found by SearchBounds, trying
// maxima BoundsStep apart.
type SelectArgs struct {
	Schema       m.Path
	Costs        m.Path
	CostMode     string
	MinFields    int
	MaxFields    int
	SearchBounds bool
	BoundsStep   int
	Output       m.Path
}

// ValidateArgs configures the rule gate report.
type ValidateArgs struct {
	Schema        m.Path
	Rules         []m.Path
	MinConfidence m.Confidence
	Output        m.Path
}

// GenerateArgs configures a generation run.
type GenerateArgs struct {
	SelectArgs
	Rules             []m.Path
	Baselines         []m.Path
	MessageType       string
	MinConfidence     m.Confidence
	Threads           int
	ShardIndex        int
	TotalShardCount   int
	MaxCandidates     int
	AllowLengthChange bool
	Payload           m.PayloadOptions
	SpillDir          string
}

// DiffArgs configures a diff of two encoded buffers.
type DiffArgs struct {
	Base              m.Path
	Mutated           m.Path
	AllowLengthChange bool
	FrameOffset       int
	Output            m.Path
}

// ApplyArgs configures replaying a patch file onto a buffer.
type ApplyArgs struct {
	Base        m.Path
	Patches     m.Path
	FrameOffset int
	Output      m.Path
}

// PairsArgs configures the field pair export.
type PairsArgs struct {
	SelectArgs
}

// ViewArgs configures rendering a saved report.
type ViewArgs struct {
	Reports m.Path
}

// MergeArgs configures merging shard reports.
type MergeArgs struct {
	Reports m.Path
}

// Workflow is the entry point of every fracture command.
type Workflow interface {
	Select(ctx context.Context, args SelectArgs) error
	Validate(ctx context.Context, args ValidateArgs) error
	Generate(ctx context.Context, args GenerateArgs) error
	Diff(ctx context.Context, args DiffArgs) error
	Apply(ctx context.Context, args ApplyArgs) error
	Pairs(ctx context.Context, args PairsArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	adapter.InputStore
	adapter.RuleStore
	adapter.ReportStore
	adapter.PayloadStore
	controller.UI
	UnitStreamer
}

// NewWorkflow creates a Workflow with the provided dependencies.
func NewWorkflow(
	inputs adapter.InputStore,
	rules adapter.RuleStore,
	reports adapter.ReportStore,
	payloads adapter.PayloadStore,
	ui controller.UI,
	streamer UnitStreamer,
) Workflow {
	return &workflow{
		InputStore:   inputs,
		RuleStore:    rules,
		ReportStore:  reports,
		PayloadStore: payloads,
		UI:           ui,
		UnitStreamer: streamer,
	}
}

func (w *workflow) Select(ctx context.Context, args SelectArgs) error {
	if err := w.Start(ctx, controller.WithReportMode()); err != nil {
		return err
	}
	defer w.Close(ctx)

	_, coverage, err := w.cover(args)
	if err != nil {
		return err
	}

	if err := w.SaveCoverage(args.Output, coverage); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}

	return w.DisplayCoverage(ctx, coverage)
}

// cover loads the schema and runs coverage selection over it.
func (w *workflow) cover(args SelectArgs) (*m.Schema, m.CoverageSet, error) {
	schema, err := w.LoadSchema(args.Schema)
	if err != nil {
		return nil, m.CoverageSet{}, err
	}

	cost, err := w.costFunc(args)
	if err != nil {
		return nil, m.CoverageSet{}, err
	}

	var bounds *m.FieldBounds

	if args.SearchBounds {
		best, err := bestBounds(schema, cost, args.BoundsStep)
		if err != nil {
			return nil, m.CoverageSet{}, err
		}

		bounds = &best
		args.MinFields, args.MaxFields = best.MinFields, best.MaxFields
	}

	coverage, err := Select(schema, cost, WithFieldBounds(args.MinFields, args.MaxFields))
	if err != nil {
		slog.Error("Coverage selection failed", "schema", args.Schema, "error", err)
		return nil, m.CoverageSet{}, fmt.Errorf("select coverage: %w", err)
	}

	coverage.Bounds = bounds

	slog.Info("Coverage selected", "elements", len(coverage.Selected), "leaves", len(coverage.Leaves), "cost", coverage.TotalCost)

	return schema, coverage, nil
}

// bestBounds searches the schema's bounds grid and keeps the best scoring
// pair that still covers every leaf.
func bestBounds(schema *m.Schema, cost CostFunc, step int) (m.FieldBounds, error) {
	results, err := SearchBounds(schema, cost, GridFor(schema, step))
	if err != nil {
		return m.FieldBounds{}, fmt.Errorf("search bounds: %w", err)
	}

	for i, r := range results[:min(3, len(results))] {
		slog.Info("Bounds candidate", "rank", i+1, "min", r.MinFields, "max", r.MaxFields, "elements", r.Elements, "pairs", r.Pairs, "coverage", r.Coverage, "score", r.Score)
	}

	for _, r := range results {
		if r.Complete() {
			return r, nil
		}
	}

	return m.FieldBounds{}, fmt.Errorf("search bounds: no bounds cover every leaf: %w", m.ErrUnreachableLeaf)
}

func (w *workflow) costFunc(args SelectArgs) (CostFunc, error) {
	switch strings.ToLower(args.CostMode) {
	case "", CostOccurrence:
		return OccurrenceCost(), nil
	case CostOrder:
		return OrderCost(), nil
	case CostTable:
		if args.Costs == "" {
			return nil, fmt.Errorf("cost mode %q needs a cost table", CostTable)
		}

		table, err := w.LoadCosts(args.Costs)
		if err != nil {
			return nil, err
		}

		return TableCost(table, OccurrenceCost()), nil
	}

	return nil, fmt.Errorf("unknown cost mode %q", args.CostMode)
}

func (w *workflow) Validate(ctx context.Context, args ValidateArgs) error {
	if err := w.Start(ctx, controller.WithReportMode()); err != nil {
		return err
	}
	defer w.Close(ctx)

	schema, err := w.LoadSchema(args.Schema)
	if err != nil {
		return err
	}

	gate, err := w.gate(schema, args.Rules, args.MinConfidence)
	if err != nil {
		return err
	}

	if err := w.SaveValidation(args.Output, gate.Constraints, gate.Issues); err != nil {
		return fmt.Errorf("save validation: %w", err)
	}

	return w.DisplayRules(ctx, gate.Constraints, gate.Issues)
}

// gate loads the rule files and passes them through the ingestion gate.
// Records refused by the record schema are merged into the issues.
func (w *workflow) gate(schema *m.Schema, paths []m.Path, minConfidence m.Confidence) (GateResult, error) {
	records, issues, err := w.LoadRules(paths)
	if err != nil {
		return GateResult{}, fmt.Errorf("load rules: %w", err)
	}

	for _, issue := range issues {
		slog.Warn("Rule record refused", "rule", issue.RuleID, "source", issue.Source, "reason", issue.Reason)
	}

	result := Gate(schema, records, minConfidence)
	result.Issues = append(issues, result.Issues...)

	return result, nil
}

func (w *workflow) Generate(ctx context.Context, args GenerateArgs) error {
	if err := w.Start(ctx, controller.WithGenerateMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	started := time.Now()

	schema, coverage, err := w.cover(args.SelectArgs)
	if err != nil {
		return err
	}

	if err := w.SaveCoverage(args.Output, coverage); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}

	gate, err := w.gate(schema, args.Rules, args.MinConfidence)
	if err != nil {
		return err
	}

	packed := codec.New(schema)

	sources, err := w.LoadBaselines(args.Baselines)
	if err != nil {
		return fmt.Errorf("load baselines: %w", err)
	}

	baselines, baselineIssues := decodeBaselines(schema, packed, sources, args.MessageType)

	report := m.Report{
		RunID:     uuid.NewString(),
		Started:   started,
		Shard:     args.ShardIndex,
		Shards:    max(args.TotalShardCount, 1),
		Rules:     gate.Issues,
		Baselines: baselineIssues,
	}

	dir := args.Output
	if args.TotalShardCount > 1 {
		dir = adapter.ShardDir(args.Output, args.ShardIndex)
	}

	orchestrator := NewOrchestrator(
		schema,
		packed,
		NewSynthesizer(schema, packed, WithMaxCandidates(args.MaxCandidates), WithLengthChange(args.AllowLengthChange)),
		NewDiffer(args.AllowLengthChange),
		gate.Constraints,
	)

	threads := max(args.Threads, 1)
	total := countUnits(baselines, gate.Constraints, args.ShardIndex, args.TotalShardCount)
	w.DisplayConcurrencyInfo(ctx, threads, args.ShardIndex, report.Shards, total)

	units, cases, runErr := w.runUnits(ctx, orchestrator, args, baselines, gate.Constraints, coverage)
	if units == nil {
		return runErr
	}

	report.Units = units
	report.Finished = time.Now()

	meta := m.RunMeta{RunID: report.RunID, Schema: args.Schema}
	if len(baselines) > 0 {
		meta.MessageType = baselines[0].Instance.Type
	}

	if err := w.SaveTestCases(dir, meta, cases, args.Payload); err != nil {
		return fmt.Errorf("save test cases: %w", err)
	}

	summary := Summarize(units)
	if err := w.SaveReport(dir, report, summary); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	slog.Info("Run finished", "run", report.RunID, "units", summary.Units, "generated", summary.Generated, "payloads", summary.Payloads, "yield", summary.Yield)

	w.DisplaySummary(ctx, summary)
	w.Wait(ctx)

	return runErr
}

// runUnits drives the unit pool. Unit results are spilled to disk while the
// pool runs and read back in unit order once it drains. A nil unit slice
// means the run could not record its results.
func (w *workflow) runUnits(
	ctx context.Context,
	orchestrator Orchestrator,
	args GenerateArgs,
	baselines []m.Baseline,
	constraints []m.Constraint,
	coverage m.CoverageSet,
) ([]m.UnitReport, []m.TestCase, error) {
	reportSpill, err := pkg.NewFileSpill[m.UnitReport](args.SpillDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create report spill: %w", err)
	}
	defer removeSpill(reportSpill)

	caseSpill, err := pkg.NewFileSpill[m.TestCase](args.SpillDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create test case spill: %w", err)
	}
	defer removeSpill(caseSpill)

	threads := max(args.Threads, 1)
	all := w.Get(ctx, baselines, constraints, coverage, threads)
	sharded := w.ShardUnits(ctx, all, threads, args.ShardIndex, args.TotalShardCount)

	var (
		group    errgroup.Group
		errorsMu sync.Mutex
		failures []error
	)

	group.SetLimit(threads)

	for unit := range sharded {
		current := unit

		group.Go(func() error {
			w.DisplayUnitStarted(ctx, current)

			report, cases, err := orchestrator.RunUnit(ctx, current)
			if err != nil {
				errorsMu.Lock()

				failures = append(failures, err)

				errorsMu.Unlock()
			}

			if err := caseSpill.AppendBatch(cases); err != nil {
				return err
			}

			if err := reportSpill.Append(report); err != nil {
				return err
			}

			w.DisplayUnitCompleted(ctx, report)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, fmt.Errorf("record unit results: %w", err)
	}

	units, err := collectUnitReports(reportSpill)
	if err != nil {
		return nil, nil, fmt.Errorf("read unit reports: %w", err)
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].Index < units[j].Index
	})

	order := make(map[string]int, len(units))
	for _, u := range units {
		order[u.UnitID] = u.Index
	}

	cases := make([]m.TestCase, 0, caseSpill.Len())

	for tc, err := range caseSpill.All() {
		if err != nil {
			return nil, nil, fmt.Errorf("read test cases: %w", err)
		}

		cases = append(cases, tc)
	}

	sort.SliceStable(cases, func(i, j int) bool {
		return order[cases[i].UnitID] < order[cases[j].UnitID]
	})

	var runErr error
	if len(failures) > 0 {
		runErr = fmt.Errorf("%d unit(s) failed: %w", len(failures), errors.Join(failures...))
	}

	if ctx.Err() != nil {
		runErr = errors.Join(runErr, ctx.Err())
	}

	return units, cases, runErr
}

func removeSpill[T any](spill pkg.FileSpill[T]) {
	if err := spill.Remove(); err != nil {
		slog.Warn("Failed to remove spill", "path", spill.Path(), "error", err)
	}
}

// countUnits counts the units a shard will run, mirroring the streamer's
// expansion and round-robin assignment.
func countUnits(baselines []m.Baseline, constraints []m.Constraint, shardIndex, totalShardCount int) int {
	index, count := 0, 0

	for _, b := range baselines {
		for _, c := range constraints {
			if len(c.Subject) == 0 || c.Subject[0].Name != b.Instance.Type {
				continue
			}

			if totalShardCount <= 1 || index%totalShardCount == shardIndex {
				count++
			}

			index++
		}
	}

	return count
}

// decodeBaselines turns baseline inputs into well-formed instances. Inputs
// that do not decode or encode are reported and skipped.
func decodeBaselines(schema *m.Schema, c codec.Codec, sources []m.BaselineSource, messageType string) ([]m.Baseline, []m.BaselineIssue) {
	var (
		baselines []m.Baseline
		issues    []m.BaselineIssue
	)

	skip := func(source m.BaselineSource, err error) {
		slog.Warn("Skipping baseline", "baseline", source.Name, "origin", source.Origin, "error", err)
		issues = append(issues, m.BaselineIssue{Name: source.Name, Origin: source.Origin, Reason: err.Error()})
	}

	for _, source := range sources {
		inst, err := decodeBaseline(schema, c, source, messageType)
		if err != nil {
			skip(source, err)
			continue
		}

		if _, err := c.Encode(inst); err != nil {
			skip(source, err)
			continue
		}

		baselines = append(baselines, m.Baseline{Name: source.Name, Origin: source.Origin, Instance: inst})
	}

	return baselines, issues
}

func decodeBaseline(schema *m.Schema, c codec.Codec, source m.BaselineSource, messageType string) (m.Instance, error) {
	if source.Document != nil {
		doc := *source.Document
		if doc.Type == "" {
			doc.Type = messageType
		}

		inst, err := schema.Instantiate(doc)
		if err != nil {
			return m.Instance{}, err
		}

		return schema.Prune(inst), nil
	}

	typeName := messageType
	if typeName == "" {
		names := schema.TypeNames()
		if len(names) != 1 {
			return m.Instance{}, fmt.Errorf("%w: %d message types, pick one with --type", m.ErrUnknownType, len(names))
		}

		typeName = names[0]
	}

	return c.Decode(source.Bytes, typeName)
}

func (w *workflow) Diff(ctx context.Context, args DiffArgs) error {
	base, err := w.readBuffer(args.Base)
	if err != nil {
		return err
	}

	mutated, err := w.readBuffer(args.Mutated)
	if err != nil {
		return err
	}

	ps, err := NewDiffer(args.AllowLengthChange).Diff(base, mutated)
	if err != nil {
		return fmt.Errorf("diff %s %s: %w", args.Base, args.Mutated, err)
	}

	if args.Output != "" {
		content := []byte(adapter.FormatOffsetFile(ps, args.FrameOffset))
		if err := w.WriteFile(args.Output, content, 0o600); err != nil {
			return fmt.Errorf("write offsets: %w", err)
		}
	}

	return w.DisplayPatches(ctx, ps, args.FrameOffset)
}

// readBuffer reads a .hex or .bin file into bytes.
func (w *workflow) readBuffer(path m.Path) ([]byte, error) {
	sources, err := w.LoadBaselines([]m.Path{path})
	if err != nil {
		return nil, err
	}

	if len(sources) != 1 || sources[0].Document != nil {
		return nil, fmt.Errorf("%w: %s is not an encoded buffer", adapter.ErrUnsupportedInput, path)
	}

	return sources[0].Bytes, nil
}

func (w *workflow) Apply(ctx context.Context, args ApplyArgs) error {
	base, err := w.readBuffer(args.Base)
	if err != nil {
		return err
	}

	ps, err := w.LoadPatches(args.Patches, args.FrameOffset)
	if err != nil {
		return err
	}

	out, err := NewDiffer(true).Apply(base, ps)
	if err != nil {
		return fmt.Errorf("apply %s: %w", args.Patches, err)
	}

	content := out
	if strings.EqualFold(filepath.Ext(string(args.Output)), ".hex") {
		content = []byte(adapter.EncodeHex(out))
	}

	if err := w.WriteFile(args.Output, content, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", args.Output, err)
	}

	slog.Info("Patches applied", "base", args.Base, "patches", len(ps.Patches), "output", args.Output)

	return w.DisplayPatches(ctx, ps, args.FrameOffset)
}

func (w *workflow) Pairs(ctx context.Context, args PairsArgs) error {
	_, coverage, err := w.cover(args.SelectArgs)
	if err != nil {
		return err
	}

	pairs := FieldPairs(coverage)
	if err := w.SavePairs(args.Output, pairs); err != nil {
		return fmt.Errorf("save pairs: %w", err)
	}

	return w.DisplayPairs(ctx, pairs)
}

func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	report, err := w.LoadReport(args.Reports)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithReportMode()); err != nil {
		return err
	}
	defer w.Close(ctx)

	if err := w.DisplayReport(ctx, report, Summarize(report.Units)); err != nil {
		return err
	}

	w.Wait(ctx)

	return nil
}

func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	report, err := w.ReportStore.Merge(args.Reports)
	if err != nil {
		return fmt.Errorf("merge reports: %w", err)
	}

	summary := Summarize(report.Units)
	if err := w.SaveReport(args.Reports, report, summary); err != nil {
		return fmt.Errorf("save merged report: %w", err)
	}

	slog.Info("Shards merged", "dir", args.Reports, "units", summary.Units)

	return w.DisplayReport(ctx, report, summary)
}
