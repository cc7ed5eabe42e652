package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	m "fracture.dev/pkg/fracture/internal/model"
)

// Artifact names inside an output directory.
const (
	CoverageTableFile = "coverage.txt"
	CoverageFile      = "coverage.json"
	ReportFile        = "report.json"
	SummaryFile       = "summary.json"
	PairsFile         = "pairs.json"
	ConstraintsFile   = "constraints.json"
	TestCasesFile     = "testcases.jsonl"
	PayloadDir        = "payloads"
	shardPrefix       = "shard_"
)

// ReportStore persists run artifacts.
type ReportStore interface {
	// SaveCoverage writes coverage.txt and coverage.json into dir.
	SaveCoverage(dir m.Path, coverage m.CoverageSet) error
	// SaveReport writes report.json and summary.json into dir.
	SaveReport(dir m.Path, report m.Report, summary m.Summary) error
	// LoadReport reads report.json from dir.
	LoadReport(dir m.Path) (m.Report, error)
	// SaveValidation writes the gated constraints and the rule issues into
	// constraints.json.
	SaveValidation(dir m.Path, constraints []m.Constraint, issues []m.RuleIssue) error
	// SavePairs writes pairs.json into dir.
	SavePairs(dir m.Path, pairs []m.FieldPair) error
	// Merge combines the shard_<i> directories under dir: their test case
	// records and payload files are copied into dir and their unit reports
	// ordered by unit index. The merged report is returned, not saved.
	Merge(dir m.Path) (m.Report, error)
}

// LocalReportStore keeps artifacts on the local filesystem.
type LocalReportStore struct{}

// NewLocalReportStore constructs a LocalReportStore.
func NewLocalReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

// ShardDir returns the directory a shard run writes into.
func ShardDir(dir m.Path, shard int) m.Path {
	return m.Path(filepath.Join(string(dir), shardPrefix+strconv.Itoa(shard)))
}

// SaveCoverage writes the coverage table and its JSON form.
func (s *LocalReportStore) SaveCoverage(dir m.Path, coverage m.CoverageSet) error {
	if err := writeJSON(dir, CoverageFile, coverage); err != nil {
		return err
	}

	return writeArtifact(dir, CoverageTableFile, []byte(RenderCoverage(coverage)))
}

// RenderCoverage renders the selected elements as a text table.
func RenderCoverage(coverage m.CoverageSet) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"#", "Element", "Type", "Cost", "Leaves", "New"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for i, element := range coverage.Selected {
		table.Append([]string{
			strconv.Itoa(i + 1),
			element.Path.String(),
			element.TypeName,
			strconv.FormatFloat(element.Cost, 'g', -1, 64),
			strconv.Itoa(len(element.Covers)),
			strconv.Itoa(element.NewlyCovered),
		})
	}

	table.SetFooter([]string{
		"",
		fmt.Sprintf("%d of %d candidates", len(coverage.Selected), coverage.Candidates),
		"",
		strconv.FormatFloat(coverage.TotalCost, 'g', -1, 64),
		strconv.Itoa(len(coverage.Leaves)),
		"",
	})

	table.Render()

	return buf.String()
}

// SaveReport writes the run report and its summary.
func (s *LocalReportStore) SaveReport(dir m.Path, report m.Report, summary m.Summary) error {
	if err := writeJSON(dir, ReportFile, report); err != nil {
		return err
	}

	return writeJSON(dir, SummaryFile, summary)
}

// LoadReport reads a saved run report.
func (s *LocalReportStore) LoadReport(dir m.Path) (m.Report, error) {
	data, err := os.ReadFile(filepath.Join(string(dir), ReportFile))
	if err != nil {
		return m.Report{}, fmt.Errorf("read report: %w", err)
	}

	var report m.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return m.Report{}, fmt.Errorf("parse report %s: %w", dir, err)
	}

	return report, nil
}

// validation is the on-disk form of a rule gate run.
type validation struct {
	Constraints []m.Constraint `json:"constraints"`
	Issues      []m.RuleIssue  `json:"issues"`
}

// SaveValidation writes the outcome of the rule gate.
func (s *LocalReportStore) SaveValidation(dir m.Path, constraints []m.Constraint, issues []m.RuleIssue) error {
	v := validation{Constraints: constraints, Issues: issues}
	if v.Constraints == nil {
		v.Constraints = []m.Constraint{}
	}

	if v.Issues == nil {
		v.Issues = []m.RuleIssue{}
	}

	return writeJSON(dir, ConstraintsFile, v)
}

// SavePairs writes the exported field pairs.
func (s *LocalReportStore) SavePairs(dir m.Path, pairs []m.FieldPair) error {
	if pairs == nil {
		pairs = []m.FieldPair{}
	}

	return writeJSON(dir, PairsFile, pairs)
}

// Merge folds shard directories into dir.
func (s *LocalReportStore) Merge(dir m.Path) (m.Report, error) {
	shards, err := shardDirs(dir)
	if err != nil {
		return m.Report{}, err
	}

	if len(shards) == 0 {
		return m.Report{}, fmt.Errorf("no %s* directories in %s", shardPrefix, dir)
	}

	var (
		merged m.Report
		cases  bytes.Buffer
	)

	for i, shard := range shards {
		report, err := s.LoadReport(shard)
		if err != nil {
			return m.Report{}, err
		}

		if i == 0 {
			merged.RunID = report.RunID
			merged.Started = report.Started
			merged.Shards = report.Shards
		}

		if report.Started.Before(merged.Started) {
			merged.Started = report.Started
		}

		if report.Finished.After(merged.Finished) {
			merged.Finished = report.Finished
		}

		merged.Units = append(merged.Units, report.Units...)
		merged.Rules = append(merged.Rules, report.Rules...)
		merged.Baselines = append(merged.Baselines, report.Baselines...)

		if err := appendLines(&cases, filepath.Join(string(shard), TestCasesFile)); err != nil {
			return m.Report{}, err
		}

		if err := copyDir(filepath.Join(string(shard), PayloadDir), filepath.Join(string(dir), PayloadDir)); err != nil {
			return m.Report{}, err
		}
	}

	sort.SliceStable(merged.Units, func(i, j int) bool {
		return merged.Units[i].Index < merged.Units[j].Index
	})

	merged.Rules = dedupRuleIssues(merged.Rules)
	merged.Baselines = dedupBaselineIssues(merged.Baselines)

	if err := writeArtifact(dir, TestCasesFile, cases.Bytes()); err != nil {
		return m.Report{}, err
	}

	return merged, nil
}

// shardDirs lists shard directories ordered by shard index.
func shardDirs(dir m.Path) ([]m.Path, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	type shard struct {
		index int
		path  m.Path
	}

	var found []shard

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), shardPrefix) {
			continue
		}

		index, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), shardPrefix))
		if err != nil {
			continue
		}

		found = append(found, shard{index: index, path: m.Path(filepath.Join(string(dir), entry.Name()))})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].index < found[j].index
	})

	paths := make([]m.Path, 0, len(found))
	for _, s := range found {
		paths = append(paths, s.path)
	}

	return paths, nil
}

// Every shard runs the same rule gate, so rule and baseline issues repeat.
func dedupRuleIssues(issues []m.RuleIssue) []m.RuleIssue {
	seen := make(map[m.RuleIssue]bool)
	out := issues[:0]

	for _, issue := range issues {
		if !seen[issue] {
			seen[issue] = true
			out = append(out, issue)
		}
	}

	return out
}

func dedupBaselineIssues(issues []m.BaselineIssue) []m.BaselineIssue {
	seen := make(map[m.BaselineIssue]bool)
	out := issues[:0]

	for _, issue := range issues {
		if !seen[issue] {
			seen[issue] = true
			out = append(out, issue)
		}
	}

	return out
}

func appendLines(dst *bytes.Buffer, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dst.Write(line)
		dst.WriteByte('\n')
	}

	return scanner.Err()
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	if err := os.MkdirAll(dst, 0o750); err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}

func writeJSON(dir m.Path, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	return writeArtifact(dir, name, append(data, '\n'))
}

func writeArtifact(dir m.Path, name string, data []byte) error {
	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(string(dir), name), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
