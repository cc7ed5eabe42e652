package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "fracture.dev/pkg/fracture/internal/model"
)

// recentUnits is how many completed units the run view keeps on screen.
const recentUnits = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 2)
	faintStyle = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyles = map[m.UnitStatus]lipgloss.Style{
		m.UnitGenerated: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		m.UnitExhausted: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		m.UnitRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		m.UnitFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		m.UnitSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

func title(text string) string {
	return titleStyle.Render("fracture - "+text) + "\n"
}

func styledStatus(status m.UnitStatus) string {
	return statusStyles[status].Render(status.String())
}

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output  io.Writer
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the run view in generate mode. Report mode renders on
// demand and needs no program.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if startConfig(options).mode != ModeGenerate {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.program != nil {
		return nil
	}

	model := newRunModel()
	model.width, model.height = t.size()

	t.program = tea.NewProgram(model, tea.WithOutput(t.output), tea.WithContext(ctx))
	t.done = make(chan struct{})

	go func(program *tea.Program, done chan struct{}) {
		defer close(done)

		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			_, _ = fmt.Fprintf(t.output, "ui error: %v\n", err)
		}
	}(t.program, t.done)

	return nil
}

// Close stops the run view.
func (t *TUI) Close(_ context.Context) {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// Wait blocks until the user leaves the run view.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

func (t *TUI) size() (int, int) {
	if f, ok := t.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			return width, height
		}
	}

	return 0, 0
}

// DisplayCoverage renders the selected elements.
func (t *TUI) DisplayCoverage(ctx context.Context, coverage m.CoverageSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.page(title("coverage") + "\n" + renderCoverageTable(coverage))
}

// DisplayRules renders the gate outcome.
func (t *TUI) DisplayRules(ctx context.Context, constraints []m.Constraint, issues []m.RuleIssue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder

	b.WriteString(title("rules") + "\n")
	b.WriteString(renderConstraintTable(constraints))

	if len(issues) > 0 {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("%d rule(s) rejected", len(issues))) + "\n")
		b.WriteString(renderIssueTable(issues))
	}

	return t.page(b.String())
}

// DisplayConcurrencyInfo sets up the progress bar.
func (t *TUI) DisplayConcurrencyInfo(_ context.Context, threads int, shardIndex int, shardCount int, units int) {
	t.send(runStartMsg{threads: threads, shard: shardIndex, shards: shardCount, total: units})
}

// DisplayUnitStarted counts a unit as in flight.
func (t *TUI) DisplayUnitStarted(_ context.Context, unit m.Unit) {
	t.send(unitStartMsg{id: unit.ID})
}

// DisplayUnitCompleted advances the progress bar.
func (t *TUI) DisplayUnitCompleted(_ context.Context, report m.UnitReport) {
	t.send(unitDoneMsg{report: report})
}

// DisplaySummary shows the final counts in the run view.
func (t *TUI) DisplaySummary(_ context.Context, summary m.Summary) {
	t.send(summaryMsg{summary: summary})
}

// DisplayPatches renders a patch set.
func (t *TUI) DisplayPatches(ctx context.Context, ps m.PatchSet, frameOffset int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.page(title("patches") + "\n" + renderPatches(ps, frameOffset))
}

// DisplayPairs renders the exported field pairs.
func (t *TUI) DisplayPairs(ctx context.Context, pairs []m.FieldPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.page(title("field pairs") + "\n" + renderPairTable(pairs))
}

// DisplayReport renders a saved run report.
func (t *TUI) DisplayReport(ctx context.Context, report m.Report, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder

	b.WriteString(title("report") + "\n")
	fmt.Fprintf(&b, "  Run %s (shard %d/%d)\n\n", report.RunID, report.Shard, report.Shards)
	b.WriteString(renderUnitTable(report.Units))
	b.WriteString("\n  " + summaryLine(summary) + "\n")

	return t.page(b.String())
}

// page prints text directly when it fits the terminal and opens a pager
// otherwise.
func (t *TUI) page(text string) error {
	model := newPagerModel(text)
	model.width, model.height = t.size()

	if !model.needsPagination() {
		_, err := fmt.Fprint(t.output, text)
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(t.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

type (
	runStartMsg struct {
		threads, shard, shards, total int
	}
	unitStartMsg struct {
		id string
	}
	unitDoneMsg struct {
		report m.UnitReport
	}
	summaryMsg struct {
		summary m.Summary
	}
)

// runModel is the Bubble Tea model of a generation run.
type runModel struct {
	bar      progress.Model
	start    runStartMsg
	inFlight int
	done     int
	counts   map[m.UnitStatus]int
	recent   []m.UnitReport
	summary  *m.Summary
	width    int
	height   int
}

func newRunModel() runModel {
	return runModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		counts: make(map[m.UnitStatus]int),
	}
}

func (rm runModel) Init() tea.Cmd {
	return nil
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.width = msg.Width
		rm.height = msg.Height
		rm.bar.Width = min(max(msg.Width-20, 10), 60)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return rm, tea.Quit
		}
	case runStartMsg:
		rm.start = msg
	case unitStartMsg:
		rm.inFlight++
	case unitDoneMsg:
		rm.inFlight = max(rm.inFlight-1, 0)
		rm.done++
		rm.counts[msg.report.Status]++

		rm.recent = append(rm.recent, msg.report)
		if len(rm.recent) > recentUnits {
			rm.recent = rm.recent[len(rm.recent)-recentUnits:]
		}
	case summaryMsg:
		summary := msg.summary
		rm.summary = &summary
	}

	return rm, nil
}

func (rm runModel) percent() float64 {
	if rm.start.total == 0 {
		return 0
	}

	return float64(rm.done) / float64(rm.start.total)
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(title("generate"))
	fmt.Fprintf(&b, "\n  %d unit(s), %d worker(s), shard %d/%d\n\n",
		rm.start.total, rm.start.threads, rm.start.shard, rm.start.shards)
	fmt.Fprintf(&b, "  %s %d/%d\n\n", rm.bar.ViewAs(rm.percent()), rm.done, rm.start.total)

	for status := m.UnitGenerated; status <= m.UnitSkipped; status++ {
		fmt.Fprintf(&b, "  %s %d", styledStatus(status), rm.counts[status])
	}

	b.WriteString("\n\n")

	for _, report := range rm.recent {
		fmt.Fprintf(&b, "  %s %s\n", styledStatus(report.Status), faintStyle.Render(report.UnitID))
	}

	if rm.summary != nil {
		b.WriteString("\n  " + summaryLine(*rm.summary) + "\n")
		b.WriteString(faintStyle.Render("  q: quit") + "\n")
	}

	return b.String()
}

// pagerModel scrolls through pre-rendered text.
type pagerModel struct {
	lines  []string
	height int
	width  int
	offset int
}

func newPagerModel(text string) pagerModel {
	return pagerModel{lines: strings.Split(strings.TrimRight(text, "\n"), "\n")}
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.height = msg.Height
		pm.width = msg.Width
		pm.offset = min(pm.offset, pm.maxOffset())

		return pm, nil
	case tea.KeyMsg:
		return pm.handleKeyPress(msg)
	}

	return pm, nil
}

func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return pm, tea.Quit
	case "down", "j":
		pm.offset = min(pm.offset+1, pm.maxOffset())
	case "up", "k":
		pm.offset = max(pm.offset-1, 0)
	case "g", "home":
		pm.offset = 0
	case "G", "end":
		pm.offset = pm.maxOffset()
	case "d", "pgdown":
		pm.offset = min(pm.offset+pm.linesPerPage(), pm.maxOffset())
	case "u", "pgup":
		pm.offset = max(pm.offset-pm.linesPerPage(), 0)
	}

	return pm, nil
}

// linesPerPage reserves two lines for the footer.
func (pm pagerModel) linesPerPage() int {
	if pm.height == 0 {
		return 10
	}

	return max(pm.height-2, 1)
}

func (pm pagerModel) maxOffset() int {
	return max(len(pm.lines)-pm.linesPerPage(), 0)
}

func (pm pagerModel) needsPagination() bool {
	return pm.height > 0 && len(pm.lines) > pm.linesPerPage()
}

func (pm pagerModel) View() string {
	end := min(pm.offset+pm.linesPerPage(), len(pm.lines))

	var b strings.Builder

	for _, line := range pm.lines[pm.offset:end] {
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(&b, "\n%s", faintStyle.Render(fmt.Sprintf("  Lines %d-%d of %d | ↑/k ↓/j g G | q: quit", pm.offset+1, end, len(pm.lines))))

	return b.String()
}
