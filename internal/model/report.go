package model

import (
	"fmt"
	"time"
)

// CoveredElement is one selected element and the leaves it brings in.
type CoveredElement struct {
	Node         NodeID      `json:"node"`
	Path         FieldPath   `json:"path"`
	TypeName     string      `json:"typeName,omitempty"`
	Cost         float64     `json:"cost"`
	Covers       []FieldPath `json:"covers"`
	NewlyCovered int         `json:"newlyCovered"`
}

// CoverageSet is the output of coverage selection, in selection order.
// Bounds is set when the element size bounds came from a search.
type CoverageSet struct {
	Selected   []CoveredElement `json:"selected"`
	Leaves     []FieldPath      `json:"leaves"`
	Candidates int              `json:"candidates"`
	TotalCost  float64          `json:"totalCost"`
	Bounds     *FieldBounds     `json:"bounds,omitempty"`
}

// FieldBounds is one scored pair of element size bounds. Coverage is the
// percentage of leaves the bounded selection reaches; Pairs counts the
// intra-element field pairs it yields.
type FieldBounds struct {
	MinFields int     `json:"minFields"`
	MaxFields int     `json:"maxFields"`
	Elements  int     `json:"elements"`
	Pairs     int     `json:"pairs"`
	Covered   int     `json:"covered"`
	Coverage  float64 `json:"coverage"`
	Score     float64 `json:"score"`
}

// Complete reports whether the bounded selection reaches every leaf.
func (b FieldBounds) Complete() bool {
	return b.Coverage >= 100
}

// ElementFor returns the first selected element covering path, or some leaf
// below it when path names a subtree.
func (cs CoverageSet) ElementFor(path FieldPath) (CoveredElement, bool) {
	for _, element := range cs.Selected {
		if element.Reaches(path) {
			return element, true
		}
	}

	return CoveredElement{}, false
}

// Reaches reports whether the element covers path or a leaf below it.
func (e CoveredElement) Reaches(path FieldPath) bool {
	template := path.Template()

	for _, leaf := range e.Covers {
		if leaf.HasPrefix(template) {
			return true
		}
	}

	return false
}

// Unit is one (baseline, constraint) pair of work.
type Unit struct {
	ID         string
	Index      int
	Baseline   Baseline
	Constraint Constraint
	Element    string
	Scope      Scope
}

// FieldChange is one field edited by a candidate.
type FieldChange struct {
	Path     string `json:"path"`
	Baseline string `json:"baseline"`
	Mutated  string `json:"mutated"`
}

// RejectLengthMismatch marks a candidate whose encoding changed length while
// the replay target needs a fixed length.
const RejectLengthMismatch = "LengthMismatchUnsupported"

// RejectNoByteChange marks a candidate whose encoding equals the baseline.
const RejectNoByteChange = "NoByteChange"

// Candidate is a synthesized violating instance and its encoding.
type Candidate struct {
	Instance       Instance
	Buffer         EncodedBuffer
	Changes        []FieldChange
	RejectedReason string
}

// TestCase is the persisted record of one candidate.
type TestCase struct {
	ID             string        `json:"id"`
	UnitID         string        `json:"unitId"`
	ConstraintID   string        `json:"constraintId"`
	RuleID         string        `json:"ruleId"`
	Predicate      PredicateKind `json:"predicateKind"`
	MessageType    string        `json:"messageType"`
	Baseline       string        `json:"baseline"`
	Element        string        `json:"element"`
	Scope          Scope         `json:"scope"`
	Targets        []string      `json:"targets"`
	Changes        []FieldChange `json:"changes"`
	RejectedReason string        `json:"rejectedReason,omitempty"`
	Collateral     []string      `json:"collateral,omitempty"`
	Patches        PatchSet      `json:"patches"`
	Notes          []PatchNote   `json:"notes,omitempty"`
	BaselineBytes  []byte        `json:"-"`
	MutatedBytes   []byte        `json:"-"`
	HexDiff        string        `json:"-"`
}

// Accepted reports whether the candidate produced a payload.
func (tc TestCase) Accepted() bool {
	return tc.RejectedReason == ""
}

// UnitStatus is the outcome of one unit of work.
type UnitStatus int

const (
	// UnitGenerated means at least one payload was produced.
	UnitGenerated UnitStatus = iota
	// UnitExhausted means no violating candidate exists within the cap.
	UnitExhausted
	// UnitRejected means every candidate was rejected by policy.
	UnitRejected
	// UnitFailed means the unit hit a codec or structural error.
	UnitFailed
	// UnitSkipped means the unit was not attempted.
	UnitSkipped
)

func (s UnitStatus) String() string {
	switch s {
	case UnitGenerated:
		return "generated"
	case UnitExhausted:
		return "exhausted"
	case UnitRejected:
		return "rejected"
	case UnitFailed:
		return "failed"
	case UnitSkipped:
		return "skipped"
	}

	return "unknown"
}

// MarshalText renders the status name.
func (s UnitStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *UnitStatus) UnmarshalText(text []byte) error {
	for status := UnitGenerated; status <= UnitSkipped; status++ {
		if status.String() == string(text) {
			*s = status
			return nil
		}
	}

	return fmt.Errorf("unknown unit status %q", text)
}

// UnitReport is the per-unit status line of a run.
type UnitReport struct {
	UnitID       string     `json:"unitId"`
	Index        int        `json:"index"`
	Baseline     string     `json:"baseline"`
	ConstraintID string     `json:"constraintId"`
	RuleID       string     `json:"ruleId"`
	Element      string     `json:"element"`
	Scope        Scope      `json:"scope"`
	Status       UnitStatus `json:"status"`
	Candidates   int        `json:"candidates"`
	Accepted     int        `json:"accepted"`
	Rejected     int        `json:"rejected"`
	Error        string     `json:"error,omitempty"`
}

// BaselineIssue records a baseline that could not be used.
type BaselineIssue struct {
	Name   string `json:"name"`
	Origin Path   `json:"origin"`
	Reason string `json:"reason"`
}

// Report aggregates a run.
type Report struct {
	RunID     string          `json:"runId"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Shard     int             `json:"shard"`
	Shards    int             `json:"shards"`
	Units     []UnitReport    `json:"units"`
	Rules     []RuleIssue     `json:"rules,omitempty"`
	Baselines []BaselineIssue `json:"baselines,omitempty"`
}

// Summary counts unit outcomes.
type Summary struct {
	Units      int     `json:"units"`
	Generated  int     `json:"generated"`
	Exhausted  int     `json:"exhausted"`
	Rejected   int     `json:"rejected"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Payloads   int     `json:"payloads"`
	Candidates int     `json:"candidates"`
	Yield      float64 `json:"yield"`
}

// FieldPair is a pair of leaves handed to external rule synthesis.
type FieldPair struct {
	Left    string `json:"left"`
	Right   string `json:"right"`
	Element string `json:"element"`
	Other   string `json:"other,omitempty"`
	Scope   Scope  `json:"scope"`
}

// PayloadOptions shapes the payload artifacts handed to the replay harness.
type PayloadOptions struct {
	Formats            []string
	FrameOffset        int
	PluginFilter       string
	PluginHeaderOffset int
}

// RunMeta identifies a run in payload metadata.
type RunMeta struct {
	RunID       string
	MessageType string
	Schema      Path
}
