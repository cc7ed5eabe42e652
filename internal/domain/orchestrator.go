package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"fracture.dev/pkg/fracture/internal/codec"
	m "fracture.dev/pkg/fracture/internal/model"
)

// Orchestrator turns one unit of work into test cases: it encodes the
// baseline, draws violating candidates and diffs every candidate encoding
// against the baseline bytes.
type Orchestrator interface {
	RunUnit(ctx context.Context, unit m.Unit) (m.UnitReport, []m.TestCase, error)
}

type orchestrator struct {
	schema      *m.Schema
	codec       codec.Codec
	synthesizer Synthesizer
	differ      Differ
	constraints []m.Constraint
}

// NewOrchestrator constructs an Orchestrator. constraints is the full gated
// set, used to report collateral changes of a candidate.
func NewOrchestrator(schema *m.Schema, c codec.Codec, synthesizer Synthesizer, differ Differ, constraints []m.Constraint) Orchestrator {
	return &orchestrator{
		schema:      schema,
		codec:       c,
		synthesizer: synthesizer,
		differ:      differ,
		constraints: constraints,
	}
}

func (o *orchestrator) RunUnit(ctx context.Context, unit m.Unit) (m.UnitReport, []m.TestCase, error) {
	report := m.UnitReport{
		UnitID:       unit.ID,
		Index:        unit.Index,
		Baseline:     unit.Baseline.Name,
		ConstraintID: unit.Constraint.ID,
		RuleID:       unit.Constraint.RuleID,
		Element:      unit.Element,
		Scope:        unit.Scope,
	}

	if err := ctx.Err(); err != nil {
		report.Status = m.UnitSkipped
		return report, nil, nil
	}

	base, err := o.codec.Encode(unit.Baseline.Instance)
	if err != nil {
		slog.Error("Failed to encode baseline", "unit", unit.ID, "baseline", unit.Baseline.Name, "error", err)

		report.Status = m.UnitFailed
		report.Error = err.Error()

		return report, nil, fmt.Errorf("encode baseline %s: %w", unit.Baseline.Name, err)
	}

	var cases []m.TestCase

	for candidate := range o.synthesizer.Synthesize(ctx, unit.Constraint, unit.Baseline.Instance) {
		tc := o.testCase(unit, base, candidate, len(cases)+1)
		cases = append(cases, tc)

		if tc.Accepted() {
			report.Accepted++
		} else {
			report.Rejected++
		}
	}

	report.Candidates = len(cases)

	switch {
	case errors.Is(ctx.Err(), context.Canceled) && len(cases) == 0:
		report.Status = m.UnitSkipped
	case report.Accepted > 0:
		report.Status = m.UnitGenerated
	case report.Rejected > 0:
		report.Status = m.UnitRejected
	default:
		report.Status = m.UnitExhausted
	}

	slog.Debug("Unit finished", "unit", unit.ID, "status", report.Status, "accepted", report.Accepted, "rejected", report.Rejected)

	return report, cases, nil
}

func (o *orchestrator) testCase(unit m.Unit, base m.EncodedBuffer, candidate m.Candidate, n int) m.TestCase {
	c := unit.Constraint

	tc := m.TestCase{
		ID:             testCaseID(unit.Baseline.Name, c.ID, n),
		UnitID:         unit.ID,
		ConstraintID:   c.ID,
		RuleID:         c.RuleID,
		Predicate:      c.Kind,
		MessageType:    unit.Baseline.Instance.Type,
		Baseline:       unit.Baseline.Name,
		Element:        unit.Element,
		Scope:          unit.Scope,
		Targets:        targets(c),
		Changes:        candidate.Changes,
		RejectedReason: candidate.RejectedReason,
		Collateral:     Collateral(c, o.constraints, o.schema, unit.Baseline.Instance, candidate.Instance),
		Patches:        m.PatchSet{Patches: []m.Patch{}},
		BaselineBytes:  base.Bytes,
		MutatedBytes:   candidate.Buffer.Bytes,
	}

	if !tc.Accepted() {
		return tc
	}

	ps, err := o.differ.Diff(base.Bytes, candidate.Buffer.Bytes)
	if err != nil {
		slog.Warn("Rejecting candidate", "testCase", tc.ID, "error", err)

		tc.RejectedReason = m.RejectLengthMismatch

		return tc
	}

	if ps.Empty() {
		tc.RejectedReason = m.RejectNoByteChange
		return tc
	}

	tc.Patches = ps
	tc.Notes = Annotate(ps, candidate.Buffer.Spans)

	tc.HexDiff, err = HexDiff(base.Bytes, candidate.Buffer.Bytes, unit.Baseline.Name, tc.ID)
	if err != nil {
		slog.Warn("Failed to render hex diff", "testCase", tc.ID, "error", err)
	}

	return tc
}

func targets(c m.Constraint) []string {
	out := []string{c.Subject.String()}
	if len(c.Object) > 0 {
		out = append(out, c.Object.String())
	}

	return out
}

// testCaseID builds "<baseline>_<constraint id prefix>_mut<n>" with the
// baseline name reduced to file-name-safe characters.
func testCaseID(baseline, constraintID string, n int) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, baseline)

	if len(constraintID) > 8 {
		constraintID = constraintID[:8]
	}

	return fmt.Sprintf("%s_%s_mut%d", name, constraintID, n)
}
