package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	m "fracture.dev/pkg/fracture/internal/model"
)

// attachSchema builds:
//
//	Attach ::= SEQUENCE {
//	  header Header { msgId INTEGER (0..255), flags INTEGER (0..255) },
//	  limits Limits { low INTEGER (0..255), high INTEGER (0..255) },
//	  extra  Extra  { timer INTEGER (0..255) } OPTIONAL
//	}
//
// Header, Limits and Extra are information elements. Every value is byte
// aligned, so the baseline encodes as 01 00 03 05 plus one presence bit.
func attachSchema(t *testing.T) *m.Schema {
	t.Helper()

	b := m.NewSchemaBuilder()
	header := b.Element(b.Sequence("header", b.Integer("msgId", 0, 255), b.Integer("flags", 0, 255)), "Header")
	limits := b.Element(b.Sequence("limits", b.Integer("low", 0, 255), b.Integer("high", 0, 255)), "Limits")
	extra := b.Optional(b.Element(b.Sequence("extra", b.Integer("timer", 0, 255)), "Extra"))
	b.Type(b.Sequence("Attach", header, limits, extra))

	s, err := b.Build()
	require.NoError(t, err)

	return s
}

func attachBaseline() m.Instance {
	inst := m.NewInstance("Attach")
	inst.Values["Attach.header.msgId"] = m.IntValue(1)
	inst.Values["Attach.header.flags"] = m.IntValue(0)
	inst.Values["Attach.limits.low"] = m.IntValue(3)
	inst.Values["Attach.limits.high"] = m.IntValue(5)
	inst.Present["Attach.extra"] = false

	return inst
}

func baseline(name string) m.Baseline {
	return m.Baseline{Name: name, Origin: m.Path(name), Instance: attachBaseline()}
}

func lowBelowHigh() m.Constraint {
	return m.Constraint{
		RuleID:  "low_below_high",
		Kind:    m.LessThan,
		Subject: m.MustParsePath("Attach.limits.low"),
		Object:  m.MustParsePath("Attach.limits.high"),
	}.WithID()
}

func highAboveLow() m.Constraint {
	return m.Constraint{
		RuleID:  "high_above_low",
		Kind:    m.GreaterThan,
		Subject: m.MustParsePath("Attach.limits.high"),
		Object:  m.MustParsePath("Attach.limits.low"),
	}.WithID()
}

func msgIDRange(lo, hi int64) m.Constraint {
	return m.Constraint{
		RuleID:  "msg_id_range",
		Kind:    m.RangeMembership,
		Subject: m.MustParsePath("Attach.header.msgId"),
		Literal: &m.Literal{Range: &m.Range{Low: lo, High: hi}},
	}.WithID()
}

func flagsNeedExtra() m.Constraint {
	return m.Constraint{
		RuleID:  "flags_need_extra",
		Kind:    m.ImpliesPresence,
		Subject: m.MustParsePath("Attach.header.flags"),
		Object:  m.MustParsePath("Attach.extra"),
		Literal: &m.Literal{Value: "1"},
	}.WithID()
}

func headerExcludesExtra() m.Constraint {
	return m.Constraint{
		RuleID:  "header_excludes_extra",
		Kind:    m.ImpliesAbsence,
		Subject: m.MustParsePath("Attach.header"),
		Object:  m.MustParsePath("Attach.extra"),
	}.WithID()
}

func attachCoverage(t *testing.T, schema *m.Schema) m.CoverageSet {
	t.Helper()

	coverage, err := Select(schema, OccurrenceCost())
	require.NoError(t, err)

	return coverage
}
