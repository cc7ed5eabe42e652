package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "fracture.dev/pkg/fracture/internal/model"
)

func TestValidate(t *testing.T) {
	schema := attachSchema(t)

	tests := []struct {
		name       string
		constraint m.Constraint
		wantErr    error
	}{
		{name: "field comparison", constraint: lowBelowHigh()},
		{name: "range", constraint: msgIDRange(1, 10)},
		{name: "implication with literal", constraint: flagsNeedExtra()},
		{name: "implication on presence", constraint: headerExcludesExtra()},
		{
			name:       "literal comparison",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.header.flags"), Literal: &m.Literal{Value: "7"}},
		},
		{
			name:       "unknown predicate",
			constraint: m.Constraint{Kind: "between", Subject: m.MustParsePath("Attach.limits.low")},
			wantErr:    m.ErrUnsupportedRule,
		},
		{
			name:       "unknown field",
			constraint: m.Constraint{Kind: m.LessThan, Subject: m.MustParsePath("Attach.limits.mid"), Object: m.MustParsePath("Attach.limits.high")},
			wantErr:    m.ErrInvalidFieldPath,
		},
		{
			name:       "unknown message type",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Detach.header.flags"), Literal: &m.Literal{Value: "1"}},
			wantErr:    m.ErrInvalidFieldPath,
		},
		{
			name:       "subject is not a leaf",
			constraint: m.Constraint{Kind: m.LessThan, Subject: m.MustParsePath("Attach.limits"), Object: m.MustParsePath("Attach.limits.high")},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "empty range",
			constraint: msgIDRange(10, 1),
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "range without bounds",
			constraint: m.Constraint{Kind: m.RangeMembership, Subject: m.MustParsePath("Attach.header.msgId"), Literal: &m.Literal{Value: "3"}},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "literal outside domain type",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.header.flags"), Literal: &m.Literal{Value: "on"}},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "literal outside declared range",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.limits.low"), Literal: &m.Literal{Value: "9223372036854775807"}},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "literal just past the bound",
			constraint: m.Constraint{Kind: m.LessThan, Subject: m.MustParsePath("Attach.limits.high"), Literal: &m.Literal{Value: "256"}},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "antecedent outside declared range",
			constraint: m.Constraint{Kind: m.ImpliesPresence, Subject: m.MustParsePath("Attach.header.flags"), Object: m.MustParsePath("Attach.extra"), Literal: &m.Literal{Value: "-1"}},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "comparison without operand",
			constraint: m.Constraint{Kind: m.NotEquals, Subject: m.MustParsePath("Attach.header.flags")},
			wantErr:    m.ErrUnsupportedRule,
		},
		{
			name:       "implication object is not optional",
			constraint: m.Constraint{Kind: m.ImpliesPresence, Subject: m.MustParsePath("Attach.header"), Object: m.MustParsePath("Attach.limits")},
			wantErr:    m.ErrTypeMismatch,
		},
		{
			name:       "implication without object",
			constraint: m.Constraint{Kind: m.ImpliesAbsence, Subject: m.MustParsePath("Attach.header")},
			wantErr:    m.ErrUnsupportedRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.constraint, schema)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			var verr *m.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestEvaluate(t *testing.T) {
	schema := attachSchema(t)

	withExtra := attachBaseline()
	withExtra.Present["Attach.extra"] = true
	withExtra.Values["Attach.extra.timer"] = m.IntValue(9)

	flagged := attachBaseline()
	flagged.Values["Attach.header.flags"] = m.IntValue(1)

	tests := []struct {
		name       string
		constraint m.Constraint
		inst       m.Instance
		want       bool
	}{
		{name: "less than holds", constraint: lowBelowHigh(), inst: attachBaseline(), want: true},
		{name: "greater than holds", constraint: highAboveLow(), inst: attachBaseline(), want: true},
		{name: "inside range", constraint: msgIDRange(1, 10), inst: attachBaseline(), want: true},
		{name: "outside range", constraint: msgIDRange(2, 10), inst: attachBaseline(), want: false},
		{
			name:       "literal equality",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.limits.high"), Literal: &m.Literal{Value: "5"}},
			inst:       attachBaseline(),
			want:       true,
		},
		{
			name:       "literal inequality",
			constraint: m.Constraint{Kind: m.NotEquals, Subject: m.MustParsePath("Attach.limits.high"), Literal: &m.Literal{Value: "5"}},
			inst:       attachBaseline(),
			want:       false,
		},
		{
			name:       "absent field holds vacuously",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.extra.timer"), Literal: &m.Literal{Value: "3"}},
			inst:       attachBaseline(),
			want:       true,
		},
		{
			name:       "present field is compared",
			constraint: m.Constraint{Kind: m.Equals, Subject: m.MustParsePath("Attach.extra.timer"), Literal: &m.Literal{Value: "3"}},
			inst:       withExtra,
			want:       false,
		},
		{name: "antecedent false holds vacuously", constraint: flagsNeedExtra(), inst: attachBaseline(), want: true},
		{name: "antecedent true without object", constraint: flagsNeedExtra(), inst: flagged, want: false},
		{name: "absence holds", constraint: headerExcludesExtra(), inst: attachBaseline(), want: true},
		{name: "absence broken", constraint: headerExcludesExtra(), inst: withExtra, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.constraint, schema, tt.inst)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_MissingValue(t *testing.T) {
	schema := attachSchema(t)

	inst := attachBaseline()
	delete(inst.Values, "Attach.limits.low")

	_, err := Evaluate(lowBelowHigh(), schema, inst)
	require.ErrorIs(t, err, m.ErrMissingValue)
}

func TestCollateral(t *testing.T) {
	schema := attachSchema(t)

	target := lowBelowHigh()
	others := []m.Constraint{target, highAboveLow(), msgIDRange(1, 10)}

	mutated := attachBaseline()
	mutated.Values["Attach.limits.low"] = m.IntValue(5)

	assert.Equal(t, []string{highAboveLow().ID}, Collateral(target, others, schema, attachBaseline(), mutated))
	assert.Empty(t, Collateral(target, others, schema, attachBaseline(), attachBaseline()))
}

func TestScopeOf(t *testing.T) {
	schema := attachSchema(t)
	coverage := attachCoverage(t, schema)

	crossing := m.Constraint{
		Kind:    m.LessThan,
		Subject: m.MustParsePath("Attach.header.msgId"),
		Object:  m.MustParsePath("Attach.limits.low"),
	}

	tests := []struct {
		name        string
		constraint  m.Constraint
		wantElement string
		wantScope   m.Scope
	}{
		{name: "both fields in one element", constraint: lowBelowHigh(), wantElement: "Attach.limits", wantScope: m.ScopeIntra},
		{name: "literal only", constraint: msgIDRange(1, 10), wantElement: "Attach.header", wantScope: m.ScopeIntra},
		{name: "fields in two elements", constraint: crossing, wantElement: "Attach.header", wantScope: m.ScopeInter},
		{name: "object is a subtree", constraint: flagsNeedExtra(), wantElement: "Attach.header", wantScope: m.ScopeInter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			element, scope := ScopeOf(tt.constraint, coverage)
			assert.Equal(t, tt.wantElement, element)
			assert.Equal(t, tt.wantScope, scope)
		})
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func TestConfidenceOf(t *testing.T) {
	tests := []struct {
		name string
		rec  m.RuleRecord
		want m.Confidence
	}{
		{name: "explicit", rec: m.RuleRecord{Confidence: "medium"}, want: m.ConfidenceMedium},
		{name: "explicit wins over flag", rec: m.RuleRecord{Confidence: "VERY_LOW", ConfidenceFlag: boolPtr(true)}, want: m.ConfidenceVeryLow},
		{name: "unknown level", rec: m.RuleRecord{Confidence: "certain"}, want: m.ConfidenceUnknown},
		{name: "flag set", rec: m.RuleRecord{ConfidenceFlag: boolPtr(true)}, want: m.ConfidenceHigh},
		{name: "flag cleared", rec: m.RuleRecord{ConfidenceFlag: boolPtr(false)}, want: m.ConfidenceLow},
		{name: "nothing", rec: m.RuleRecord{}, want: m.ConfidenceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfidenceOf(tt.rec))
		})
	}
}

func TestToConstraint_Literals(t *testing.T) {
	tests := []struct {
		name    string
		rec     m.RuleRecord
		want    *m.Literal
		wantErr error
	}{
		{
			name: "list range",
			rec:  m.RuleRecord{PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: []any{1.0, 10.0}},
			want: &m.Literal{Range: &m.Range{Low: 1, High: 10}},
		},
		{
			name: "map range",
			rec:  m.RuleRecord{PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: map[string]any{"low": 2, "high": int64(8)}},
			want: &m.Literal{Range: &m.Range{Low: 2, High: 8}},
		},
		{
			name: "text range",
			rec:  m.RuleRecord{PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: "3..9"},
			want: &m.Literal{Range: &m.Range{Low: 3, High: 9}},
		},
		{
			name: "scalar",
			rec:  m.RuleRecord{PredicateKind: "equals", SubjectPath: "Attach.header.flags", Literal: 7},
			want: &m.Literal{Value: "7"},
		},
		{
			name: "quoted text",
			rec:  m.RuleRecord{PredicateKind: "equals", SubjectPath: "Attach.header.flags", Literal: "'7'"},
			want: &m.Literal{Value: "7"},
		},
		{
			name:    "short list",
			rec:     m.RuleRecord{PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: []any{1.0}},
			wantErr: m.ErrTypeMismatch,
		},
		{
			name:    "not a range",
			rec:     m.RuleRecord{PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: "seven"},
			wantErr: m.ErrTypeMismatch,
		},
		{
			name:    "unknown predicate",
			rec:     m.RuleRecord{PredicateKind: "sometimes", SubjectPath: "Attach.header.msgId"},
			wantErr: m.ErrUnsupportedRule,
		},
		{
			name:    "bad path",
			rec:     m.RuleRecord{PredicateKind: "equals", SubjectPath: "Attach..msgId", Literal: 1},
			wantErr: m.ErrInvalidFieldPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.ID = "r1"

			c, err := ToConstraint(tt.rec)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				var verr *m.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "r1", verr.ConstraintID)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Literal)
			assert.Equal(t, "r1", c.RuleID)
			assert.Len(t, c.ID, 16)
		})
	}
}

func TestToConstraint_DSL(t *testing.T) {
	rec := m.RuleRecord{
		ID:           "flags_need_extra",
		Source:       "rules/limits.yaml",
		DSL:          "IMPLIES(EQ(field1, 1), PRESENT(field2))",
		SubjectPath:  "Attach.header.flags",
		ObjectPath:   "Attach.extra",
		EvidenceText: "extra is mandatory when flags is 1",
		Confidence:   "MEDIUM",
	}

	c, err := ToConstraint(rec)
	require.NoError(t, err)

	assert.Equal(t, flagsNeedExtra().ID, c.ID, "IDs depend on semantics only")
	assert.Equal(t, m.Evidence{Ref: "rules/limits.yaml", Text: "extra is mandatory when flags is 1", Confidence: m.ConfidenceMedium}, c.Evidence)

	rec.DSL = "IMPLIES(GT(field1, 1), PRESENT(field2))"

	_, err = ToConstraint(rec)
	require.ErrorIs(t, err, m.ErrUnsupportedRule)
}

func TestGate(t *testing.T) {
	schema := attachSchema(t)

	records := []m.RuleRecord{
		{ID: "low_below_high", PredicateKind: "lessThan", SubjectPath: "Attach.limits.low", ObjectPath: "Attach.limits.high", Confidence: "HIGH"},
		{ID: "low_below_high_again", DSL: "LT(Attach.limits.low, Attach.limits.high)", Confidence: "HIGH"},
		{ID: "weak", PredicateKind: "equals", SubjectPath: "Attach.header.flags", Literal: 0, Confidence: "VERY_LOW"},
		{ID: "unknown_field", PredicateKind: "lessThan", SubjectPath: "Attach.limits.mid", ObjectPath: "Attach.limits.high", Confidence: "HIGH"},
		{ID: "msg_id_range", PredicateKind: "rangeMembership", SubjectPath: "Attach.header.msgId", Literal: []any{1.0, 10.0}, ConfidenceFlag: boolPtr(true)},
	}

	result := Gate(schema, records, m.ConfidenceLow)

	require.Len(t, result.Constraints, 2)
	assert.Equal(t, "low_below_high", result.Constraints[0].RuleID)
	assert.Equal(t, "msg_id_range", result.Constraints[1].RuleID)

	require.Len(t, result.Issues, 3)

	reasons := make(map[string]string)
	for _, issue := range result.Issues {
		reasons[issue.RuleID] = issue.Reason
	}

	assert.Equal(t, "duplicate of rule low_below_high", reasons["low_below_high_again"])
	assert.Contains(t, reasons["weak"], "confidence VERY_LOW below LOW")
	assert.Contains(t, reasons["unknown_field"], "mid")

	for _, c := range result.Constraints {
		assert.NoError(t, Validate(c, schema))
	}
}

func TestGate_MinConfidence(t *testing.T) {
	schema := attachSchema(t)

	records := []m.RuleRecord{
		{ID: "unknown", PredicateKind: "lessThan", SubjectPath: "Attach.limits.low", ObjectPath: "Attach.limits.high"},
	}

	assert.Len(t, Gate(schema, records, m.ConfidenceUnknown).Constraints, 1)

	result := Gate(schema, records, m.ConfidenceLow)
	assert.Empty(t, result.Constraints)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0].Reason, "UNKNOWN")
}
