package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// PredicateKind is the relation a constraint asserts.
type PredicateKind string

const (
	Equals          PredicateKind = "equals"
	NotEquals       PredicateKind = "notEquals"
	LessThan        PredicateKind = "lessThan"
	GreaterThan     PredicateKind = "greaterThan"
	ImpliesPresence PredicateKind = "impliesPresence"
	ImpliesAbsence  PredicateKind = "impliesAbsence"
	RangeMembership PredicateKind = "rangeMembership"
)

// PredicateKinds lists every supported predicate kind.
var PredicateKinds = []PredicateKind{
	Equals, NotEquals, LessThan, GreaterThan, ImpliesPresence, ImpliesAbsence, RangeMembership,
}

// Valid reports whether k is a known predicate kind.
func (k PredicateKind) Valid() bool {
	for _, known := range PredicateKinds {
		if k == known {
			return true
		}
	}

	return false
}

// Ordered reports whether k needs ordered field domains.
func (k PredicateKind) Ordered() bool {
	return k == LessThan || k == GreaterThan || k == RangeMembership
}

// Implication reports whether k is a presence implication.
func (k PredicateKind) Implication() bool {
	return k == ImpliesPresence || k == ImpliesAbsence
}

// Confidence grades the evidence behind a rule.
type Confidence string

const (
	ConfidenceHigh    Confidence = "HIGH"
	ConfidenceMedium  Confidence = "MEDIUM"
	ConfidenceLow     Confidence = "LOW"
	ConfidenceVeryLow Confidence = "VERY_LOW"
	ConfidenceUnknown Confidence = "UNKNOWN"
)

// Rank orders confidence levels; unknown ranks lowest.
func (c Confidence) Rank() int {
	switch Confidence(strings.ToUpper(string(c))) {
	case ConfidenceHigh:
		return 4
	case ConfidenceMedium:
		return 3
	case ConfidenceLow:
		return 2
	case ConfidenceVeryLow:
		return 1
	}

	return 0
}

// Evidence points back at the text a rule was derived from.
type Evidence struct {
	Ref        string     `json:"ref,omitempty"`
	Text       string     `json:"text,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Range is an inclusive numeric interval.
type Range struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
}

// Literal is a constant operand. Value is read in the subject's domain;
// Range is used by rangeMembership.
type Literal struct {
	Value string `json:"value,omitempty"`
	Range *Range `json:"range,omitempty"`
}

func (l *Literal) String() string {
	if l == nil {
		return ""
	}

	if l.Range != nil {
		return fmt.Sprintf("[%d,%d]", l.Range.Low, l.Range.High)
	}

	return l.Value
}

// Scope tells whether a constraint stays inside one element.
type Scope string

const (
	ScopeIntra Scope = "intra"
	ScopeInter Scope = "inter"
)

// Constraint is a validated rule over one or two fields. For implications
// Subject is the antecedent (its presence, or its value equal to Literal)
// and Object the dependent optional subtree.
type Constraint struct {
	ID       string        `json:"id"`
	RuleID   string        `json:"ruleId"`
	Subject  FieldPath     `json:"subject"`
	Kind     PredicateKind `json:"predicateKind"`
	Object   FieldPath     `json:"object,omitempty"`
	Literal  *Literal      `json:"literal,omitempty"`
	Evidence Evidence      `json:"evidence"`
}

// Hash is a stable digest of the semantic fields of c.
func (c Constraint) Hash() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(c.Kind),
		c.Subject.String(),
		c.Object.String(),
		c.Literal.String(),
	}, "\x1f")))

	return hex.EncodeToString(sum[:])
}

// WithID returns c with ID set from its hash.
func (c Constraint) WithID() Constraint {
	c.ID = c.Hash()[:16]
	return c
}

func (c Constraint) String() string {
	operand := c.Object.String()
	if c.Literal != nil {
		if operand != "" {
			operand += " if " + c.Subject.String() + "=" + c.Literal.String()
		} else {
			operand = c.Literal.String()
		}
	}

	return fmt.Sprintf("%s(%s, %s)", c.Kind, c.Subject, operand)
}

// RuleRecord is one externally supplied rule before validation.
type RuleRecord struct {
	ID             string `json:"-"`
	Source         Path   `json:"-"`
	SubjectPath    string `json:"subjectPath,omitempty"`
	ObjectPath     string `json:"objectPath,omitempty"`
	Literal        any    `json:"literal,omitempty"`
	PredicateKind  string `json:"predicateKind,omitempty"`
	DSL            string `json:"dsl,omitempty"`
	EvidenceText   string `json:"evidenceText,omitempty"`
	Confidence     string `json:"confidence,omitempty"`
	ConfidenceFlag *bool  `json:"confidenceFlag,omitempty"`
}

// RuleIssue records a rule that did not pass ingestion.
type RuleIssue struct {
	RuleID string `json:"ruleId"`
	Source Path   `json:"source,omitempty"`
	Reason string `json:"reason"`
}
