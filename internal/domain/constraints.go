package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	m "fracture.dev/pkg/fracture/internal/model"
)

func invalid(c m.Constraint, field m.FieldPath, err error) error {
	return &m.ValidationError{ConstraintID: c.ID, Field: field.String(), Reason: err.Error(), Err: err}
}

// Validate checks that c is well-typed against schema. Failures are
// ValidationErrors wrapping ErrInvalidFieldPath, ErrTypeMismatch or
// ErrUnsupportedRule.
func Validate(c m.Constraint, schema *m.Schema) error {
	if !c.Kind.Valid() {
		return invalid(c, nil, fmt.Errorf("%w: predicate kind %q", m.ErrUnsupportedRule, c.Kind))
	}

	if _, err := schema.Resolve(c.Subject); err != nil {
		return invalid(c, c.Subject, err)
	}

	if c.Kind.Implication() {
		return validateImplication(c, schema)
	}

	domain, err := schema.LeafDomain(c.Subject)
	if err != nil {
		return invalid(c, c.Subject, err)
	}

	if c.Kind.Ordered() && !domain.Ordered() {
		return invalid(c, c.Subject, fmt.Errorf("%w: %s needs an ordered field, %s is %s", m.ErrTypeMismatch, c.Kind, c.Subject, domain.Kind))
	}

	if c.Kind == m.RangeMembership {
		return validateRange(c)
	}

	switch {
	case len(c.Object) > 0:
		other, err := schema.LeafDomain(c.Object)
		if err != nil {
			return invalid(c, c.Object, err)
		}

		if c.Kind.Ordered() && !other.Ordered() {
			return invalid(c, c.Object, fmt.Errorf("%w: %s needs an ordered field, %s is %s", m.ErrTypeMismatch, c.Kind, c.Object, other.Kind))
		}

		if !domain.Comparable(other) {
			return invalid(c, c.Object, fmt.Errorf("%w: cannot compare %s with %s", m.ErrTypeMismatch, domain.Kind, other.Kind))
		}
	case c.Literal != nil && c.Literal.Range == nil:
		if err := checkLiteral(domain, c.Literal.Value); err != nil {
			return invalid(c, c.Subject, err)
		}
	default:
		return invalid(c, nil, fmt.Errorf("%w: %s needs an object field or a literal", m.ErrUnsupportedRule, c.Kind))
	}

	return nil
}

// checkLiteral parses text in domain and requires the value to be one the
// field can hold.
func checkLiteral(domain m.Domain, text string) error {
	v, err := domain.Parse(text)
	if err != nil {
		return err
	}

	if !domain.Contains(v) {
		return fmt.Errorf("%w: %q is outside %s %d..%d", m.ErrTypeMismatch, text, domain.Kind, domain.Min, domain.Max)
	}

	return nil
}

func validateRange(c m.Constraint) error {
	if c.Literal == nil || c.Literal.Range == nil {
		return invalid(c, nil, fmt.Errorf("%w: rangeMembership needs a literal range", m.ErrTypeMismatch))
	}

	if c.Literal.Range.Low > c.Literal.Range.High {
		return invalid(c, nil, fmt.Errorf("%w: empty range %s", m.ErrTypeMismatch, c.Literal))
	}

	return nil
}

func validateImplication(c m.Constraint, schema *m.Schema) error {
	if c.Literal != nil {
		if c.Literal.Range != nil {
			return invalid(c, c.Subject, fmt.Errorf("%w: implication antecedent cannot be a range", m.ErrTypeMismatch))
		}

		domain, err := schema.LeafDomain(c.Subject)
		if err != nil {
			return invalid(c, c.Subject, err)
		}

		if err := checkLiteral(domain, c.Literal.Value); err != nil {
			return invalid(c, c.Subject, err)
		}
	}

	if len(c.Object) == 0 {
		return invalid(c, nil, fmt.Errorf("%w: %s needs an object field", m.ErrUnsupportedRule, c.Kind))
	}

	object, err := schema.Resolve(c.Object)
	if err != nil {
		return invalid(c, c.Object, err)
	}

	if n := schema.Node(object); n.Kind != m.KindOptional {
		return invalid(c, c.Object, fmt.Errorf("%w: %s is a %s, %s needs an optional field", m.ErrTypeMismatch, c.Object, n.Kind, c.Kind))
	}

	return nil
}

// operand is one side of a comparison as read from an instance.
type operand struct {
	domain m.Domain
	value  m.Value
}

func (o operand) number() int64 {
	return o.domain.NumberOf(o.value)
}

func (o operand) equal(other operand) bool {
	if o.domain.Numeric() && other.domain.Numeric() {
		return o.number() == other.number()
	}

	return o.value.Equal(other.value)
}

func readField(schema *m.Schema, inst m.Instance, path m.FieldPath) (operand, bool, error) {
	domain, err := schema.LeafDomain(path)
	if err != nil {
		return operand{}, false, err
	}

	if !schema.Reaches(inst, path) {
		return operand{}, false, nil
	}

	v, ok := inst.Value(path)
	if !ok {
		return operand{}, false, fmt.Errorf("%w: %s", m.ErrMissingValue, path)
	}

	return operand{domain: domain, value: v}, true, nil
}

// Evaluate computes the truth value of c over inst. A comparison involving a
// field that is not live in inst holds vacuously, as does an implication
// whose antecedent does not hold.
func Evaluate(c m.Constraint, schema *m.Schema, inst m.Instance) (bool, error) {
	if c.Kind.Implication() {
		return evaluateImplication(c, schema, inst)
	}

	subject, live, err := readField(schema, inst, c.Subject)
	if err != nil || !live {
		return true, err
	}

	if c.Kind == m.RangeMembership {
		if c.Literal == nil || c.Literal.Range == nil {
			return false, fmt.Errorf("%w: no range", m.ErrTypeMismatch)
		}

		n := subject.number()

		return n >= c.Literal.Range.Low && n <= c.Literal.Range.High, nil
	}

	var object operand

	if len(c.Object) > 0 {
		object, live, err = readField(schema, inst, c.Object)
		if err != nil || !live {
			return true, err
		}
	} else {
		if c.Literal == nil {
			return false, fmt.Errorf("%w: no operand", m.ErrUnsupportedRule)
		}

		v, err := subject.domain.Parse(c.Literal.Value)
		if err != nil {
			return false, err
		}

		object = operand{domain: subject.domain, value: v}
	}

	switch c.Kind {
	case m.Equals:
		return subject.equal(object), nil
	case m.NotEquals:
		return !subject.equal(object), nil
	case m.LessThan:
		return subject.number() < object.number(), nil
	case m.GreaterThan:
		return subject.number() > object.number(), nil
	}

	return false, fmt.Errorf("%w: predicate kind %q", m.ErrUnsupportedRule, c.Kind)
}

func evaluateImplication(c m.Constraint, schema *m.Schema, inst m.Instance) (bool, error) {
	holds, err := antecedent(c, schema, inst)
	if err != nil || !holds {
		return true, err
	}

	present := schema.Reaches(inst, c.Object)

	if c.Kind == m.ImpliesPresence {
		return present, nil
	}

	return !present, nil
}

func antecedent(c m.Constraint, schema *m.Schema, inst m.Instance) (bool, error) {
	if c.Literal == nil {
		return schema.Reaches(inst, c.Subject), nil
	}

	subject, live, err := readField(schema, inst, c.Subject)
	if err != nil || !live {
		return false, err
	}

	v, err := subject.domain.Parse(c.Literal.Value)
	if err != nil {
		return false, err
	}

	return subject.equal(operand{domain: subject.domain, value: v}), nil
}

// Collateral lists the constraints other than target whose truth value
// differs between baseline and mutated.
func Collateral(target m.Constraint, others []m.Constraint, schema *m.Schema, baseline, mutated m.Instance) []string {
	var changed []string

	for _, c := range others {
		if c.ID == target.ID {
			continue
		}

		before, errBefore := Evaluate(c, schema, baseline)
		after, errAfter := Evaluate(c, schema, mutated)

		if errBefore != nil || errAfter != nil {
			slog.Debug("Skipping collateral check", "constraint", c.ID, "before", errBefore, "after", errAfter)
			continue
		}

		if before != after {
			changed = append(changed, c.ID)
		}
	}

	return changed
}

// ScopeOf names the selected element a constraint belongs to and tells
// whether both of its fields live in one selected element.
func ScopeOf(c m.Constraint, coverage m.CoverageSet) (string, m.Scope) {
	element := ""
	if e, ok := coverage.ElementFor(c.Subject); ok {
		element = e.Path.String()
	}

	if len(c.Object) == 0 {
		return element, m.ScopeIntra
	}

	for _, e := range coverage.Selected {
		if e.Reaches(c.Subject) && e.Reaches(c.Object) {
			return e.Path.String(), m.ScopeIntra
		}
	}

	return element, m.ScopeInter
}

// GateResult is the outcome of passing a batch of rule records through the
// ingestion gate.
type GateResult struct {
	Constraints []m.Constraint
	Issues      []m.RuleIssue
}

// Gate converts, filters, validates and deduplicates rule records. Rejected
// records are logged and reported; they never reach synthesis.
func Gate(schema *m.Schema, records []m.RuleRecord, minConfidence m.Confidence) GateResult {
	var result GateResult

	seen := make(map[string]string)

	reject := func(rec m.RuleRecord, reason string) {
		slog.Warn("Rule rejected", "rule", rec.ID, "source", rec.Source, "reason", reason)
		result.Issues = append(result.Issues, m.RuleIssue{RuleID: rec.ID, Source: rec.Source, Reason: reason})
	}

	for _, rec := range records {
		confidence := ConfidenceOf(rec)
		if confidence.Rank() < minConfidence.Rank() {
			reject(rec, fmt.Sprintf("confidence %s below %s", confidence, minConfidence))
			continue
		}

		c, err := ToConstraint(rec)
		if err != nil {
			reject(rec, err.Error())
			continue
		}

		if err := Validate(c, schema); err != nil {
			reject(rec, err.Error())
			continue
		}

		if first, ok := seen[c.ID]; ok {
			reject(rec, "duplicate of rule "+first)
			continue
		}

		seen[c.ID] = rec.ID
		result.Constraints = append(result.Constraints, c)
	}

	slog.Info("Rules gated", "accepted", len(result.Constraints), "rejected", len(result.Issues))

	return result
}

// ConfidenceOf reads the confidence of a record: the explicit level when
// given, then the boolean flag, then unknown.
func ConfidenceOf(rec m.RuleRecord) m.Confidence {
	if rec.Confidence != "" {
		c := m.Confidence(strings.ToUpper(strings.TrimSpace(rec.Confidence)))
		if c.Rank() > 0 {
			return c
		}

		return m.ConfidenceUnknown
	}

	if rec.ConfidenceFlag != nil {
		if *rec.ConfidenceFlag {
			return m.ConfidenceHigh
		}

		return m.ConfidenceLow
	}

	return m.ConfidenceUnknown
}

// ToConstraint converts a rule record into an unvalidated constraint with
// its stable ID.
func ToConstraint(rec m.RuleRecord) (m.Constraint, error) {
	var (
		c   m.Constraint
		err error
	)

	if strings.TrimSpace(rec.DSL) != "" {
		c, err = ParseDSL(rec.DSL, rec.SubjectPath, rec.ObjectPath)
	} else {
		c, err = structured(rec)
	}

	if err != nil {
		var verr *m.ValidationError
		if errors.As(err, &verr) {
			verr.ConstraintID = rec.ID
			return m.Constraint{}, verr
		}

		return m.Constraint{}, &m.ValidationError{ConstraintID: rec.ID, Reason: err.Error(), Err: err}
	}

	c.RuleID = rec.ID
	c.Evidence = m.Evidence{Ref: string(rec.Source), Text: rec.EvidenceText, Confidence: ConfidenceOf(rec)}

	return c.WithID(), nil
}

func structured(rec m.RuleRecord) (m.Constraint, error) {
	kind := m.PredicateKind(rec.PredicateKind)
	if !kind.Valid() {
		return m.Constraint{}, fmt.Errorf("%w: predicate kind %q", m.ErrUnsupportedRule, rec.PredicateKind)
	}

	subject, err := m.ParsePath(rec.SubjectPath)
	if err != nil {
		return m.Constraint{}, err
	}

	c := m.Constraint{Kind: kind, Subject: subject}

	if strings.TrimSpace(rec.ObjectPath) != "" {
		if c.Object, err = m.ParsePath(rec.ObjectPath); err != nil {
			return m.Constraint{}, err
		}
	}

	if rec.Literal != nil {
		if c.Literal, err = literalOf(rec.Literal, kind == m.RangeMembership); err != nil {
			return m.Constraint{}, err
		}
	}

	return c, nil
}

func literalOf(raw any, wantRange bool) (*m.Literal, error) {
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: range literal needs two bounds, got %d", m.ErrTypeMismatch, len(v))
		}

		return rangeOf(scalar(v[0]), scalar(v[1]))
	case map[string]any:
		return rangeOf(scalar(v["low"]), scalar(v["high"]))
	}

	text := scalar(raw)
	if wantRange {
		return parseRange(text)
	}

	return &m.Literal{Value: text}, nil
}

func scalar(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.Trim(strings.TrimSpace(v), `'"`)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}

	return fmt.Sprint(raw)
}

// parseRange reads "lo..hi" or "[lo,hi]".
func parseRange(text string) (*m.Literal, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")

	lo, hi, ok := strings.Cut(text, "..")
	if !ok {
		lo, hi, ok = strings.Cut(text, ",")
	}

	if !ok {
		return nil, fmt.Errorf("%w: %q is not a range", m.ErrTypeMismatch, text)
	}

	return rangeOf(lo, hi)
}

func rangeOf(lo, hi string) (*m.Literal, error) {
	low, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: range bound %q", m.ErrTypeMismatch, lo)
	}

	high, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: range bound %q", m.ErrTypeMismatch, hi)
	}

	return &m.Literal{Range: &m.Range{Low: low, High: high}}, nil
}
