package violations

import (
	"iter"

	m "fracture.dev/pkg/fracture/internal/model"
)

// impliesPresence makes the antecedent hold and removes the object.
func impliesPresence(in Input) iter.Seq[Proposal] {
	return implication(in, false)
}

// impliesAbsence makes the antecedent hold and switches the object on.
func impliesAbsence(in Input) iter.Seq[Proposal] {
	return implication(in, true)
}

func implication(in Input, present bool) iter.Seq[Proposal] {
	antecedent, ok := establish(in)
	if !ok {
		return none()
	}

	if in.Schema.Reaches(in.Baseline, in.Constraint.Object) == present && len(antecedent) == 0 {
		// The baseline already breaks the rule.
		return none()
	}

	proposal := append(antecedent, presence(in.Constraint.Object, present))

	return func(yield func(Proposal) bool) {
		yield(proposal)
	}
}

// establish returns the edits that make the antecedent hold on the baseline.
func establish(in Input) (Proposal, bool) {
	c := in.Constraint

	if c.Literal == nil {
		if in.Schema.Reaches(in.Baseline, c.Subject) {
			return nil, true
		}

		id, err := in.Schema.Resolve(c.Subject)
		if err != nil || in.Schema.Node(id).Kind != m.KindOptional {
			return nil, false
		}

		if !in.Schema.Reaches(in.Baseline, c.Subject.Parent()) {
			return nil, false
		}

		return Proposal{presence(c.Subject, true)}, true
	}

	subject, ok := read(in, c.Subject)
	if !ok {
		return nil, false
	}

	v, err := subject.domain.Parse(c.Literal.Value)
	if err != nil {
		return nil, false
	}

	if subject.value.Equal(v) {
		return nil, true
	}

	return set(c.Subject, v), true
}
