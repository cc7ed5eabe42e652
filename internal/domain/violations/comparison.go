package violations

import (
	"iter"

	m "fracture.dev/pkg/fracture/internal/model"
)

// equals moves the subject away from the value it must equal, nearest first.
// Booleans flip; bit strings flip one bit at a time from the last bit.
func equals(in Input) iter.Seq[Proposal] {
	subject, ok := read(in, in.Constraint.Subject)
	if !ok {
		return none()
	}

	want, ok := target(in, subject)
	if !ok {
		return none()
	}

	path := in.Constraint.Subject

	return func(yield func(Proposal) bool) {
		switch subject.domain.Kind {
		case m.DomainBoolean:
			yield(set(path, m.IntValue(1-want.value.Int)))
		case m.DomainBitString:
			for i := want.value.Len - 1; i >= 0; i-- {
				if !yield(set(path, want.value.FlipBit(i))) {
					return
				}
			}
		default:
			for v := range outward(subject.domain, want.number()) {
				if !yield(set(path, v)) {
					return
				}
			}
		}
	}
}

// notEquals forces the subject onto the value it must differ from.
func notEquals(in Input) iter.Seq[Proposal] {
	subject, ok := read(in, in.Constraint.Subject)
	if !ok {
		return none()
	}

	want, ok := target(in, subject)
	if !ok {
		return none()
	}

	v := want.value

	if subject.domain.Numeric() {
		if v, ok = subject.domain.ValueOf(want.number()); !ok {
			return none()
		}
	}

	return func(yield func(Proposal) bool) {
		yield(set(in.Constraint.Subject, v))
	}
}

// lessThan inverts subject < object: subject = object first, then upwards.
func lessThan(in Input) iter.Seq[Proposal] {
	return ordered(in, upward)
}

// greaterThan inverts subject > object: subject = object first, then
// downwards.
func greaterThan(in Input) iter.Seq[Proposal] {
	return ordered(in, downward)
}

func ordered(in Input, walk func(m.Domain, int64) iter.Seq[m.Value]) iter.Seq[Proposal] {
	subject, ok := read(in, in.Constraint.Subject)
	if !ok {
		return none()
	}

	bound, ok := target(in, subject)
	if !ok {
		return none()
	}

	return func(yield func(Proposal) bool) {
		for v := range walk(subject.domain, bound.number()) {
			if !yield(set(in.Constraint.Subject, v)) {
				return
			}
		}
	}
}

// rangeMembership steps just outside the range, below first, skipping a
// side the domain cannot represent.
func rangeMembership(in Input) iter.Seq[Proposal] {
	c := in.Constraint

	subject, ok := read(in, c.Subject)
	if !ok || c.Literal == nil || c.Literal.Range == nil {
		return none()
	}

	r := *c.Literal.Range

	return func(yield func(Proposal) bool) {
		for v := range downward(subject.domain, r.Low-1) {
			if !yield(set(c.Subject, v)) {
				return
			}

			break
		}

		for v := range upward(subject.domain, r.High+1) {
			yield(set(c.Subject, v))
			break
		}
	}
}
