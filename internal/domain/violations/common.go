// Package violations holds one strategy per predicate kind. A strategy
// proposes the edits that would break a constraint on a baseline instance,
// boundary-nearest first.
package violations

import (
	"iter"
	"sort"

	m "fracture.dev/pkg/fracture/internal/model"
)

// Input is what a strategy sees: the schema, the constraint to break and the
// baseline it starts from. Strategies never modify Baseline.
type Input struct {
	Schema     *m.Schema
	Constraint m.Constraint
	Baseline   m.Instance
}

// Edit changes one field. Exactly one of Value and Present is set.
type Edit struct {
	Path    m.FieldPath
	Value   *m.Value
	Present *bool
}

// Proposal is the set of edits making up one candidate.
type Proposal []Edit

// Strategy lazily proposes violating edits for one predicate kind.
type Strategy func(in Input) iter.Seq[Proposal]

// Strategies maps every predicate kind to its strategy.
var Strategies = map[m.PredicateKind]Strategy{
	m.Equals:          equals,
	m.NotEquals:       notEquals,
	m.LessThan:        lessThan,
	m.GreaterThan:     greaterThan,
	m.RangeMembership: rangeMembership,
	m.ImpliesPresence: impliesPresence,
	m.ImpliesAbsence:  impliesAbsence,
}

func set(path m.FieldPath, v m.Value) Proposal {
	return Proposal{{Path: path, Value: &v}}
}

func presence(path m.FieldPath, present bool) Edit {
	return Edit{Path: path, Present: &present}
}

func none() iter.Seq[Proposal] {
	return func(func(Proposal) bool) {}
}

// field is a live leaf of the baseline with its domain.
type field struct {
	domain m.Domain
	value  m.Value
}

func (f field) number() int64 {
	return f.domain.NumberOf(f.value)
}

func read(in Input, path m.FieldPath) (field, bool) {
	domain, err := in.Schema.LeafDomain(path)
	if err != nil || !in.Schema.Reaches(in.Baseline, path) {
		return field{}, false
	}

	v, ok := in.Baseline.Value(path)
	if !ok {
		return field{}, false
	}

	return field{domain: domain, value: v}, true
}

// target is the value the subject is compared with: the object's baseline
// value or the literal read in the subject's domain.
func target(in Input, subject field) (field, bool) {
	c := in.Constraint

	if len(c.Object) > 0 {
		return read(in, c.Object)
	}

	if c.Literal == nil || c.Literal.Range != nil {
		return field{}, false
	}

	v, err := subject.domain.Parse(c.Literal.Value)
	if err != nil {
		return field{}, false
	}

	return field{domain: subject.domain, value: v}, true
}

// sortedNumbers pairs enumeration values with their numeric reading in
// ascending order.
func sortedNumbers(d m.Domain) ([]m.Value, []int64) {
	values := d.SortedValues()
	numbers := make([]int64, len(values))

	for i, v := range values {
		numbers[i] = d.NumberOf(v)
	}

	return values, numbers
}

// outward yields ordered-domain values other than t by distance from t, the
// larger side first on ties.
func outward(d m.Domain, t int64) iter.Seq[m.Value] {
	return func(yield func(m.Value) bool) {
		if d.Kind == m.DomainEnumerated {
			values, numbers := sortedNumbers(d)
			order := make([]int, 0, len(values))

			for i := range values {
				if numbers[i] != t {
					order = append(order, i)
				}
			}

			sort.SliceStable(order, func(a, b int) bool {
				da, db := distance(numbers[order[a]], t), distance(numbers[order[b]], t)
				if da != db {
					return da < db
				}

				return numbers[order[a]] > numbers[order[b]]
			})

			for _, i := range order {
				if !yield(values[i]) {
					return
				}
			}

			return
		}

		switch {
		case t > d.Max:
			for v := range downward(d, d.Max) {
				if !yield(v) {
					return
				}
			}

			return
		case t < d.Min:
			for v := range upward(d, d.Min) {
				if !yield(v) {
					return
				}
			}

			return
		}

		// up and down are the last values taken on each side; neither steps
		// past a bound, so they never overflow.
		up, down := t, t
		for up < d.Max || down > d.Min {
			if up < d.Max {
				up++
				if !yield(m.IntValue(up)) {
					return
				}
			}

			if down > d.Min {
				down--
				if !yield(m.IntValue(down)) {
					return
				}
			}
		}
	}
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}

	return b - a
}

// upward yields ordered-domain values whose reading is at least t, ascending.
func upward(d m.Domain, t int64) iter.Seq[m.Value] {
	return func(yield func(m.Value) bool) {
		if d.Kind == m.DomainEnumerated {
			values, numbers := sortedNumbers(d)
			for i, v := range values {
				if numbers[i] >= t && !yield(v) {
					return
				}
			}

			return
		}

		for n := max(t, d.Min); n <= d.Max; n++ {
			if !yield(m.IntValue(n)) || n == d.Max {
				return
			}
		}
	}
}

// downward yields ordered-domain values whose reading is at most t,
// descending.
func downward(d m.Domain, t int64) iter.Seq[m.Value] {
	return func(yield func(m.Value) bool) {
		if d.Kind == m.DomainEnumerated {
			values, numbers := sortedNumbers(d)
			for i := len(values) - 1; i >= 0; i-- {
				if numbers[i] <= t && !yield(values[i]) {
					return
				}
			}

			return
		}

		for n := min(t, d.Max); n >= d.Min; n-- {
			if !yield(m.IntValue(n)) || n == d.Min {
				return
			}
		}
	}
}
