package domain

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"fracture.dev/pkg/fracture/internal/codec"
	"fracture.dev/pkg/fracture/internal/domain/violations"
	m "fracture.dev/pkg/fracture/internal/model"
)

const (
	// DefaultMaxCandidates caps the candidates emitted per constraint and
	// baseline.
	DefaultMaxCandidates = 8
	// attemptsPerCandidate bounds how many proposals are tried per emitted
	// candidate before the unit counts as exhausted.
	attemptsPerCandidate = 32
)

// Synthesizer produces instances that break one constraint.
type Synthesizer interface {
	// Synthesize lazily yields candidates for c on baseline, boundary-nearest
	// first. Every emitted candidate encodes and violates c. Candidates whose
	// encoded length differs from the baseline are emitted with a rejection
	// reason when length changes are not allowed.
	Synthesize(ctx context.Context, c m.Constraint, baseline m.Instance) iter.Seq[m.Candidate]
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*synthesizer)

// WithMaxCandidates caps the number of candidates per call. Values below 1
// keep the default.
func WithMaxCandidates(n int) SynthesizerOption {
	return func(s *synthesizer) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithLengthChange lets candidates change the encoded length.
func WithLengthChange(allow bool) SynthesizerOption {
	return func(s *synthesizer) {
		s.allowLengthChange = allow
	}
}

type synthesizer struct {
	schema            *m.Schema
	codec             codec.Codec
	strategies        map[m.PredicateKind]violations.Strategy
	maxCandidates     int
	allowLengthChange bool
}

// NewSynthesizer returns a Synthesizer over schema using the violation
// strategy table.
func NewSynthesizer(schema *m.Schema, c codec.Codec, opts ...SynthesizerOption) Synthesizer {
	s := &synthesizer{
		schema:        schema,
		codec:         c,
		strategies:    violations.Strategies,
		maxCandidates: DefaultMaxCandidates,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *synthesizer) Synthesize(ctx context.Context, c m.Constraint, baseline m.Instance) iter.Seq[m.Candidate] {
	return func(yield func(m.Candidate) bool) {
		strategy, ok := s.strategies[c.Kind]
		if !ok {
			slog.Warn("No violation strategy", "constraint", c.ID, "kind", c.Kind)
			return
		}

		base, err := s.codec.Encode(baseline)
		if err != nil {
			slog.Warn("Baseline does not encode", "constraint", c.ID, "error", err)
			return
		}

		emitted, attempts := 0, 0
		in := violations.Input{Schema: s.schema, Constraint: c, Baseline: baseline}

		for proposal := range strategy(in) {
			if ctx.Err() != nil || emitted >= s.maxCandidates || attempts >= s.maxCandidates*attemptsPerCandidate {
				return
			}

			attempts++

			candidate, ok := s.build(c, baseline, proposal)
			if !ok {
				continue
			}

			if len(candidate.Buffer.Bytes) != len(base.Bytes) && !s.allowLengthChange {
				candidate.RejectedReason = m.RejectLengthMismatch
			}

			emitted++

			if !yield(candidate) {
				return
			}
		}
	}
}

// build applies a proposal to a copy of baseline and keeps it only when it
// changes something, encodes and actually breaks c.
func (s *synthesizer) build(c m.Constraint, baseline m.Instance, proposal violations.Proposal) (m.Candidate, bool) {
	mutated := baseline.Clone()

	var changes []m.FieldChange

	for _, edit := range proposal {
		change, ok, err := s.apply(mutated, baseline, edit)
		if err != nil {
			slog.Debug("Discarding candidate", "constraint", c.ID, "path", edit.Path, "error", err)
			return m.Candidate{}, false
		}

		if ok {
			changes = append(changes, change)
		}
	}

	if len(changes) == 0 {
		return m.Candidate{}, false
	}

	mutated = s.schema.Prune(mutated)

	holds, err := Evaluate(c, s.schema, mutated)
	if err != nil || holds {
		slog.Debug("Discarding non-violating candidate", "constraint", c.ID, "error", err)
		return m.Candidate{}, false
	}

	buf, err := s.codec.Encode(mutated)
	if err != nil {
		slog.Debug("Discarding candidate that does not encode", "constraint", c.ID, "error", err)
		return m.Candidate{}, false
	}

	return m.Candidate{Instance: mutated, Buffer: buf, Changes: changes}, true
}

func (s *synthesizer) apply(mutated, baseline m.Instance, edit violations.Edit) (m.FieldChange, bool, error) {
	path := edit.Path.String()
	was := s.describe(baseline, edit.Path)

	switch {
	case edit.Value != nil:
		domain, err := s.schema.LeafDomain(edit.Path)
		if err != nil {
			return m.FieldChange{}, false, err
		}

		if !domain.Contains(*edit.Value) {
			return m.FieldChange{}, false, fmt.Errorf("%w: %s", m.ErrDomainViolation, domain.Format(*edit.Value))
		}

		if old, ok := mutated.Value(edit.Path); ok && old.Equal(*edit.Value) && s.schema.Reaches(mutated, edit.Path) {
			return m.FieldChange{}, false, nil
		}

		mutated.Set(edit.Path, *edit.Value)

		return m.FieldChange{Path: path, Baseline: was, Mutated: domain.Format(*edit.Value)}, true, nil
	case edit.Present != nil:
		if s.schema.Reaches(mutated, edit.Path) == *edit.Present {
			return m.FieldChange{}, false, nil
		}

		if err := s.schema.SetPresence(mutated, edit.Path, *edit.Present, baseline); err != nil {
			return m.FieldChange{}, false, err
		}

		return m.FieldChange{Path: path, Baseline: was, Mutated: presenceText(*edit.Present)}, true, nil
	}

	return m.FieldChange{}, false, nil
}

// describe renders the baseline state of a field for test-case records.
func (s *synthesizer) describe(inst m.Instance, path m.FieldPath) string {
	if !s.schema.Reaches(inst, path) {
		return presenceText(false)
	}

	domain, err := s.schema.LeafDomain(path)
	if err != nil {
		return presenceText(true)
	}

	v, ok := inst.Value(path)
	if !ok {
		return presenceText(false)
	}

	return domain.Format(v)
}

func presenceText(present bool) string {
	if present {
		return "present"
	}

	return "absent"
}
