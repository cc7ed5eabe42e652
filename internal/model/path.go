package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Step is one hop of a FieldPath. Index selects the list element when the
// step names a list node and is zero otherwise.
type Step struct {
	Name  string
	Index int
}

// FieldPath identifies a node inside a message instance, root type first.
//
// The canonical text form joins step names with dots and prints an index
// only when it is non-zero, so "Msg.items.id" and "Msg.items[0].id" parse to
// the same path.
type FieldPath []Step

// ParsePath parses the text form of a FieldPath.
func ParsePath(text string) (FieldPath, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidFieldPath)
	}

	parts := strings.Split(text, ".")
	path := make(FieldPath, 0, len(parts))

	for _, part := range parts {
		step, err := parseStep(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFieldPath, text, err)
		}

		path = append(path, step)
	}

	return path, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(text string) FieldPath {
	path, err := ParsePath(text)
	if err != nil {
		panic(err)
	}

	return path
}

func parseStep(part string) (Step, error) {
	if part == "" {
		return Step{}, fmt.Errorf("empty step")
	}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		return Step{Name: part}, nil
	}

	if open == 0 || !strings.HasSuffix(part, "]") {
		return Step{}, fmt.Errorf("malformed index in %q", part)
	}

	index, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil || index < 0 {
		return Step{}, fmt.Errorf("malformed index in %q", part)
	}

	return Step{Name: part[:open], Index: index}, nil
}

func (p FieldPath) String() string {
	var b strings.Builder

	for i, step := range p {
		if i > 0 {
			b.WriteByte('.')
		}

		b.WriteString(step.Name)

		if step.Index != 0 {
			fmt.Fprintf(&b, "[%d]", step.Index)
		}
	}

	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p FieldPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FieldPath) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = nil
		return nil
	}

	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// Equal reports whether both paths have the same steps.
func (p FieldPath) Equal(other FieldPath) bool {
	if len(p) != len(other) {
		return false
	}

	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}

	return true
}

// HasPrefix reports whether prefix is a leading part of p.
func (p FieldPath) HasPrefix(prefix FieldPath) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// Child returns a new path with one more step.
func (p FieldPath) Child(name string) FieldPath {
	out := make(FieldPath, len(p), len(p)+1)
	copy(out, p)

	return append(out, Step{Name: name})
}

// WithIndex returns a copy of p whose last step carries index.
func (p FieldPath) WithIndex(index int) FieldPath {
	out := make(FieldPath, len(p))
	copy(out, p)

	if len(out) > 0 {
		out[len(out)-1].Index = index
	}

	return out
}

// Parent drops the last step.
func (p FieldPath) Parent() FieldPath {
	if len(p) == 0 {
		return nil
	}

	out := make(FieldPath, len(p)-1)
	copy(out, p)

	return out
}

// Template zeroes every index, giving the schema-level identity of the path.
func (p FieldPath) Template() FieldPath {
	out := make(FieldPath, len(p))
	for i, step := range p {
		out[i] = Step{Name: step.Name}
	}

	return out
}

// Last returns the final step, or the zero Step for an empty path.
func (p FieldPath) Last() Step {
	if len(p) == 0 {
		return Step{}
	}

	return p[len(p)-1]
}
