package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	m "fracture.dev/pkg/fracture/internal/model"
)

// Differ turns a mutated encoding into fixed-offset byte overwrites of the
// baseline encoding and replays them.
type Differ interface {
	// Diff compares both buffers offset by offset. Every differing byte,
	// and every byte past the end of a shorter baseline, becomes a patch.
	Diff(base, mutated []byte) (m.PatchSet, error)
	// Apply overwrites base with ps, resizing first when ps changes length.
	Apply(base []byte, ps m.PatchSet) ([]byte, error)
}

type differ struct {
	allowLengthChange bool
}

// NewDiffer returns a Differ. When allowLengthChange is false, Diff fails
// with ErrLengthMismatchUnsupported on buffers of different length.
func NewDiffer(allowLengthChange bool) Differ {
	return &differ{allowLengthChange: allowLengthChange}
}

func (d *differ) Diff(base, mutated []byte) (m.PatchSet, error) {
	resized := len(base) != len(mutated)
	if resized && !d.allowLengthChange {
		return m.PatchSet{}, fmt.Errorf("%w: %d -> %d bytes", m.ErrLengthMismatchUnsupported, len(base), len(mutated))
	}

	ps := m.PatchSet{Patches: []m.Patch{}, Length: len(mutated), Resized: resized}

	for i, b := range mutated {
		if i < len(base) && base[i] == b {
			continue
		}

		ps.Patches = append(ps.Patches, m.Patch{Offset: uint32(i), Value: b})
	}

	return ps, nil
}

func (d *differ) Apply(base []byte, ps m.PatchSet) ([]byte, error) {
	size := len(base)
	if ps.Resized {
		size = ps.Length
	}

	out := make([]byte, size)
	copy(out, base)

	for i, p := range ps.Patches {
		if i > 0 && p.Offset <= ps.Patches[i-1].Offset {
			return nil, fmt.Errorf("%w: offset %d after %d", m.ErrInvalidPatch, p.Offset, ps.Patches[i-1].Offset)
		}

		if int(p.Offset) >= len(out) {
			return nil, fmt.Errorf("%w: offset %d beyond %d bytes", m.ErrInvalidPatch, p.Offset, len(out))
		}

		out[p.Offset] = p.Value
	}

	return out, nil
}

// Annotate names, for every patched byte, the encoded fields whose bits fall
// into it. Spans that are not values carry their role as a suffix.
func Annotate(ps m.PatchSet, spans []m.FieldSpan) []m.PatchNote {
	notes := make([]m.PatchNote, 0, len(ps.Patches))

	for _, p := range ps.Patches {
		lo, hi := int(p.Offset)*8, int(p.Offset)*8+8
		note := m.PatchNote{Offset: p.Offset}
		seen := make(map[string]bool)

		for _, span := range spans {
			if span.Start >= hi || span.End <= lo || span.Start == span.End {
				continue
			}

			name := span.Path
			if span.Role != m.RoleValue {
				name += "#" + string(span.Role)
			}

			if !seen[name] {
				seen[name] = true
				note.Fields = append(note.Fields, name)
			}
		}

		notes = append(notes, note)
	}

	return notes
}

// HexDiff renders a unified diff of the hex dumps of both buffers.
func HexDiff(base, mutated []byte, baseName, mutatedName string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(hex.Dump(base)),
		B:        difflib.SplitLines(hex.Dump(mutated)),
		FromFile: baseName,
		ToFile:   mutatedName,
		Context:  2,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("hex diff: %w", err)
	}

	return text, nil
}
