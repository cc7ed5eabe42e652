package model

import "maps"

// Instance is a concrete message of one schema type. Every map is keyed by
// FieldPath text. Optional presence and list counts use the path of the
// optional or list itself (last index zero); values and choices use the full
// path of the leaf or choice.
type Instance struct {
	Type    string
	Values  map[string]Value
	Present map[string]bool
	Choices map[string]string
	Counts  map[string]int
}

// NewInstance returns an empty instance of typeName.
func NewInstance(typeName string) Instance {
	return Instance{
		Type:    typeName,
		Values:  make(map[string]Value),
		Present: make(map[string]bool),
		Choices: make(map[string]string),
		Counts:  make(map[string]int),
	}
}

// Clone deep-copies inst so the copy shares no storage with it.
func (inst Instance) Clone() Instance {
	out := Instance{
		Type:    inst.Type,
		Values:  make(map[string]Value, len(inst.Values)),
		Present: maps.Clone(inst.Present),
		Choices: maps.Clone(inst.Choices),
		Counts:  maps.Clone(inst.Counts),
	}

	for k, v := range inst.Values {
		if v.Bits != nil {
			v.Bits = append([]byte(nil), v.Bits...)
		}

		out.Values[k] = v
	}

	if out.Present == nil {
		out.Present = make(map[string]bool)
	}

	if out.Choices == nil {
		out.Choices = make(map[string]string)
	}

	if out.Counts == nil {
		out.Counts = make(map[string]int)
	}

	return out
}

// Equal compares two instances entry by entry.
func (inst Instance) Equal(other Instance) bool {
	if inst.Type != other.Type ||
		!maps.Equal(inst.Present, other.Present) ||
		!maps.Equal(inst.Choices, other.Choices) ||
		!maps.Equal(inst.Counts, other.Counts) ||
		len(inst.Values) != len(other.Values) {
		return false
	}

	for k, v := range inst.Values {
		w, ok := other.Values[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}

	return true
}

// Value returns the value stored at path.
func (inst Instance) Value(path FieldPath) (Value, bool) {
	v, ok := inst.Values[path.String()]
	return v, ok
}

// Set stores a leaf value at path.
func (inst Instance) Set(path FieldPath, v Value) {
	inst.Values[path.String()] = v
}
