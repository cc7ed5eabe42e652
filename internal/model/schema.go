// Package model defines the data structures shared by fracture: the message
// schema arena, field paths, instances, constraints, encoded buffers,
// patches and reports.
package model

import (
	"fmt"
)

// NodeID addresses a node in the schema arena.
type NodeID int

// NodeKind is the structural kind of a schema node.
type NodeKind string

const (
	// KindSequence is an ordered group of named fields.
	KindSequence NodeKind = "sequence"
	// KindChoice selects exactly one named alternative.
	KindChoice NodeKind = "choice"
	// KindOptional guards one child with a presence flag. It adds no step to
	// field paths.
	KindOptional NodeKind = "optional"
	// KindList repeats its element MinSize..MaxSize times. The element adds
	// no step; the list step carries the element index.
	KindList NodeKind = "list"
	// KindLeaf carries a value from its Domain.
	KindLeaf NodeKind = "leaf"
)

// Node is one structural unit of a message type. Parents own their children
// by ID; nodes never point back at their parent.
type Node struct {
	ID       NodeID
	Name     string
	TypeName string
	Kind     NodeKind
	Children []NodeID
	Domain   Domain
	MinSize  int
	MaxSize  int
	IE       bool
}

// Schema is an immutable arena of nodes plus the message types rooted in it.
type Schema struct {
	Nodes []Node
	Types []NodeID

	paths  []FieldPath
	leaves [][]FieldPath
}

// Node returns the node with the given id.
func (s *Schema) Node(id NodeID) Node {
	return s.Nodes[id]
}

// Type looks up a message type by name.
func (s *Schema) Type(name string) (NodeID, bool) {
	for _, id := range s.Types {
		if s.Nodes[id].Name == name {
			return id, true
		}
	}

	return 0, false
}

// TypeNames lists message type names in declaration order.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for _, id := range s.Types {
		names = append(names, s.Nodes[id].Name)
	}

	return names
}

// PathOf returns the template path of a node.
func (s *Schema) PathOf(id NodeID) FieldPath {
	return s.paths[id]
}

// LeavesOf returns the template paths of every leaf below id, in declaration
// order, across all choice alternatives and optional subtrees.
func (s *Schema) LeavesOf(id NodeID) []FieldPath {
	return s.leaves[id]
}

// Leaves returns every leaf of every message type.
func (s *Schema) Leaves() []FieldPath {
	var out []FieldPath
	for _, id := range s.Types {
		out = append(out, s.leaves[id]...)
	}

	return out
}

// child finds the named child of id, looking through optional wrappers and
// list elements.
func (s *Schema) child(id NodeID, name string) (NodeID, bool) {
	n := s.Nodes[id]

	switch n.Kind {
	case KindOptional, KindList:
		return s.child(n.Children[0], name)
	case KindSequence, KindChoice:
		for _, c := range n.Children {
			if s.Nodes[c].Name == name {
				return c, true
			}
		}
	}

	return 0, false
}

// through unwraps optional wrappers.
func (s *Schema) through(id NodeID) NodeID {
	for s.Nodes[id].Kind == KindOptional {
		id = s.Nodes[id].Children[0]
	}

	return id
}

// Resolve maps a path to the node its last step names.
func (s *Schema) Resolve(path FieldPath) (NodeID, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("%w: empty path", ErrInvalidFieldPath)
	}

	id, ok := s.Type(path[0].Name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown message type %q", ErrInvalidFieldPath, path[0].Name)
	}

	if path[0].Index != 0 {
		return 0, fmt.Errorf("%w: %s: message type cannot be indexed", ErrInvalidFieldPath, path)
	}

	for i, step := range path[1:] {
		next, found := s.child(id, step.Name)
		if !found {
			return 0, fmt.Errorf("%w: %s has no field %q", ErrInvalidFieldPath, path[:i+1], step.Name)
		}

		id = next

		inner := s.Nodes[s.through(id)]
		if step.Index != 0 && inner.Kind != KindList {
			return 0, fmt.Errorf("%w: %s: %q is not a list", ErrInvalidFieldPath, path, step.Name)
		}

		if inner.Kind == KindList && step.Index >= inner.MaxSize {
			return 0, fmt.Errorf("%w: %s: index %d beyond size %d", ErrInvalidFieldPath, path, step.Index, inner.MaxSize)
		}
	}

	return id, nil
}

// Target resolves path and unwraps optional wrappers and list elements, giving
// the node whose value the path denotes.
func (s *Schema) Target(path FieldPath) (NodeID, error) {
	id, err := s.Resolve(path)
	if err != nil {
		return 0, err
	}

	id = s.through(id)
	if s.Nodes[id].Kind == KindList {
		id = s.through(s.Nodes[id].Children[0])
	}

	return id, nil
}

// LeafDomain returns the domain of the leaf at path.
func (s *Schema) LeafDomain(path FieldPath) (Domain, error) {
	id, err := s.Target(path)
	if err != nil {
		return Domain{}, err
	}

	n := s.Nodes[id]
	if n.Kind != KindLeaf {
		return Domain{}, fmt.Errorf("%w: %s is a %s, not a leaf", ErrTypeMismatch, path, n.Kind)
	}

	return n.Domain, nil
}

// Reaches reports whether the node at path is live in inst: every optional on
// the way is present, every choice selects the step taken and every list is
// long enough. An optional at the end of the path must itself be present.
func (s *Schema) Reaches(inst Instance, path FieldPath) bool {
	if len(path) == 0 || inst.Type != path[0].Name {
		return false
	}

	id, ok := s.Type(path[0].Name)
	if !ok {
		return false
	}

	for i := 1; ; i++ {
		prefix := path[:i]

		id, ok = s.enter(inst, id, prefix)
		if !ok {
			return false
		}

		if i == len(path) {
			return true
		}

		step := path[i]

		n := s.Nodes[id]
		if n.Kind == KindChoice && inst.Choices[prefix.String()] != step.Name {
			return false
		}

		next, found := s.child(id, step.Name)
		if !found {
			return false
		}

		id = next
	}
}

func (s *Schema) enter(inst Instance, id NodeID, prefix FieldPath) (NodeID, bool) {
	for {
		n := s.Nodes[id]

		switch n.Kind {
		case KindOptional:
			if !inst.Present[prefix.WithIndex(0).String()] {
				return id, false
			}

			id = n.Children[0]
		case KindList:
			if prefix.Last().Index >= inst.Counts[prefix.WithIndex(0).String()] {
				return id, false
			}

			id = n.Children[0]
		default:
			return id, true
		}
	}
}

// Prune returns a copy of inst holding only entries reachable from its root.
// Absent optionals are recorded as explicitly absent.
func (s *Schema) Prune(inst Instance) Instance {
	out := NewInstance(inst.Type)

	root, ok := s.Type(inst.Type)
	if !ok {
		return out
	}

	s.prune(inst, out, root, FieldPath{{Name: inst.Type}})

	return out
}

func (s *Schema) prune(in, out Instance, id NodeID, path FieldPath) {
	n := s.Nodes[id]
	key := path.String()

	switch n.Kind {
	case KindOptional:
		k := path.WithIndex(0).String()
		present := in.Present[k]
		out.Present[k] = present

		if present {
			s.prune(in, out, n.Children[0], path)
		}
	case KindList:
		k := path.WithIndex(0).String()

		count, ok := in.Counts[k]
		if !ok {
			return
		}

		out.Counts[k] = count
		for i := range count {
			s.prune(in, out, n.Children[0], path.WithIndex(i))
		}
	case KindSequence:
		for _, c := range n.Children {
			s.prune(in, out, c, path.Child(s.Nodes[c].Name))
		}
	case KindChoice:
		alt, ok := in.Choices[key]
		if !ok {
			return
		}

		out.Choices[key] = alt
		if c, found := s.child(id, alt); found {
			s.prune(in, out, c, path.Child(alt))
		}
	case KindLeaf:
		if v, ok := in.Values[key]; ok {
			out.Values[key] = v
		}
	}
}

// SetPresence flips the optional at path. A subtree that becomes present is
// filled from from where it has entries and from domain defaults otherwise.
func (s *Schema) SetPresence(inst Instance, path FieldPath, present bool, from Instance) error {
	id, err := s.Resolve(path)
	if err != nil {
		return err
	}

	n := s.Nodes[id]
	if n.Kind != KindOptional {
		return fmt.Errorf("%w: %s is a %s, not optional", ErrTypeMismatch, path, n.Kind)
	}

	inst.Present[path.WithIndex(0).String()] = present
	if present {
		s.fill(inst, n.Children[0], path, from)
	}

	return nil
}

func (s *Schema) fill(inst Instance, id NodeID, path FieldPath, from Instance) {
	n := s.Nodes[id]
	key := path.String()

	switch n.Kind {
	case KindOptional:
		k := path.WithIndex(0).String()

		present, ok := inst.Present[k]
		if !ok {
			present = from.Present[k]
			inst.Present[k] = present
		}

		if present {
			s.fill(inst, n.Children[0], path, from)
		}
	case KindList:
		k := path.WithIndex(0).String()

		count, ok := inst.Counts[k]
		if !ok {
			if count, ok = from.Counts[k]; !ok {
				count = n.MinSize
			}

			inst.Counts[k] = count
		}

		for i := range count {
			s.fill(inst, n.Children[0], path.WithIndex(i), from)
		}
	case KindSequence:
		for _, c := range n.Children {
			s.fill(inst, c, path.Child(s.Nodes[c].Name), from)
		}
	case KindChoice:
		alt, ok := inst.Choices[key]
		if !ok {
			if alt, ok = from.Choices[key]; !ok {
				alt = s.Nodes[n.Children[0]].Name
			}

			inst.Choices[key] = alt
		}

		if c, found := s.child(id, alt); found {
			s.fill(inst, c, path.Child(alt), from)
		}
	case KindLeaf:
		if _, ok := inst.Values[key]; ok {
			return
		}

		if v, ok := from.Values[key]; ok {
			inst.Values[key] = v
			return
		}

		inst.Values[key] = n.Domain.Default()
	}
}

// OccurrenceCount counts nodes sharing the TypeName of id. Nodes without a
// type name count once.
func (s *Schema) OccurrenceCount(id NodeID) int {
	typeName := s.Nodes[id].TypeName
	if typeName == "" {
		return 1
	}

	count := 0

	for _, n := range s.Nodes {
		if n.TypeName == typeName {
			count++
		}
	}

	return count
}

// Elements lists the candidate elements for coverage: nodes flagged as IEs,
// or when none is flagged, every non-root structural node that is not a
// wrapper.
func (s *Schema) Elements() []NodeID {
	var flagged, structural []NodeID

	roots := make(map[NodeID]bool, len(s.Types))
	for _, id := range s.Types {
		roots[id] = true
	}

	for _, n := range s.Nodes {
		if n.IE {
			flagged = append(flagged, n.ID)
		}

		if roots[n.ID] {
			continue
		}

		if n.Kind == KindSequence || n.Kind == KindChoice || n.Kind == KindList {
			structural = append(structural, n.ID)
		}
	}

	if len(flagged) > 0 {
		return flagged
	}

	return structural
}
