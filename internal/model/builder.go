package model

import (
	"errors"
	"fmt"
)

// SchemaBuilder assembles a Schema bottom-up: children are created first and
// handed to their parent, which takes ownership of them.
type SchemaBuilder struct {
	nodes []Node
	types []NodeID
	owned map[NodeID]bool
	errs  []error
}

// NewSchemaBuilder returns an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{owned: make(map[NodeID]bool)}
}

func (b *SchemaBuilder) add(n Node) NodeID {
	n.ID = NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)

	return n.ID
}

func (b *SchemaBuilder) fail(name, format string, args ...any) {
	b.errs = append(b.errs, &StructuralError{Field: name, Err: fmt.Errorf(format, args...)})
}

func (b *SchemaBuilder) claim(parent string, ids ...NodeID) {
	for _, id := range ids {
		if int(id) < 0 || int(id) >= len(b.nodes) {
			b.fail(parent, "unknown child node %d", id)
			continue
		}

		if b.owned[id] {
			b.fail(parent, "node %q already has a parent", b.nodes[id].Name)
			continue
		}

		b.owned[id] = true
	}
}

// Integer adds a constrained integer leaf.
func (b *SchemaBuilder) Integer(name string, minValue, maxValue int64) NodeID {
	if minValue > maxValue {
		b.fail(name, "integer range %d..%d is empty", minValue, maxValue)
	}

	return b.add(Node{Name: name, Kind: KindLeaf, Domain: Domain{Kind: DomainInteger, Min: minValue, Max: maxValue}})
}

// Enumerated adds an enumerated leaf.
func (b *SchemaBuilder) Enumerated(name string, values ...string) NodeID {
	if len(values) == 0 {
		b.fail(name, "enumeration has no values")
	}

	return b.add(Node{Name: name, Kind: KindLeaf, Domain: Domain{Kind: DomainEnumerated, Values: values}})
}

// Boolean adds a boolean leaf.
func (b *SchemaBuilder) Boolean(name string) NodeID {
	return b.add(Node{Name: name, Kind: KindLeaf, Domain: Domain{Kind: DomainBoolean, Max: 1}})
}

// BitString adds a bit-string leaf of minLen..maxLen bits.
func (b *SchemaBuilder) BitString(name string, minLen, maxLen int) NodeID {
	if minLen < 0 || minLen > maxLen {
		b.fail(name, "bit string size %d..%d is invalid", minLen, maxLen)
	}

	return b.add(Node{Name: name, Kind: KindLeaf, Domain: Domain{Kind: DomainBitString, Min: int64(minLen), Max: int64(maxLen)}})
}

// Sequence adds a sequence owning children in order.
func (b *SchemaBuilder) Sequence(name string, children ...NodeID) NodeID {
	b.claim(name, children...)
	b.checkNames(name, children)

	return b.add(Node{Name: name, Kind: KindSequence, Children: children})
}

// Choice adds a choice between alternatives.
func (b *SchemaBuilder) Choice(name string, alternatives ...NodeID) NodeID {
	if len(alternatives) == 0 {
		b.fail(name, "choice has no alternatives")
	}

	b.claim(name, alternatives...)
	b.checkNames(name, alternatives)

	for _, id := range alternatives {
		if int(id) < len(b.nodes) && b.nodes[id].Kind == KindOptional {
			b.fail(name, "alternative %q cannot be optional", b.nodes[id].Name)
		}
	}

	return b.add(Node{Name: name, Kind: KindChoice, Children: alternatives})
}

// List adds a bounded repetition of element.
func (b *SchemaBuilder) List(name string, minSize, maxSize int, element NodeID) NodeID {
	if minSize < 0 || minSize > maxSize {
		b.fail(name, "list size %d..%d is invalid", minSize, maxSize)
	}

	b.claim(name, element)

	if int(element) < len(b.nodes) {
		if b.nodes[element].Kind == KindOptional {
			b.fail(name, "list element cannot be optional")
		}

		b.nodes[element].Name = name
	}

	return b.add(Node{Name: name, Kind: KindList, Children: []NodeID{element}, MinSize: minSize, MaxSize: maxSize})
}

// Optional wraps child with a presence flag. The wrapper takes the child's
// name.
func (b *SchemaBuilder) Optional(child NodeID) NodeID {
	if int(child) >= len(b.nodes) || child < 0 {
		b.fail("", "unknown child node %d", child)
		return child
	}

	name := b.nodes[child].Name
	if b.nodes[child].Kind == KindOptional {
		b.fail(name, "optional cannot wrap another optional")
	}

	b.claim(name, child)

	return b.add(Node{Name: name, Kind: KindOptional, Children: []NodeID{child}})
}

// Element flags id as an information element with the given type name.
func (b *SchemaBuilder) Element(id NodeID, typeName string) NodeID {
	if int(id) < len(b.nodes) && id >= 0 {
		b.nodes[id].IE = true
		b.nodes[id].TypeName = typeName
	}

	return id
}

// Named sets the type name of id without flagging it as an element.
func (b *SchemaBuilder) Named(id NodeID, typeName string) NodeID {
	if int(id) < len(b.nodes) && id >= 0 {
		b.nodes[id].TypeName = typeName
	}

	return id
}

// Type registers root as a top-level message type.
func (b *SchemaBuilder) Type(root NodeID) {
	if int(root) >= len(b.nodes) || root < 0 {
		b.fail("", "unknown root node %d", root)
		return
	}

	n := b.nodes[root]
	if n.Kind == KindOptional || n.Kind == KindLeaf {
		b.fail(n.Name, "message type must be a sequence, choice or list")
	}

	for _, id := range b.types {
		if b.nodes[id].Name == n.Name {
			b.fail(n.Name, "duplicate message type")
		}
	}

	b.claim(n.Name, root)
	b.types = append(b.types, root)
}

func (b *SchemaBuilder) checkNames(parent string, children []NodeID) {
	seen := make(map[string]bool, len(children))

	for _, id := range children {
		if int(id) >= len(b.nodes) || id < 0 {
			continue
		}

		name := b.nodes[id].Name
		if name == "" {
			b.fail(parent, "child %d has no name", id)
		}

		if seen[name] {
			b.fail(parent, "duplicate field %q", name)
		}

		seen[name] = true
	}
}

// Build validates the arena and indexes paths and leaves.
func (b *SchemaBuilder) Build() (*Schema, error) {
	if len(b.types) == 0 {
		b.fail("", "schema declares no message type")
	}

	for _, n := range b.nodes {
		if !b.owned[n.ID] {
			b.fail(n.Name, "node is not attached to any message type")
		}
	}

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	s := &Schema{
		Nodes:  b.nodes,
		Types:  b.types,
		paths:  make([]FieldPath, len(b.nodes)),
		leaves: make([][]FieldPath, len(b.nodes)),
	}

	for _, root := range s.Types {
		s.index(root, FieldPath{{Name: s.Nodes[root].Name}})
	}

	if len(s.Leaves()) == 0 {
		return nil, &StructuralError{Err: ErrEmptySchema}
	}

	return s, nil
}

func (s *Schema) index(id NodeID, path FieldPath) []FieldPath {
	s.paths[id] = path
	n := s.Nodes[id]

	var leaves []FieldPath

	switch n.Kind {
	case KindLeaf:
		leaves = []FieldPath{path}
	case KindOptional, KindList:
		leaves = s.index(n.Children[0], path)
	case KindSequence, KindChoice:
		for _, c := range n.Children {
			leaves = append(leaves, s.index(c, path.Child(s.Nodes[c].Name))...)
		}
	}

	s.leaves[id] = leaves

	return leaves
}
