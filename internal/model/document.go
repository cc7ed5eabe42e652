package model

import (
	"fmt"
)

// Instantiate converts an instance document into an Instance, parsing every
// value with its leaf domain. Entries outside the live structure are kept so
// that a subtree switched on later starts from them.
func (s *Schema) Instantiate(doc InstanceDocument) (Instance, error) {
	typeName := doc.Type
	if typeName == "" && len(s.Types) == 1 {
		typeName = s.Nodes[s.Types[0]].Name
	}

	if _, ok := s.Type(typeName); !ok {
		return Instance{}, &StructuralError{Field: typeName, Err: ErrUnknownType}
	}

	inst := NewInstance(typeName)

	for key, raw := range doc.Values {
		path, domain, err := s.leafEntry(key)
		if err != nil {
			return Instance{}, err
		}

		v, err := domain.Parse(fmt.Sprint(raw))
		if err != nil {
			return Instance{}, fmt.Errorf("%s: %w", key, err)
		}

		inst.Values[path.String()] = v
	}

	for key, present := range doc.Present {
		path, err := s.nodeEntry(key, KindOptional)
		if err != nil {
			return Instance{}, err
		}

		inst.Present[path.WithIndex(0).String()] = present
	}

	for key, alt := range doc.Choices {
		path, err := s.nodeEntry(key, KindChoice)
		if err != nil {
			return Instance{}, err
		}

		inst.Choices[path.String()] = alt
	}

	for key, count := range doc.Counts {
		path, err := s.nodeEntry(key, KindList)
		if err != nil {
			return Instance{}, err
		}

		inst.Counts[path.WithIndex(0).String()] = count
	}

	return inst, nil
}

func (s *Schema) leafEntry(key string) (FieldPath, Domain, error) {
	path, err := ParsePath(key)
	if err != nil {
		return nil, Domain{}, err
	}

	domain, err := s.LeafDomain(path)
	if err != nil {
		return nil, Domain{}, err
	}

	return path, domain, nil
}

func (s *Schema) nodeEntry(key string, kind NodeKind) (FieldPath, error) {
	path, err := ParsePath(key)
	if err != nil {
		return nil, err
	}

	id, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	n := s.Nodes[id]
	if kind != KindOptional {
		n = s.Nodes[s.through(id)]
	}

	if n.Kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrTypeMismatch, key, n.Kind, kind)
	}

	return path, nil
}

// Document renders inst back into its on-disk form.
func (s *Schema) Document(inst Instance) InstanceDocument {
	doc := InstanceDocument{
		Type:    inst.Type,
		Values:  make(map[string]any, len(inst.Values)),
		Present: make(map[string]bool, len(inst.Present)),
		Choices: make(map[string]string, len(inst.Choices)),
		Counts:  make(map[string]int, len(inst.Counts)),
	}

	for key, v := range inst.Values {
		domain, err := s.LeafDomain(MustParsePath(key))
		if err != nil {
			continue
		}

		doc.Values[key] = domain.Format(v)
	}

	for key, present := range inst.Present {
		doc.Present[key] = present
	}

	for key, alt := range inst.Choices {
		doc.Choices[key] = alt
	}

	for key, count := range inst.Counts {
		doc.Counts[key] = count
	}

	return doc
}
