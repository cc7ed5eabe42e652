// Package codec packs message instances into the unaligned bit layout of the
// target protocol and reads them back.
package codec

import (
	"fmt"
	"math/bits"

	m "fracture.dev/pkg/fracture/internal/model"
)

// Codec encodes and decodes instances of the types of one schema.
type Codec interface {
	// Encode packs inst and records the bit span of every field.
	Encode(inst m.Instance) (m.EncodedBuffer, error)
	// Decode unpacks buf as a message of typeName. The result is in pruned
	// form: absent optionals are recorded as explicitly absent.
	Decode(buf []byte, typeName string) (m.Instance, error)
}

type packed struct {
	schema *m.Schema
}

// New returns the packed codec for schema.
func New(schema *m.Schema) Codec {
	return &packed{schema: schema}
}

func width(span int64) int {
	return bits.Len64(uint64(span))
}

func tagWidth(n int) int {
	if n <= 1 {
		return 0
	}

	return bits.Len64(uint64(n - 1))
}

type encoder struct {
	schema *m.Schema
	inst   m.Instance
	w      bitWriter
	spans  []m.FieldSpan
}

func (p *packed) Encode(inst m.Instance) (m.EncodedBuffer, error) {
	root, ok := p.schema.Type(inst.Type)
	if !ok {
		return m.EncodedBuffer{}, &m.CodecError{Path: inst.Type, Err: m.ErrUnknownType}
	}

	e := &encoder{schema: p.schema, inst: inst}
	if err := e.node(root, m.FieldPath{{Name: inst.Type}}); err != nil {
		return m.EncodedBuffer{}, err
	}

	if e.w.buf == nil {
		e.w.buf = []byte{}
	}

	return m.EncodedBuffer{Bytes: e.w.buf, BitLen: e.w.n, Spans: e.spans}, nil
}

func (e *encoder) fail(path m.FieldPath, err error, format string, args ...any) error {
	return &m.CodecError{Path: path.String(), Bit: e.w.n, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

func (e *encoder) emit(path m.FieldPath, role m.SpanRole, v uint64, w int) {
	start := e.w.n
	e.w.write(v, w)
	e.spans = append(e.spans, m.FieldSpan{Path: path.String(), Role: role, Start: start, End: e.w.n})
}

func (e *encoder) node(id m.NodeID, path m.FieldPath) error {
	n := e.schema.Node(id)

	switch n.Kind {
	case m.KindSequence:
		for _, c := range n.Children {
			if err := e.node(c, path.Child(e.schema.Node(c).Name)); err != nil {
				return err
			}
		}
	case m.KindOptional:
		present := e.inst.Present[path.WithIndex(0).String()]

		var bit uint64
		if present {
			bit = 1
		}

		e.emit(path, m.RolePresence, bit, 1)

		if present {
			return e.node(n.Children[0], path)
		}
	case m.KindChoice:
		alt, ok := e.inst.Choices[path.String()]
		if !ok {
			return e.fail(path, m.ErrMissingValue, "no alternative selected")
		}

		index := -1

		for i, c := range n.Children {
			if e.schema.Node(c).Name == alt {
				index = i
				break
			}
		}

		if index < 0 {
			return e.fail(path, m.ErrInvalidTag, "unknown alternative %q", alt)
		}

		e.emit(path, m.RoleTag, uint64(index), tagWidth(len(n.Children)))

		return e.node(n.Children[index], path.Child(alt))
	case m.KindList:
		count, ok := e.inst.Counts[path.WithIndex(0).String()]
		if !ok {
			return e.fail(path, m.ErrMissingValue, "no element count")
		}

		if count < n.MinSize || count > n.MaxSize {
			return e.fail(path, m.ErrDomainViolation, "count %d outside %d..%d", count, n.MinSize, n.MaxSize)
		}

		e.emit(path.WithIndex(0), m.RoleLength, uint64(count-n.MinSize), width(int64(n.MaxSize-n.MinSize)))

		for i := range count {
			if err := e.node(n.Children[0], path.WithIndex(i)); err != nil {
				return err
			}
		}
	case m.KindLeaf:
		return e.leaf(n.Domain, path)
	}

	return nil
}

func (e *encoder) leaf(d m.Domain, path m.FieldPath) error {
	v, ok := e.inst.Values[path.String()]
	if !ok {
		return e.fail(path, m.ErrMissingValue, "no value")
	}

	if !d.Contains(v) {
		return e.fail(path, m.ErrDomainViolation, "%s outside %s domain", d.Format(v), d.Kind)
	}

	switch d.Kind {
	case m.DomainInteger:
		e.emit(path, m.RoleValue, uint64(v.Int-d.Min), d.Width())
	case m.DomainEnumerated, m.DomainBoolean:
		e.emit(path, m.RoleValue, uint64(v.Int), d.Width())
	case m.DomainBitString:
		if d.Min != d.Max {
			e.emit(path, m.RoleLength, uint64(int64(v.Len)-d.Min), d.Width())
		}

		start := e.w.n
		e.w.writeBits(v.Bits, v.Len)
		e.spans = append(e.spans, m.FieldSpan{Path: path.String(), Role: m.RoleValue, Start: start, End: e.w.n})
	}

	return nil
}

type decoder struct {
	schema *m.Schema
	inst   m.Instance
	r      bitReader
}

func (p *packed) Decode(buf []byte, typeName string) (m.Instance, error) {
	root, ok := p.schema.Type(typeName)
	if !ok {
		return m.Instance{}, &m.CodecError{Path: typeName, Err: m.ErrUnknownType}
	}

	d := &decoder{schema: p.schema, inst: m.NewInstance(typeName), r: bitReader{buf: buf}}
	if err := d.node(root, m.FieldPath{{Name: typeName}}); err != nil {
		return m.Instance{}, err
	}

	return d.inst, nil
}

func (d *decoder) read(path m.FieldPath, w int) (uint64, error) {
	start := d.r.n

	v, ok := d.r.read(w)
	if !ok {
		return 0, &m.CodecError{
			Path: path.String(),
			Bit:  start,
			Err:  fmt.Errorf("%w: need %d bits, %d left", m.ErrTruncatedBuffer, w, d.r.remaining()),
		}
	}

	return v, nil
}

func (d *decoder) fail(path m.FieldPath, bit int, err error, format string, args ...any) error {
	return &m.CodecError{Path: path.String(), Bit: bit, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}

func (d *decoder) node(id m.NodeID, path m.FieldPath) error {
	n := d.schema.Node(id)
	start := d.r.n

	switch n.Kind {
	case m.KindSequence:
		for _, c := range n.Children {
			if err := d.node(c, path.Child(d.schema.Node(c).Name)); err != nil {
				return err
			}
		}
	case m.KindOptional:
		bit, err := d.read(path, 1)
		if err != nil {
			return err
		}

		d.inst.Present[path.WithIndex(0).String()] = bit == 1
		if bit == 1 {
			return d.node(n.Children[0], path)
		}
	case m.KindChoice:
		index, err := d.read(path, tagWidth(len(n.Children)))
		if err != nil {
			return err
		}

		if index >= uint64(len(n.Children)) {
			return d.fail(path, start, m.ErrInvalidTag, "index %d of %d alternatives", index, len(n.Children))
		}

		alt := d.schema.Node(n.Children[index]).Name
		d.inst.Choices[path.String()] = alt

		return d.node(n.Children[index], path.Child(alt))
	case m.KindList:
		raw, err := d.read(path, width(int64(n.MaxSize-n.MinSize)))
		if err != nil {
			return err
		}

		count := int(raw) + n.MinSize
		if count > n.MaxSize {
			return d.fail(path, start, m.ErrDomainViolation, "count %d above %d", count, n.MaxSize)
		}

		d.inst.Counts[path.WithIndex(0).String()] = count

		for i := range count {
			if err := d.node(n.Children[0], path.WithIndex(i)); err != nil {
				return err
			}
		}
	case m.KindLeaf:
		return d.leaf(n.Domain, path)
	}

	return nil
}

func (d *decoder) leaf(dom m.Domain, path m.FieldPath) error {
	start := d.r.n

	var v m.Value

	switch dom.Kind {
	case m.DomainInteger, m.DomainEnumerated, m.DomainBoolean:
		raw, err := d.read(path, dom.Width())
		if err != nil {
			return err
		}

		if dom.Kind == m.DomainInteger {
			v = m.IntValue(int64(raw) + dom.Min)
		} else {
			v = m.IntValue(int64(raw))
		}
	case m.DomainBitString:
		length := dom.Min

		if dom.Min != dom.Max {
			raw, err := d.read(path, dom.Width())
			if err != nil {
				return err
			}

			length += int64(raw)
		}

		if length > dom.Max {
			return d.fail(path, start, m.ErrDomainViolation, "length %d above %d", length, dom.Max)
		}

		data, ok := d.r.readBits(int(length))
		if !ok {
			return d.fail(path, d.r.n, m.ErrTruncatedBuffer, "need %d bits, %d left", length, d.r.remaining())
		}

		v = m.Value{Bits: data, Len: int(length)}
	}

	if !dom.Contains(v) {
		return d.fail(path, start, m.ErrDomainViolation, "%s outside %s domain", dom.Format(v), dom.Kind)
	}

	d.inst.Values[path.String()] = v

	return nil
}
