package model

import (
	"bytes"
	"fmt"
	"math/bits"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Value is a leaf value. Integers, enumeration indexes and booleans (0/1)
// live in Int; bit strings use Bits (MSB first) and Len.
type Value struct {
	Int  int64  `json:"int,omitempty"`
	Bits []byte `json:"bits,omitempty"`
	Len  int    `json:"len,omitempty"`
}

// IntValue builds an integer, enumeration index or boolean value.
func IntValue(v int64) Value {
	return Value{Int: v}
}

// BitValue builds a bit-string value from a string of '0' and '1'.
func BitValue(text string) (Value, error) {
	v := Value{Len: len(text), Bits: make([]byte, (len(text)+7)/8)}

	for i, r := range text {
		switch r {
		case '0':
		case '1':
			v.Bits[i/8] |= 0x80 >> (i % 8)
		default:
			return Value{}, fmt.Errorf("invalid bit %q in %q", r, text)
		}
	}

	return v, nil
}

// Equal compares two values.
func (v Value) Equal(other Value) bool {
	return v.Int == other.Int && v.Len == other.Len && bytes.Equal(v.Bits, other.Bits)
}

// Bit returns bit i of a bit-string value.
func (v Value) Bit(i int) bool {
	return v.Bits[i/8]&(0x80>>(i%8)) != 0
}

// FlipBit returns a copy of v with bit i inverted.
func (v Value) FlipBit(i int) Value {
	out := Value{Len: v.Len, Bits: append([]byte(nil), v.Bits...)}
	out.Bits[i/8] ^= 0x80 >> (i % 8)

	return out
}

// DomainKind classifies leaf value domains.
type DomainKind string

const (
	// DomainInteger is a constrained whole number Min..Max.
	DomainInteger DomainKind = "integer"
	// DomainEnumerated is a closed set of named values.
	DomainEnumerated DomainKind = "enumerated"
	// DomainBitString is a bit string whose length is Min..Max bits.
	DomainBitString DomainKind = "bitstring"
	// DomainBoolean is a single bit.
	DomainBoolean DomainKind = "boolean"
)

// Domain is the declared value domain of a leaf.
type Domain struct {
	Kind   DomainKind
	Min    int64
	Max    int64
	Values []string
}

// Ordered reports whether the domain supports lessThan/greaterThan.
func (d Domain) Ordered() bool {
	return d.Kind == DomainInteger || d.Kind == DomainEnumerated
}

// Numeric reports whether values of the domain compare as numbers.
func (d Domain) Numeric() bool {
	return d.Ordered()
}

// Comparable reports whether values of d and other can be tested for
// equality against each other.
func (d Domain) Comparable(other Domain) bool {
	if d.Numeric() && other.Numeric() {
		return true
	}

	return d.Kind == other.Kind
}

// Width is the number of bits of the value (or length determinant for
// bit strings) in the packed encoding.
func (d Domain) Width() int {
	switch d.Kind {
	case DomainInteger, DomainBitString:
		return bits.Len64(uint64(d.Max - d.Min))
	case DomainEnumerated:
		if len(d.Values) == 0 {
			return 0
		}

		return bits.Len64(uint64(len(d.Values) - 1))
	case DomainBoolean:
		return 1
	}

	return 0
}

// Contains reports whether v is structurally valid for the domain.
func (d Domain) Contains(v Value) bool {
	switch d.Kind {
	case DomainInteger:
		return v.Int >= d.Min && v.Int <= d.Max
	case DomainEnumerated:
		return v.Int >= 0 && v.Int < int64(len(d.Values))
	case DomainBoolean:
		return v.Int == 0 || v.Int == 1
	case DomainBitString:
		return int64(v.Len) >= d.Min && int64(v.Len) <= d.Max && len(v.Bits) == (v.Len+7)/8
	}

	return false
}

// Default is the value used when a subtree becomes present without any
// known content.
func (d Domain) Default() Value {
	switch d.Kind {
	case DomainInteger:
		if d.Min <= 0 && d.Max >= 0 {
			return IntValue(0)
		}

		return IntValue(d.Min)
	case DomainBitString:
		return Value{Len: int(d.Min), Bits: make([]byte, (d.Min+7)/8)}
	}

	return IntValue(0)
}

var enumNumberPattern = regexp.MustCompile(`^(?i:n|ms|sf|sl|s|rb|dB|ds)?(\d+)$`)

// enumNumbers returns the numeric reading of every enumeration value. Names
// such as n4, ms10 or sl2 carry their number; when any name has none, the
// declaration index is used for all values.
func (d Domain) enumNumbers() []int64 {
	out := make([]int64, len(d.Values))

	for i, name := range d.Values {
		match := enumNumberPattern.FindStringSubmatch(name)
		if match == nil {
			for j := range out {
				out[j] = int64(j)
			}

			return out
		}

		n, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			for j := range out {
				out[j] = int64(j)
			}

			return out
		}

		out[i] = n
	}

	return out
}

// NumberOf returns the numeric reading of v within an ordered domain.
func (d Domain) NumberOf(v Value) int64 {
	if d.Kind == DomainEnumerated {
		numbers := d.enumNumbers()
		if v.Int >= 0 && v.Int < int64(len(numbers)) {
			return numbers[v.Int]
		}
	}

	return v.Int
}

// ValueOf returns the domain value whose numeric reading is n.
func (d Domain) ValueOf(n int64) (Value, bool) {
	switch d.Kind {
	case DomainInteger:
		v := IntValue(n)
		return v, d.Contains(v)
	case DomainEnumerated:
		for i, number := range d.enumNumbers() {
			if number == n {
				return IntValue(int64(i)), true
			}
		}
	case DomainBoolean:
		v := IntValue(n)
		return v, d.Contains(v)
	}

	return Value{}, false
}

// SortedValues lists enumeration values by ascending numeric reading, ties
// in declaration order.
func (d Domain) SortedValues() []Value {
	numbers := d.enumNumbers()
	order := make([]int, len(numbers))

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return numbers[order[a]] < numbers[order[b]] })

	out := make([]Value, len(order))
	for i, idx := range order {
		out[i] = IntValue(int64(idx))
	}

	return out
}

// Parse reads the text form of a value of this domain.
func (d Domain) Parse(text string) (Value, error) {
	text = strings.TrimSpace(text)

	switch d.Kind {
	case DomainInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, text)
		}

		return IntValue(n), nil
	case DomainEnumerated:
		for i, name := range d.Values {
			if name == text {
				return IntValue(int64(i)), nil
			}
		}

		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			if v, ok := d.ValueOf(n); ok {
				return v, nil
			}
		}

		return Value{}, fmt.Errorf("%w: %q is not one of %v", ErrTypeMismatch, text, d.Values)
	case DomainBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, text)
		}

		if b {
			return IntValue(1), nil
		}

		return IntValue(0), nil
	case DomainBitString:
		text = strings.TrimSuffix(strings.TrimPrefix(text, "'"), "'B")

		v, err := BitValue(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}

		return v, nil
	}

	return Value{}, fmt.Errorf("%w: unknown domain %q", ErrTypeMismatch, d.Kind)
}

// Format renders v in the text form Parse accepts.
func (d Domain) Format(v Value) string {
	switch d.Kind {
	case DomainEnumerated:
		if v.Int >= 0 && v.Int < int64(len(d.Values)) {
			return d.Values[v.Int]
		}

		return fmt.Sprintf("#%d", v.Int)
	case DomainBoolean:
		return strconv.FormatBool(v.Int != 0)
	case DomainBitString:
		var b strings.Builder
		for i := range v.Len {
			if v.Bit(i) {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}

		return b.String()
	}

	return strconv.FormatInt(v.Int, 10)
}
