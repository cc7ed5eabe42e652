package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "fracture.dev/pkg/fracture/internal/model"
)

// testSchema builds:
//
//	Msg ::= SEQUENCE {
//	  version INTEGER (0..7),
//	  kind    ENUMERATED {n1, n2, n4, n8},
//	  flag    BOOLEAN,
//	  cfg     SEQUENCE { timer INTEGER (10..25), mode BIT STRING (SIZE(4)) } OPTIONAL,
//	  body    CHOICE { short INTEGER (0..3), long SEQUENCE { a INTEGER (0..255) } },
//	  items   SEQUENCE (SIZE(0..3)) OF SEQUENCE { id INTEGER (0..15) },
//	  tag     BIT STRING (SIZE(0..7))
//	}
func testSchema(t *testing.T) *m.Schema {
	t.Helper()

	b := m.NewSchemaBuilder()
	cfg := b.Optional(b.Sequence("cfg", b.Integer("timer", 10, 25), b.BitString("mode", 4, 4)))
	body := b.Choice("body", b.Integer("short", 0, 3), b.Sequence("long", b.Integer("a", 0, 255)))
	items := b.List("items", 0, 3, b.Sequence("item", b.Integer("id", 0, 15)))
	b.Type(b.Sequence("Msg",
		b.Integer("version", 0, 7),
		b.Enumerated("kind", "n1", "n2", "n4", "n8"),
		b.Boolean("flag"),
		cfg,
		body,
		items,
		b.BitString("tag", 0, 7),
	))

	s, err := b.Build()
	require.NoError(t, err)

	return s
}

func bitsOf(t *testing.T, text string) m.Value {
	t.Helper()

	v, err := m.BitValue(text)
	require.NoError(t, err)

	return v
}

func minimalInstance(t *testing.T) m.Instance {
	t.Helper()

	inst := m.NewInstance("Msg")
	inst.Values["Msg.version"] = m.IntValue(5)
	inst.Values["Msg.kind"] = m.IntValue(2)
	inst.Values["Msg.flag"] = m.IntValue(1)
	inst.Present["Msg.cfg"] = false
	inst.Choices["Msg.body"] = "short"
	inst.Values["Msg.body.short"] = m.IntValue(3)
	inst.Counts["Msg.items"] = 0
	inst.Values["Msg.tag"] = bitsOf(t, "")

	return inst
}

func fullInstance(t *testing.T) m.Instance {
	t.Helper()

	inst := m.NewInstance("Msg")
	inst.Values["Msg.version"] = m.IntValue(7)
	inst.Values["Msg.kind"] = m.IntValue(3)
	inst.Values["Msg.flag"] = m.IntValue(0)
	inst.Present["Msg.cfg"] = true
	inst.Values["Msg.cfg.timer"] = m.IntValue(17)
	inst.Values["Msg.cfg.mode"] = bitsOf(t, "1010")
	inst.Choices["Msg.body"] = "long"
	inst.Values["Msg.body.long.a"] = m.IntValue(200)
	inst.Counts["Msg.items"] = 3
	inst.Values["Msg.items.id"] = m.IntValue(1)
	inst.Values["Msg.items[1].id"] = m.IntValue(9)
	inst.Values["Msg.items[2].id"] = m.IntValue(15)
	inst.Values["Msg.tag"] = bitsOf(t, "1100101")

	return inst
}

func TestEncode_Layout(t *testing.T) {
	c := New(testSchema(t))

	buf, err := c.Encode(minimalInstance(t))
	require.NoError(t, err)

	assert.Equal(t, []byte{0xB4, 0xC0}, buf.Bytes)
	assert.Equal(t, 15, buf.BitLen)
	assert.Equal(t, []m.FieldSpan{
		{Path: "Msg.version", Role: m.RoleValue, Start: 0, End: 3},
		{Path: "Msg.kind", Role: m.RoleValue, Start: 3, End: 5},
		{Path: "Msg.flag", Role: m.RoleValue, Start: 5, End: 6},
		{Path: "Msg.cfg", Role: m.RolePresence, Start: 6, End: 7},
		{Path: "Msg.body", Role: m.RoleTag, Start: 7, End: 8},
		{Path: "Msg.body.short", Role: m.RoleValue, Start: 8, End: 10},
		{Path: "Msg.items", Role: m.RoleLength, Start: 10, End: 12},
		{Path: "Msg.tag", Role: m.RoleLength, Start: 12, End: 15},
		{Path: "Msg.tag", Role: m.RoleValue, Start: 15, End: 15},
	}, buf.Spans)
}

func TestEncode_ByteAlignedFields(t *testing.T) {
	b := m.NewSchemaBuilder()
	b.Type(b.Sequence("Pair", b.Integer("a", 0, 255), b.Integer("b", 0, 255)))
	s, err := b.Build()
	require.NoError(t, err)

	inst := m.NewInstance("Pair")
	inst.Values["Pair.a"] = m.IntValue(1)
	inst.Values["Pair.b"] = m.IntValue(2)

	buf, err := New(s).Encode(inst)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, buf.Bytes)

	span, ok := buf.Span("Pair.b")
	require.True(t, ok)
	assert.Equal(t, 8, span.Start)
	assert.Equal(t, 16, span.End)
}

func TestRoundTrip(t *testing.T) {
	s := testSchema(t)
	c := New(s)

	tests := []struct {
		name string
		inst m.Instance
	}{
		{name: "minimal", inst: minimalInstance(t)},
		{name: "full", inst: fullInstance(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := c.Encode(tt.inst)
			require.NoError(t, err)

			decoded, err := c.Decode(buf.Bytes, "Msg")
			require.NoError(t, err)
			assert.True(t, tt.inst.Equal(decoded), "decoded %+v", decoded)

			again, err := c.Encode(decoded)
			require.NoError(t, err)
			assert.Equal(t, buf.Bytes, again.Bytes)
		})
	}
}

func TestEncode_IgnoresDormantEntries(t *testing.T) {
	c := New(testSchema(t))

	inst := minimalInstance(t)
	inst.Values["Msg.cfg.timer"] = m.IntValue(12)
	inst.Values["Msg.body.long.a"] = m.IntValue(1)

	dormant, err := c.Encode(inst)
	require.NoError(t, err)

	clean, err := c.Encode(minimalInstance(t))
	require.NoError(t, err)

	assert.Equal(t, clean.Bytes, dormant.Bytes)
}

func TestEncode_Errors(t *testing.T) {
	c := New(testSchema(t))

	tests := []struct {
		name   string
		mutate func(inst m.Instance)
		want   error
		path   string
	}{
		{
			name:   "missing leaf",
			mutate: func(inst m.Instance) { delete(inst.Values, "Msg.flag") },
			want:   m.ErrMissingValue,
			path:   "Msg.flag",
		},
		{
			name:   "integer out of range",
			mutate: func(inst m.Instance) { inst.Values["Msg.version"] = m.IntValue(8) },
			want:   m.ErrDomainViolation,
			path:   "Msg.version",
		},
		{
			name:   "unknown alternative",
			mutate: func(inst m.Instance) { inst.Choices["Msg.body"] = "medium" },
			want:   m.ErrInvalidTag,
			path:   "Msg.body",
		},
		{
			name:   "list too long",
			mutate: func(inst m.Instance) { inst.Counts["Msg.items"] = 4 },
			want:   m.ErrDomainViolation,
			path:   "Msg.items",
		},
		{
			name:   "missing count",
			mutate: func(inst m.Instance) { delete(inst.Counts, "Msg.items") },
			want:   m.ErrMissingValue,
			path:   "Msg.items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := minimalInstance(t)
			tt.mutate(inst)

			_, err := c.Encode(inst)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var codecErr *m.CodecError
			require.True(t, errors.As(err, &codecErr))
			assert.Equal(t, tt.path, codecErr.Path)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	b := m.NewSchemaBuilder()
	b.Type(b.Choice("Pick", b.Integer("x", 0, 5), b.Integer("y", 0, 1), b.Integer("z", 0, 1)))
	s, err := b.Build()
	require.NoError(t, err)

	c := New(s)

	tests := []struct {
		name string
		buf  []byte
		want error
		bit  int
	}{
		{name: "empty buffer", buf: nil, want: m.ErrTruncatedBuffer, bit: 0},
		{name: "unknown tag", buf: []byte{0xC0}, want: m.ErrInvalidTag, bit: 0},
		{name: "value above max", buf: []byte{0x38}, want: m.ErrDomainViolation, bit: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.buf, "Pick")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var codecErr *m.CodecError
			require.True(t, errors.As(err, &codecErr))
			assert.Equal(t, tt.bit, codecErr.Bit)
		})
	}

	_, err = c.Decode([]byte{0x00}, "Other")
	assert.ErrorIs(t, err, m.ErrUnknownType)
}

func TestDecode_TruncatedInsideSubtree(t *testing.T) {
	c := New(testSchema(t))

	buf, err := c.Encode(fullInstance(t))
	require.NoError(t, err)

	_, err = c.Decode(buf.Bytes[:2], "Msg")
	assert.ErrorIs(t, err, m.ErrTruncatedBuffer)
}
