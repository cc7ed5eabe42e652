package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fracture.dev/pkg/fracture/internal/codec"
	m "fracture.dev/pkg/fracture/internal/model"
)

func TestDiffer_Diff(t *testing.T) {
	tests := []struct {
		name    string
		allow   bool
		base    []byte
		mutated []byte
		want    m.PatchSet
		wantErr error
	}{
		{
			name:    "single byte",
			base:    []byte{0x00, 0x00, 0x00},
			mutated: []byte{0x00, 0xFF, 0x00},
			want:    m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0xFF}}, Length: 3},
		},
		{
			name:    "identical",
			base:    []byte{0x01, 0x02},
			mutated: []byte{0x01, 0x02},
			want:    m.PatchSet{Patches: []m.Patch{}, Length: 2},
		},
		{
			name:    "several bytes in order",
			base:    []byte{0x01, 0x02, 0x03, 0x04},
			mutated: []byte{0x09, 0x02, 0x08, 0x07},
			want:    m.PatchSet{Patches: []m.Patch{{Offset: 0, Value: 0x09}, {Offset: 2, Value: 0x08}, {Offset: 3, Value: 0x07}}, Length: 4},
		},
		{
			name:    "longer without permission",
			base:    []byte{0x01},
			mutated: []byte{0x01, 0x02},
			wantErr: m.ErrLengthMismatchUnsupported,
		},
		{
			name:    "longer",
			allow:   true,
			base:    []byte{0x01, 0x02},
			mutated: []byte{0x01, 0x02, 0x03},
			want:    m.PatchSet{Patches: []m.Patch{{Offset: 2, Value: 0x03}}, Length: 3, Resized: true},
		},
		{
			name:    "shorter",
			allow:   true,
			base:    []byte{0x01, 0x02, 0x03},
			mutated: []byte{0x01, 0x09},
			want:    m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0x09}}, Length: 2, Resized: true},
		},
		{
			name:    "zero byte past the end",
			allow:   true,
			base:    []byte{0x01},
			mutated: []byte{0x01, 0x00},
			want:    m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0x00}}, Length: 2, Resized: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewDiffer(tt.allow).Diff(tt.base, tt.mutated)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, ps)

			applied, err := NewDiffer(tt.allow).Apply(tt.base, ps)
			require.NoError(t, err)
			assert.Equal(t, tt.mutated, applied)
		})
	}
}

func TestDiffer_DiffIdenticalIsEmpty(t *testing.T) {
	ps, err := NewDiffer(false).Diff([]byte{0xAB}, []byte{0xAB})
	require.NoError(t, err)
	assert.True(t, ps.Empty())
}

func TestDiffer_Apply(t *testing.T) {
	base := []byte{0x01, 0x02, 0x03}

	tests := []struct {
		name    string
		ps      m.PatchSet
		want    []byte
		wantErr error
	}{
		{
			name: "overwrite",
			ps:   m.PatchSet{Patches: []m.Patch{{Offset: 0, Value: 0xAA}, {Offset: 2, Value: 0xCC}}, Length: 3},
			want: []byte{0xAA, 0x02, 0xCC},
		},
		{
			name: "empty",
			ps:   m.PatchSet{},
			want: []byte{0x01, 0x02, 0x03},
		},
		{
			name: "length ignored unless resized",
			ps:   m.PatchSet{Length: 1},
			want: []byte{0x01, 0x02, 0x03},
		},
		{
			name:    "offsets out of order",
			ps:      m.PatchSet{Patches: []m.Patch{{Offset: 2, Value: 0x00}, {Offset: 1, Value: 0x00}}},
			wantErr: m.ErrInvalidPatch,
		},
		{
			name:    "repeated offset",
			ps:      m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0x00}, {Offset: 1, Value: 0x01}}},
			wantErr: m.ErrInvalidPatch,
		},
		{
			name:    "offset past the end",
			ps:      m.PatchSet{Patches: []m.Patch{{Offset: 3, Value: 0x00}}},
			wantErr: m.ErrInvalidPatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDiffer(false).Apply(base, tt.ps)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []byte{0x01, 0x02, 0x03}, base, "base is not modified")
		})
	}
}

func TestAnnotate(t *testing.T) {
	schema := attachSchema(t)

	buf, err := codec.New(schema).Encode(attachBaseline())
	require.NoError(t, err)

	ps := m.PatchSet{Patches: []m.Patch{{Offset: 2, Value: 0x05}, {Offset: 4, Value: 0x80}}, Length: 5}

	notes := Annotate(ps, buf.Spans)
	assert.Equal(t, []m.PatchNote{
		{Offset: 2, Fields: []string{"Attach.limits.low"}},
		{Offset: 4, Fields: []string{"Attach.extra#presence"}},
	}, notes)
}

func TestAnnotate_ByteSharedByFields(t *testing.T) {
	spans := []m.FieldSpan{
		{Path: "Msg.a", Role: m.RoleValue, Start: 0, End: 3},
		{Path: "Msg.b", Role: m.RoleTag, Start: 3, End: 5},
		{Path: "Msg.c", Role: m.RoleValue, Start: 5, End: 12},
		{Path: "Msg.d", Role: m.RoleValue, Start: 12, End: 12},
	}

	notes := Annotate(m.PatchSet{Patches: []m.Patch{{Offset: 1, Value: 0xFF}}}, spans)
	assert.Equal(t, []m.PatchNote{{Offset: 1, Fields: []string{"Msg.c"}}}, notes)

	notes = Annotate(m.PatchSet{Patches: []m.Patch{{Offset: 0, Value: 0xFF}}}, spans)
	assert.Equal(t, []m.PatchNote{{Offset: 0, Fields: []string{"Msg.a", "Msg.b#tag", "Msg.c"}}}, notes)
}

func TestHexDiff(t *testing.T) {
	text, err := HexDiff([]byte{0x01, 0x00, 0x03, 0x05, 0x00}, []byte{0x01, 0x00, 0x05, 0x05, 0x00}, "attach.hex", "attach_mut1")
	require.NoError(t, err)

	assert.Contains(t, text, "--- attach.hex")
	assert.Contains(t, text, "+++ attach_mut1")
	assert.Contains(t, text, "-00000000  01 00 03 05 00")
	assert.Contains(t, text, "+00000000  01 00 05 05 00")
}
