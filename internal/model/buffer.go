package model

// SpanRole tells what part of the encoding a span holds.
type SpanRole string

const (
	// RoleValue marks the bits of a leaf value.
	RoleValue SpanRole = "value"
	// RolePresence marks an optional presence bit.
	RolePresence SpanRole = "presence"
	// RoleTag marks a choice discriminant.
	RoleTag SpanRole = "tag"
	// RoleLength marks a list count or bit-string length determinant.
	RoleLength SpanRole = "length"
)

// FieldSpan locates one encoded field as the half-open bit range [Start, End).
type FieldSpan struct {
	Path  string   `json:"path"`
	Role  SpanRole `json:"role"`
	Start int      `json:"start"`
	End   int      `json:"end"`
}

// EncodedBuffer is a packed encoding plus the bit span of every field in it.
type EncodedBuffer struct {
	Bytes  []byte      `json:"bytes"`
	BitLen int         `json:"bitLen"`
	Spans  []FieldSpan `json:"spans"`
}

// Span returns the value span of the field at path.
func (b EncodedBuffer) Span(path string) (FieldSpan, bool) {
	for _, span := range b.Spans {
		if span.Path == path && span.Role == RoleValue {
			return span, true
		}
	}

	return FieldSpan{}, false
}

// Patch overwrites one byte.
type Patch struct {
	Offset uint32 `json:"offset" cbor:"1,keyasint"`
	Value  byte   `json:"value" cbor:"2,keyasint"`
}

// PatchSet is an ordered list of patches with strictly increasing offsets.
// When Resized is set, the patched buffer is first cut or zero-extended to
// Length bytes.
type PatchSet struct {
	Patches []Patch `json:"patches"`
	Length  int     `json:"length"`
	Resized bool    `json:"resized,omitempty"`
}

// Empty reports whether ps changes nothing.
func (ps PatchSet) Empty() bool {
	return len(ps.Patches) == 0 && !ps.Resized
}

// PatchNote names the fields whose bits fall into a patched byte.
type PatchNote struct {
	Offset uint32   `json:"offset"`
	Fields []string `json:"fields"`
}
