package model

// Path represents a file system path.
type Path string

// BaselineFormat tells how a baseline input was supplied.
type BaselineFormat string

const (
	// BaselineHex is a hex text dump of an encoded message.
	BaselineHex BaselineFormat = "hex"
	// BaselineBinary is a raw encoded message.
	BaselineBinary BaselineFormat = "binary"
	// BaselineDocument is a YAML or JSON instance document.
	BaselineDocument BaselineFormat = "document"
)

// InstanceDocument is the on-disk form of a message instance. Keys are
// FieldPath strings.
type InstanceDocument struct {
	Type    string            `yaml:"type" json:"type"`
	Values  map[string]any    `yaml:"values" json:"values"`
	Present map[string]bool   `yaml:"present,omitempty" json:"present,omitempty"`
	Choices map[string]string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Counts  map[string]int    `yaml:"counts,omitempty" json:"counts,omitempty"`
}

// BaselineSource is a baseline message as read from disk, before decoding.
type BaselineSource struct {
	Name     string
	Origin   Path
	Format   BaselineFormat
	Bytes    []byte
	Document *InstanceDocument
}

// Baseline is a decoded, well-formed exemplar message.
type Baseline struct {
	Name     string
	Origin   Path
	Instance Instance
}
