// Package adapter contains the file and artifact adapters of the fracture
// CLI: schema, baseline, rule, report and payload storage.
package adapter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	m "fracture.dev/pkg/fracture/internal/model"
)

// ErrUnsupportedInput is returned for files whose format cannot be
// recognised from their extension.
var ErrUnsupportedInput = errors.New("unsupported input file")

// InputStore abstracts reading the inputs of a run so the workflow can be
// tested without touching the disk.
type InputStore interface {
	// LoadSchema reads a YAML or JSON schema file.
	LoadSchema(path m.Path) (*m.Schema, error)

	// LoadCosts reads a flat element-to-cost YAML mapping.
	LoadCosts(path m.Path) (map[string]float64, error)

	// LoadBaselines reads baseline files. Directories are walked
	// recursively; files are returned sorted by path.
	LoadBaselines(paths []m.Path) ([]m.BaselineSource, error)

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// WriteFile writes content to a file, creating parent directories.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error
}

// LocalInputStore reads inputs from the local filesystem.
type LocalInputStore struct{}

// NewLocalInputStore constructs a LocalInputStore.
func NewLocalInputStore() *LocalInputStore {
	return &LocalInputStore{}
}

// ReadFile loads file contents from disk.
func (s *LocalInputStore) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to path, creating its directory.
func (s *LocalInputStore) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return err
	}

	return os.WriteFile(string(path), content, perm)
}

// schemaFile is the on-disk schema layout.
type schemaFile struct {
	Types []schemaNode `yaml:"types"`
}

type schemaNode struct {
	Name         string       `yaml:"name"`
	Kind         string       `yaml:"kind"`
	TypeName     string       `yaml:"typeName"`
	IE           bool         `yaml:"ie"`
	Optional     bool         `yaml:"optional"`
	Min          *int64       `yaml:"min"`
	Max          *int64       `yaml:"max"`
	MinSize      int          `yaml:"minSize"`
	MaxSize      *int         `yaml:"maxSize"`
	Values       []string     `yaml:"values"`
	Fields       []schemaNode `yaml:"fields"`
	Alternatives []schemaNode `yaml:"alternatives"`
	Element      *schemaNode  `yaml:"element"`
}

// LoadSchema reads and builds the schema at path.
func (s *LocalInputStore) LoadSchema(path m.Path) (*m.Schema, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	return ParseSchema(data)
}

// ParseSchema builds a schema from its YAML (or JSON) text.
func ParseSchema(data []byte) (*m.Schema, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	b := m.NewSchemaBuilder()

	for _, t := range file.Types {
		root, err := buildNode(b, t)
		if err != nil {
			return nil, err
		}

		b.Type(root)
	}

	return b.Build()
}

func buildNode(b *m.SchemaBuilder, n schemaNode) (m.NodeID, error) {
	id, err := buildInner(b, n)
	if err != nil {
		return 0, err
	}

	switch {
	case n.IE:
		b.Element(id, n.TypeName)
	case n.TypeName != "":
		b.Named(id, n.TypeName)
	}

	if n.Optional {
		id = b.Optional(id)
	}

	return id, nil
}

func buildInner(b *m.SchemaBuilder, n schemaNode) (m.NodeID, error) {
	fail := func(format string, args ...any) (m.NodeID, error) {
		return 0, &m.StructuralError{Field: n.Name, Err: fmt.Errorf(format, args...)}
	}

	switch strings.ToLower(n.Kind) {
	case "sequence", "":
		children := make([]m.NodeID, 0, len(n.Fields))

		for _, f := range n.Fields {
			id, err := buildNode(b, f)
			if err != nil {
				return 0, err
			}

			children = append(children, id)
		}

		return b.Sequence(n.Name, children...), nil
	case "choice":
		alternatives := make([]m.NodeID, 0, len(n.Alternatives))

		for _, a := range n.Alternatives {
			id, err := buildNode(b, a)
			if err != nil {
				return 0, err
			}

			alternatives = append(alternatives, id)
		}

		return b.Choice(n.Name, alternatives...), nil
	case "list":
		if n.Element == nil {
			return fail("list has no element")
		}

		if n.MaxSize == nil {
			return fail("list has no maxSize")
		}

		element, err := buildNode(b, *n.Element)
		if err != nil {
			return 0, err
		}

		return b.List(n.Name, n.MinSize, *n.MaxSize, element), nil
	case "integer":
		if n.Min == nil || n.Max == nil {
			return fail("integer needs min and max")
		}

		return b.Integer(n.Name, *n.Min, *n.Max), nil
	case "enumerated":
		return b.Enumerated(n.Name, n.Values...), nil
	case "boolean":
		return b.Boolean(n.Name), nil
	case "bitstring":
		maxSize := n.MinSize
		if n.MaxSize != nil {
			maxSize = *n.MaxSize
		}

		return b.BitString(n.Name, n.MinSize, maxSize), nil
	}

	return fail("unknown kind %q", n.Kind)
}

// LoadCosts reads a cost table.
func (s *LocalInputStore) LoadCosts(path m.Path) (map[string]float64, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read costs: %w", err)
	}

	costs := map[string]float64{}
	if err := yaml.Unmarshal(data, &costs); err != nil {
		return nil, fmt.Errorf("parse costs %s: %w", path, err)
	}

	return costs, nil
}

// LoadBaselines reads every baseline under paths.
func (s *LocalInputStore) LoadBaselines(paths []m.Path) ([]m.BaselineSource, error) {
	var files []string

	for _, root := range paths {
		err := filepath.WalkDir(string(root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				return nil
			}

			if _, ok := baselineFormat(path); ok || path == string(root) {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk baselines %s: %w", root, err)
		}
	}

	sort.Strings(files)

	sources := make([]m.BaselineSource, 0, len(files))

	for _, file := range files {
		source, err := readBaseline(file)
		if err != nil {
			return nil, err
		}

		sources = append(sources, source)
	}

	return sources, nil
}

func baselineFormat(path string) (m.BaselineFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex":
		return m.BaselineHex, true
	case ".bin":
		return m.BaselineBinary, true
	case ".yaml", ".yml", ".json":
		return m.BaselineDocument, true
	}

	return "", false
}

func readBaseline(path string) (m.BaselineSource, error) {
	format, ok := baselineFormat(path)
	if !ok {
		return m.BaselineSource{}, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return m.BaselineSource{}, fmt.Errorf("read baseline: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	source := m.BaselineSource{Name: name, Origin: m.Path(path), Format: format}

	switch format {
	case m.BaselineHex:
		source.Bytes, err = DecodeHex(data)
	case m.BaselineBinary:
		source.Bytes = data
	case m.BaselineDocument:
		var doc m.InstanceDocument

		err = yaml.Unmarshal(data, &doc)
		source.Document = &doc
	}

	if err != nil {
		return m.BaselineSource{}, fmt.Errorf("parse baseline %s: %w", path, err)
	}

	return source, nil
}

// DecodeHex reads hex text, ignoring whitespace, colons and 0x prefixes.
func DecodeHex(data []byte) ([]byte, error) {
	text := strings.ReplaceAll(strings.ReplaceAll(string(data), "0x", ""), "0X", "")
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ':' {
			return -1
		}

		return r
	}, text)

	return hex.DecodeString(text)
}

// EncodeHex renders bytes as hex text, 16 space-separated bytes per line.
func EncodeHex(data []byte) string {
	var b strings.Builder

	for i, v := range data {
		switch {
		case i == 0:
		case i%16 == 0:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}

		b.WriteString(hex.EncodeToString([]byte{v}))
	}

	if len(data) > 0 {
		b.WriteByte('\n')
	}

	return b.String()
}
