package adapter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	m "fracture.dev/pkg/fracture/internal/model"
)

//go:embed schemas/rule.schema.json
var ruleSchemaJSON []byte

var ruleSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(ruleSchemaJSON))
})

// rulesKey is the optional wrapper table holding the rule records.
const rulesKey = "rules"

// RuleStore reads externally synthesized rule records.
type RuleStore interface {
	// LoadRules reads every rule file under paths in file order, then
	// declaration order within a file. Records that fail the record schema
	// come back as issues instead of records.
	LoadRules(paths []m.Path) ([]m.RuleRecord, []m.RuleIssue, error)
}

// LocalRuleStore reads YAML, JSON and TOML rule files from disk.
type LocalRuleStore struct{}

// NewLocalRuleStore constructs a LocalRuleStore.
func NewLocalRuleStore() *LocalRuleStore {
	return &LocalRuleStore{}
}

// rawRule is one record as it appears in a file, keyed by rule id.
type rawRule struct {
	id    string
	value any
}

// LoadRules reads the rule files under paths.
func (s *LocalRuleStore) LoadRules(paths []m.Path) ([]m.RuleRecord, []m.RuleIssue, error) {
	schema, err := ruleSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("compile rule schema: %w", err)
	}

	files, err := ruleFiles(paths)
	if err != nil {
		return nil, nil, err
	}

	var (
		records []m.RuleRecord
		issues  []m.RuleIssue
	)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("read rules: %w", err)
		}

		raws, err := parseRules(file, data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse rules %s: %w", file, err)
		}

		for _, raw := range raws {
			rec, reason := toRecord(schema, raw)
			if reason != "" {
				issues = append(issues, m.RuleIssue{RuleID: raw.id, Source: m.Path(file), Reason: reason})
				continue
			}

			rec.ID = raw.id
			rec.Source = m.Path(file)
			records = append(records, rec)
		}
	}

	return records, issues, nil
}

func ruleFiles(paths []m.Path) ([]string, error) {
	var files []string

	for _, root := range paths {
		info, err := os.Stat(string(root))
		if err != nil {
			return nil, fmt.Errorf("stat rules: %w", err)
		}

		if !info.IsDir() {
			files = append(files, string(root))
			continue
		}

		var found []string

		err = filepath.WalkDir(string(root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !d.IsDir() && ruleFormat(path) != "" {
				found = append(found, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk rules %s: %w", root, err)
		}

		sort.Strings(found)
		files = append(files, found...)
	}

	return files, nil
}

func ruleFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return "yaml"
	case ".toml":
		return "toml"
	}

	return ""
}

func parseRules(path string, data []byte) ([]rawRule, error) {
	switch ruleFormat(path) {
	case "yaml":
		return parseYAMLRules(data)
	case "toml":
		return parseTOMLRules(data)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
}

// parseYAMLRules walks the document node so rules keep file order.
func parseYAMLRules(data []byte) ([]rawRule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: rules must be a mapping of rule id to record", root.Line)
	}

	if len(root.Content) == 2 && root.Content[0].Value == rulesKey && root.Content[1].Kind == yaml.MappingNode {
		root = root.Content[1]
	}

	rules := make([]rawRule, 0, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		var value any
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("rule %s: %w", root.Content[i].Value, err)
		}

		rules = append(rules, rawRule{id: root.Content[i].Value, value: value})
	}

	return rules, nil
}

// parseTOMLRules takes rule order from the decoder's key metadata.
func parseTOMLRules(data []byte) ([]rawRule, error) {
	var raw map[string]any

	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}

	table := raw
	depth := 0

	if nested, ok := raw[rulesKey].(map[string]any); ok && len(raw) == 1 {
		table = nested
		depth = 1
	}

	var rules []rawRule

	seen := make(map[string]bool)

	for _, key := range md.Keys() {
		if len(key) != depth+1 || (depth == 1 && key[0] != rulesKey) {
			continue
		}

		id := key[depth]
		if seen[id] {
			continue
		}

		seen[id] = true
		rules = append(rules, rawRule{id: id, value: table[id]})
	}

	return rules, nil
}

// toRecord checks raw against the record schema and converts it. A non-empty
// reason means the record was refused.
func toRecord(schema *gojsonschema.Schema, raw rawRule) (m.RuleRecord, string) {
	data, err := json.Marshal(raw.value)
	if err != nil {
		return m.RuleRecord{}, fmt.Sprintf("not a JSON value: %v", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return m.RuleRecord{}, fmt.Sprintf("validate record: %v", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return m.RuleRecord{}, strings.Join(details, "; ")
	}

	var rec m.RuleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return m.RuleRecord{}, fmt.Sprintf("decode record: %v", err)
	}

	return rec, ""
}
