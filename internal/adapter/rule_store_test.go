package adapter

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	m "fracture.dev/pkg/fracture/internal/model"
)

func recordIDs(records []m.RuleRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	return ids
}

func TestLocalRuleStore_LoadRulesExamples(t *testing.T) {
	records, issues, err := NewLocalRuleStore().LoadRules([]m.Path{m.Path(filepath.Join(examplesDir, "rules"))})
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	if len(issues) != 0 {
		t.Errorf("LoadRules() issues = %v, want none", issues)
	}

	want := []string{"msg_id_range", "low_below_high", "flags_need_extra", "unknown_field"}
	if got := recordIDs(records); !reflect.DeepEqual(got, want) {
		t.Fatalf("LoadRules() ids = %v, want %v", got, want)
	}

	toml := records[0]
	if toml.PredicateKind != "rangeMembership" || toml.ConfidenceFlag == nil || !*toml.ConfidenceFlag {
		t.Errorf("msg_id_range = %+v", toml)
	}

	if !reflect.DeepEqual(toml.Literal, []any{1.0, 10.0}) {
		t.Errorf("msg_id_range literal = %#v, want [1 10]", toml.Literal)
	}

	if !strings.HasSuffix(string(toml.Source), "header.toml") {
		t.Errorf("msg_id_range source = %s", toml.Source)
	}

	if records[2].DSL == "" || records[2].Confidence != "MEDIUM" {
		t.Errorf("flags_need_extra = %+v", records[2])
	}
}

func TestLocalRuleStore_LoadRulesKeepsFileOrder(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name: "yaml top level",
			file: "rules.yaml",
			content: `
zeta: {subjectPath: A.x, predicateKind: equals, literal: 1}
alpha: {subjectPath: A.y, predicateKind: equals, literal: 2}
`,
			want: []string{"zeta", "alpha"},
		},
		{
			name:    "json",
			file:    "rules.json",
			content: `{"b": {"dsl": "EQ(A.x, 1)"}, "a": {"dsl": "EQ(A.y, 2)"}}`,
			want:    []string{"b", "a"},
		},
		{
			name: "toml wrapped",
			file: "rules.toml",
			content: `
[rules.second]
subjectPath = "A.x"
predicateKind = "notEquals"
literal = "3"

[rules.first]
dsl = "LT(A.x, A.y)"
`,
			want: []string{"second", "first"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeTestFile(t, path, tt.content)

			records, issues, err := NewLocalRuleStore().LoadRules([]m.Path{m.Path(path)})
			if err != nil {
				t.Fatalf("LoadRules() error = %v", err)
			}

			if len(issues) != 0 {
				t.Fatalf("LoadRules() issues = %v", issues)
			}

			if got := recordIDs(records); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadRules() ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalRuleStore_LoadRulesRefusesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeTestFile(t, path, `
rules:
  ok:
    subjectPath: A.x
    predicateKind: lessThan
    objectPath: A.y
  no_predicate:
    subjectPath: A.x
  bad_kind:
    subjectPath: A.x
    predicateKind: between
  extra_key:
    dsl: "EQ(A.x, 1)"
    severity: high
`)

	records, issues, err := NewLocalRuleStore().LoadRules([]m.Path{m.Path(path)})
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	if got := recordIDs(records); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Errorf("LoadRules() ids = %v, want [ok]", got)
	}

	if len(issues) != 3 {
		t.Fatalf("LoadRules() issues = %v, want 3", issues)
	}

	for i, id := range []string{"no_predicate", "bad_kind", "extra_key"} {
		if issues[i].RuleID != id || issues[i].Reason == "" || issues[i].Source != m.Path(path) {
			t.Errorf("issue %d = %+v, want refusal of %s", i, issues[i], id)
		}
	}
}

func TestLocalRuleStore_LoadRulesErrors(t *testing.T) {
	dir := t.TempDir()

	notMapping := filepath.Join(dir, "list.yaml")
	writeTestFile(t, notMapping, "- a\n- b\n")

	brokenTOML := filepath.Join(dir, "broken.toml")
	writeTestFile(t, brokenTOML, "[rule\n")

	tests := []struct {
		name string
		path string
	}{
		{name: "missing path", path: filepath.Join(dir, "missing.yaml")},
		{name: "yaml sequence", path: notMapping},
		{name: "broken toml", path: brokenTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := NewLocalRuleStore().LoadRules([]m.Path{m.Path(tt.path)}); err == nil {
				t.Error("LoadRules() error = nil, want error")
			}
		})
	}
}

func TestLocalRuleStore_LoadRulesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	writeTestFile(t, path, "")

	records, issues, err := NewLocalRuleStore().LoadRules([]m.Path{m.Path(path)})
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	if len(records) != 0 || len(issues) != 0 {
		t.Errorf("LoadRules() = %v, %v, want nothing", records, issues)
	}
}
