package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/fxamacker/cbor/v2"

	m "fracture.dev/pkg/fracture/internal/model"
)

// Payload artifact formats.
const (
	FormatOffsets = "offsets"
	FormatCBOR    = "cbor"
	FormatPlugin  = "cpp"
	FormatDiff    = "diff"
)

// PayloadFormats lists every payload format in the order files are written.
var PayloadFormats = []string{FormatOffsets, FormatCBOR, FormatPlugin, FormatDiff}

// ErrMalformedOffsets is returned for offset files that cannot be read back.
var ErrMalformedOffsets = errors.New("malformed offset file")

// PayloadStore writes test case records and replay payloads.
type PayloadStore interface {
	// SaveTestCases writes testcases.jsonl into dir, one record per
	// candidate, and the payload files of accepted candidates into
	// dir/payloads.
	SaveTestCases(dir m.Path, meta m.RunMeta, cases []m.TestCase, opts m.PayloadOptions) error
	// LoadPatches reads an offset file or a CBOR payload back into a patch
	// set. Offset files are shifted back by frameOffset.
	LoadPatches(path m.Path, frameOffset int) (m.PatchSet, error)
}

// LocalPayloadStore writes payloads to the local filesystem.
type LocalPayloadStore struct{}

// NewLocalPayloadStore constructs a LocalPayloadStore.
func NewLocalPayloadStore() *LocalPayloadStore {
	return &LocalPayloadStore{}
}

// testCaseRecord is one line of testcases.jsonl.
type testCaseRecord struct {
	ID             string            `json:"id"`
	UnitID         string            `json:"unitId"`
	ConstraintID   string            `json:"constraintId"`
	Element        string            `json:"element"`
	Scope          m.Scope           `json:"scope"`
	Targets        []string          `json:"targets"`
	BaselineValues map[string]string `json:"baselineValues"`
	MutatedValues  map[string]string `json:"mutatedValues"`
	RejectedReason string            `json:"rejectedReason,omitempty"`
	Collateral     []string          `json:"collateral,omitempty"`
	PatchCount     int               `json:"patchCount"`
}

func recordOf(tc m.TestCase) testCaseRecord {
	rec := testCaseRecord{
		ID:             tc.ID,
		UnitID:         tc.UnitID,
		ConstraintID:   tc.ConstraintID,
		Element:        tc.Element,
		Scope:          tc.Scope,
		Targets:        tc.Targets,
		BaselineValues: make(map[string]string, len(tc.Changes)),
		MutatedValues:  make(map[string]string, len(tc.Changes)),
		RejectedReason: tc.RejectedReason,
		Collateral:     tc.Collateral,
		PatchCount:     len(tc.Patches.Patches),
	}

	for _, change := range tc.Changes {
		rec.BaselineValues[change.Path] = change.Baseline
		rec.MutatedValues[change.Path] = change.Mutated
	}

	return rec
}

// payloadDocument is the CBOR payload handed to replay tooling.
type payloadDocument struct {
	Version      int       `cbor:"1,keyasint"`
	RunID        string    `cbor:"2,keyasint"`
	TestCase     string    `cbor:"3,keyasint"`
	MessageType  string    `cbor:"4,keyasint"`
	Element      string    `cbor:"5,keyasint"`
	ConstraintID string    `cbor:"6,keyasint"`
	RuleID       string    `cbor:"7,keyasint,omitempty"`
	Predicate    string    `cbor:"8,keyasint"`
	Schema       string    `cbor:"9,keyasint,omitempty"`
	FrameOffset  int       `cbor:"10,keyasint"`
	Length       int       `cbor:"11,keyasint"`
	Resized      bool      `cbor:"12,keyasint,omitempty"`
	Patches      []m.Patch `cbor:"13,keyasint"`
}

const payloadVersion = 1

// SaveTestCases writes records and payload files.
func (s *LocalPayloadStore) SaveTestCases(dir m.Path, meta m.RunMeta, cases []m.TestCase, opts m.PayloadOptions) error {
	var lines bytes.Buffer

	for _, tc := range cases {
		data, err := json.Marshal(recordOf(tc))
		if err != nil {
			return fmt.Errorf("marshal test case %s: %w", tc.ID, err)
		}

		lines.Write(data)
		lines.WriteByte('\n')
	}

	if err := writeArtifact(dir, TestCasesFile, lines.Bytes()); err != nil {
		return err
	}

	payloads := m.Path(filepath.Join(string(dir), PayloadDir))

	for _, tc := range cases {
		if !tc.Accepted() {
			continue
		}

		if err := s.savePayload(payloads, meta, tc, opts); err != nil {
			return fmt.Errorf("payload %s: %w", tc.ID, err)
		}
	}

	return nil
}

func wants(opts m.PayloadOptions, format string) bool {
	return len(opts.Formats) == 0 || slices.Contains(opts.Formats, format)
}

func (s *LocalPayloadStore) savePayload(dir m.Path, meta m.RunMeta, tc m.TestCase, opts m.PayloadOptions) error {
	if wants(opts, FormatOffsets) {
		if err := writeArtifact(dir, tc.ID+"_offset.txt", []byte(FormatOffsetFile(tc.Patches, opts.FrameOffset))); err != nil {
			return err
		}
	}

	if wants(opts, FormatCBOR) {
		data, err := cbor.Marshal(payloadDocument{
			Version:      payloadVersion,
			RunID:        meta.RunID,
			TestCase:     tc.ID,
			MessageType:  tc.MessageType,
			Element:      tc.Element,
			ConstraintID: tc.ConstraintID,
			RuleID:       tc.RuleID,
			Predicate:    string(tc.Predicate),
			Schema:       string(meta.Schema),
			FrameOffset:  opts.FrameOffset,
			Length:       tc.Patches.Length,
			Resized:      tc.Patches.Resized,
			Patches:      tc.Patches.Patches,
		})
		if err != nil {
			return fmt.Errorf("marshal cbor: %w", err)
		}

		if err := writeArtifact(dir, tc.ID+".cbor", data); err != nil {
			return err
		}
	}

	if wants(opts, FormatPlugin) {
		source, err := RenderPlugin(tc.Patches, opts)
		if err != nil {
			return err
		}

		if err := writeArtifact(dir, tc.ID+".cpp", []byte(source)); err != nil {
			return err
		}
	}

	if wants(opts, FormatDiff) && tc.HexDiff != "" {
		if err := writeArtifact(dir, tc.ID+".diff", []byte(tc.HexDiff)); err != nil {
			return err
		}
	}

	return nil
}

// FormatOffsetFile renders one "Offset: N, New Value: xx" line per patch,
// with N relative to the capture frame.
func FormatOffsetFile(ps m.PatchSet, frameOffset int) string {
	var b strings.Builder

	for _, p := range ps.Patches {
		fmt.Fprintf(&b, "Offset: %d, New Value: %02x\n", int(p.Offset)+frameOffset, p.Value)
	}

	return b.String()
}

// ParseOffsetFile reads an offset file back. Lines not starting with
// "Offset:" are ignored.
func ParseOffsetFile(data []byte, frameOffset int) (m.PatchSet, error) {
	ps := m.PatchSet{Patches: []m.Patch{}}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(text, "Offset:") {
			continue
		}

		offsetText, valueText, ok := strings.Cut(strings.TrimPrefix(text, "Offset:"), ", New Value:")
		if !ok {
			return m.PatchSet{}, fmt.Errorf("%w: line %d: %q", ErrMalformedOffsets, line, text)
		}

		offset, err := strconv.Atoi(strings.TrimSpace(offsetText))
		if err != nil || offset < frameOffset {
			return m.PatchSet{}, fmt.Errorf("%w: line %d: bad offset %q", ErrMalformedOffsets, line, offsetText)
		}

		value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(valueText), "0x"), 16, 8)
		if err != nil {
			return m.PatchSet{}, fmt.Errorf("%w: line %d: bad value %q", ErrMalformedOffsets, line, valueText)
		}

		ps.Patches = append(ps.Patches, m.Patch{Offset: uint32(offset - frameOffset), Value: byte(value)})
	}

	return ps, scanner.Err()
}

// LoadPatches reads a patch set from an offset file or a CBOR payload.
func (s *LocalPayloadStore) LoadPatches(path m.Path, frameOffset int) (m.PatchSet, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return m.PatchSet{}, fmt.Errorf("read patches: %w", err)
	}

	if strings.EqualFold(filepath.Ext(string(path)), ".cbor") {
		var doc payloadDocument
		if err := cbor.Unmarshal(data, &doc); err != nil {
			return m.PatchSet{}, fmt.Errorf("parse payload %s: %w", path, err)
		}

		patches := doc.Patches
		if patches == nil {
			patches = []m.Patch{}
		}

		return m.PatchSet{Patches: patches, Length: doc.Length, Resized: doc.Resized}, nil
	}

	return ParseOffsetFile(data, frameOffset)
}

var pluginTemplate = template.Must(template.New("plugin").Parse(`#include <ModulesInclude.hpp>
// Filters
wd_filter_t f1;
// Vars
const char *module_name()
{
    return "fracture";
}
// Setup
int setup(wd_modules_ctx_t *ctx)
{
    ctx->config->fuzzing.global_timeout = false;
    f1 = wd_filter("{{.Filter}}");
    return 0;
}
// TX
int tx_pre_dissection(uint8_t *pkt_buf, int pkt_length, wd_modules_ctx_t *ctx)
{
    wd_register_filter(ctx->wd, f1);
    return 0;
}
int tx_post_dissection(uint8_t *pkt_buf, int pkt_length, wd_modules_ctx_t *ctx)
{
    if (wd_read_filter(ctx->wd, f1)) {
        wd_log_y("Malformed message sent!");
{{- range .Writes}}
        pkt_buf[{{.Offset}} - {{$.Header}}] = 0x{{printf "%02x" .Value}};
{{- end}}
        return 1;
    }
    return 0;
}
`))

type pluginWrite struct {
	Offset int
	Value  byte
}

// RenderPlugin renders the replay plugin source writing ps into a captured
// frame matched by the configured filter.
func RenderPlugin(ps m.PatchSet, opts m.PayloadOptions) (string, error) {
	writes := make([]pluginWrite, 0, len(ps.Patches))
	for _, p := range ps.Patches {
		writes = append(writes, pluginWrite{Offset: int(p.Offset) + opts.FrameOffset, Value: p.Value})
	}

	var buf bytes.Buffer

	err := pluginTemplate.Execute(&buf, map[string]any{
		"Filter": opts.PluginFilter,
		"Header": opts.PluginHeaderOffset,
		"Writes": writes,
	})
	if err != nil {
		return "", fmt.Errorf("render plugin: %w", err)
	}

	return buf.String(), nil
}
