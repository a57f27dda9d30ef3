package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/delist-labs/delist/pkg/contracts"
)

// capabilityBundleSchema validates operator-authored capability bundles
// before they replace live table entries. A malformed bundle must never
// half-apply.
const capabilityBundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["controllers"],
  "properties": {
    "version": {"type": "string"},
    "controllers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["controller_id", "allowed_channels"],
        "properties": {
          "controller_id": {"type": "string", "minLength": 1},
          "display_name": {"type": "string"},
          "domains": {"type": "array", "items": {"type": "string"}},
          "can_auto_prepare": {"type": "boolean"},
          "can_auto_submit": {"type": "boolean"},
          "allowed_channels": {
            "type": "array",
            "minItems": 1,
            "items": {"enum": ["email", "webform", "api"]}
          },
          "preferred_channel": {"enum": ["email", "webform", "api"]},
          "default_min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "region_min_confidence": {
            "type": "object",
            "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
          },
          "threshold_high": {"type": "number", "minimum": 0, "maximum": 1},
          "threshold_medium": {"type": "number", "minimum": 0, "maximum": 1},
          "followup_every_days": {"type": "integer", "minimum": 0},
          "max_followups": {"type": "integer", "minimum": 0},
          "region_followup_days": {
            "type": "object",
            "additionalProperties": {"type": "integer", "minimum": 0}
          },
          "sla_ack_minutes": {"type": "integer", "minimum": 0},
          "sla_resolve_minutes": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// CapabilityBundle is the on-disk YAML format for operator capability sets.
type CapabilityBundle struct {
	Version     string                            `yaml:"version" json:"version"`
	Controllers []*contracts.ControllerCapability `yaml:"controllers" json:"controllers"`
}

// Loader loads capability bundles from a directory of YAML files into a
// Table.
type Loader struct {
	dir    string
	schema *jsonschema.Schema
	table  *Table
}

// NewLoader creates a loader targeting the given table.
func NewLoader(dir string, table *Table) (*Loader, error) {
	schema, err := jsonschema.CompileString("capability_bundle.json", capabilityBundleSchema)
	if err != nil {
		return nil, fmt.Errorf("policy: compile bundle schema: %w", err)
	}
	return &Loader{dir: dir, schema: schema, table: table}, nil
}

// LoadAll loads every .yaml/.yml bundle in the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("policy: read bundle dir %s: %w", l.dir, err)
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if err := l.LoadFile(filepath.Join(l.dir, entry.Name())); err != nil {
			return fmt.Errorf("policy: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile validates and applies a single bundle file. Validation happens on
// the whole document before any entry is applied.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	bundle, err := l.Parse(data)
	if err != nil {
		return err
	}
	for _, c := range bundle.Controllers {
		l.table.Put(c)
	}
	return nil
}

// Parse validates raw YAML against the bundle schema and decodes it.
func (l *Loader) Parse(data []byte) (*CapabilityBundle, error) {
	// Schema validation works on the JSON data model, so round-trip the
	// YAML document through encoding/json first.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("bundle not representable as JSON: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("bundle failed validation: %w", err)
	}

	var bundle CapabilityBundle
	if err := json.Unmarshal(jsonBytes, &bundle); err != nil {
		return nil, fmt.Errorf("decode controllers: %w", err)
	}
	return &bundle, nil
}
