package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON constrains the shape and ranges of the configuration
// document. The hand-written Validate covers cross-field rules; the schema
// catches type mistakes and out-of-range values early with good messages.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "version": { "type": "integer", "minimum": 1 },
    "trigger": {
      "type": "object",
      "properties": {
        "key": { "enum": ["Shift", "Control", "Alt", "Super"] },
        "double_tap_ms": { "type": "integer", "minimum": 1 },
        "poll_ms": { "type": "integer", "minimum": 1 }
      }
    },
    "audio": {
      "type": "object",
      "properties": {
        "sample_rate": { "type": "integer", "minimum": 8000 },
        "device_index": { "type": "integer", "minimum": -1 }
      }
    },
    "vad": {
      "type": "object",
      "properties": {
        "threshold": { "type": "number", "minimum": 0, "maximum": 1 },
        "silence_timeout_ms": { "type": "integer", "minimum": 100 }
      }
    },
    "session": {
      "type": "object",
      "properties": {
        "max_record_min": { "type": "integer", "minimum": 1 },
        "extend_min": { "type": "integer", "minimum": 0 },
        "tick_ms": { "type": "integer", "minimum": 1 }
      }
    },
    "asr": {
      "type": "object",
      "properties": {
        "endpoint": { "type": "string", "minLength": 1 },
        "text_path": { "type": "string", "minLength": 1 },
        "timeout_sec": { "type": "integer", "minimum": 1 },
        "max_retries": { "type": "integer", "minimum": 1 },
        "retry_base_delay_ms": { "type": "integer", "minimum": 0 }
      }
    },
    "paste": {
      "type": "object",
      "properties": {
        "settle_ms": { "type": "integer", "minimum": 0 },
        "serve_timeout_ms": { "type": "integer", "minimum": 1 }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ValidateSchema checks the configuration against the embedded JSON schema.
func ValidateSchema(cfg *Config) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("config.schema.json", schemaJSON)
	})
	if schemaErr != nil {
		return fmt.Errorf("compile schema: %w", schemaErr)
	}

	// Round-trip through JSON so the validator sees plain maps.
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return compiledSchema.Validate(doc)
}
