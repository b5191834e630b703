// Package validation checks plugin manifests and generate requests against
// JSON Schema (draft 2020-12) before they reach the engine.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/tally/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	definitionsURL = "https://tally.dev/schemas/defs.json"
	manifestURL    = "https://tally.dev/schemas/plugin.json"
	requestURL     = "https://tally.dev/schemas/generate.json"
)

// definitionsJSON holds the shapes shared by the other schemas: product
// kinds, step args and product ids.
const definitionsJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://tally.dev/schemas/defs.json",
  "$defs": {
    "kind": {
      "type": "string",
      "enum": ["Transactions", "BalancesAt", "BalancesBetween", "DynamicReport", "Generic"]
    },
    "date": { "type": "string", "format": "date" },
    "range": {
      "type": "object",
      "required": ["start", "end"],
      "properties": {
        "start": { "$ref": "#/$defs/date" },
        "end": { "$ref": "#/$defs/date" }
      },
      "additionalProperties": false
    },
    "args": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["void", "date", "date_range", "multiple_dates", "multiple_date_ranges", "custom"]
        },
        "date": { "$ref": "#/$defs/date" },
        "start": { "$ref": "#/$defs/date" },
        "end": { "$ref": "#/$defs/date" },
        "dates": { "type": "array", "items": { "$ref": "#/$defs/date" } },
        "ranges": { "type": "array", "items": { "$ref": "#/$defs/range" } },
        "name": { "type": "string" },
        "params": { "type": "object", "additionalProperties": { "type": "string" } }
      },
      "additionalProperties": false,
      "allOf": [
        { "if": { "properties": { "type": { "const": "date" } } }, "then": { "required": ["date"] } },
        { "if": { "properties": { "type": { "const": "date_range" } } }, "then": { "required": ["start", "end"] } },
        { "if": { "properties": { "type": { "const": "multiple_dates" } } }, "then": { "required": ["dates"] } },
        { "if": { "properties": { "type": { "const": "multiple_date_ranges" } } }, "then": { "required": ["ranges"] } }
      ]
    },
    "product": {
      "type": "object",
      "required": ["name", "kind"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "kind": { "$ref": "#/$defs/kind" },
        "args": { "$ref": "#/$defs/args" }
      },
      "additionalProperties": false
    }
  }
}`

// manifestSchemaJSON is the schema of a plugin step manifest.
const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://tally.dev/schemas/plugin.json",
  "type": "object",
  "required": ["name", "product_kinds", "transactions"],
  "properties": {
    "name": { "type": "string", "pattern": "^[A-Za-z][A-Za-z0-9_.]*$" },
    "description": { "type": "string" },
    "product_kinds": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": { "enum": ["Transactions", "DynamicReport"] },
      "contains": { "const": "Transactions" }
    },
    "accepts": { "type": "string", "minLength": 1 },
    "requires": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "kind": { "$ref": "defs.json#/$defs/kind" },
          "args": {
            "oneOf": [
              { "enum": ["self", "void", "eofy", "year"] },
              { "$ref": "defs.json#/$defs/args" }
            ]
          }
        },
        "additionalProperties": false
      }
    },
    "after_init_graph": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "transactions": { "type": "string", "minLength": 1 },
    "report": {
      "type": "object",
      "required": ["title"],
      "properties": {
        "title": { "type": "string" },
        "sections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["text", "id", "account_kind"],
            "properties": {
              "text": { "type": "string" },
              "id": { "type": "string", "minLength": 1 },
              "account_kind": { "type": "string", "minLength": 1 },
              "invert": { "type": "boolean" }
            },
            "additionalProperties": false
          }
        },
        "formulas": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["text", "id", "expr"],
            "properties": {
              "text": { "type": "string" },
              "id": { "type": "string", "minLength": 1 },
              "expr": { "type": "string", "minLength": 1 },
              "heading": { "type": "boolean" }
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "if": { "properties": { "product_kinds": { "contains": { "const": "DynamicReport" } } } },
  "then": { "required": ["report"] }
}`

// requestSchemaJSON is the schema of a generate request.
const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://tally.dev/schemas/generate.json",
  "type": "object",
  "required": ["targets"],
  "properties": {
    "targets": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "defs.json#/$defs/product" }
    },
    "eofy_date": { "$ref": "defs.json#/$defs/date" },
    "save": { "type": "boolean" }
  },
  "additionalProperties": false
}`

// Validator validates documents against the compiled schemas.
// Safe for concurrent use.
type Validator struct {
	manifest *jsonschema.Schema
	request  *jsonschema.Schema
}

// New compiles the manifest and request schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		definitionsURL: definitionsJSON,
		manifestURL:    manifestSchemaJSON,
		requestURL:     requestSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	manifest, err := c.Compile(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	request, err := c.Compile(requestURL)
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &Validator{manifest: manifest, request: request}, nil
}

// ValidateManifest validates a decoded plugin manifest (from YAML or JSON).
func (v *Validator) ValidateManifest(doc any) error {
	return validate(v.manifest, doc)
}

// ValidateRequest validates the raw JSON of a generate request.
func (v *Validator) ValidateRequest(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "request is not valid JSON").WithCause(err)
	}
	if err := v.request.Validate(doc); err != nil {
		return toTallyError(err)
	}
	return nil
}

func validate(s *jsonschema.Schema, doc any) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "document is empty")
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize document").WithCause(err)
	}
	if err := s.Validate(value); err != nil {
		return toTallyError(err)
	}
	return nil
}

// toJSONValue round-trips v through JSON so numbers become json.Number, as
// the validator expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toTallyError flattens a validation error tree into one message per
// violated leaf, keyed by instance location.
func toTallyError(err error) *schema.TallyError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{"/" + strings.Join(verr.InstanceLocation, "/") + ": " + verr.Error()}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
