// Package plugins loads steps declared in YAML or JSON manifests and adapts
// them into engine steps. A manifest names the products it requires, the
// steps it injects itself into, and a jq program mapping its dependencies to
// transactions.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rendis/tally/internal/validation"
	"github.com/rendis/tally/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Manifest is the decoded form of a plugin file.
type Manifest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	ProductKinds []string `json:"product_kinds"`
	// Accepts is a CEL predicate over name, kind and args. Empty accepts
	// void args only.
	Accepts  string        `json:"accepts,omitempty"`
	Requires []Requirement `json:"requires,omitempty"`
	// AfterInitGraph names the steps this plugin is injected into.
	AfterInitGraph []string `json:"after_init_graph,omitempty"`
	// Transactions is a jq program emitting transaction objects.
	Transactions string          `json:"transactions"`
	Report       *ReportTemplate `json:"report,omitempty"`

	// Path is the file the manifest was read from.
	Path string `json:"-"`
}

// Requirement is a product the plugin step depends on. Args is either a
// keyword or an args object:
//
//	self  the plugin step's own args (default)
//	void  no args
//	eofy  the end of the financial year
//	year  the financial year ending at eofy
type Requirement struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Args any    `json:"args,omitempty"`
}

// ReportTemplate lays out the report a plugin produces: one section per
// account kind, then formula rows.
type ReportTemplate struct {
	Title    string            `json:"title"`
	Sections []SectionTemplate `json:"sections,omitempty"`
	Formulas []FormulaTemplate `json:"formulas,omitempty"`
}

type SectionTemplate struct {
	Text        string `json:"text"`
	ID          string `json:"id"`
	AccountKind string `json:"account_kind"`
	Invert      bool   `json:"invert,omitempty"`
}

type FormulaTemplate struct {
	Text    string `json:"text"`
	ID      string `json:"id"`
	Expr    string `json:"expr"`
	Heading bool   `json:"heading,omitempty"`
}

var manifestExts = []string{".yaml", ".yml", ".json"}

// LoadDir reads every manifest in dir, in file name order. A missing
// directory holds no manifests.
func LoadDir(dir string, v *validation.Validator) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePlugin, "read plugin dir %s", dir).WithCause(err)
	}

	var manifests []*Manifest
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(manifestExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePlugin, "read plugin %s", path).WithCause(err)
		}
		m, err := ParseManifest(data, v)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}
		if prev, ok := seen[m.Name]; ok {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "plugin %q declared in %s and %s", m.Name, prev, path)
		}
		seen[m.Name] = path
		m.Path = path
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// ParseManifest decodes and validates one manifest. JSON is accepted as a
// subset of YAML.
func ParseManifest(data []byte, v *validation.Validator) (*Manifest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "manifest is not valid YAML").WithCause(err)
	}
	if err := v.ValidateManifest(doc); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "re-encode manifest").WithCause(err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode manifest").WithCause(err)
	}
	return &m, nil
}

// kinds returns the declared product kinds in canonical order.
func (m *Manifest) kinds() ([]schema.ProductKind, error) {
	var out []schema.ProductKind
	for _, k := range schema.AllKinds {
		if slices.Contains(m.ProductKinds, k.String()) {
			out = append(out, k)
		}
	}
	if len(out) != len(m.ProductKinds) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q has unknown product kinds %v", m.Name, m.ProductKinds)
	}
	return out, nil
}
