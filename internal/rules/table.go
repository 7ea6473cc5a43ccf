package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dshills/filingcheck/internal/schema"
)

// FlagRule describes one red-flag check. Severity is a static property of
// the rule, never computed per match.
type FlagRule struct {
	ID          string          `yaml:"id"`
	Severity    schema.Severity `yaml:"severity"`
	Description string          `yaml:"description"`
	Predicate   Predicate       `yaml:"predicate"`
}

// Validate checks the rule and compiles its predicate.
func (r FlagRule) Validate() (*Compiled, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("red flag rule: id is required")
	}
	if schema.SeverityOrdinal(r.Severity) < 0 {
		return nil, fmt.Errorf("rule %s: invalid severity %q (must be low, medium, or high)", r.ID, r.Severity)
	}
	switch r.Predicate.Kind {
	case KindPattern, KindAbsence, KindCustom:
	default:
		return nil, fmt.Errorf("rule %s: %q is not a document predicate", r.ID, r.Predicate.Kind)
	}
	c, err := Compile(r.Predicate)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return c, nil
}

// StructuralRule is a checklist rule evaluated over the bundle.
// Target selects the documents it reads; DocumentTypeUnknown means every
// document in the bundle.
type StructuralRule struct {
	ID          string              `yaml:"id"`
	Description string              `yaml:"description"`
	Target      schema.DocumentType `yaml:"target"`
	Predicate   Predicate           `yaml:"predicate"`
}

// Validate checks the rule and compiles its predicate.
func (r StructuralRule) Validate() (*Compiled, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("structural rule: id is required")
	}
	switch r.Predicate.Kind {
	case KindKeyword, KindClauseCount, KindCrossDocumentEquality:
	default:
		return nil, fmt.Errorf("rule %s: %q is not a bundle predicate", r.ID, r.Predicate.Kind)
	}
	c, err := Compile(r.Predicate)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return c, nil
}

type flagFile struct {
	RedFlags []FlagRule `yaml:"red_flags"`
}

// ParseFlagRules decodes a YAML rule table of the form
//
//	red_flags:
//	  - id: wrong_jurisdiction
//	    severity: high
//	    description: ...
//	    predicate: {kind: pattern, patterns: ["\\bDIFC\\b"]}
func ParseFlagRules(data []byte) ([]FlagRule, error) {
	var f flagFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rule table: %w", err)
	}
	for _, r := range f.RedFlags {
		if r.Predicate.Kind == KindCustom {
			return nil, fmt.Errorf("rule %s: custom predicates cannot be declared in YAML", r.ID)
		}
		if _, err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return f.RedFlags, nil
}

// LoadFlagRules reads a YAML rule table from disk.
func LoadFlagRules(path string) ([]FlagRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule table: %w", err)
	}
	return ParseFlagRules(data)
}
