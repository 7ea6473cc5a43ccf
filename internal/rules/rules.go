// Package rules interprets the declarative predicates used by the checklist
// and red-flag engines. A predicate is a tagged variant: its Kind selects
// which fields are read and how the interpreter evaluates it.
package rules

import (
	"fmt"
	"regexp"

	"github.com/dshills/filingcheck/internal/schema"
)

// Kind tags a predicate variant.
type Kind string

const (
	// KindPattern matches each paragraph against Patterns. The match span is
	// group 1 if present, otherwise the whole match. A match whose span also
	// matches Unless is ignored.
	KindPattern Kind = "pattern"

	// KindAbsence fires once per document when no paragraph matches Patterns.
	// When Requires is set the rule only applies to documents containing it.
	// The match is anchored at the first paragraph matching Anchor, or at the
	// first non-empty paragraph.
	KindAbsence Kind = "absence"

	// KindCustom calls Func for each paragraph. Only constructible from Go.
	KindCustom Kind = "custom"

	// KindKeyword requires every target document to contain Patterns.
	KindKeyword Kind = "keyword"

	// KindClauseCount requires at least Min paragraphs matching Patterns in
	// every target document.
	KindClauseCount Kind = "clause_count"

	// KindCrossDocumentEquality extracts capture group 1 of the first match
	// of Patterns from every document and requires all extracted values to
	// agree.
	KindCrossDocumentEquality Kind = "cross_document_equality"
)

// Predicate is a data-described rule condition.
type Predicate struct {
	Kind     Kind     `yaml:"kind" json:"kind"`
	Patterns []string `yaml:"patterns" json:"patterns"`
	Unless   string   `yaml:"unless,omitempty" json:"unless,omitempty"`
	Anchor   string   `yaml:"anchor,omitempty" json:"anchor,omitempty"`
	Requires string   `yaml:"requires,omitempty" json:"requires,omitempty"`
	Min      int      `yaml:"min,omitempty" json:"min,omitempty"`

	Func func(p schema.Paragraph) (bool, error) `yaml:"-" json:"-"`
}

// Match locates a predicate hit inside a document.
type Match struct {
	ParagraphID string
	Start       int
	End         int
	Text        string
}

// Compiled is a predicate with its regular expressions prepared.
type Compiled struct {
	kind     Kind
	patterns []*regexp.Regexp
	unless   *regexp.Regexp
	anchor   *regexp.Regexp
	requires *regexp.Regexp
	min      int
	fn       func(p schema.Paragraph) (bool, error)
}

// Kind returns the variant tag.
func (c *Compiled) Kind() Kind { return c.kind }

// Compile validates p and prepares its patterns. All patterns are
// case-insensitive.
func Compile(p Predicate) (*Compiled, error) {
	c := &Compiled{kind: p.Kind, min: p.Min, fn: p.Func}

	switch p.Kind {
	case KindCustom:
		if p.Func == nil {
			return nil, fmt.Errorf("custom predicate requires a function")
		}
		return c, nil
	case KindPattern, KindAbsence, KindKeyword, KindClauseCount, KindCrossDocumentEquality:
	default:
		return nil, fmt.Errorf("unknown predicate kind %q", p.Kind)
	}

	if len(p.Patterns) == 0 {
		return nil, fmt.Errorf("%s predicate requires at least one pattern", p.Kind)
	}
	for _, src := range p.Patterns {
		re, err := compileFold(src)
		if err != nil {
			return nil, err
		}
		c.patterns = append(c.patterns, re)
	}

	var err error
	if c.unless, err = compileOptional(p.Unless); err != nil {
		return nil, err
	}
	if c.anchor, err = compileOptional(p.Anchor); err != nil {
		return nil, err
	}
	if c.requires, err = compileOptional(p.Requires); err != nil {
		return nil, err
	}

	if p.Kind == KindClauseCount && p.Min <= 0 {
		return nil, fmt.Errorf("clause_count predicate requires min > 0")
	}
	if p.Kind == KindCrossDocumentEquality {
		for i, re := range c.patterns {
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("cross_document_equality pattern[%d] needs a capture group", i)
			}
		}
	}
	return c, nil
}

func compileFold(src string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", src, err)
	}
	return re, nil
}

func compileOptional(src string) (*regexp.Regexp, error) {
	if src == "" {
		return nil, nil
	}
	return compileFold(src)
}

// matchesAny reports whether text matches any compiled pattern.
func (c *Compiled) matchesAny(text string) bool {
	for _, re := range c.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// capture returns group 1 of the first pattern that matches text.
func (c *Compiled) capture(text string) (string, bool) {
	for _, re := range c.patterns {
		if m := re.FindStringSubmatch(text); m != nil && len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}
