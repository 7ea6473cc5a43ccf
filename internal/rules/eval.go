package rules

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dshills/filingcheck/internal/schema"
)

// EvalDocument evaluates a paragraph- or document-level predicate
// (pattern, absence, custom) against one document.
func (c *Compiled) EvalDocument(doc *schema.Document) ([]Match, error) {
	switch c.kind {
	case KindPattern:
		return c.evalPattern(doc), nil
	case KindAbsence:
		return c.evalAbsence(doc), nil
	case KindCustom:
		return c.evalCustom(doc)
	default:
		return nil, fmt.Errorf("%s predicate cannot be evaluated against a single document", c.kind)
	}
}

func (c *Compiled) evalPattern(doc *schema.Document) []Match {
	var out []Match
	for _, p := range doc.Paragraphs {
		for _, re := range c.patterns {
			for _, loc := range re.FindAllStringSubmatchIndex(p.Text, -1) {
				// The flagged span is group 1 when it took part in the match,
				// so a rewrite replaces only the offending words.
				start, end := loc[0], loc[1]
				if len(loc) >= 4 && loc[2] >= 0 && loc[3] > loc[2] {
					start, end = loc[2], loc[3]
				}
				if c.unless != nil && c.unless.MatchString(p.Text[start:end]) {
					continue
				}
				out = append(out, Match{
					ParagraphID: p.ID,
					Start:       start,
					End:         end,
					Text:        p.Text[start:end],
				})
			}
		}
	}
	return out
}

func (c *Compiled) evalAbsence(doc *schema.Document) []Match {
	if len(doc.Paragraphs) == 0 {
		return nil
	}
	if c.requires != nil {
		found := false
		for _, p := range doc.Paragraphs {
			if c.requires.MatchString(p.Text) {
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	for _, p := range doc.Paragraphs {
		if c.matchesAny(p.Text) {
			return nil
		}
	}

	anchor := ""
	if c.anchor != nil {
		for _, p := range doc.Paragraphs {
			if c.anchor.MatchString(p.Text) {
				anchor = p.ID
				break
			}
		}
	}
	if anchor == "" {
		anchor = doc.Paragraphs[0].ID
		for _, p := range doc.Paragraphs {
			if strings.TrimSpace(p.Text) != "" {
				anchor = p.ID
				break
			}
		}
	}
	return []Match{{ParagraphID: anchor}}
}

func (c *Compiled) evalCustom(doc *schema.Document) ([]Match, error) {
	var out []Match
	for _, p := range doc.Paragraphs {
		ok, err := c.fn(p)
		if err != nil {
			return nil, fmt.Errorf("paragraph %s: %w", p.ID, err)
		}
		if ok {
			out = append(out, Match{ParagraphID: p.ID, End: len(p.Text), Text: p.Text})
		}
	}
	return out, nil
}

// Failure is one failed bundle-level check.
type Failure struct {
	Document string
	Detail   string
}

// EvalBundle evaluates a bundle-level predicate (keyword, clause_count,
// cross_document_equality) against the given documents. Documents are
// visited in the order given.
func (c *Compiled) EvalBundle(docs []*schema.Document) ([]Failure, error) {
	switch c.kind {
	case KindKeyword:
		var out []Failure
		for _, d := range docs {
			if !c.anyParagraph(d) {
				out = append(out, Failure{Document: d.Name, Detail: "required wording not found"})
			}
		}
		return out, nil
	case KindClauseCount:
		var out []Failure
		for _, d := range docs {
			n := c.countParagraphs(d)
			if n < c.min {
				out = append(out, Failure{Document: d.Name, Detail: fmt.Sprintf("found %d matching clause(s), need at least %d", n, c.min)})
			}
		}
		return out, nil
	case KindCrossDocumentEquality:
		return c.evalEquality(docs), nil
	default:
		return nil, fmt.Errorf("%s predicate cannot be evaluated against a bundle", c.kind)
	}
}

func (c *Compiled) anyParagraph(d *schema.Document) bool {
	for _, p := range d.Paragraphs {
		if c.matchesAny(p.Text) {
			return true
		}
	}
	return false
}

func (c *Compiled) countParagraphs(d *schema.Document) int {
	n := 0
	for _, p := range d.Paragraphs {
		if c.matchesAny(p.Text) {
			n++
		}
	}
	return n
}

func (c *Compiled) evalEquality(docs []*schema.Document) []Failure {
	type found struct{ doc, raw, norm string }
	var values []found
	for _, d := range docs {
		for _, p := range d.Paragraphs {
			if v, ok := c.capture(p.Text); ok && normalizeValue(v) != "" {
				values = append(values, found{doc: d.Name, raw: strings.TrimSpace(v), norm: normalizeValue(v)})
				break
			}
		}
	}
	if len(values) < 2 {
		return nil
	}

	first := values[0].norm
	agree := true
	for _, v := range values[1:] {
		if v.norm != first {
			agree = false
			break
		}
	}
	if agree {
		return nil
	}

	names := make([]string, len(values))
	parts := make([]string, len(values))
	for i, v := range values {
		names[i] = v.doc
		parts[i] = fmt.Sprintf("%q in %s", v.raw, v.doc)
	}
	return []Failure{{
		Document: strings.Join(names, ", "),
		Detail:   "values differ: " + strings.Join(parts, "; "),
	}}
}

// normalizeValue folds case, collapses whitespace and drops trailing
// punctuation so "Acme Ltd." and "ACME  Ltd" compare equal.
func normalizeValue(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	out := strings.Join(fields, " ")
	return strings.TrimRightFunc(out, func(r rune) bool { return unicode.IsPunct(r) })
}
