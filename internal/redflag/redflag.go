// Package redflag detects content-level defects in a single document by
// running a table of declarative rules over every paragraph.
package redflag

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

// Diagnostic reports a rule that could not be evaluated on a document.
// Err wraps schema.ErrRuleEvaluation.
type Diagnostic struct {
	RuleID   string
	Document string
	Err      error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.RuleID, d.Err)
}

type compiledRule struct {
	rule rules.FlagRule
	pred *rules.Compiled
}

// Engine evaluates a fixed rule table. It is immutable and safe for
// concurrent use.
type Engine struct {
	rules  []compiledRule
	logger *slog.Logger
}

// New builds an engine over the built-in rules followed by extra rules.
// An extra rule replaces a built-in rule with the same id.
func New(extra []rules.FlagRule, logger *slog.Logger) (*Engine, error) {
	table := BuiltinRules()
	index := make(map[string]int, len(table))
	for i, r := range table {
		index[r.ID] = i
	}
	for _, r := range extra {
		if i, ok := index[r.ID]; ok {
			table[i] = r
			continue
		}
		index[r.ID] = len(table)
		table = append(table, r)
	}
	return NewWithRules(table, logger)
}

// NewWithRules builds an engine over exactly the given rules.
func NewWithRules(rs []rules.FlagRule, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate red flag rule id %q", r.ID)
		}
		seen[r.ID] = true
		pred, err := r.Validate()
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiledRule{rule: r, pred: pred})
	}
	return e, nil
}

// Rules returns the rule table in evaluation order.
func (e *Engine) Rules() []rules.FlagRule {
	out := make([]rules.FlagRule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

// Rule returns the rule with the given id.
func (e *Engine) Rule(id string) (rules.FlagRule, bool) {
	for _, cr := range e.rules {
		if cr.rule.ID == id {
			return cr.rule, true
		}
	}
	return rules.FlagRule{}, false
}

// Detect runs every rule over doc. A rule that errors or panics is skipped
// and reported as a diagnostic; the remaining rules still run. At most one
// flag is produced per (rule, paragraph), and flags are ordered by
// paragraph position then rule id, independent of rule order.
func (e *Engine) Detect(doc *schema.Document) ([]schema.RedFlag, []Diagnostic) {
	var (
		flags []schema.RedFlag
		diags []Diagnostic
	)
	seen := make(map[string]int)
	for _, cr := range e.rules {
		matches, err := evalSafely(cr.pred, doc)
		if err != nil {
			d := Diagnostic{
				RuleID:   cr.rule.ID,
				Document: doc.Name,
				Err:      fmt.Errorf("%w: rule %s on %s: %v", schema.ErrRuleEvaluation, cr.rule.ID, doc.Name, err),
			}
			e.logger.Warn("rule evaluation failed", "rule", cr.rule.ID, "document", doc.Name, "error", err)
			diags = append(diags, d)
			continue
		}
		for _, m := range matches {
			f := schema.RedFlag{
				RuleID:      cr.rule.ID,
				Document:    doc.Name,
				ParagraphID: m.ParagraphID,
				Start:       m.Start,
				End:         m.End,
				Severity:    cr.rule.Severity,
				Description: cr.rule.Description,
				Match:       m.Text,
			}
			if i, dup := seen[f.Key()]; dup {
				if f.Start < flags[i].Start {
					flags[i] = f
				}
				continue
			}
			seen[f.Key()] = len(flags)
			flags = append(flags, f)
		}
	}

	pos := make(map[string]int, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		pos[p.ID] = p.Position
	}
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if pos[a.ParagraphID] != pos[b.ParagraphID] {
			return pos[a.ParagraphID] < pos[b.ParagraphID]
		}
		return a.RuleID < b.RuleID
	})
	sort.SliceStable(diags, func(i, j int) bool { return diags[i].RuleID < diags[j].RuleID })
	return flags, diags
}

func evalSafely(pred *rules.Compiled, doc *schema.Document) (matches []rules.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return pred.EvalDocument(doc)
}
