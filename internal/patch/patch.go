package patch

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// clausePatch is the internal processing type for patch generation.
type clausePatch struct {
	header string
	before string // paragraph text to use as diff source
	after  string // rewrite to use as diff target
}

// GenerateDiff converts suggestion rewrites into diff-match-patch text
// suitable for writing to --patch-out. docs maps document names to the
// reviewed documents. Suggestions without a rewrite are ignored; rewrites
// whose paragraph cannot be found are skipped with a warning written to w
// (may be nil). Output is ordered by document, paragraph position and rule.
func GenerateDiff(docs map[string]*schema.Document, suggestions []schema.Suggestion, w io.Writer) string {
	var patches []clausePatch
	type key struct {
		doc string
		pos int
		id  string
	}
	var keys []key

	for _, s := range suggestions {
		if s.Rewrite == "" {
			continue
		}
		cp, pos, ok := resolve(docs, s)
		if !ok {
			if w != nil {
				fmt.Fprintf(w, "WARN: patch for %s in %s could not be located (paragraph %s not found)\n",
					s.Flag.RuleID, s.Flag.Document, s.Flag.ParagraphID)
			}
			continue
		}
		patches = append(patches, cp)
		keys = append(keys, key{s.Flag.Document, pos, s.Flag.RuleID})
	}
	if len(patches) == 0 {
		return ""
	}

	idx := make([]int, len(patches))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.doc != kb.doc {
			return ka.doc < kb.doc
		}
		if ka.pos != kb.pos {
			return ka.pos < kb.pos
		}
		return ka.id < kb.id
	})

	dmp := diffmatchpatch.New()
	var out strings.Builder
	for _, i := range idx {
		cp := patches[i]
		diffs := dmp.DiffMain(cp.before, cp.after, false)
		patchList := dmp.PatchMake(cp.before, diffs)
		patchText := dmp.PatchToText(patchList)
		if patchText == "" {
			continue
		}
		out.WriteString(cp.header)
		out.WriteString(patchText)
		out.WriteString("\n")
	}
	return out.String()
}

// resolve finds the flagged paragraph and pairs its text with the rewrite.
// The rewrite is normalized the same way as the paragraph so that line
// ending differences do not produce spurious hunks.
func resolve(docs map[string]*schema.Document, s schema.Suggestion) (clausePatch, int, bool) {
	doc, ok := docs[s.Flag.Document]
	if !ok || doc == nil {
		return clausePatch{}, 0, false
	}
	p, ok := doc.Paragraph(s.Flag.ParagraphID)
	if !ok {
		return clausePatch{}, 0, false
	}
	return clausePatch{
		header: fmt.Sprintf("# patch for %s in %s (%s)\n", s.Flag.RuleID, s.Flag.Document, s.Flag.ParagraphID),
		before: normalize(p.Text),
		after:  normalize(s.Rewrite),
	}, p.Position, true
}

// Apply applies the rewrites to a copy of each document's paragraphs and
// returns the changed copies keyed by name. Used to preview the clause text
// a patch produces. Each rewrite is turned into a patch against the original
// paragraph and applied to the running text, so several rewrites of one
// paragraph all take effect. A rewrite whose patch no longer applies is
// left out.
func Apply(docs map[string]*schema.Document, suggestions []schema.Suggestion) map[string]*schema.Document {
	ordered := make([]schema.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Rewrite != "" {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		fa, fb := ordered[a].Flag, ordered[b].Flag
		if fa.Document != fb.Document {
			return fa.Document < fb.Document
		}
		if fa.ParagraphID != fb.ParagraphID {
			return fa.ParagraphID < fb.ParagraphID
		}
		if fa.Start != fb.Start {
			return fa.Start < fb.Start
		}
		return fa.RuleID < fb.RuleID
	})

	dmp := diffmatchpatch.New()
	out := make(map[string]*schema.Document)
	for _, s := range ordered {
		doc, ok := docs[s.Flag.Document]
		if !ok || doc == nil {
			continue
		}
		orig, ok := doc.Paragraph(s.Flag.ParagraphID)
		if !ok {
			continue
		}
		c, ok := out[doc.Name]
		if !ok {
			c = doc.Clone()
			c.Annotations = nil
			out[doc.Name] = c
		}
		for i := range c.Paragraphs {
			if c.Paragraphs[i].ID != s.Flag.ParagraphID {
				continue
			}
			patches := dmp.PatchMake(orig.Text, s.Rewrite)
			text, applied := dmp.PatchApply(patches, c.Paragraphs[i].Text)
			if allApplied(applied) {
				c.Paragraphs[i].Text = text
			}
		}
	}
	return out
}

func allApplied(results []bool) bool {
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// normalize trims trailing whitespace from each line and converts CRLF to LF.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
