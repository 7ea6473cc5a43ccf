// Package suggest produces one remediation suggestion per red flag,
// grounded in reference passages retrieved from the index when they are
// relevant enough.
package suggest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dshills/filingcheck/internal/retrieval"
	"github.com/dshills/filingcheck/internal/schema"
)

// DefaultGroundingFloor is the minimum similarity for a passage to be cited.
const DefaultGroundingFloor = 0.2

// Notes explaining why a suggestion is ungrounded or degraded.
const (
	NoteIndexUnavailable = "retrieval index unavailable"
	NoteRetrievalFailed  = "retrieval failed"
	NoteBelowFloor       = "no reference passage above the grounding floor"
	NoteComposerFallback = "composer failed, template used"
)

// Request is what a composer sees for one flag. Passages are only the
// retained ones; an empty slice means the suggestion is ungrounded.
type Request struct {
	Flag     schema.RedFlag
	Clause   string
	Passages []schema.ScoredPassage
}

// Grounded reports whether any passage was retained.
func (r Request) Grounded() bool { return len(r.Passages) > 0 }

// Draft is a composer's output. It carries no citations; the engine assigns
// those from the retained passages.
type Draft struct {
	Text    string
	Rewrite string
	Note    string
}

// Composer turns a flag and its retained passages into suggestion text.
type Composer interface {
	Name() string
	Compose(ctx context.Context, req Request) (Draft, error)
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	K              int
	GroundingFloor float64
}

// Engine composes suggestions. It shares the index read-only and is safe
// for concurrent use.
type Engine struct {
	index    *retrieval.Index
	composer Composer
	fallback *TemplateComposer
	k        int
	floor    float64
	logger   *slog.Logger
}

// New builds an engine. index may be nil, in which case every suggestion
// is ungrounded. composer may be nil to use the template composer.
func New(index *retrieval.Index, composer Composer, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.K <= 0 {
		cfg.K = retrieval.DefaultK
	}
	if cfg.GroundingFloor <= 0 {
		cfg.GroundingFloor = DefaultGroundingFloor
	}
	tc := NewTemplateComposer()
	if composer == nil {
		composer = tc
	}
	return &Engine{
		index:    index,
		composer: composer,
		fallback: tc,
		k:        cfg.K,
		floor:    cfg.GroundingFloor,
		logger:   logger,
	}
}

// Grounding reports whether an index is attached.
func (e *Engine) Grounding() bool { return e.index != nil }

// Composer names the configured composer.
func (e *Engine) Composer() string { return e.composer.Name() }

// Suggest builds the suggestion for flag, which must belong to doc.
// Retrieval and composition failures degrade the suggestion instead of
// failing it; only cancellation of ctx is returned as an error.
func (e *Engine) Suggest(ctx context.Context, flag schema.RedFlag, doc *schema.Document) (schema.Suggestion, error) {
	clause := ""
	if p, ok := doc.Paragraph(flag.ParagraphID); ok {
		clause = p.Text
	}

	sg := schema.Suggestion{
		Flag:      flag,
		Passages:  []schema.ScoredPassage{},
		Citations: []string{},
	}

	var notes []string
	if e.index == nil {
		notes = append(notes, NoteIndexUnavailable)
	} else {
		query := strings.TrimSpace(flag.Description + "\n" + clause)
		hits, err := e.index.Search(ctx, query, e.k)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return schema.Suggestion{}, ctx.Err()
			}
			e.logger.Warn("retrieval failed, suggestion ungrounded", "rule", flag.RuleID, "document", flag.Document, "error", err)
			notes = append(notes, NoteRetrievalFailed)
		default:
			if len(hits) > 0 {
				sg.TopScore = hits[0].Score
			}
			for _, h := range hits {
				if h.Score >= e.floor {
					sg.Passages = append(sg.Passages, h)
				}
			}
			if len(sg.Passages) == 0 {
				notes = append(notes, NoteBelowFloor)
			}
		}
	}
	sg.Grounded = len(sg.Passages) > 0
	sg.Citations = citations(sg.Passages)

	req := Request{Flag: flag, Clause: clause, Passages: sg.Passages}
	draft, err := e.composer.Compose(ctx, req)
	sg.Composer = e.composer.Name()
	if err != nil {
		if ctx.Err() != nil {
			return schema.Suggestion{}, ctx.Err()
		}
		e.logger.Warn("composer failed, using template", "composer", e.composer.Name(), "rule", flag.RuleID, "error", err)
		// The template composer never fails.
		draft, _ = e.fallback.Compose(ctx, req)
		sg.Composer = e.fallback.Name()
		notes = append(notes, NoteComposerFallback)
	}
	if draft.Note != "" {
		notes = append(notes, draft.Note)
	}

	sg.Text = draft.Text
	sg.Rewrite = draft.Rewrite
	sg.Note = strings.Join(notes, "; ")
	return sg, nil
}

// citations returns the distinct citations of passages in rank order.
func citations(passages []schema.ScoredPassage) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, p := range passages {
		c := p.Passage.Citation
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// RetrievalFailed reports whether the search for s failed, as opposed to
// finding nothing relevant in the corpus.
func RetrievalFailed(s schema.Suggestion) bool {
	return strings.Contains(s.Note, NoteRetrievalFailed)
}

// ComposerFellBack reports whether s was written by the template after the
// configured composer failed.
func ComposerFellBack(s schema.Suggestion) bool {
	return strings.Contains(s.Note, NoteComposerFallback)
}

var errEmptyDraft = errors.New("composer returned empty text")
