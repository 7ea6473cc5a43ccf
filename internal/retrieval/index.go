// Package retrieval ranks reference passages against a query by embedding
// similarity.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/filingcheck/internal/embed"
	"github.com/dshills/filingcheck/internal/schema"
)

// DefaultK is the number of passages retrieved per query.
const DefaultK = 3

const batchSize = 64

// Index is an immutable set of embedded reference passages. It holds no
// locks; concurrent searches only read.
type Index struct {
	passages []schema.ReferencePassage
	norms    []float64
	tokens   []map[string]struct{}
	embedder embed.Embedder
	dims     int
}

// Build embeds every passage that has no vector yet and freezes the result.
// The passages slice is copied; later changes by the caller are not seen.
func Build(ctx context.Context, passages []schema.ReferencePassage, e embed.Embedder) (*Index, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: no embedder configured", schema.ErrRetrievalUnavailable)
	}
	ix := &Index{
		passages: make([]schema.ReferencePassage, len(passages)),
		embedder: e,
		dims:     e.Dimensions(),
	}
	seen := make(map[string]bool, len(passages))
	var pending []int
	for i, p := range passages {
		if p.ID == "" {
			return nil, fmt.Errorf("passage %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate passage id %q", p.ID)
		}
		seen[p.ID] = true
		p.Embedding = append([]float32(nil), p.Embedding...)
		ix.passages[i] = p
		if len(p.Embedding) == 0 {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, i := range pending[start:end] {
			texts = append(texts, ix.passages[i].Text)
		}
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding passages: %v", schema.ErrRetrievalUnavailable, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d passages", schema.ErrRetrievalUnavailable, len(vecs), len(texts))
		}
		for j, i := range pending[start:end] {
			ix.passages[i].Embedding = vecs[j]
		}
	}

	ix.norms = make([]float64, len(ix.passages))
	ix.tokens = make([]map[string]struct{}, len(ix.passages))
	for i, p := range ix.passages {
		if ix.dims > 0 && len(p.Embedding) != ix.dims {
			return nil, fmt.Errorf("passage %s: embedding has %d dimensions, embedder %s produces %d",
				p.ID, len(p.Embedding), e.ModelName(), ix.dims)
		}
		ix.norms[i] = norm(p.Embedding)
		ix.tokens[i] = tokenSet(p.Text)
	}
	return ix, nil
}

// Len returns the number of passages.
func (ix *Index) Len() int { return len(ix.passages) }

// Model names the embedder the index was built with.
func (ix *Index) Model() string { return ix.embedder.ModelName() }

// Passages returns a copy of the indexed passages.
func (ix *Index) Passages() []schema.ReferencePassage {
	out := make([]schema.ReferencePassage, len(ix.passages))
	copy(out, ix.passages)
	return out
}

// Search embeds query and returns at most k passages. Failures wrap
// schema.ErrRetrievalUnavailable.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]schema.ScoredPassage, error) {
	if k <= 0 || len(ix.passages) == 0 {
		return []schema.ScoredPassage{}, nil
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", schema.ErrRetrievalUnavailable, err)
	}
	return ix.SearchVector(vec, query, k), nil
}

// SearchVector ranks passages against a precomputed query vector. Results
// are ordered by cosine similarity descending, then lexical overlap with
// queryText, then citation and passage id, so equal inputs always give
// equal output.
func (ix *Index) SearchVector(vec []float32, queryText string, k int) []schema.ScoredPassage {
	if k <= 0 || len(ix.passages) == 0 {
		return []schema.ScoredPassage{}
	}
	qnorm := norm(vec)
	qtokens := tokenSet(queryText)

	scored := make([]schema.ScoredPassage, len(ix.passages))
	for i, p := range ix.passages {
		scored[i] = schema.ScoredPassage{
			Passage: p,
			Score:   cosine(vec, qnorm, p.Embedding, ix.norms[i]),
			Lexical: jaccard(qtokens, ix.tokens[i]),
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Lexical != b.Lexical {
			return a.Lexical > b.Lexical
		}
		if a.Passage.Citation != b.Passage.Citation {
			return a.Passage.Citation < b.Passage.Citation
		}
		return a.Passage.ID < b.Passage.ID
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosine is rounded to 1e-9 so that float noise does not decide ties.
func cosine(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 0
	}
	var d float64
	for i := range a {
		d += float64(a[i]) * float64(b[i])
	}
	return math.Round(d/(na*nb)*1e9) / 1e9
}

func tokenSet(text string) map[string]struct{} {
	toks := embed.ContentTokens(text)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
