// Package embed turns text into fixed-size vectors for retrieval.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// DefaultHashDimensions is the vector size of the hashing embedder.
const DefaultHashDimensions = 512

// Hashing is an offline embedder that projects word unigrams and bigrams
// into a fixed number of buckets (the hashing trick). Vectors are L2
// normalized, so cosine similarity reduces to a dot product.
type Hashing struct {
	dims int
}

var _ Embedder = (*Hashing)(nil)

// NewHashing returns a hashing embedder. dims <= 0 selects DefaultHashDimensions.
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &Hashing{dims: dims}
}

// Embed never fails; the context is accepted for interface compatibility.
func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	tokens := ContentTokens(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in turn.
func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (h *Hashing) Dimensions() int { return h.dims }

// ModelName identifies the embedder in reports and index metadata.
func (h *Hashing) ModelName() string { return fmt.Sprintf("hashing-%d", h.dims) }

func (h *Hashing) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// Tokens lowercases text and splits it into letter/digit runs.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContentTokens is Tokens without common English function words.
func ContentTokens(text string) []string {
	all := Tokens(text)
	out := all[:0]
	for _, t := range all {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an and are as at be by for from has have in is it its of on or
		that the this to was were will with which who shall any all such be been being`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
