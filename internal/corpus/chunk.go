package corpus

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/filingcheck/internal/schema"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// passageNamespace scopes the name-based passage UUIDs.
var passageNamespace = uuid.MustParse("6f1c6f8e-3b0e-4c55-9d0a-7a0a3c1f2b61")

// Chunker splits source text into overlapping fixed-size windows.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker returns a chunker with the given options applied.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Chunk splits src into passages. Whitespace is collapsed first; windows
// are counted in runes. Passage ids are derived from the source hash and
// window index, so rebuilding an unchanged corpus yields the same ids.
func (c *Chunker) Chunk(src Source) []schema.ReferencePassage {
	runes := []rune(strings.Join(strings.Fields(src.Text), " "))
	if len(runes) == 0 {
		return nil
	}

	var windows []string
	step := c.size - c.overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			windows = append(windows, w)
		}
		if end == len(runes) {
			break
		}
	}

	out := make([]schema.ReferencePassage, len(windows))
	for i, w := range windows {
		citation := src.Title
		if len(windows) > 1 {
			citation = fmt.Sprintf("%s, part %d", src.Title, i+1)
		}
		out[i] = schema.ReferencePassage{
			ID:       uuid.NewSHA1(passageNamespace, []byte(fmt.Sprintf("%s#%d", src.Hash, i))).String(),
			Citation: citation,
			Text:     w,
		}
	}
	return out
}

// Load reads every file matched by patterns and chunks it.
func Load(root string, patterns []string, c *Chunker) ([]schema.ReferencePassage, []Source, error) {
	if c == nil {
		c = NewChunker()
	}
	sources, err := LoadSources(root, patterns)
	if err != nil {
		return nil, nil, err
	}
	var passages []schema.ReferencePassage
	seen := make(map[string]bool)
	for _, s := range sources {
		// Identical files share a hash; index their text once.
		if seen[s.Hash] {
			continue
		}
		seen[s.Hash] = true
		passages = append(passages, c.Chunk(s)...)
	}
	return passages, sources, nil
}
