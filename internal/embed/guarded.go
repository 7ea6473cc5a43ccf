package embed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dshills/filingcheck/internal/guard"
)

// Guarded routes every call of an inner embedder through a guard.Caller.
type Guarded struct {
	inner  Embedder
	caller *guard.Caller
}

var _ Embedder = (*Guarded)(nil)

// WithGuard wraps e. The hashing embedder is local and returned unwrapped.
func WithGuard(e Embedder, c *guard.Caller) Embedder {
	if _, local := e.(*Hashing); local || c == nil {
		return e
	}
	return &Guarded{inner: e, caller: c}
}

// Embed generates a vector embedding for the given text.
func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.caller.Do(ctx, "embed", func(ctx context.Context) error {
		v, err := g.inner.Embed(ctx, text)
		out = v
		return err
	})
	return out, err
}

// EmbedBatch generates embeddings for multiple texts.
func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := g.caller.Do(ctx, "embed batch", func(ctx context.Context) error {
		v, err := g.inner.EmbedBatch(ctx, texts)
		out = v
		return err
	})
	return out, err
}

// Dimensions returns the embedding vector size.
func (g *Guarded) Dimensions() int { return g.inner.Dimensions() }

// ModelName returns the name of the embedding model being used.
func (g *Guarded) ModelName() string { return g.inner.ModelName() }

// statusError builds the error for a non-200 response. Client errors other
// than 429 are not retried.
func statusError(who string, status int, body []byte) error {
	err := fmt.Errorf("%s: status %d: %s", who, status, truncate(string(body), 300))
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return guard.Permanent(err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
