package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/filingcheck/internal/config"
	"github.com/dshills/filingcheck/internal/corpus"
	"github.com/dshills/filingcheck/internal/embed"
	"github.com/dshills/filingcheck/internal/guard"
	"github.com/dshills/filingcheck/internal/retrieval"
	"github.com/dshills/filingcheck/internal/schema"
	"github.com/dshills/filingcheck/internal/store"
)

// IndexInfo describes how an index was obtained.
type IndexInfo struct {
	Model    string
	Passages int
	Sources  int
	// Reused is true when passages and vectors came from the index database
	// without re-embedding.
	Reused bool
	// Saved is true when the index database was (re)written.
	Saved bool
}

// GuardConfig converts the [llm] section into a call guard configuration.
func GuardConfig(cfg *config.Config) guard.Config {
	return guard.Config{
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Timeout:           time.Duration(cfg.LLM.CallTimeout),
		MaxRetries:        cfg.LLM.MaxRetries,
		InitialBackoff:    time.Duration(cfg.LLM.InitialBackoff),
		MaxBackoff:        time.Duration(cfg.LLM.MaxBackoff),
	}
}

// NewEmbedder builds the configured embedder. Remote backends are wrapped
// in a call guard; the local hashing embedder is not.
func NewEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	e, err := embed.New(embed.Config{
		Backend:    cfg.Retrieval.Embedder,
		Model:      cfg.Retrieval.Model,
		BaseURL:    cfg.Retrieval.BaseURL,
		Dimensions: cfg.Retrieval.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: %v", ErrProviderSetup, err)
	}
	if cfg.Retrieval.Embedder == embed.BackendHash {
		return e, nil
	}
	return embed.WithGuard(e, guard.New(GuardConfig(cfg), logger)), nil
}

// BuildIndex loads the reference corpus and embeds it. When an index
// database is configured, a stored index built by the same model from the
// same sources is reused, and a freshly embedded index is saved. With no
// corpus root the stored index is used as is.
//
// Every failure to obtain passages wraps schema.ErrCorpusMissing.
func BuildIndex(ctx context.Context, cfg *config.Config, e embed.Embedder, logger *slog.Logger) (*retrieval.Index, IndexInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info := IndexInfo{Model: e.ModelName()}

	if cfg.Corpus.Root == "" {
		if cfg.Retrieval.IndexDB == "" {
			return nil, info, fmt.Errorf("%w: no corpus root or index database configured", schema.ErrCorpusMissing)
		}
		return loadStored(ctx, cfg.Retrieval.IndexDB, e, info, logger)
	}

	chunker := corpus.NewChunker(
		corpus.WithChunkSize(cfg.Corpus.ChunkSize),
		corpus.WithOverlap(cfg.Corpus.ChunkOverlap),
	)
	passages, sources, err := corpus.Load(cfg.Corpus.Root, cfg.Corpus.Patterns, chunker)
	if err != nil {
		return nil, info, err
	}
	if len(passages) == 0 {
		return nil, info, fmt.Errorf("%w: corpus %s has no text", schema.ErrCorpusMissing, cfg.Corpus.Root)
	}
	info.Sources = len(sources)
	records := make([]store.SourceRecord, len(sources))
	for i, s := range sources {
		records[i] = store.SourceRecord{Path: s.Path, Hash: s.Hash, Title: s.Title}
	}

	var st *store.Store
	if cfg.Retrieval.IndexDB != "" {
		st, err = store.Open(cfg.Retrieval.IndexDB)
		if err != nil {
			return nil, info, err
		}
		defer st.Close()

		fresh, err := st.Fresh(ctx, info.Model, records)
		if err != nil {
			return nil, info, err
		}
		if fresh {
			_, stored, err := st.Load(ctx)
			if err == nil {
				ix, err := retrieval.Build(ctx, stored, e)
				if err != nil {
					return nil, info, err
				}
				info.Passages, info.Reused = ix.Len(), true
				logger.Info("reference index reused", "db", st.Path(), "passages", ix.Len())
				return ix, info, nil
			}
			logger.Warn("stored index unreadable, rebuilding", "db", st.Path(), "error", err)
		}
	}

	start := time.Now()
	ix, err := retrieval.Build(ctx, passages, e)
	if err != nil {
		return nil, info, err
	}
	info.Passages = ix.Len()
	logger.Info("reference index built", "model", info.Model, "sources", len(sources), "passages", ix.Len(), "elapsed", time.Since(start).Round(time.Millisecond))

	if st != nil {
		if err := st.Save(ctx, info.Model, e.Dimensions(), records, ix.Passages()); err != nil {
			return nil, info, err
		}
		info.Saved = true
	}
	return ix, info, nil
}

func loadStored(ctx context.Context, path string, e embed.Embedder, info IndexInfo, logger *slog.Logger) (*retrieval.Index, IndexInfo, error) {
	st, err := store.OpenExisting(path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, info, fmt.Errorf("%w: %v", schema.ErrCorpusMissing, err)
		}
		return nil, info, err
	}
	defer st.Close()

	meta, passages, err := st.Load(ctx)
	if err != nil {
		return nil, info, err
	}
	if meta.Model != info.Model {
		return nil, info, fmt.Errorf("%w: index %s was built with %s, configured embedder is %s",
			schema.ErrCorpusMissing, path, meta.Model, info.Model)
	}
	ix, err := retrieval.Build(ctx, passages, e)
	if err != nil {
		return nil, info, err
	}
	info.Passages, info.Sources, info.Reused = ix.Len(), len(meta.Sources), true
	logger.Info("reference index loaded", "db", path, "passages", ix.Len())
	return ix, info, nil
}

// openIndex is BuildIndex for a review run: a missing corpus degrades the
// run to ungrounded suggestions unless the corpus is required.
func openIndex(ctx context.Context, cfg *config.Config, e embed.Embedder, logger *slog.Logger) (*retrieval.Index, string, error) {
	if cfg.Corpus.Root == "" && cfg.Retrieval.IndexDB == "" {
		return nil, "suggestions ungrounded: no reference corpus configured", nil
	}
	ix, _, err := BuildIndex(ctx, cfg, e, logger)
	if err == nil {
		return ix, "", nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	if cfg.Corpus.Required {
		return nil, "", err
	}
	logger.Warn("reference index unavailable, suggestions will be ungrounded", "error", err)
	return nil, "suggestions ungrounded: " + err.Error(), nil
}
