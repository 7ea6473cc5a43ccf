package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/filingcheck/internal/config"
	"github.com/dshills/filingcheck/internal/corpus"
	"github.com/dshills/filingcheck/internal/embed"
	"github.com/dshills/filingcheck/internal/logging"
	"github.com/dshills/filingcheck/internal/pipeline"
	"github.com/dshills/filingcheck/internal/schema"
)

type indexFlags struct {
	commonFlags
	watch bool
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the reference corpus index",
	}
	var flags indexFlags
	build := &cobra.Command{
		Use:   "build",
		Short: "Embed the reference corpus into the index database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexBuild(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	addCommonFlags(build, &flags.commonFlags)
	build.Flags().BoolVar(&flags.watch, "watch", false, "Keep running and rebuild when corpus files change")
	cmd.AddCommand(build)
	return cmd
}

func runIndexBuild(ctx context.Context, w io.Writer, flags indexFlags) error {
	logger := logging.New(logging.Options{Verbose: flags.verbose})

	// --- Step 1: Configuration ---
	cfg, err := loadConfig(flags.commonFlags)
	if err != nil {
		return codeError(3, "%s", err)
	}
	if cfg.Corpus.Root == "" {
		return codeError(3, "no corpus: set corpus.root or --corpus")
	}
	if cfg.Retrieval.IndexDB == "" {
		return codeError(3, "no index database: set retrieval.index_db or --index-db")
	}

	// --- Step 2: Embedder ---
	e, err := pipeline.NewEmbedder(cfg, logger)
	if err != nil {
		return codeError(4, "%s", err)
	}

	// --- Step 3: Build once ---
	if err := buildOnce(ctx, w, cfg, e, logger); err != nil {
		return err
	}
	if !flags.watch {
		return nil
	}

	// --- Step 4: Rebuild on change until interrupted ---
	err = corpus.Watch(ctx, cfg.Corpus.Root, cfg.Corpus.Patterns, corpus.DefaultDebounce, logger, func() {
		if err := buildOnce(ctx, w, cfg, e, logger); err != nil {
			logger.Error("index rebuild failed", "error", err)
		}
	})
	if err != nil {
		return codeError(5, "watching corpus: %s", err)
	}
	return nil
}

func buildOnce(ctx context.Context, w io.Writer, cfg *config.Config, e embed.Embedder, logger *slog.Logger) error {
	_, info, err := pipeline.BuildIndex(ctx, cfg, e, logger)
	if err != nil {
		if errors.Is(err, schema.ErrCorpusMissing) {
			return codeError(3, "%s", err)
		}
		return codeError(5, "building index: %s", err)
	}
	state := "built"
	if info.Reused {
		state = "up to date"
	}
	fmt.Fprintf(w, "index %s: %d passages from %d sources (%s) in %s\n",
		state, info.Passages, info.Sources, info.Model, cfg.Retrieval.IndexDB)
	return nil
}
