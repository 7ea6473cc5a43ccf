package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/filingcheck/internal/config"
	"github.com/dshills/filingcheck/internal/logging"
	"github.com/dshills/filingcheck/internal/metrics"
	"github.com/dshills/filingcheck/internal/patch"
	"github.com/dshills/filingcheck/internal/pipeline"
	"github.com/dshills/filingcheck/internal/render"
	"github.com/dshills/filingcheck/internal/review"
	"github.com/dshills/filingcheck/internal/schema"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// stdout is where reports go when --out is not set.
var stdout io.Writer = os.Stdout

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

// codeError returns an exitErr for the given code.
func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// commonFlags are shared by every command that reads the configuration.
type commonFlags struct {
	configPath string
	corpus     string
	indexDB    string
	offline    bool
	verbose    bool
}

// reviewFlags holds the parsed flags for the review command.
type reviewFlags struct {
	commonFlags
	format            string
	out               string
	outDir            string
	process           string
	composer          string
	workers           int
	failOn            string
	severityThreshold string
	patchOut          string
	previewDir        string
	metricsOut        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "filingcheck",
		Short:         "Review ADGM corporate filings for compliance",
		Long:          "filingcheck classifies the documents of a filing, checks them against the process checklist, flags risky clauses and suggests fixes grounded in ADGM reference material.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReviewCmd(), newIndexCmd(), newChecklistsCmd(), newConfigCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command, flags *commonFlags) {
	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "TOML configuration file")
	f.StringVar(&flags.corpus, "corpus", "", "Reference corpus directory (overrides corpus.root)")
	f.StringVar(&flags.indexDB, "index-db", "", "SQLite index database (overrides retrieval.index_db)")
	f.BoolVar(&flags.offline, "offline", false, "Never call external services: hashing embedder and template suggestions only")
	f.BoolVar(&flags.verbose, "verbose", false, "Log processing steps to stderr")
}

func newReviewCmd() *cobra.Command {
	var flags reviewFlags
	cmd := &cobra.Command{
		Use:   "review <document>...",
		Short: "Review the documents of one filing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), args, flags)
		},
	}
	addCommonFlags(cmd, &flags.commonFlags)
	f := cmd.Flags()
	f.StringVar(&flags.format, "format", "json", "Report format: json or md")
	f.StringVar(&flags.out, "out", "", "Write the report to file instead of stdout")
	f.StringVar(&flags.outDir, "out-dir", "", "Write reviewed copies of the documents to this directory")
	f.StringVar(&flags.process, "process", "", "Filing process, or auto to infer it (overrides pipeline.process)")
	f.StringVar(&flags.composer, "composer", "", "Suggestion composer: template or llm (overrides suggest.composer)")
	f.IntVar(&flags.workers, "workers", 0, "Documents processed in parallel (overrides pipeline.workers)")
	f.StringVar(&flags.failOn, "fail-on", "", "Exit 2 if verdict >= this level (COMPLIANT_WITH_GAPS or NON_COMPLIANT)")
	f.StringVar(&flags.severityThreshold, "severity-threshold", "low", "Minimum red flag severity to emit: low, medium or high")
	f.StringVar(&flags.patchOut, "patch-out", "", "Write suggested clause rewrites in diff-match-patch format to this file")
	f.StringVar(&flags.previewDir, "preview-dir", "", "Write the text of each document with rewrites applied to this directory")
	f.StringVar(&flags.metricsOut, "metrics-out", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

func runReview(ctx context.Context, paths []string, flags reviewFlags) error {
	// --- Step 1: Validate flags ---
	if err := validateFlags(flags); err != nil {
		return codeError(3, "invalid flags: %s", err)
	}
	logger := logging.New(logging.Options{Verbose: flags.verbose})

	// --- Step 2: Load configuration and apply overrides ---
	cfg, err := loadConfig(flags.commonFlags)
	if err != nil {
		return codeError(3, "%s", err)
	}
	if flags.process != "" {
		cfg.Pipeline.Process = flags.process
	}
	if flags.composer != "" && !flags.offline {
		cfg.Suggest.Composer = flags.composer
	}
	if flags.workers > 0 {
		cfg.Pipeline.Workers = flags.workers
	}
	if err := cfg.Validate(); err != nil {
		return codeError(3, "invalid configuration: %s", err)
	}

	// --- Step 3: Build engines and the reference index ---
	var m *metrics.Metrics
	if flags.metricsOut != "" {
		m = metrics.New()
	}
	logger.Debug("building pipeline", "process", cfg.Pipeline.Process, "composer", cfg.Suggest.Composer, "embedder", cfg.Retrieval.Embedder)
	p, err := pipeline.New(ctx, cfg, pipeline.Options{Version: version, Metrics: m, Logger: logger})
	if err != nil {
		if errors.Is(err, pipeline.ErrProviderSetup) {
			return codeError(4, "%s", err)
		}
		if ctx.Err() != nil {
			return codeError(5, "interrupted: %s", ctx.Err())
		}
		return codeError(3, "%s", err)
	}

	// --- Step 4: Run the review ---
	logger.Info("reviewing documents", "count", len(paths))
	res, err := p.Run(ctx, paths)
	if err != nil {
		return codeError(5, "review failed: %s", err)
	}
	report := res.Report
	verdict := report.Summary.Verdict

	// --- Step 5: Apply severity threshold (output only; summary keeps every flag) ---
	threshold, _ := schema.ParseSeverity(flags.severityThreshold)
	report.RedFlags = review.FilterBySeverity(report.RedFlags, threshold)
	report.Suggestions = review.FilterSuggestions(report.Suggestions, threshold)

	docs := make(map[string]*schema.Document, len(res.Documents))
	for _, d := range res.Documents {
		docs[d.Name] = d
	}

	// --- Step 6: Write patches and previews (advisory) ---
	if flags.patchOut != "" {
		logger.Debug("generating patches", "path", flags.patchOut)
		diffText := patch.GenerateDiff(docs, report.Suggestions, os.Stderr)
		if err := pipeline.WriteFileAtomic(flags.patchOut, []byte(diffText), 0o644); err != nil {
			logger.Warn("patch write failed", "error", err)
		}
	}
	if flags.previewDir != "" {
		if err := writePreviews(flags.previewDir, patch.Apply(docs, report.Suggestions)); err != nil {
			logger.Warn("preview write failed", "error", err)
		}
	}

	// --- Step 7: Write reviewed documents ---
	if flags.outDir != "" {
		written, err := pipeline.WriteDocuments(flags.outDir, res.Documents)
		if err != nil {
			return codeError(3, "writing reviewed documents: %s", err)
		}
		logger.Info("reviewed documents written", "dir", flags.outDir, "count", len(written))
	}

	// --- Step 8: Render and write the report ---
	renderer, err := render.NewRenderer(flags.format)
	if err != nil {
		return codeError(3, "invalid format: %s", err)
	}
	outputBytes, err := renderer.Render(report)
	if err != nil {
		return codeError(3, "rendering output: %s", err)
	}
	if err := writeOutput(flags.out, outputBytes); err != nil {
		return codeError(3, "%s", err)
	}

	// --- Step 9: Metrics ---
	if m != nil {
		if err := m.WriteTextfile(flags.metricsOut); err != nil {
			logger.Warn("metrics write failed", "error", err)
		}
	}

	// --- Step 10: Evaluate --fail-on ---
	if flags.failOn != "" {
		threshold := schema.Verdict(flags.failOn)
		if schema.VerdictOrdinal(verdict) >= schema.VerdictOrdinal(threshold) {
			return codeError(2, "verdict %s meets or exceeds --fail-on threshold %s", verdict, threshold)
		}
	}
	return nil
}

// loadConfig reads the configuration file and applies the flags shared by
// every command.
func loadConfig(flags commonFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.corpus != "" {
		cfg.Corpus.Root = flags.corpus
	}
	if flags.indexDB != "" {
		cfg.Retrieval.IndexDB = flags.indexDB
	}
	if flags.offline {
		cfg.Retrieval.Embedder = "hash"
		cfg.Suggest.Composer = "template"
	}
	return cfg, nil
}

// writeOutput writes data to path atomically, or to stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path != "" {
		if err := pipeline.WriteFileAtomic(path, data, 0o644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		return nil
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	// Ensure output ends with a newline for terminal friendliness.
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(stdout)
	}
	return nil
}

// writePreviews writes the rewritten text of each changed document.
func writePreviews(dir string, docs map[string]*schema.Document) error {
	names := make([]string, 0, len(docs))
	for n := range docs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		path := filepath.Join(dir, strings.TrimSuffix(n, filepath.Ext(n))+".rewritten.txt")
		if err := pipeline.WriteFileAtomic(path, []byte(docs[n].FullText()+"\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// validateFlags returns an error if any flag value is invalid.
func validateFlags(flags reviewFlags) error {
	switch flags.format {
	case "json", "md":
	default:
		return fmt.Errorf("--format must be json or md, got %q", flags.format)
	}

	if flags.failOn != "" {
		switch schema.Verdict(flags.failOn) {
		case schema.VerdictCompliantWithGaps, schema.VerdictNonCompliant:
		default:
			return fmt.Errorf("--fail-on must be COMPLIANT_WITH_GAPS or NON_COMPLIANT, got %q", flags.failOn)
		}
	}

	if _, ok := schema.ParseSeverity(flags.severityThreshold); !ok {
		return fmt.Errorf("--severity-threshold must be low, medium, or high, got %q", flags.severityThreshold)
	}

	switch flags.composer {
	case "", "template", "llm":
	default:
		return fmt.Errorf("--composer must be template or llm, got %q", flags.composer)
	}

	if flags.workers < 0 {
		return fmt.Errorf("--workers must be >= 0, got %d", flags.workers)
	}
	return nil
}

func newChecklistsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "checklists [process]",
		Short: "List the filing processes and their required documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecklists(cmd.OutOrStdout(), configPath, args)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "TOML configuration file")
	return cmd
}

func runChecklists(w io.Writer, configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return codeError(3, "%s", err)
	}
	// Checklists need no corpus; keep setup offline and quiet.
	cfg.Corpus.Root, cfg.Retrieval.IndexDB = "", ""
	cfg.Retrieval.Embedder, cfg.Suggest.Composer = "hash", "template"
	p, err := pipeline.New(context.Background(), cfg, pipeline.Options{Logger: logging.Discard()})
	if err != nil {
		return codeError(3, "%s", err)
	}
	reg := p.Registry()

	names := reg.Names()
	if len(args) == 1 {
		c, err := reg.Get(args[0])
		if err != nil {
			return codeError(3, "%s", err)
		}
		names = []string{c.Name}
	}
	for i, n := range names {
		c, _ := reg.Get(n)
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, c.Describe())
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return codeError(3, "%s", err)
			}
			data, err := cfg.Encode()
			if err != nil {
				return codeError(3, "encoding configuration: %s", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "TOML configuration file")
	return cmd
}
