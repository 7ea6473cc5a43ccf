// Package pipeline runs a full compliance review: documents are loaded and
// classified in parallel, the bundle is checked against its process
// checklist, and every document is then scanned for red flags with one
// suggestion per flag before the annotated copies and the findings report
// are assembled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/filingcheck/internal/assemble"
	"github.com/dshills/filingcheck/internal/checklist"
	"github.com/dshills/filingcheck/internal/classify"
	"github.com/dshills/filingcheck/internal/config"
	"github.com/dshills/filingcheck/internal/docmodel"
	"github.com/dshills/filingcheck/internal/guard"
	"github.com/dshills/filingcheck/internal/llm"
	"github.com/dshills/filingcheck/internal/logging"
	"github.com/dshills/filingcheck/internal/metrics"
	"github.com/dshills/filingcheck/internal/redflag"
	"github.com/dshills/filingcheck/internal/retrieval"
	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
	"github.com/dshills/filingcheck/internal/suggest"
)

// ProcessAuto selects the checklist from the classified bundle.
const ProcessAuto = "auto"

// ErrProviderSetup means an embedding or generative model client could not
// be created from the configuration.
var ErrProviderSetup = errors.New("provider setup failed")

// Options supplies run-wide collaborators. Every field is optional.
type Options struct {
	Version string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Provider replaces the generative model client built from llm.model.
	Provider llm.Provider
	// Index replaces the index built from the corpus configuration.
	Index *retrieval.Index
}

// Pipeline holds the immutable engines shared by every run.
type Pipeline struct {
	cfg        *config.Config
	version    string
	registry   *checklist.Registry
	fixed      *checklist.Checklist
	classifier *classify.Classifier
	detector   *redflag.Engine
	suggester  *suggest.Engine
	embedder   string
	degraded   []string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New builds the engines from cfg. Configuration problems (an unknown
// process, unreadable checklist or rule files, a required corpus that
// cannot be loaded) are returned as errors; a missing optional corpus only
// degrades the suggestions.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:      cfg,
		version:  opts.Version,
		registry: checklist.NewRegistry(),
		metrics:  opts.Metrics,
		logger:   logger,
	}

	for _, path := range cfg.Pipeline.Checklists {
		if err := p.registry.LoadFile(path); err != nil {
			return nil, fmt.Errorf("%w: %v", schema.ErrChecklistConfigMissing, err)
		}
	}
	if proc := cfg.Pipeline.Process; proc != "" && proc != ProcessAuto {
		c, err := p.registry.Get(proc)
		if err != nil {
			return nil, err
		}
		p.fixed = c
	}

	var extra []rules.FlagRule
	for _, path := range cfg.Pipeline.Rules {
		rs, err := rules.LoadFlagRules(path)
		if err != nil {
			return nil, err
		}
		extra = append(extra, rs...)
	}
	detector, err := redflag.New(extra, logging.Component(logger, "redflag"))
	if err != nil {
		return nil, fmt.Errorf("building red flag rules: %w", err)
	}
	p.detector = detector

	classifier, err := classify.NewWithProfiles(cfg.Classifier.ConfidenceFloor, classify.BuiltinProfiles(), logging.Component(logger, "classify"))
	if err != nil {
		return nil, fmt.Errorf("building classifier: %w", err)
	}
	p.classifier = classifier

	index := opts.Index
	if index == nil {
		e, err := NewEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
		var note string
		index, note, err = openIndex(ctx, cfg, e, logging.Component(logger, "retrieval"))
		if err != nil {
			return nil, err
		}
		if note != "" {
			p.degraded = append(p.degraded, note)
		}
		p.embedder = e.ModelName()
	} else {
		p.embedder = index.Model()
	}

	var composer suggest.Composer
	if cfg.Suggest.Composer == "llm" {
		provider := opts.Provider
		if provider == nil {
			provider, err = llm.NewProvider(cfg.LLM.Model)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProviderSetup, err)
			}
		}
		composer = suggest.NewLLMComposer(provider, cfg.LLM.Model, guard.New(GuardConfig(cfg), logging.Component(logger, "llm")))
	}
	p.suggester = suggest.New(index, composer, suggest.Config{
		K:              cfg.Retrieval.K,
		GroundingFloor: cfg.Suggest.GroundingFloor,
	}, logging.Component(logger, "suggest"))
	return p, nil
}

// Registry exposes the checklist registry, including loaded extras.
func (p *Pipeline) Registry() *checklist.Registry { return p.registry }

// Degraded lists the components that were unavailable at setup.
func (p *Pipeline) Degraded() []string { return append([]string(nil), p.degraded...) }

// Result is a completed run.
type Result struct {
	Report *schema.Report
	// Documents are the annotated copies of every reviewed document,
	// ordered by name.
	Documents []*schema.Document
}

// Run reviews the documents at paths as one bundle. A document that cannot
// be loaded or reviewed is reported with its error and the rest of the
// bundle still runs. Cancelling ctx returns ctx.Err() and no result.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*Result, error) {
	if len(paths) == 0 {
		return nil, errors.New("no documents to review")
	}
	workers := p.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	// --- Stage 1: load and classify ---
	start := time.Now()
	outcomes := make([]assemble.Outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	seen := make(map[string]bool, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		if seen[name] {
			outcomes[i] = assemble.Outcome{
				Name: name,
				Err:  fmt.Errorf("%w: %s: another document in the bundle has the same name", schema.ErrMalformedDocument, path),
			}
			continue
		}
		seen[name] = true
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.classifyOne(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.metrics.Stage("classify", start)

	// --- Barrier: checklist over the whole bundle ---
	start = time.Now()
	var bundle schema.SubmissionBundle
	for _, o := range outcomes {
		if o.Err == nil {
			bundle.Documents = append(bundle.Documents, schema.ClassifiedDocument{
				Document:   o.Document,
				Type:       o.Type,
				Confidence: o.Confidence,
			})
		}
	}
	cl, err := p.checklistFor(bundle)
	if err != nil {
		return nil, err
	}
	result := checklist.Verify(bundle, cl)
	p.metrics.Missing(len(result.Missing))
	p.metrics.Stage("checklist", start)
	p.logger.Info("checklist verified", "process", cl.Name, "missing", len(result.Missing), "violations", len(result.Violations))

	// --- Stage 2: detect, suggest, annotate ---
	start = time.Now()
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range outcomes {
		if outcomes[i].Err != nil {
			continue
		}
		g.Go(func() error {
			return p.reviewOne(gctx, &outcomes[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.metrics.Stage("review", start)

	report := assemble.Report(assemble.Input{
		Version:   p.version,
		Process:   cl.Name,
		Outcomes:  outcomes,
		Checklist: result,
		Degraded:  p.runDegraded(outcomes),
		Meta: schema.Meta{
			Model:           p.suggester.Composer(),
			Embedder:        p.embedder,
			TopK:            p.cfg.Retrieval.K,
			GroundingFloor:  p.cfg.Suggest.GroundingFloor,
			ConfidenceFloor: p.classifier.Floor(),
		},
	})

	var docs []*schema.Document
	for _, o := range outcomes {
		if o.Err == nil && o.Document != nil {
			docs = append(docs, o.Document)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return &Result{Report: report, Documents: docs}, nil
}

func (p *Pipeline) classifyOne(path string) assemble.Outcome {
	o := assemble.Outcome{Name: filepath.Base(path)}
	doc, err := docmodel.Load(path)
	if err != nil {
		p.logger.Warn("document could not be loaded", "path", path, "error", err)
		p.metrics.DocumentFailed()
		o.Err = err
		return o
	}
	typ, res := p.classifier.Classify(doc)
	o.Document, o.Type, o.Confidence = doc, typ, res.Confidence
	if res.Err != nil {
		o.Diagnostics = append(o.Diagnostics, res.Err.Error())
	}
	p.metrics.Document(typ.String())
	return o
}

func (p *Pipeline) reviewOne(ctx context.Context, o *assemble.Outcome) error {
	flags, diags := p.detector.Detect(o.Document)
	for _, d := range diags {
		o.Diagnostics = append(o.Diagnostics, d.String())
	}
	suggestions := make([]schema.Suggestion, 0, len(flags))
	for _, f := range flags {
		p.metrics.Flag(f.RuleID, string(f.Severity))
		s, err := p.suggester.Suggest(ctx, f, o.Document)
		if err != nil {
			return err
		}
		p.metrics.Suggestion(s.Grounded, s.Composer)
		suggestions = append(suggestions, s)
	}
	annotated, err := assemble.Annotate(o.Document, flags, suggestions)
	if err != nil {
		p.metrics.DocumentFailed()
		o.Err = err
		return nil
	}
	o.Document = annotated
	o.Flags = flags
	o.Suggestions = suggestions
	return nil
}

// checklistFor returns the configured checklist, or infers one from the
// bundle and falls back to the default process when nothing overlaps.
func (p *Pipeline) checklistFor(bundle schema.SubmissionBundle) (*checklist.Checklist, error) {
	if p.fixed != nil {
		return p.fixed, nil
	}
	if c, ok := p.registry.Infer(bundle); ok {
		p.logger.Debug("process inferred", "process", c.Name)
		return c, nil
	}
	p.logger.Info("process could not be inferred, using default", "process", checklist.DefaultProcess)
	return p.registry.Get(checklist.DefaultProcess)
}

// runDegraded combines setup degradation with problems seen during the run.
func (p *Pipeline) runDegraded(outcomes []assemble.Outcome) []string {
	out := p.Degraded()
	var retrievalFailed, composerFailed int
	for _, o := range outcomes {
		for _, s := range o.Suggestions {
			if suggest.RetrievalFailed(s) {
				retrievalFailed++
			}
			if suggest.ComposerFellBack(s) {
				composerFailed++
			}
		}
	}
	if retrievalFailed > 0 {
		out = append(out, fmt.Sprintf("suggestions ungrounded: retrieval failed for %d flag(s)", retrievalFailed))
	}
	if composerFailed > 0 {
		out = append(out, fmt.Sprintf("composer %s failed for %d flag(s), template used", p.suggester.Composer(), composerFailed))
	}
	return out
}
