// Package config loads the filingcheck TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultModelEnv names the environment variable that selects the
// generative composer model as "provider:model".
const DefaultModelEnv = "FILINGCHECK_MODEL"

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the full configuration. Every field has a working default.
type Config struct {
	Classifier ClassifierConfig `toml:"classifier"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Suggest    SuggestConfig    `toml:"suggest"`
	LLM        LLMConfig        `toml:"llm"`
	Corpus     CorpusConfig     `toml:"corpus"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
}

// ClassifierConfig tunes document classification.
type ClassifierConfig struct {
	ConfidenceFloor float64 `toml:"confidence_floor"`
}

// RetrievalConfig selects the embedder and the index database.
type RetrievalConfig struct {
	K          int    `toml:"k"`
	Embedder   string `toml:"embedder"` // hash, openai or ollama
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	// IndexDB is the SQLite file holding a prebuilt index. Empty disables
	// persistence.
	IndexDB string `toml:"index_db"`
}

// SuggestConfig selects the composer.
type SuggestConfig struct {
	Composer       string  `toml:"composer"` // template or llm
	GroundingFloor float64 `toml:"grounding_floor"`
}

// LLMConfig configures the generative model and every external call guard.
type LLMConfig struct {
	Model             string   `toml:"model"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	CallTimeout       Duration `toml:"call_timeout"`
	MaxRetries        int      `toml:"max_retries"`
	InitialBackoff    Duration `toml:"initial_backoff"`
	MaxBackoff        Duration `toml:"max_backoff"`
}

// CorpusConfig locates the reference corpus.
type CorpusConfig struct {
	Root     string   `toml:"root"`
	Patterns []string `toml:"patterns"`
	// Required makes a missing corpus fatal instead of a degraded run.
	Required     bool `toml:"required"`
	ChunkSize    int  `toml:"chunk_size"`
	ChunkOverlap int  `toml:"chunk_overlap"`
}

// PipelineConfig tunes the run itself.
type PipelineConfig struct {
	Workers    int      `toml:"workers"`
	Process    string   `toml:"process"`
	Checklists []string `toml:"checklists"`
	Rules      []string `toml:"rules"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{ConfidenceFloor: 0.15},
		Retrieval: RetrievalConfig{
			K:          3,
			Embedder:   "hash",
			Dimensions: 512,
		},
		Suggest: SuggestConfig{
			Composer:       "template",
			GroundingFloor: 0.2,
		},
		LLM: LLMConfig{
			RequestsPerSecond: 5,
			Burst:             5,
			CallTimeout:       Duration(30 * time.Second),
			MaxRetries:        2,
			InitialBackoff:    Duration(500 * time.Millisecond),
			MaxBackoff:        Duration(10 * time.Second),
		},
		Corpus: CorpusConfig{
			Patterns:     []string{"**/*.md", "**/*.txt", "**/*.html", "**/*.pdf"},
			ChunkSize:    800,
			ChunkOverlap: 100,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
			Process: "auto",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Relative paths in the file are resolved against the file's directory.
// The model environment variable overrides llm.model.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			var de *toml.DecodeError
			if errors.As(err, &de) {
				row, col := de.Position()
				return nil, fmt.Errorf("parsing config %s:%d:%d: %w", path, row, col, err)
			}
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	}
	if m := os.Getenv(DefaultModelEnv); m != "" {
		cfg.LLM.Model = m
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes relative file settings relative to dir, the directory
// of the config file.
func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Corpus.Root = abs(c.Corpus.Root)
	c.Retrieval.IndexDB = abs(c.Retrieval.IndexDB)
	for i, p := range c.Pipeline.Checklists {
		c.Pipeline.Checklists[i] = abs(p)
	}
	for i, p := range c.Pipeline.Rules {
		c.Pipeline.Rules[i] = abs(p)
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if f := c.Classifier.ConfidenceFloor; f <= 0 || f > 1 {
		errs = append(errs, fmt.Errorf("classifier.confidence_floor must be in (0, 1], got %g", f))
	}
	if c.Retrieval.K <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.k must be > 0, got %d", c.Retrieval.K))
	}
	switch c.Retrieval.Embedder {
	case "hash", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("retrieval.embedder must be hash, openai or ollama, got %q", c.Retrieval.Embedder))
	}
	if c.Retrieval.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("retrieval.dimensions must be >= 0, got %d", c.Retrieval.Dimensions))
	}
	switch c.Suggest.Composer {
	case "template":
	case "llm":
		if c.LLM.Model == "" {
			errs = append(errs, fmt.Errorf("suggest.composer = \"llm\" needs llm.model or %s", DefaultModelEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("suggest.composer must be template or llm, got %q", c.Suggest.Composer))
	}
	if f := c.Suggest.GroundingFloor; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("suggest.grounding_floor must be in [0, 1], got %g", f))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.call_timeout must be > 0"))
	}
	if c.Corpus.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("corpus.chunk_size must be > 0, got %d", c.Corpus.ChunkSize))
	}
	if c.Corpus.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("corpus.chunk_overlap must be >= 0, got %d", c.Corpus.ChunkOverlap))
	}
	if c.Corpus.Required && c.Corpus.Root == "" {
		errs = append(errs, fmt.Errorf("corpus.required is set but corpus.root is empty"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be > 0, got %d", c.Pipeline.Workers))
	}
	return errors.Join(errs...)
}

// Encode renders c as TOML, for `filingcheck config`.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
