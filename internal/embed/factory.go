package embed

import (
	"fmt"
	"os"
	"strings"
)

// Backend names accepted by New.
const (
	BackendHash   = "hash"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Config selects and configures an embedding backend.
type Config struct {
	Backend    string
	Model      string
	BaseURL    string
	Dimensions int
}

// New builds the configured embedder. API keys and hosts come from the
// environment: OPENAI_API_KEY for OpenAI and OLLAMA_HOST for Ollama.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendHash:
		return NewHashing(cfg.Dimensions), nil
	case BackendOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case BackendOllama:
		base := cfg.BaseURL
		if base == "" {
			base = os.Getenv("OLLAMA_HOST")
		}
		if base != "" && !strings.Contains(base, "://") {
			base = "http://" + base
		}
		return NewOllama(OllamaConfig{BaseURL: base, Model: cfg.Model, Dimensions: cfg.Dimensions}), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q: valid backends are hash, openai, ollama", cfg.Backend)
	}
}
