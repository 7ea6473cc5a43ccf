package llm

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

const defaultOllamaHost = "http://localhost:11434"

type ollamaProvider struct {
	model   string
	baseURL string
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// ollamaHost reads OLLAMA_HOST the way the ollama CLI does: a bare
// host:port gets an http scheme.
func ollamaHost() string {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		return defaultOllamaHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

func ollamaError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}

func (p *ollamaProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	in := ollamaChatRequest{
		Model:    modelFor(req, p.model),
		Messages: chatMessages(req),
		Format:   "json",
	}
	opts := map[string]any{}
	if t := temperature(req); t != nil {
		opts["temperature"] = *t
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		in.Options = opts
	}
	ep := endpoint{provider: "ollama", url: p.baseURL + "/api/chat", errorText: ollamaError}

	var out ollamaChatResponse
	if err := ep.post(ctx, in, &out); err != nil {
		return nil, err
	}
	if out.Message.Content == "" {
		return nil, errors.New("ollama: empty message in response")
	}
	return &Response{
		Content: out.Message.Content,
		Model:   "ollama:" + out.Model,
		Usage:   Usage{InputTokens: out.PromptEvalCount, OutputTokens: out.EvalCount},
	}, nil
}
