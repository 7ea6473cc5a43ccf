package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// anthropicAPIURL is a var to allow test overrides via httptest.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicAPIURL returns the current Messages API endpoint.
func AnthropicAPIURL() string { return anthropicAPIURL }

// SetAnthropicAPIURL points the Anthropic provider at another endpoint.
// Tests use it with httptest servers.
func SetAnthropicAPIURL(u string) { anthropicAPIURL = u }

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	model  string
	apiKey string
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func anthropicError(body []byte) string {
	var e struct {
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error == nil {
		return ""
	}
	return e.Error.Type + ": " + e.Error.Message
}

// Complete sends a single-turn Messages request. The system prompt travels
// in the top-level system field; max_tokens is mandatory for this API.
func (p *anthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	in := anthropicRequest{
		Model:       modelFor(req, p.model),
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: req.UserPrompt}},
		Temperature: temperature(req),
	}
	ep := endpoint{
		provider: "anthropic",
		url:      anthropicAPIURL,
		headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicVersion,
		},
		errorText: anthropicError,
	}

	var out anthropicResponse
	if err := ep.post(ctx, in, &out); err != nil {
		return nil, err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: no text content in response (got %d content blocks)", len(out.Content))
	}
	return &Response{
		Content: text.String(),
		Model:   "anthropic:" + out.Model,
		Usage:   Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
	}, nil
}
