package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// openaiAPIURL is a var to allow test overrides via httptest.
var openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIAPIURL returns the current chat completions endpoint.
func OpenAIAPIURL() string { return openaiAPIURL }

// SetOpenAIAPIURL points the OpenAI provider at another endpoint.
func SetOpenAIAPIURL(u string) { openaiAPIURL = u }

type openaiProvider struct {
	model  string
	apiKey string
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func openaiError(body []byte) string {
	var e struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error == nil {
		return ""
	}
	return e.Error.Type + ": " + e.Error.Message
}

// Complete asks for a JSON object answer; the remediation prompt always
// expects one.
func (p *openaiProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	in := openaiRequest{
		Model:          modelFor(req, p.model),
		Messages:       chatMessages(req),
		MaxTokens:      req.MaxTokens,
		Temperature:    temperature(req),
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	ep := endpoint{
		provider:  "openai",
		url:       openaiAPIURL,
		headers:   map[string]string{"Authorization": "Bearer " + p.apiKey},
		errorText: openaiError,
	}

	var out openaiResponse
	if err := ep.post(ctx, in, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	return &Response{
		Content: out.Choices[0].Message.Content,
		Model:   "openai:" + out.Model,
		Usage:   Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens},
	}, nil
}
