package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 10 << 20

// endpoint describes one HTTP call to a provider.
type endpoint struct {
	provider string
	url      string
	headers  map[string]string
	// errorText pulls the provider's error description out of a decoded
	// non-200 body. An empty result falls back to the raw body.
	errorText func(body []byte) string
}

// post sends in as JSON and decodes a 200 answer into out. Any other status
// becomes a *StatusError, decided before the body is parsed because
// gateways answer errors with HTML.
func (e endpoint) post(ctx context.Context, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if e.errorText != nil {
			msg = e.errorText(body)
		}
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		return &StatusError{Provider: e.provider, Code: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response JSON (body: %s): %w", truncate(string(body), 200), err)
	}
	return nil
}

// chatMessage is the role/content pair shared by the OpenAI and Ollama chat
// APIs.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatMessages lays out req as an optional system message and one user turn.
func chatMessages(req *Request) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.UserPrompt})
}

func modelFor(req *Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

func temperature(req *Request) *float64 {
	if req.Temperature == 0 {
		return nil
	}
	t := req.Temperature
	return &t
}
