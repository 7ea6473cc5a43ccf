package embed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filingcheck/internal/guard"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashing_DeterministicAndNormalized(t *testing.T) {
	h := NewHashing(0)
	ctx := context.Background()
	a, err := h.Embed(ctx, "The registered office shall be in the Abu Dhabi Global Market.")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "The registered office shall be in the Abu Dhabi Global Market.")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultHashDimensions)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5)
}

func TestHashing_SimilarTextScoresHigher(t *testing.T) {
	h := NewHashing(256)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "jurisdiction of ADGM Courts")
	near, _ := h.Embed(ctx, "Disputes are subject to the exclusive jurisdiction of the ADGM Courts.")
	far, _ := h.Embed(ctx, "Each share carries one vote at a general meeting.")
	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashing_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewHashing(8).Embed(context.Background(), "the of and")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestContentTokens(t *testing.T) {
	assert.Equal(t, []string{"adgm", "courts", "2020"}, ContentTokens("The ADGM Courts (2020)"))
	assert.Equal(t, []string{"the", "adgm", "courts", "2020"}, Tokens("The ADGM Courts (2020)"))
}

func TestOpenAI_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	assert.Equal(t, "openai:text-embedding-3-small", e.ModelName())
}

func TestOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25]}`))
	}))
	defer srv.Close()

	e := NewOllama(OllamaConfig{BaseURL: srv.URL})
	out, err := e.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}, {0.5, 0.25}}, out)
}

func TestGuarded_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	c := guard.New(guard.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, RequestsPerSecond: 100}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := WithGuard(NewOllama(OllamaConfig{BaseURL: srv.URL, Dimensions: 1}), c)
	v, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGuarded_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := guard.New(guard.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, RequestsPerSecond: 100}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := WithGuard(NewOllama(OllamaConfig{BaseURL: srv.URL}), c)
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWithGuard_LeavesHashingUnwrapped(t *testing.T) {
	h := NewHashing(4)
	assert.Same(t, h, WithGuard(h, guard.New(guard.Config{}, nil)))
}

func TestNew_Backends(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "hashing-512", e.ModelName())

	t.Setenv("OLLAMA_HOST", "ollama.internal:11434")
	e, err = New(Config{Backend: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "http://ollama.internal:11434", e.(*Ollama).baseURL)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = New(Config{Backend: "openai"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "word2vec"})
	assert.Error(t, err)
}
