package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// newFakeOllama serves /api/embed and /api/tags with canned vectors.
func newFakeOllama(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		inputs, ok := req.Input.([]any)
		require.True(t, ok)

		embeddings := make([][]float64, len(inputs))
		for i := range inputs {
			vec := make([]float64, dims)
			vec[i%dims] = 1.0
			embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Model:      req.Model,
			Embeddings: embeddings,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaEmbedBatch(t *testing.T) {
	server := newFakeOllama(t, 8)
	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL, Model: "test-model"})
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 8)

	// Dimensions are detected from the first successful call.
	assert.Equal(t, 8, e.Dimensions())
}

func TestOllamaAvailable(t *testing.T) {
	server := newFakeOllama(t, 4)
	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	defer e.Close()

	assert.True(t, e.Available(context.Background()))

	down := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1"})
	defer down.Close()
	assert.False(t, down.Available(context.Background()))
}

func TestOllamaErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	defer e.Close()

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeEmbedding))
	assert.True(t, pkgerr.IsRetryable(err))
}

func TestOllamaTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL, Timeout: 20 * time.Millisecond})
	defer e.Close()

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeEmbeddingTimeout))
}

func TestFactory_StaticProvider(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: ProviderStatic})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static-hash-v1", e.ModelName())
}

func TestFactory_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeConfigInvalid))
}

func TestFactory_AutoFallsBackToStatic(t *testing.T) {
	e, err := New(context.Background(), Config{
		Provider: ProviderAuto,
		Host:     "http://127.0.0.1:1",
	})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "static-hash-v1", e.ModelName())
}

func TestFactory_OpenAIRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderOpenAI})
	require.Error(t, err)
}
