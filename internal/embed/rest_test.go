package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdmemory/internal/config"
	"mdmemory/internal/memerr"
)

func TestRESTProvider_EmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req restEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello", "world"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(restEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	p := newRESTProvider(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"}, "cohere")
	vectors, err := p.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, 2, p.Dimension())
}

func TestRESTProvider_ServerErrorIsProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newRESTProvider(config.EmbeddingConfig{BaseURL: srv.URL}, "ollama")
	_, err := p.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderUnavailable, memerr.KindOf(err))
}

func TestRESTProvider_BadRequestIsProviderInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newRESTProvider(config.EmbeddingConfig{BaseURL: srv.URL}, "huggingface")
	_, err := p.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderInvalid, memerr.KindOf(err))
}

func TestRESTProvider_MismatchedEmbeddingCountIsProviderInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(restEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	p := newRESTProvider(config.EmbeddingConfig{BaseURL: srv.URL}, "litellm")
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderInvalid, memerr.KindOf(err))
}

func TestDefaultBaseURL_PerVendor(t *testing.T) {
	assert.Equal(t, "https://api.cohere.ai/v1", defaultBaseURL("cohere", ""))
	assert.Equal(t, "http://localhost:11434/api", defaultBaseURL("ollama", ""))
	assert.Equal(t, "custom", defaultBaseURL("ollama", "custom"))
}
