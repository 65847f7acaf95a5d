package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"mdmemory/internal/config"
	"mdmemory/internal/memerr"
)

// restProvider speaks a minimal JSON REST embedding contract shared by
// cohere, ollama, huggingface, and litellm: POST {model, input} ->
// {embeddings: [][]float32}, built directly on net/http.
type restProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	vendor     string
	dimension  int
}

func newRESTProvider(cfg config.EmbeddingConfig, vendor string) *restProvider {
	return &restProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL(vendor, cfg.BaseURL),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		vendor:     vendor,
		dimension:  cfg.Dimension,
	}
}

func defaultBaseURL(vendor, configured string) string {
	if configured != "" {
		return configured
	}
	switch vendor {
	case "cohere":
		return "https://api.cohere.ai/v1"
	case "ollama":
		return "http://localhost:11434/api"
	case "huggingface":
		return "https://api-inference.huggingface.co"
	case "litellm":
		return "http://localhost:4000"
	default:
		return ""
	}
}

func (p *restProvider) Name() string   { return p.vendor }
func (p *restProvider) Dimension() int { return p.dimension }

type restEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type restEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *restProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(restEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, err, "encode %s embed request", p.vendor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, err, "build %s embed request", p.vendor)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, memerr.Wrap(memerr.ProviderUnavailable, err, "%s embed request failed", p.vendor)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, memerr.Wrap(memerr.ProviderUnavailable, err, "read %s embed response", p.vendor)
	}
	if resp.StatusCode >= 500 {
		return nil, memerr.New(memerr.ProviderUnavailable, "%s embed request returned %d: %s", p.vendor, resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		return nil, memerr.New(memerr.ProviderInvalid, "%s embed request returned %d: %s", p.vendor, resp.StatusCode, string(data))
	}

	var parsed restEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, memerr.Wrap(memerr.ProviderInvalid, err, "parse %s embed response", p.vendor)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, memerr.New(memerr.ProviderInvalid, "%s returned %d embeddings for %d inputs", p.vendor, len(parsed.Embeddings), len(texts))
	}
	if p.dimension == 0 && len(parsed.Embeddings) > 0 {
		p.dimension = len(parsed.Embeddings[0])
	}
	return parsed.Embeddings, nil
}
