// Package embed provides the pluggable embedding adapter: a single
// Provider interface behind per-vendor implementations, with batching,
// content caching, and retry/backoff around each vendor call.
package embed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"mdmemory/internal/config"
	"mdmemory/internal/logging"
	"mdmemory/internal/memerr"
	"mdmemory/internal/retry"
)

// Provider generates embedding vectors for text and reports its fixed
// output dimension and name, the seam every vendor adapter implements.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

const (
	maxRetries   = 3
	initialDelay = 200 * time.Millisecond
)

// New constructs the Provider selected by cfg.Provider, wrapped with
// batching and retry behavior common to every vendor.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	var base Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base = newOpenAIProvider(cfg)
	case config.ProviderCohere:
		base = newRESTProvider(cfg, "cohere")
	case config.ProviderOllama:
		base = newRESTProvider(cfg, "ollama")
	case config.ProviderHuggingFace:
		base = newRESTProvider(cfg, "huggingface")
	case config.ProviderLiteLLM:
		base = newRESTProvider(cfg, "litellm")
	default:
		return nil, memerr.New(memerr.InvalidArgument, "unknown embedding provider %q", cfg.Provider)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &batchingProvider{
		base:           base,
		batchSize:      batchSize,
		expectedDim:    cfg.Dimension,
		cache:          make(map[string][]float32),
		modelCacheName: string(cfg.Provider) + "|" + cfg.Model,
	}, nil
}

// batchingProvider wraps a vendor Provider with request batching, an
// in-memory content-hash cache, dimension validation, and bounded retry
// with exponential backoff for transient failures.
type batchingProvider struct {
	base           Provider
	batchSize      int
	expectedDim    int
	modelCacheName string

	cacheMu sync.RWMutex
	cache   map[string][]float32
}

func (b *batchingProvider) Name() string   { return b.base.Name() }
func (b *batchingProvider) Dimension() int { return b.base.Dimension() }

func (b *batchingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, memerr.New(memerr.InvalidArgument, "no texts to embed")
	}

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIdx []int

	for i, t := range texts {
		key := b.cacheKey(t)
		if cached, ok := b.fromCache(key); ok {
			results[i] = cached
			continue
		}
		uncachedTexts = append(uncachedTexts, t)
		uncachedIdx = append(uncachedIdx, i)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	for start := 0; start < len(uncachedTexts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(uncachedTexts) {
			end = len(uncachedTexts)
		}
		batch := uncachedTexts[start:end]

		vectors, err := b.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, v := range vectors {
			// EMBEDDING_DIMENSION wins when configured; otherwise the
			// vendor's own reported dimension is the contract. Resolved per
			// vector because REST vendors discover theirs on first response.
			expected := b.expectedDim
			if expected <= 0 {
				expected = b.base.Dimension()
			}
			if expected > 0 && len(v) != expected {
				return nil, memerr.New(memerr.ProviderInvalid, "%s returned dimension %d, expected %d", b.base.Name(), len(v), expected)
			}
			idx := uncachedIdx[start+j]
			results[idx] = v
			b.toCache(b.cacheKey(batch[j]), v)
		}
	}
	return results, nil
}

// embedWithRetry wraps the vendor call in bounded exponential backoff,
// stopping early on non-retryable errors (invalid request, bad dimension).
func (b *batchingProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0

	r := retry.New(&retry.Config{
		MaxAttempts:     maxRetries,
		InitialDelay:    initialDelay,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.5,
		RetryIf:         memerr.Retryable,
	})

	result := r.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			logging.Warn("retrying embedding request", "provider", b.base.Name(), "attempt", attempt)
		}
		out, err := b.base.Embed(ctx, texts)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})

	if result.Err != nil {
		if !memerr.Retryable(result.Err) {
			return nil, result.Err
		}
		return nil, memerr.Wrap(memerr.ProviderUnavailable, result.Err, "embedding provider %s unavailable after %d attempts", b.base.Name(), result.Attempts)
	}
	return vectors, nil
}

func (b *batchingProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(b.modelCacheName + "|" + text))
	return fmt.Sprintf("%x", sum)
}

func (b *batchingProvider) fromCache(key string) ([]float32, bool) {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	v, ok := b.cache[key]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

func (b *batchingProvider) toCache(key string, v []float32) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	cp := make([]float32, len(v))
	copy(cp, v)
	b.cache[key] = cp
}

// openAIProvider adapts sashabaranov/go-openai's embedding endpoint.
type openAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

func newOpenAIProvider(cfg config.EmbeddingConfig) *openAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: dimensionFor(cfg.Model, cfg.Dimension),
	}
}

func dimensionFor(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002", "text-embedding-3-small":
		return 1536
	default:
		return 1536
	}
}

func (p *openAIProvider) Name() string   { return "openai" }
func (p *openAIProvider) Dimension() int { return p.dimension }

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.ProviderUnavailable, err, "openai embedding request")
	}
	if len(resp.Data) != len(texts) {
		return nil, memerr.New(memerr.ProviderInvalid, "openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
