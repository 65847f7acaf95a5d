package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdmemory/internal/memerr"
)

type countingProvider struct {
	calls int
	dim   int
	err   error
}

func (p *countingProvider) Name() string   { return "counting" }
func (p *countingProvider) Dimension() int { return p.dim }
func (p *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dim)
	}
	return out, nil
}

func newBatchingProvider(base Provider, batchSize, expectedDim int) *batchingProvider {
	return &batchingProvider{
		base:           base,
		batchSize:      batchSize,
		expectedDim:    expectedDim,
		cache:          make(map[string][]float32),
		modelCacheName: "test-model",
	}
}

func TestBatchingProvider_CachesByContent(t *testing.T) {
	base := &countingProvider{dim: 4}
	b := newBatchingProvider(base, 100, 0)

	_, err := b.Embed(context.Background(), []string{"same text"})
	require.NoError(t, err)
	_, err = b.Embed(context.Background(), []string{"same text"})
	require.NoError(t, err)

	assert.Equal(t, 1, base.calls)
}

func TestBatchingProvider_SplitsIntoBatches(t *testing.T) {
	base := &countingProvider{dim: 2}
	b := newBatchingProvider(base, 2, 0)

	_, err := b.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, 3, base.calls) // 2 + 2 + 1
}

func TestBatchingProvider_RejectsDimensionMismatch(t *testing.T) {
	base := &countingProvider{dim: 3}
	b := newBatchingProvider(base, 100, 8)

	_, err := b.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderInvalid, memerr.KindOf(err))
}

// wrongDimProvider reports one dimension but returns vectors of another,
// the contract violation the adapter must catch even with no configured
// EMBEDDING_DIMENSION.
type wrongDimProvider struct{}

func (wrongDimProvider) Name() string   { return "wrongdim" }
func (wrongDimProvider) Dimension() int { return 4 }
func (wrongDimProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 3)
	}
	return out, nil
}

func TestBatchingProvider_RejectsVendorDimensionMismatchWithoutConfig(t *testing.T) {
	b := newBatchingProvider(wrongDimProvider{}, 100, 0)

	_, err := b.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderInvalid, memerr.KindOf(err))
}

func TestBatchingProvider_RejectsEmptyInput(t *testing.T) {
	b := newBatchingProvider(&countingProvider{dim: 2}, 100, 0)
	_, err := b.Embed(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, memerr.InvalidArgument, memerr.KindOf(err))
}

func TestBatchingProvider_RetriesRetryableErrorsThenGivesUp(t *testing.T) {
	base := &countingProvider{dim: 2, err: memerr.New(memerr.ProviderUnavailable, "down")}
	b := newBatchingProvider(base, 100, 0)

	_, err := b.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, memerr.ProviderUnavailable, memerr.KindOf(err))
	assert.Equal(t, maxRetries, base.calls)
}

func TestBatchingProvider_DoesNotRetryNonRetryableErrors(t *testing.T) {
	base := &countingProvider{dim: 2, err: memerr.New(memerr.InvalidArgument, "bad request")}
	b := newBatchingProvider(base, 100, 0)

	_, err := b.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestDimensionFor_KnownModels(t *testing.T) {
	assert.Equal(t, 3072, dimensionFor("text-embedding-3-large", 0))
	assert.Equal(t, 1536, dimensionFor("text-embedding-3-small", 0))
	assert.Equal(t, 42, dimensionFor("anything", 42))
}
