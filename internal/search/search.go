// Package search implements the hybrid retrieval engine: vector,
// full-text, and reciprocal-rank-fused combinations of the two over the
// Postgres index store.
package search

import (
	"context"
	"sort"

	"mdmemory/internal/embed"
	"mdmemory/internal/memerr"
	"mdmemory/internal/store"
	"mdmemory/internal/types"
)

// Backend is the subset of the index store the search engine depends on,
// narrowed so it can be faked in tests without a live database.
type Backend interface {
	VectorSearch(ctx context.Context, embedding []float32, limit int, filters types.SearchFilters) ([]types.SearchHit, error)
	FulltextSearch(ctx context.Context, query string, limit int, filters types.SearchFilters) ([]types.SearchHit, error)
}

var _ Backend = (*store.Store)(nil)

// Engine answers search queries against Backend, fusing vector and
// full-text rankings with Reciprocal Rank Fusion.
type Engine struct {
	backend  Backend
	embedder embed.Provider
	rrfK     int
}

// New builds an Engine. embedder may be nil if only fulltext mode will
// ever be used; Search returns ProviderUnavailable if a vector-requiring
// query reaches a nil embedder.
func New(backend Backend, embedder embed.Provider, rrfK int) *Engine {
	if rrfK <= 0 {
		rrfK = 60
	}
	return &Engine{backend: backend, embedder: embedder, rrfK: rrfK}
}

// minCandidatePool widens the pool each sub-search draws from so RRF has
// enough candidates to fuse meaningfully.
const minCandidatePool = 50

// Search executes query under mode, returning up to limit fused hits.
func (e *Engine) Search(ctx context.Context, query string, mode types.SearchMode, limit int, filters types.SearchFilters) (*types.SearchResult, error) {
	if query == "" {
		return nil, memerr.New(memerr.InvalidArgument, "query must not be empty")
	}
	if limit == 0 {
		return &types.SearchResult{Hits: []types.SearchHit{}}, nil
	}
	if limit < 0 {
		limit = 20
	}
	pool := limit
	if pool < minCandidatePool {
		pool = minCandidatePool
	}

	switch mode {
	case types.SearchVector:
		hits, err := e.vectorSearch(ctx, query, pool, filters)
		if err != nil {
			return nil, err
		}
		return &types.SearchResult{Hits: truncate(hits, limit)}, nil

	case types.SearchFulltext:
		hits, err := e.backend.FulltextSearch(ctx, query, pool, filters)
		if err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, err, "fulltext search")
		}
		return &types.SearchResult{Hits: truncate(hits, limit)}, nil

	case types.SearchHybrid:
		return e.hybridSearch(ctx, query, pool, limit, filters)

	default:
		return nil, memerr.New(memerr.InvalidArgument, "unknown search mode %q", mode)
	}
}

func (e *Engine) vectorSearch(ctx context.Context, query string, pool int, filters types.SearchFilters) ([]types.SearchHit, error) {
	if e.embedder == nil {
		return nil, memerr.New(memerr.ProviderUnavailable, "no embedding provider configured for vector search")
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	hits, err := e.backend.VectorSearch(ctx, vectors[0], pool, filters)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "vector search")
	}
	return hits, nil
}

// hybridSearch combines vector and fulltext rankings with RRF, degrading
// to fulltext-only (with a warning) if the vector leg fails.
func (e *Engine) hybridSearch(ctx context.Context, query string, pool, limit int, filters types.SearchFilters) (*types.SearchResult, error) {
	fulltextHits, ftErr := e.backend.FulltextSearch(ctx, query, pool, filters)
	if ftErr != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, ftErr, "fulltext search")
	}

	vectorHits, vErr := e.vectorSearch(ctx, query, pool, filters)
	if vErr != nil {
		fused := fuseRanked(nil, fulltextHits, e.rrfK)
		return &types.SearchResult{
			Hits:     truncate(fused, limit),
			Degraded: true,
			Warning:  "vector search unavailable, falling back to full-text ranking: " + vErr.Error(),
		}, nil
	}

	fused := fuseRanked(vectorHits, fulltextHits, e.rrfK)
	return &types.SearchResult{Hits: truncate(fused, limit)}, nil
}

// fuseRanked combines two rank-ordered hit lists via Reciprocal Rank
// Fusion: rrf(c) = sum(1 / (k + rank)), ties broken by the better of the
// two ranks, then by ascending chunk ID for full determinism.
func fuseRanked(vectorHits, fulltextHits []types.SearchHit, k int) []types.SearchHit {
	type fusedEntry struct {
		hit      types.SearchHit
		score    float64
		bestRank int
	}
	entries := make(map[int64]*fusedEntry)

	addRanked := func(hits []types.SearchHit) {
		for i, h := range hits {
			rank := i + 1
			e, ok := entries[h.ChunkID]
			if !ok {
				e = &fusedEntry{hit: h, bestRank: rank}
				entries[h.ChunkID] = e
			}
			e.score += 1.0 / float64(k+rank)
			if rank < e.bestRank {
				e.bestRank = rank
			}
		}
	}
	addRanked(vectorHits)
	addRanked(fulltextHits)

	result := make([]types.SearchHit, 0, len(entries))
	bestRanks := make(map[int64]int, len(entries))
	for id, e := range entries {
		e.hit.Score = e.score
		result = append(result, e.hit)
		bestRanks[id] = e.bestRank
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if bestRanks[result[i].ChunkID] != bestRanks[result[j].ChunkID] {
			return bestRanks[result[i].ChunkID] < bestRanks[result[j].ChunkID]
		}
		return result[i].ChunkID < result[j].ChunkID
	})
	return result
}

func truncate(hits []types.SearchHit, limit int) []types.SearchHit {
	if hits == nil {
		return []types.SearchHit{}
	}
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
