package dispatch

import (
	"context"

	"mdmemory/internal/types"
)

// UnsetLimit is the sentinel SearchQuery.Limit value meaning "the caller
// didn't specify a limit", distinct from an explicit 0, which returns no
// hits.
const UnsetLimit = -1

// SearchQuery is one search() batch item.
type SearchQuery struct {
	Query          string
	SearchMode     types.SearchMode
	Limit          int
	FilePath       string
	CategoryFilter []types.Category
	TagFilter      []string
}

// Search executes each query with bounded concurrency.
func (d *Dispatcher) Search(ctx context.Context, queries []SearchQuery) []Result {
	return runBatch(ctx, "search", queries, func(ctx context.Context, q SearchQuery) Result {
		engine, err := d.requireSearch()
		if err != nil {
			return fail(err)
		}
		mode := q.SearchMode
		if mode == "" {
			mode = types.SearchHybrid
		}
		limit := q.Limit
		if limit == UnsetLimit {
			limit = d.DefaultSearchLimit
			if limit <= 0 {
				limit = 20
			}
		}
		filters := types.SearchFilters{
			Categories: q.CategoryFilter,
			Tags:       q.TagFilter,
			FilePath:   q.FilePath,
		}
		result, err := engine.Search(ctx, q.Query, mode, limit, filters)
		if err != nil {
			return fail(err)
		}
		return ok(result)
	})
}
