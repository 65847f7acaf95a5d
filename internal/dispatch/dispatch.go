// Package dispatch implements the nine batch-oriented MCP tools, each
// taking an array of items and returning an equal-length array of
// results, processed with bounded concurrency.
package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mdmemory/internal/filestore"
	"mdmemory/internal/jsonindex"
	"mdmemory/internal/logging"
	"mdmemory/internal/memerr"
	"mdmemory/internal/memory"
	"mdmemory/internal/search"
	"mdmemory/internal/sync"
)

const defaultConcurrency = 8

// ErrorInfo is the wire shape of a failed item's error.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is one batch item's outcome: either Value is populated and OK is
// true, or Error is populated and OK is false. A batch never aborts early
// on an item failure.
type Result struct {
	OK    bool        `json:"ok"`
	Value interface{} `json:"value,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
}

func ok(v interface{}) Result  { return Result{OK: true, Value: v} }
func fail(err error) Result {
	return Result{OK: false, Error: &ErrorInfo{Kind: string(memerr.KindOf(err)), Message: err.Error()}}
}

// Dispatcher wires the nine tools to the underlying components. Search
// and Sync may be nil in file-only mode (USE_DATABASE=false); tools that
// need them return StorageUnavailable per item instead of failing the
// whole batch.
type Dispatcher struct {
	FileStore    *filestore.Store
	Index        *jsonindex.Index
	MemoryMgr    *memory.Manager
	SearchEngine *search.Engine
	Sync         *sync.Service

	TruncateIndexStore func(context.Context) error

	// DefaultSearchLimit applies when a query omits limit (SEARCH_LIMIT
	// config); zero falls back to 20.
	DefaultSearchLimit int
}

var dispatchLog = logging.WithComponent("dispatch")

// runBatch executes fn over each item with bounded concurrency, in input
// order in the returned slice. Every call gets its own trace ID so the
// batch's log lines (including anything components log mid-operation) can
// be correlated even though items run concurrently.
func runBatch[T any](ctx context.Context, tool string, items []T, fn func(context.Context, T) Result) []Result {
	log := dispatchLog.WithTraceID(logging.GenerateTraceID())
	log.Info("batch started", "tool", tool, "items", len(items))

	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	log.Info("batch completed", "tool", tool, "items", len(items), "failed", failed)
	return results
}

func (d *Dispatcher) requireSearch() (*search.Engine, error) {
	if d.SearchEngine == nil {
		return nil, memerr.New(memerr.StorageUnavailable, "search is unavailable in file-only mode")
	}
	return d.SearchEngine, nil
}
