// server is the main MCP Memory Server binary. It serves the nine batch
// memory tools and two browse resources over stdio, in either file-only
// or Postgres-indexed mode depending on USE_DATABASE.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/fredcamaral/gomcp-sdk/transport"
	"golang.org/x/sync/errgroup"

	"mdmemory/internal/chunker"
	"mdmemory/internal/config"
	"mdmemory/internal/dispatch"
	"mdmemory/internal/embed"
	"mdmemory/internal/filestore"
	"mdmemory/internal/jsonindex"
	"mdmemory/internal/logging"
	"mdmemory/internal/mcpserver"
	"mdmemory/internal/memory"
	"mdmemory/internal/search"
	"mdmemory/internal/store"
	"mdmemory/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logging.SetDefaultLogger(logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.JSON))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, idxStore, cleanup, err := build(ctx, cfg)
	if err != nil {
		log.Fatalf("build memory service: %v", err)
	}
	defer cleanup()

	srv := mcpserver.Build(cfg.Server.Name, cfg.Server.Version, d)
	srv.SetTransport(transport.NewStdioTransport())

	g, gctx := errgroup.WithContext(ctx)
	if idxStore != nil {
		g.Go(func() error { return d.Sync.Run(gctx) })
	}
	g.Go(func() error { return srv.Start(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("server stopped: %v", err)
	}
}

// build wires every component per cfg.Database.UseDatabase, returning the
// file-only Dispatcher when false. idxStore is non-nil only in indexed
// mode, used by main to decide whether to run the sync loop.
func build(ctx context.Context, cfg *config.Config) (d *dispatch.Dispatcher, idxStore *store.Store, cleanup func(), err error) {
	logger := logging.WithComponent("bootstrap")
	cleanup = func() {}

	files := filestore.New(cfg.Files.RootPath)
	index := jsonindex.New(cfg.Files.RootPath)
	chunks := chunker.New(cfg.Chunking)

	var embedder embed.Provider
	var syncSvc *sync.Service
	var searchEngine *search.Engine
	var truncate func(context.Context) error

	if cfg.Database.UseDatabase {
		embedder, err = embed.New(cfg.Embedding)
		if err != nil {
			return nil, nil, cleanup, err
		}

		idxStore, err = store.Open(ctx, cfg.Database, embedder.Dimension())
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = func() { idxStore.Close() }

		syncSvc = sync.New(files, idxStore, chunks, embedder)
		searchEngine = search.New(idxStore, embedder, cfg.Search.RRFK)
		truncate = idxStore.TruncateAll
	} else {
		logger.Info("starting in file-only mode: USE_DATABASE=false")
		syncSvc = sync.New(files, nil, chunks, nil)
	}

	mgr := memory.New(files, index, syncSvc)
	syncSvc.SetFileReader(mgr)
	if err := mgr.Initialize(ctx); err != nil {
		return nil, nil, cleanup, err
	}

	d = &dispatch.Dispatcher{
		FileStore:          files,
		Index:              index,
		MemoryMgr:          mgr,
		SearchEngine:       searchEngine,
		Sync:               syncSvc,
		TruncateIndexStore: truncate,
		DefaultSearchLimit: cfg.Search.DefaultLimit,
	}
	return d, idxStore, cleanup, nil
}
