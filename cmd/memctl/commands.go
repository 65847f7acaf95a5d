package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mdmemory/internal/chunker"
	"mdmemory/internal/config"
	"mdmemory/internal/embed"
	"mdmemory/internal/filestore"
	"mdmemory/internal/jsonindex"
	"mdmemory/internal/memory"
	"mdmemory/internal/store"
	"mdmemory/internal/sync"
	"mdmemory/internal/types"
)

func newRebuildIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Regenerate files_index.json from the markdown tree on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			files := filestore.New(cfg.Files.RootPath)
			index := jsonindex.New(cfg.Files.RootPath)

			flat, _, err := files.List()
			if err != nil {
				return fmt.Errorf("list markdown files: %w", err)
			}

			entries := make([]types.JSONIndexEntry, 0, len(flat))
			for _, lf := range flat {
				mf, _, err := files.Read(lf.FilePath)
				if err != nil {
					return fmt.Errorf("read %s: %w", lf.FilePath, err)
				}
				entries = append(entries, types.JSONIndexEntry{
					FilePath:    mf.FilePath,
					Title:       mf.Title,
					Category:    mf.Category,
					Description: mf.Description,
					Tags:        mf.Tags,
					Metadata:    mf.Metadata,
					CreatedAt:   mf.CreatedAt,
					UpdatedAt:   mf.UpdatedAt,
					WordCount:   mf.WordCount,
				})
			}

			if err := index.RebuildFrom(entries); err != nil {
				return fmt.Errorf("rebuild files_index.json: %w", err)
			}
			cmd.Printf("rebuilt files_index.json with %d entries\n", len(entries))
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force a reconcile pass of every markdown file into the index store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Database.UseDatabase {
				return fmt.Errorf("sync requires USE_DATABASE=true")
			}

			ctx := cmd.Context()
			files := filestore.New(cfg.Files.RootPath)
			index := jsonindex.New(cfg.Files.RootPath)
			chunks := chunker.New(cfg.Chunking)

			embedder, err := embed.New(cfg.Embedding)
			if err != nil {
				return err
			}
			idxStore, err := store.Open(ctx, cfg.Database, embedder.Dimension())
			if err != nil {
				return err
			}
			defer idxStore.Close()

			flat, _, err := files.List()
			if err != nil {
				return fmt.Errorf("list markdown files: %w", err)
			}
			paths := make([]string, len(flat))
			for i, lf := range flat {
				paths[i] = lf.FilePath
			}

			svc := sync.New(files, idxStore, chunks, embedder)
			mgr := memory.New(files, index, noopEnqueuer{})
			svc.SetFileReader(mgr)
			svc.ReconcileNow(ctx, paths)
			cmd.Printf("reconciled %d files\n", len(paths))
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every memory file except main.md and clear the index store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to reset without --yes")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			files := filestore.New(cfg.Files.RootPath)
			index := jsonindex.New(cfg.Files.RootPath)

			var truncate func(context.Context) error
			var cleanup func()
			if cfg.Database.UseDatabase {
				embedder, err := embed.New(cfg.Embedding)
				if err != nil {
					return err
				}
				idxStore, err := store.Open(ctx, cfg.Database, embedder.Dimension())
				if err != nil {
					return err
				}
				cleanup = func() { idxStore.Close() }
				truncate = idxStore.TruncateAll
			}
			if cleanup != nil {
				defer cleanup()
			}

			mgr := memory.New(files, index, noopEnqueuer{})
			if err := mgr.Reset(ctx, truncate); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			cmd.Println("memory reset to base state")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the destructive reset")
	return cmd
}

// noopEnqueuer satisfies memory.SyncEnqueuer for one-shot CLI invocations
// that have no background sync loop to notify.
type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(string) {}
