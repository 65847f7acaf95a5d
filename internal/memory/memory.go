// Package memory is the thin orchestrator enforcing cross-component
// invariants: every write goes File Store -> JSON Index -> Sync Service
// in that order, and initialize/reset maintain the base-state guarantee.
package memory

import (
	"context"
	"fmt"
	"time"

	"mdmemory/internal/filestore"
	"mdmemory/internal/jsonindex"
	"mdmemory/internal/logging"
	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// baseTemplate is main.md's canonical skeleton, written on first
// initialize and restored verbatim by reset.
const baseTemplate = `# Memory

## File Index

## Goals

## Tasks

## Plans

## Completed Tasks
`

// SyncEnqueuer is the subset of the Sync Service the manager drives.
type SyncEnqueuer interface {
	Enqueue(filePath string)
}

// Manager wires the File Store, JSON Index, and Sync Service together.
type Manager struct {
	files *filestore.Store
	index *jsonindex.Index
	syncs SyncEnqueuer

	log logging.Logger
}

// New builds a Manager and subscribes it to File Store change events so
// every committed write drives the JSON Index and Sync Service.
func New(files *filestore.Store, index *jsonindex.Index, syncs SyncEnqueuer) *Manager {
	m := &Manager{files: files, index: index, syncs: syncs, log: logging.WithComponent("memory")}
	files.OnChange(m.handleChange)
	return m
}

// handleChange is the File Store's ChangeListener: on every committed
// write or delete it updates the JSON Index and enqueues a reconcile,
// retrying the JSON Index step asynchronously if it fails (the write
// itself already succeeded at the filesystem layer).
func (m *Manager) handleChange(ev types.ChangeEvent) {
	if ev.Deleted {
		if err := m.index.Remove(ev.FilePath); err != nil {
			m.log.Error("json index removal failed, retrying", "file_path", ev.FilePath, "error", err)
			go m.retryRemove(ev.FilePath)
		}
	} else {
		mf, _, err := m.files.Read(ev.FilePath)
		if err != nil {
			m.log.Error("reread after write failed", "file_path", ev.FilePath, "error", err)
		} else {
			entry := toIndexEntry(mf)
			// A content write carries no tags of its own; preserve whatever
			// tags/metadata tags()/the index already holds for this file
			// rather than wiping them back to empty.
			if prev, perr := m.index.Get(ev.FilePath); perr == nil {
				entry.Tags = prev.Tags
				entry.Metadata = prev.Metadata
			}
			if err := m.index.Upsert(entry); err != nil {
				m.log.Error("json index upsert failed, retrying", "file_path", ev.FilePath, "error", err)
				go m.retryUpsert(ev.FilePath)
			}
		}
	}
	if m.syncs != nil {
		m.syncs.Enqueue(ev.FilePath)
	}
}

func (m *Manager) retryUpsert(filePath string) {
	for attempt := 0; attempt < 3; attempt++ {
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
		mf, _, err := m.files.Read(filePath)
		if err != nil {
			return // file gone or unreadable; nothing left to index
		}
		entry := toIndexEntry(mf)
		if prev, perr := m.index.Get(filePath); perr == nil {
			entry.Tags = prev.Tags
			entry.Metadata = prev.Metadata
		}
		if err := m.index.Upsert(entry); err == nil {
			return
		}
	}
	m.log.Error("json index upsert gave up", "file_path", filePath)
}

func (m *Manager) retryRemove(filePath string) {
	for attempt := 0; attempt < 3; attempt++ {
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
		if err := m.index.Remove(filePath); err == nil {
			return
		}
	}
	m.log.Error("json index removal gave up", "file_path", filePath)
}

// Read returns relPath's current bytes and derived metadata, overlaid with
// its tags and metadata from the JSON Index (the File Store derives
// MemoryFile fresh from file bytes alone and so never carries tags). The
// Sync Service uses this as its FileReader so tags set via tags() reach
// memory_files and become searchable with tag_filter.
func (m *Manager) Read(relPath string) (*types.MemoryFile, []byte, error) {
	mf, content, err := m.files.Read(relPath)
	if err != nil {
		return nil, nil, err
	}
	if entry, ierr := m.index.Get(relPath); ierr == nil {
		mf.Tags = entry.Tags
		mf.Metadata = entry.Metadata
	}
	return mf, content, nil
}

func toIndexEntry(mf *types.MemoryFile) types.JSONIndexEntry {
	return types.JSONIndexEntry{
		FilePath:    mf.FilePath,
		Title:       mf.Title,
		Category:    mf.Category,
		Description: mf.Description,
		Tags:        mf.Tags,
		Metadata:    mf.Metadata,
		CreatedAt:   mf.CreatedAt,
		UpdatedAt:   mf.UpdatedAt,
		WordCount:   mf.WordCount,
	}
}

// Initialize creates main.md and files_index.json if either is absent.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.files.EnsureRoot(); err != nil {
		return err
	}
	if !m.files.Exists(types.MainFilePath) {
		if _, err := m.files.Create(types.CategoryMain, "Memory", baseTemplate); err != nil {
			return err
		}
	}
	if !m.index.Exists() {
		if err := m.index.Init(); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes every file except main.md and files_index.json, truncates
// the index store (via the caller-supplied truncate func, nil in
// file-only mode), and rewrites main.md to its base template. Reset takes
// the per-path lock on every file it deletes so a concurrent write can't
// race a delete.
func (m *Manager) Reset(ctx context.Context, truncateIndexStore func(context.Context) error) error {
	flat, _, err := m.files.List()
	if err != nil {
		return err
	}

	var firstErr error
	for _, f := range flat {
		if f.FilePath == types.MainFilePath {
			continue
		}
		// Delete takes the file's per-path lock itself, satisfying the
		// requirement that reset not race a concurrent writer.
		if err := m.files.Delete(f.FilePath); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", f.FilePath, err)
		}
	}
	if firstErr != nil {
		return memerr.Wrap(memerr.Internal, firstErr, "reset: failed to delete all files")
	}

	if _, err := m.files.Update(types.MainFilePath, filestore.UpdateReplace, baseTemplate); err != nil {
		return err
	}
	if err := m.index.RebuildFrom(nil); err != nil {
		return err
	}
	if truncateIndexStore != nil {
		if err := truncateIndexStore(ctx); err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, err, "truncate index store")
		}
	}
	return nil
}
