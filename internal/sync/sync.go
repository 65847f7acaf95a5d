// Package sync reconciles the File Store's markdown files into the
// Postgres index store, chunking, embedding, and upserting changed files
// on a bounded worker pool.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mdmemory/internal/chunker"
	"mdmemory/internal/embed"
	"mdmemory/internal/logging"
	"mdmemory/internal/memerr"
	"mdmemory/internal/store"
	"mdmemory/internal/types"
)

const (
	defaultWorkers = 4
	defaultSweep   = 60 * time.Second
	backoffBase    = 2 * time.Second
	backoffMax     = 5 * time.Minute
)

// FileReader is the subset of the File Store the sync service needs: the
// current content and metadata for a file_path.
type FileReader interface {
	Read(relPath string) (*types.MemoryFile, []byte, error)
}

// Service drives file_path -> index-store reconciliation from change
// events, plus a periodic sweep that retries anything left pending.
type Service struct {
	files    FileReader
	idx      *store.Store
	chunks   *chunker.Chunker
	embedder embed.Provider

	workers int
	sweep   time.Duration

	mu      sync.Mutex
	queue   map[string]struct{} // coalesced pending file_paths
	backoff map[string]time.Duration
	notify  chan struct{}

	log logging.Logger
}

// New builds a Service. idx and embedder may be nil when USE_DATABASE is
// false; without idx, Enqueue and ReconcileNow are no-ops and Run only
// waits for ctx to be canceled.
func New(files FileReader, idx *store.Store, chunks *chunker.Chunker, embedder embed.Provider) *Service {
	return &Service{
		files:    files,
		idx:      idx,
		chunks:   chunks,
		embedder: embedder,
		workers:  defaultWorkers,
		sweep:    defaultSweep,
		queue:    make(map[string]struct{}),
		backoff:  make(map[string]time.Duration),
		notify:   make(chan struct{}, 1),
		log:      logging.WithComponent("sync"),
	}
}

// SetFileReader overrides the FileReader used by subsequent reconciles.
// Callers that need a reader overlaying additional metadata (e.g. the
// Memory Manager, which knows the JSON Index's current tags) but can only
// be constructed after the Service itself use this to break the
// construction cycle.
func (s *Service) SetFileReader(files FileReader) {
	s.files = files
}

// Enqueue schedules filePath for reconciliation, coalescing with any
// already-pending entry for the same path.
func (s *Service) Enqueue(filePath string) {
	if s.idx == nil {
		return
	}
	s.mu.Lock()
	s.queue[filePath] = struct{}{}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// OnChange adapts a filestore.ChangeListener, enqueuing both upserts and
// deletions.
func (s *Service) OnChange(ev types.ChangeEvent) {
	s.Enqueue(ev.FilePath)
}

// ReconcileNow enqueues filePaths and drains them synchronously, for
// one-shot callers (memctl) that don't run the background loop.
func (s *Service) ReconcileNow(ctx context.Context, filePaths []string) {
	if s.idx == nil {
		return
	}
	s.mu.Lock()
	for _, p := range filePaths {
		s.queue[p] = struct{}{}
	}
	s.mu.Unlock()
	s.drain(ctx)
}

// Run drains the queue and runs the periodic sweep until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.idx == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.notify:
			s.drain(ctx)
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// drain processes every currently queued file_path on a bounded worker
// pool, per-path serialized by virtue of each path appearing once.
func (s *Service) drain(ctx context.Context) {
	s.mu.Lock()
	paths := make([]string, 0, len(s.queue))
	for p := range s.queue {
		paths = append(paths, p)
	}
	s.queue = make(map[string]struct{})
	s.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			s.reconcileOne(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

// runSweep re-enqueues anything the index store still considers
// pending/failed, e.g. after a crash mid-reconcile.
func (s *Service) runSweep(ctx context.Context) {
	pending, err := s.idx.PendingSyncFiles(ctx)
	if err != nil {
		s.log.Warn("sweep failed to list pending files", "error", err)
		return
	}
	for _, p := range pending {
		s.Enqueue(p)
	}
	if len(pending) > 0 {
		s.drain(ctx)
	}
}

// reconcileOne chunks, embeds, and upserts a single file, respecting a
// per-file_path exponential backoff after failures.
func (s *Service) reconcileOne(ctx context.Context, filePath string) {
	if wait := s.backoffFor(filePath); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	mf, content, err := s.files.Read(filePath)
	if memerr.KindOf(err) == memerr.NotFound {
		s.handleDeletion(ctx, filePath)
		return
	}
	if err != nil {
		s.recordFailure(ctx, filePath, err)
		return
	}

	// Already reconciled at this hash: nothing to do.
	var prevHash string
	var prevAt time.Time
	if rec, recErr := s.idx.SyncStatusFor(ctx, filePath); recErr == nil {
		if rec.Status == types.SyncCompleted && rec.LastSyncedHash == mf.ContentHash {
			s.clearBackoff(filePath)
			return
		}
		prevHash, prevAt = rec.LastSyncedHash, rec.LastSyncedAt
	}

	fileID, err := s.idx.UpsertFile(ctx, mf)
	if err != nil {
		s.recordFailure(ctx, filePath, err)
		return
	}

	// last_synced_hash keeps the prior successful hash until this
	// reconcile commits; a reader mid-reconcile sees syncing + old hash.
	_ = s.idx.UpsertSyncStatus(ctx, types.SyncRecord{
		FileID:         fileID,
		FilePath:       filePath,
		LastSyncedHash: prevHash,
		LastSyncedAt:   prevAt,
		Status:         types.SyncSyncing,
	})

	pieces := s.chunks.Chunk(string(content))
	chunks := make([]types.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
		chunks[i] = types.Chunk{
			ChunkIndex:   i,
			Content:      p.Content,
			ContentHash:  contentHash(p.Content),
			HeaderPath:   p.HeaderPath,
			SectionLevel: p.SectionLevel,
		}
	}

	if s.embedder != nil && len(texts) > 0 {
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			s.recordFailure(ctx, filePath, err)
			return
		}
		for i, v := range vectors {
			chunks[i].Embedding = v
		}
	}

	if err := s.idx.ReplaceChunks(ctx, fileID, chunks); err != nil {
		s.recordFailure(ctx, filePath, err)
		return
	}

	s.clearBackoff(filePath)
	_ = s.idx.UpsertSyncStatus(ctx, types.SyncRecord{
		FileID:         fileID,
		FilePath:       filePath,
		LastSyncedHash: mf.ContentHash,
		LastSyncedAt:   time.Now().UTC(),
		Status:         types.SyncCompleted,
	})
}

// handleDeletion removes a file from the index unconditionally; if the
// delete itself fails, the orphaned sync record is marked failed with the
// error message. No immediate retry is queued; the periodic sweep picks
// failed records up again.
func (s *Service) handleDeletion(ctx context.Context, filePath string) {
	if err := s.idx.DeleteFile(ctx, filePath); err != nil && memerr.KindOf(err) != memerr.NotFound {
		s.log.Error("failed to delete file from index", "file_path", filePath, "error", err)
		statusCtx := context.WithoutCancel(ctx)
		if fileID, lookupErr := s.idx.FileIDFor(statusCtx, filePath); lookupErr == nil {
			_ = s.idx.UpsertSyncStatus(statusCtx, types.SyncRecord{
				FileID:       fileID,
				FilePath:     filePath,
				Status:       types.SyncFailed,
				ErrorMessage: err.Error(),
			})
		}
	}
	s.clearBackoff(filePath)
}

func (s *Service) recordFailure(ctx context.Context, filePath string, err error) {
	s.log.Error("reconcile failed", "file_path", filePath, "error", err)
	s.bumpBackoff(filePath)
	s.Enqueue(filePath)

	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "cancelled"
	}

	// Status writes must not race the canceled request context.
	statusCtx := context.WithoutCancel(ctx)
	if fileID, lookupErr := s.idx.FileIDFor(statusCtx, filePath); lookupErr == nil {
		rec := types.SyncRecord{
			FileID:       fileID,
			FilePath:     filePath,
			Status:       types.SyncFailed,
			ErrorMessage: msg,
		}
		if prev, prevErr := s.idx.SyncStatusFor(statusCtx, filePath); prevErr == nil {
			rec.LastSyncedHash, rec.LastSyncedAt = prev.LastSyncedHash, prev.LastSyncedAt
		}
		_ = s.idx.UpsertSyncStatus(statusCtx, rec)
	}
}

func (s *Service) backoffFor(filePath string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff[filePath]
}

func (s *Service) bumpBackoff(filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.backoff[filePath]
	if cur == 0 {
		cur = backoffBase
	} else {
		cur *= 2
	}
	if cur > backoffMax {
		cur = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(cur) / 4))
	s.backoff[filePath] = cur + jitter
}

func (s *Service) clearBackoff(filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backoff, filePath)
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
