// Package store is the authoritative Index Store: Postgres with pgvector,
// holding memory_files, memory_chunks, and sync_status, using a pgx/v5 +
// pgvector-go vector store pattern with a relational schema.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"mdmemory/internal/config"
	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// Store owns the pgx connection pool and the memory schema.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig, dimension int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "parse DATABASE_URL")
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "connect to database")
	}

	s := &Store{pool: pool, dimension: dimension}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies the store is reachable, used for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "ping database")
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_files (
	id BIGSERIAL PRIMARY KEY,
	file_path TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	word_count INT NOT NULL DEFAULT 0,
	tags TEXT[] NOT NULL DEFAULT '{}',
	metadata JSONB NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS memory_chunks (
	id BIGSERIAL PRIMARY KEY,
	file_id BIGINT NOT NULL REFERENCES memory_files(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	header_path TEXT[] NOT NULL DEFAULT '{}',
	section_level INT NOT NULL DEFAULT 0,
	embedding vector(%[1]d),
	content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (file_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS sync_status (
	file_id BIGINT PRIMARY KEY REFERENCES memory_files(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	last_synced_hash TEXT NOT NULL DEFAULT '',
	last_synced_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS memory_chunks_fulltext_idx ON memory_chunks USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS memory_chunks_file_idx ON memory_chunks (file_id);
CREATE INDEX IF NOT EXISTS memory_files_category_idx ON memory_files (category);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND indexname = 'memory_chunks_embedding_idx'
	) THEN
		EXECUTE 'CREATE INDEX memory_chunks_embedding_idx ON memory_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
	END IF;
EXCEPTION WHEN OTHERS THEN
	-- IVFFlat needs rows to train on; skip until the table has enough data.
	NULL;
END
$$;
`, s.dimension)

	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "ensure schema")
	}
	return nil
}

// UpsertFile inserts or updates a file's row by file_path, returning its id.
func (s *Store) UpsertFile(ctx context.Context, mf *types.MemoryFile) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO memory_files (file_path, title, category, content_hash, word_count, tags, metadata, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (file_path) DO UPDATE SET
	title = EXCLUDED.title,
	category = EXCLUDED.category,
	content_hash = EXCLUDED.content_hash,
	word_count = EXCLUDED.word_count,
	tags = EXCLUDED.tags,
	metadata = EXCLUDED.metadata,
	description = EXCLUDED.description,
	updated_at = EXCLUDED.updated_at
RETURNING id`,
		mf.FilePath, mf.Title, string(mf.Category), mf.ContentHash, mf.WordCount,
		mf.Tags, metadataJSON(mf.Metadata), mf.Description, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, memerr.Wrap(memerr.StorageUnavailable, err, "upsert file %s", mf.FilePath)
	}
	return id, nil
}

// DeleteFile removes a file and cascades to its chunks and sync record.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memory_files WHERE file_path = $1`, filePath)
	if err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "delete file %s", filePath)
	}
	if tag.RowsAffected() == 0 {
		return memerr.New(memerr.NotFound, "file not found in index: %s", filePath)
	}
	return nil
}

// FileIDFor resolves a file_path to its row id.
func (s *Store) FileIDFor(ctx context.Context, filePath string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM memory_files WHERE file_path = $1`, filePath).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, memerr.New(memerr.NotFound, "file not found in index: %s", filePath)
		}
		return 0, memerr.Wrap(memerr.StorageUnavailable, err, "lookup file %s", filePath)
	}
	return id, nil
}

// ReplaceChunks deletes a file's existing chunks and inserts the new set in
// one transaction, so a reader never observes a half-replaced file.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, chunks []types.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memory_chunks WHERE file_id = $1`, fileID); err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "delete existing chunks")
	}

	for _, c := range chunks {
		var embedding interface{}
		if len(c.Embedding) > 0 {
			if len(c.Embedding) != s.dimension {
				return memerr.New(memerr.ProviderInvalid, "embedding dimension mismatch: expected %d got %d", s.dimension, len(c.Embedding))
			}
			embedding = pgvector.NewVector(c.Embedding)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO memory_chunks (file_id, chunk_index, content, content_hash, header_path, section_level, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			fileID, c.ChunkIndex, c.Content, c.ContentHash, c.HeaderPath, c.SectionLevel, embedding, time.Now().UTC(),
		); err != nil {
			return memerr.Wrap(memerr.StorageUnavailable, err, "insert chunk %d", c.ChunkIndex)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "commit chunk replacement")
	}
	return nil
}

// VectorSearch ranks chunks by cosine distance to embedding.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int, filters types.SearchFilters) ([]types.SearchHit, error) {
	if len(embedding) != s.dimension {
		return nil, memerr.New(memerr.ProviderInvalid, "query embedding dimension mismatch: expected %d got %d", s.dimension, len(embedding))
	}
	where, args := buildFilterClause(filters, 2)
	q := fmt.Sprintf(`
SELECT c.id, f.file_path, f.title, f.category, c.content, c.header_path,
       1 - (c.embedding <=> $1) / 2 AS score
FROM memory_chunks c
JOIN memory_files f ON f.id = c.file_id
WHERE c.embedding IS NOT NULL %s
ORDER BY c.embedding <=> $1
LIMIT %d`, where, limit)

	args = append([]interface{}{pgvector.NewVector(embedding)}, args...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "vector search")
	}
	defer rows.Close()
	return scanHits(rows)
}

// FulltextSearch ranks chunks by Postgres plainto_tsquery/ts_rank_cd.
func (s *Store) FulltextSearch(ctx context.Context, query string, limit int, filters types.SearchFilters) ([]types.SearchHit, error) {
	where, args := buildFilterClause(filters, 2)
	q := fmt.Sprintf(`
SELECT c.id, f.file_path, f.title, f.category, c.content, c.header_path,
       ts_rank_cd(c.content_tsv, plainto_tsquery('english', $1)) AS score
FROM memory_chunks c
JOIN memory_files f ON f.id = c.file_id
WHERE c.content_tsv @@ plainto_tsquery('english', $1) %s
ORDER BY score DESC
LIMIT %d`, where, limit)

	args = append([]interface{}{query}, args...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "fulltext search")
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows pgx.Rows) ([]types.SearchHit, error) {
	var hits []types.SearchHit
	for rows.Next() {
		var h types.SearchHit
		var category string
		if err := rows.Scan(&h.ChunkID, &h.FilePath, &h.Title, &category, &h.Content, &h.HeaderPath, &h.Score); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, err, "scan search row")
		}
		h.Category = types.Category(category)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "iterate search rows")
	}
	return hits, nil
}

// buildFilterClause renders an optional AND-joined WHERE extension for
// category/tags/file_path filters, with placeholders starting at startIdx.
func buildFilterClause(f types.SearchFilters, startIdx int) (string, []interface{}) {
	var clause string
	var args []interface{}
	idx := startIdx

	if len(f.Categories) > 0 {
		cats := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			cats[i] = string(c)
		}
		clause += fmt.Sprintf(" AND f.category = ANY($%d)", idx)
		args = append(args, cats)
		idx++
	}
	if len(f.Tags) > 0 {
		// Containment, not overlap: every requested tag must be present.
		clause += fmt.Sprintf(" AND f.tags @> $%d", idx)
		args = append(args, f.Tags)
		idx++
	}
	if f.FilePath != "" {
		clause += fmt.Sprintf(" AND f.file_path = $%d", idx)
		args = append(args, f.FilePath)
		idx++
	}
	return clause, args
}

func metadataJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// UpsertSyncStatus records a file's reconcile outcome.
func (s *Store) UpsertSyncStatus(ctx context.Context, rec types.SyncRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sync_status (file_id, file_path, last_synced_hash, last_synced_at, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (file_id) DO UPDATE SET
	file_path = EXCLUDED.file_path,
	last_synced_hash = EXCLUDED.last_synced_hash,
	last_synced_at = EXCLUDED.last_synced_at,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message`,
		rec.FileID, rec.FilePath, rec.LastSyncedHash, rec.LastSyncedAt, string(rec.Status), rec.ErrorMessage,
	)
	if err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "upsert sync status for %s", rec.FilePath)
	}
	return nil
}

// SyncStatusFor returns the reconcile record for a file_path, if any.
func (s *Store) SyncStatusFor(ctx context.Context, filePath string) (*types.SyncRecord, error) {
	var rec types.SyncRecord
	var status string
	err := s.pool.QueryRow(ctx, `
SELECT file_id, file_path, last_synced_hash, COALESCE(last_synced_at, now()), status, error_message
FROM sync_status WHERE file_path = $1`, filePath).
		Scan(&rec.FileID, &rec.FilePath, &rec.LastSyncedHash, &rec.LastSyncedAt, &status, &rec.ErrorMessage)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, memerr.New(memerr.NotFound, "no sync record for %s", filePath)
		}
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "lookup sync status for %s", filePath)
	}
	rec.Status = types.SyncStatus(status)
	return &rec, nil
}

// TruncateAll empties memory_files (cascading to memory_chunks and
// sync_status), used by Reset to clear the index store alongside the
// markdown tree.
func (s *Store) TruncateAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE memory_files CASCADE`); err != nil {
		return memerr.Wrap(memerr.StorageUnavailable, err, "truncate index store")
	}
	return nil
}

// PendingSyncFiles lists file_paths whose sync_status is pending or failed,
// for the periodic sweep.
func (s *Store) PendingSyncFiles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT file_path FROM sync_status WHERE status IN ('pending', 'failed')`)
	if err != nil {
		return nil, memerr.Wrap(memerr.StorageUnavailable, err, "list pending sync files")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, memerr.Wrap(memerr.StorageUnavailable, err, "scan pending sync row")
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
