// Package types holds the data model shared across the memory service:
// the markdown file and chunk records, the JSON Index document, and the
// search request/response shapes every component speaks in terms of.
package types

import "time"

// Category is a markdown file's top-level folder under the memory root.
// CategoryMain is a sentinel: main.md lives at the root, not under a
// category directory.
type Category string

const (
	CategoryMain         Category = "main"
	CategoryProject      Category = "project"
	CategoryConcept      Category = "concept"
	CategoryConversation Category = "conversation"
	CategoryPreference   Category = "preference"
	CategoryOther        Category = "other"
)

// ValidCategories enumerates every Category a file can be filed under,
// including CategoryMain (EnsureRoot skips creating a directory for it).
var ValidCategories = []Category{
	CategoryMain,
	CategoryProject,
	CategoryConcept,
	CategoryConversation,
	CategoryPreference,
	CategoryOther,
}

// IsValid reports whether c is one of ValidCategories.
func (c Category) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// MainFilePath is main.md's file_path, the one file outside every
// category directory and exempt from Reset.
const MainFilePath = "main.md"

// JSONIndexFilePath is files_index.json's path relative to the memory root.
const JSONIndexFilePath = "files_index.json"

// MemoryFile is a markdown file's parsed metadata, derived fresh from its
// content on every read rather than stored separately.
type MemoryFile struct {
	FilePath    string
	Slug        string
	Title       string
	Category    Category
	ContentHash string
	WordCount   int
	Tags        []string
	Metadata    map[string]string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChangeEvent is published by the File Store on every committed write or
// delete, driving the JSON Index and Sync Service.
type ChangeEvent struct {
	FilePath string
	OldHash  string
	NewHash  string
	Deleted  bool
}

// Chunk is one header-aware slice of a file's content as persisted in the
// index store, embedding populated only when an embedding provider is
// configured.
type Chunk struct {
	ChunkIndex   int
	Content      string
	ContentHash  string
	HeaderPath   []string
	SectionLevel int
	Embedding    []float32
}

// SyncStatus tracks a file's reconciliation state in the index store.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncSyncing   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncRecord is one file's sync_status row: the last hash successfully
// reconciled and, on failure, the error that blocked it.
type SyncRecord struct {
	FileID         int64
	FilePath       string
	LastSyncedHash string
	LastSyncedAt   time.Time
	Status         SyncStatus
	ErrorMessage   string
}

// JSONIndexEntry is one file's metadata mirror in files_index.json, read
// directly in file-only mode and kept eventually consistent with the File
// Store in indexed mode.
type JSONIndexEntry struct {
	FilePath    string            `json:"file_path"`
	Title       string            `json:"title"`
	Category    Category          `json:"category"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	WordCount   int               `json:"word_count"`
}

// JSONIndexDocument is the full contents of files_index.json.
type JSONIndexDocument struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	Files       []JSONIndexEntry `json:"files"`
}

// SearchMode selects which ranking signal(s) a search query uses.
type SearchMode string

const (
	SearchVector   SearchMode = "vector"
	SearchFulltext SearchMode = "fulltext"
	SearchHybrid   SearchMode = "hybrid"
)

// SearchFilters narrows a search to a subset of the index, AND-combined
// when more than one is set.
type SearchFilters struct {
	Categories []Category
	Tags       []string
	FilePath   string
}

// SearchHit is one ranked chunk returned by a search query.
type SearchHit struct {
	ChunkID    int64
	FilePath   string
	Title      string
	Category   Category
	Content    string
	HeaderPath []string
	Score      float64
}

// SearchResult is a search query's full response. Degraded is set when
// hybrid search had to fall back to fulltext-only because the embedding
// provider was unavailable; Warning explains why.
type SearchResult struct {
	Hits     []SearchHit
	Degraded bool
	Warning  string
}
