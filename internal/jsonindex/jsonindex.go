// Package jsonindex manages files_index.json, the lightweight metadata
// mirror the service reads from in file-only mode and keeps eventually
// consistent with the File Store in indexed mode.
package jsonindex

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

const schemaVersion = "1"

// Index owns files_index.json, serializing all reads/writes behind a
// single mutex since the whole document is rewritten on every update.
type Index struct {
	path string
	mu   sync.Mutex
}

// New returns an Index backed by files_index.json under root.
func New(root string) *Index {
	return &Index{path: filepath.Join(root, types.JSONIndexFilePath)}
}

// Path returns the absolute path of the managed index file.
func (idx *Index) Path() string { return idx.path }

// Exists reports whether the index file is present on disk.
func (idx *Index) Exists() bool {
	_, err := os.Stat(idx.path)
	return err == nil
}

// Init writes an empty index document if one does not already exist.
func (idx *Index) Init() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, err := os.Stat(idx.path); err == nil {
		return nil
	}
	doc := types.JSONIndexDocument{Version: schemaVersion, LastUpdated: time.Now().UTC()}
	return idx.writeLocked(doc)
}

// Load reads and parses the index document. A missing or corrupt file is
// reported distinctly so the caller can trigger RebuildFrom.
func (idx *Index) Load() (*types.JSONIndexDocument, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.loadLocked()
}

func (idx *Index) loadLocked() (*types.JSONIndexDocument, error) {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, memerr.New(memerr.NotFound, "files_index.json not found")
		}
		return nil, memerr.Wrap(memerr.Internal, err, "read files_index.json")
	}
	var doc types.JSONIndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, memerr.Wrap(memerr.Internal, err, "parse files_index.json")
	}
	return &doc, nil
}

// Get returns the entry for filePath, if present.
func (idx *Index) Get(filePath string) (*types.JSONIndexEntry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	doc, err := idx.loadLocked()
	if err != nil {
		return nil, err
	}
	for _, e := range doc.Files {
		if e.FilePath == filePath {
			return &e, nil
		}
	}
	return nil, memerr.New(memerr.NotFound, "no index entry for %s", filePath)
}

// Upsert inserts or replaces the entry for entry.FilePath and rewrites the
// index atomically.
func (idx *Index) Upsert(entry types.JSONIndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, err := idx.loadOrEmptyLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range doc.Files {
		if e.FilePath == entry.FilePath {
			doc.Files[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Files = append(doc.Files, entry)
	}
	doc.LastUpdated = time.Now().UTC()
	sortEntries(doc.Files)
	return idx.writeLocked(*doc)
}

// Remove deletes the entry for filePath, if present, and rewrites the index.
func (idx *Index) Remove(filePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, err := idx.loadOrEmptyLocked()
	if err != nil {
		return err
	}
	out := doc.Files[:0]
	for _, e := range doc.Files {
		if e.FilePath != filePath {
			out = append(out, e)
		}
	}
	doc.Files = out
	doc.LastUpdated = time.Now().UTC()
	return idx.writeLocked(*doc)
}

func (idx *Index) loadOrEmptyLocked() (*types.JSONIndexDocument, error) {
	doc, err := idx.loadLocked()
	if err != nil {
		if memerr.KindOf(err) == memerr.NotFound {
			return &types.JSONIndexDocument{Version: schemaVersion}, nil
		}
		return nil, err
	}
	return doc, nil
}

func sortEntries(entries []types.JSONIndexEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].FilePath < entries[j].FilePath })
}

// RebuildFrom regenerates the entire index document from an authoritative
// set of entries, used on startup when the file is missing or fails to
// parse, and by a full reset.
func (idx *Index) RebuildFrom(entries []types.JSONIndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	sortEntries(entries)
	doc := types.JSONIndexDocument{
		Version:     schemaVersion,
		LastUpdated: time.Now().UTC(),
		Files:       entries,
	}
	return idx.writeLocked(doc)
}

// Validate reports whether the on-disk document is well-formed JSON
// matching the expected schema version.
func (idx *Index) Validate() error {
	doc, err := idx.Load()
	if err != nil {
		return err
	}
	if doc.Version != schemaVersion {
		return memerr.New(memerr.Internal, "files_index.json schema version %q unsupported", doc.Version)
	}
	return nil
}

func (idx *Index) writeLocked(doc types.JSONIndexDocument) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return memerr.Wrap(memerr.Internal, err, "encode files_index.json")
	}
	return atomicWrite(idx.path, buf.Bytes())
}

// atomicWrite mirrors filestore's write-temp/fsync/rename commit so readers
// never observe a partially written index.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerr.Wrap(memerr.Internal, err, "create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-index-*")
	if err != nil {
		return memerr.Wrap(memerr.Internal, err, "create temp index file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return memerr.Wrap(memerr.Internal, err, "write temp index file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return memerr.Wrap(memerr.Internal, err, "fsync temp index file")
	}
	if err := tmp.Close(); err != nil {
		return memerr.Wrap(memerr.Internal, err, "close temp index file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return memerr.Wrap(memerr.Internal, err, "rename index into place")
	}
	return nil
}
