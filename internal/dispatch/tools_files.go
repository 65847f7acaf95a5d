package dispatch

import (
	"context"

	"mdmemory/internal/filestore"
	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// FileOp enumerates files(op, items) operations.
type FileOp string

const (
	FileCreate FileOp = "create"
	FileRead   FileOp = "read"
	FileUpdate FileOp = "update"
	FileDelete FileOp = "delete"
	FileMove   FileOp = "move"
	FileCopy   FileOp = "copy"
	FileRename FileOp = "rename"
	FileList   FileOp = "list"
)

// FileItem is one files() batch item; which fields are required depends
// on Op.
type FileItem struct {
	FilePath    string
	Category    types.Category
	Title       string
	Content     string
	UpdateMode  filestore.UpdateMode
	NewCategory types.Category
	NewTitle    string
}

// FileResultValue is the payload of a successful files() item.
type FileResultValue struct {
	File        *types.MemoryFile                         `json:"file,omitempty"`
	Flat        []filestore.ListedFile                    `json:"flat,omitempty"`
	Tree        map[types.Category][]filestore.ListedFile `json:"tree,omitempty"`
	SyncPending bool                                      `json:"sync_pending,omitempty"`
}

// Files executes op over items with bounded concurrency.
func (d *Dispatcher) Files(ctx context.Context, op FileOp, items []FileItem) []Result {
	return runBatch(ctx, "files", items, func(ctx context.Context, item FileItem) Result {
		return d.fileOne(op, item)
	})
}

func (d *Dispatcher) fileOne(op FileOp, item FileItem) Result {
	switch op {
	case FileCreate:
		mf, err := d.FileStore.Create(item.Category, item.Title, item.Content)
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})

	case FileRead:
		// Read via the Memory Manager, not the File Store: tags and
		// metadata live in the JSON Index, and only the Manager overlays
		// them onto the file-derived record.
		mf, content, err := d.MemoryMgr.Read(item.FilePath)
		if err != nil {
			return fail(err)
		}
		out := *mf
		out.Metadata = cloneMeta(out.Metadata)
		return ok(struct {
			*types.MemoryFile
			Content string `json:"content"`
		}{&out, string(content)})

	case FileUpdate:
		mode := item.UpdateMode
		if mode == "" {
			mode = filestore.UpdateReplace
		}
		mf, err := d.FileStore.Update(item.FilePath, mode, item.Content)
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})

	case FileDelete:
		if err := d.FileStore.Delete(item.FilePath); err != nil {
			return fail(err)
		}
		return ok(FileResultValue{SyncPending: d.Sync != nil})

	case FileMove:
		mf, err := d.FileStore.Move(item.FilePath, item.NewCategory)
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})

	case FileCopy:
		mf, err := d.FileStore.Copy(item.FilePath, item.NewCategory, item.NewTitle)
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})

	case FileRename:
		mf, err := d.FileStore.Rename(item.FilePath, item.NewTitle)
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})

	case FileList:
		flat, tree, err := d.FileStore.List()
		if err != nil {
			return fail(err)
		}
		return ok(FileResultValue{Flat: flat, Tree: tree})

	default:
		return fail(memerr.New(memerr.InvalidArgument, "unknown files op %q", op))
	}
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
