package dispatch

import (
	"context"

	"mdmemory/internal/filestore"
	"mdmemory/internal/mdsection"
	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// ListKind enumerates list(requests) variants.
type ListKind string

const (
	ListFiles    ListKind = "files"
	ListSections ListKind = "sections"
)

// ListRequest is one list() batch item; FilePath only applies to
// ListSections.
type ListRequest struct {
	Kind     ListKind
	FilePath string
}

// ListFilesValue is the payload of a files listing.
type ListFilesValue struct {
	Total int                                        `json:"total"`
	Flat  []filestore.ListedFile                    `json:"flat"`
	Tree  map[types.Category][]filestore.ListedFile `json:"tree"`
}

// ListSectionsValue is the payload of a sections listing.
type ListSectionsValue struct {
	FilePath string              `json:"file_path"`
	Outline  []mdsection.Heading `json:"outline"`
}

// List executes each request with bounded concurrency.
func (d *Dispatcher) List(ctx context.Context, requests []ListRequest) []Result {
	return runBatch(ctx, "list", requests, func(ctx context.Context, req ListRequest) Result {
		switch req.Kind {
		case ListFiles:
			flat, tree, err := d.FileStore.List()
			if err != nil {
				return fail(err)
			}
			return ok(ListFilesValue{Total: len(flat), Flat: flat, Tree: tree})

		case ListSections:
			_, content, err := d.MemoryMgr.Read(req.FilePath)
			if err != nil {
				return fail(err)
			}
			return ok(ListSectionsValue{FilePath: req.FilePath, Outline: mdsection.Outline(string(content))})

		default:
			return fail(memerr.New(memerr.InvalidArgument, "unknown list kind %q", req.Kind))
		}
	})
}
