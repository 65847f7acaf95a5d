package dispatch

import (
	"context"
	"sort"

	"mdmemory/internal/memerr"
	"mdmemory/internal/types"
)

// TagOp enumerates tags(op, items) operations.
type TagOp string

const (
	TagAdd    TagOp = "add"
	TagRemove TagOp = "remove"
	TagGet    TagOp = "get"
)

// TagItem is one tags() batch item.
type TagItem struct {
	FilePath string
	Tags     []string
}

// TagResultValue is the payload of a successful tags() item.
type TagResultValue struct {
	Tags []string `json:"tags"`
}

// Tags executes op over items with bounded concurrency. Tags are a set:
// add is idempotent, remove of an absent tag is a no-op success.
func (d *Dispatcher) Tags(ctx context.Context, op TagOp, items []TagItem) []Result {
	return runBatch(ctx, "tags", items, func(ctx context.Context, item TagItem) Result {
		return d.tagOne(op, item)
	})
}

func (d *Dispatcher) tagOne(op TagOp, item TagItem) Result {
	entry, err := d.currentEntry(item.FilePath)
	if err != nil {
		return fail(err)
	}

	switch op {
	case TagGet:
		return ok(TagResultValue{Tags: sortedCopy(entry.Tags)})

	case TagAdd:
		next := unionSet(entry.Tags, item.Tags)
		if err := d.setTags(item.FilePath, *entry, next); err != nil {
			return fail(err)
		}
		return ok(TagResultValue{Tags: next})

	case TagRemove:
		next := subtractSet(entry.Tags, item.Tags)
		if err := d.setTags(item.FilePath, *entry, next); err != nil {
			return fail(err)
		}
		return ok(TagResultValue{Tags: next})

	default:
		return fail(memerr.New(memerr.InvalidArgument, "unknown tags op %q", op))
	}
}

// currentEntry resolves a file_path's JSON Index entry, falling back to a
// freshly derived entry (empty tags) if the index hasn't caught up yet.
func (d *Dispatcher) currentEntry(filePath string) (*types.JSONIndexEntry, error) {
	entry, err := d.Index.Get(filePath)
	if err == nil {
		return entry, nil
	}
	if memerr.KindOf(err) != memerr.NotFound {
		return nil, err
	}
	mf, _, readErr := d.FileStore.Read(filePath)
	if readErr != nil {
		return nil, readErr
	}
	e := toIndexEntryWithTags(mf, nil)
	return &e, nil
}

// setTags persists the new tag set to the JSON Index (and, once the next
// reconcile runs, the index store). The File Store itself does not carry
// tags in file bytes, so this only touches metadata paths.
func (d *Dispatcher) setTags(filePath string, entry types.JSONIndexEntry, tags []string) error {
	entry.Tags = tags
	if err := d.Index.Upsert(entry); err != nil {
		return err
	}
	if d.Sync != nil {
		d.Sync.Enqueue(filePath)
	}
	return nil
}

func unionSet(existing, add []string) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, t := range existing {
		set[t] = struct{}{}
	}
	for _, t := range add {
		set[t] = struct{}{}
	}
	return sortedSet(set)
}

func subtractSet(existing, remove []string) []string {
	removeSet := make(map[string]struct{}, len(remove))
	for _, t := range remove {
		removeSet[t] = struct{}{}
	}
	set := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		if _, gone := removeSet[t]; !gone {
			set[t] = struct{}{}
		}
	}
	return sortedSet(set)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(tags []string) []string {
	out := append([]string(nil), tags...)
	sort.Strings(out)
	return out
}

func toIndexEntryWithTags(mf *types.MemoryFile, tags []string) types.JSONIndexEntry {
	return types.JSONIndexEntry{
		FilePath:    mf.FilePath,
		Title:       mf.Title,
		Category:    mf.Category,
		Description: mf.Description,
		Tags:        tags,
		Metadata:    mf.Metadata,
		CreatedAt:   mf.CreatedAt,
		UpdatedAt:   mf.UpdatedAt,
		WordCount:   mf.WordCount,
	}
}
