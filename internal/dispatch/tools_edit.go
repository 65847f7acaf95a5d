package dispatch

import (
	"context"
	"regexp"
	"strings"

	"mdmemory/internal/mdsection"
	"mdmemory/internal/memerr"
)

// EditType enumerates edit(operations) variants.
type EditType string

const (
	EditSection     EditType = "section"
	EditFindReplace EditType = "find_replace"
	EditInsert      EditType = "insert"
)

// EditOperation is one edit() batch item; which fields apply depends on
// EditType.
type EditOperation struct {
	FilePath string
	EditType EditType

	// section
	SectionHeader string
	SectionMode   mdsection.Mode

	// find_replace
	Find            string
	Replace         string
	Regex           bool
	MaxReplacements int

	// insert
	Position mdsection.InsertPosition
	Marker   string
	Text     string
}

// Edit executes each operation with bounded concurrency; concurrent
// edits to the same file are naturally serialized by the File Store's
// per-path lock.
func (d *Dispatcher) Edit(ctx context.Context, ops []EditOperation) []Result {
	return runBatch(ctx, "edit", ops, func(ctx context.Context, op EditOperation) Result {
		return d.editOne(op)
	})
}

func (d *Dispatcher) editOne(op EditOperation) Result {
	switch op.EditType {
	case EditSection:
		mode := op.SectionMode
		if mode == "" {
			mode = mdsection.Replace
		}
		return d.applyTransform(op.FilePath, func(content string) (string, error) {
			return mdsection.Mutate(content, op.SectionHeader, mode, op.Text)
		})

	case EditFindReplace:
		if op.Find == "" {
			return fail(memerr.New(memerr.InvalidArgument, "find must not be empty"))
		}
		return d.applyTransform(op.FilePath, func(content string) (string, error) {
			return findReplace(content, op)
		})

	case EditInsert:
		return d.applyTransform(op.FilePath, func(content string) (string, error) {
			return mdsection.Insert(content, op.Position, op.Marker, op.Text)
		})

	default:
		return fail(memerr.New(memerr.InvalidArgument, "unknown edit_type %q", op.EditType))
	}
}

func findReplace(content string, op EditOperation) (string, error) {
	limit := op.MaxReplacements
	if limit == 0 {
		limit = -1
	}

	if op.Regex {
		re, err := regexp.Compile(op.Find)
		if err != nil {
			return "", memerr.Wrap(memerr.InvalidArgument, err, "invalid regex %q", op.Find)
		}
		if limit < 0 {
			return re.ReplaceAllString(content, op.Replace), nil
		}
		remaining := limit
		return re.ReplaceAllStringFunc(content, func(m string) string {
			if remaining <= 0 {
				return m
			}
			remaining--
			return re.ReplaceAllString(m, op.Replace)
		}), nil
	}

	if limit < 0 {
		return strings.ReplaceAll(content, op.Find, op.Replace), nil
	}
	return strings.Replace(content, op.Find, op.Replace, limit), nil
}

// applyTransform atomically reads, transforms, and rewrites a file,
// propagating fn's errors (NotFound for a missing section/marker)
// without modifying the file.
func (d *Dispatcher) applyTransform(filePath string, fn func(string) (string, error)) Result {
	mf, err := d.FileStore.Mutate(filePath, fn)
	if err != nil {
		return fail(err)
	}
	return ok(FileResultValue{File: mf, SyncPending: d.Sync != nil})
}
