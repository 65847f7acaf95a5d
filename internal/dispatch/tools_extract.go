package dispatch

import (
	"context"

	"mdmemory/internal/mdsection"
)

// ExtractRequest is one extract() batch item: the body of a named
// section, located the same way as edit(section).
type ExtractRequest struct {
	FilePath      string
	SectionHeader string
}

// ExtractResultValue is the payload of a successful extract() item.
type ExtractResultValue struct {
	Content string `json:"content"`
}

// Extract executes each request with bounded concurrency.
func (d *Dispatcher) Extract(ctx context.Context, requests []ExtractRequest) []Result {
	return runBatch(ctx, "extract", requests, func(ctx context.Context, req ExtractRequest) Result {
		_, content, err := d.MemoryMgr.Read(req.FilePath)
		if err != nil {
			return fail(err)
		}
		body, err := mdsection.Body(string(content), req.SectionHeader)
		if err != nil {
			return fail(err)
		}
		return ok(ExtractResultValue{Content: body})
	})
}
