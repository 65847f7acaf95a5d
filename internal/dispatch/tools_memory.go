package dispatch

import (
	"context"

	"mdmemory/internal/memerr"
)

// MemoryOp enumerates memory(op) operations.
type MemoryOp string

const (
	MemoryInitialize MemoryOp = "initialize"
	MemoryReset      MemoryOp = "reset"
)

// Memory executes op, a single operation rather than a batch, still
// wrapped in a one-element Result slice for envelope uniformity.
func (d *Dispatcher) Memory(ctx context.Context, op MemoryOp) []Result {
	switch op {
	case MemoryInitialize:
		if err := d.MemoryMgr.Initialize(ctx); err != nil {
			return []Result{fail(err)}
		}
		return []Result{ok(nil)}

	case MemoryReset:
		if err := d.MemoryMgr.Reset(ctx, d.TruncateIndexStore); err != nil {
			return []Result{fail(err)}
		}
		return []Result{ok(nil)}

	default:
		return []Result{fail(memerr.New(memerr.InvalidArgument, "unknown memory op %q", op))}
	}
}
