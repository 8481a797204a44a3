// Package executor runs a diff plan under bounded concurrency.
// This includes scheduling transfer tasks, batching deletions, and
// aggregating per-path failures.
//
// The executor completes every task it can: a path that exhausts its
// retries is recorded as failed without cancelling sibling tasks.
package executor

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/sync/retry"
	"github.com/bestend/s3lync/s3types"
)

// TransferFunc moves one file between the two sides. The context it
// receives is detached from cancellation so an in-flight call always
// finishes its current I/O; cancellation is honored between tasks and
// between retry attempts instead.
type TransferFunc func(ctx context.Context, op s3types.PlannedOp, tracker s3types.ProgressTracker) error

// DeleteFunc removes a batch of destination entries by relative path.
type DeleteFunc func(ctx context.Context, relPaths []string) error

// Callbacks supplies the I/O the executor schedules. The executor owns
// ordering, concurrency, retries and aggregation; the engine owns the
// actual transfers.
type Callbacks struct {
	// Transfer moves one planned file
	Transfer TransferFunc

	// Delete removes up to DeleteBatchSize destination entries
	Delete DeleteFunc

	// DeleteBatchSize is the maximum batch passed to Delete (1 for
	// per-file local deletes, up to 1000 for remote batch deletes)
	DeleteBatchSize int

	// OnDeleting, when set, is invoked once before the post-transfer
	// deletion pass starts
	OnDeleting func()
}

// Executor schedules a plan's work under a concurrency ceiling.
type Executor struct {
	maxConcurrency int
	retrier        *retry.Policy
	logger         *slog.Logger

	tracker     s3types.ProgressTracker
	fileTracker func(relPath string, size int64) s3types.ProgressTracker
}

// New creates an executor. A non-positive maxConcurrency falls back to
// the default ceiling.
func New(maxConcurrency int, retrier *retry.Policy, logger *slog.Logger) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = s3types.DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		maxConcurrency: maxConcurrency,
		retrier:        retrier,
		logger:         logger,
	}
}

// WithProgressTracker sets the overall progress tracker.
func (e *Executor) WithProgressTracker(tracker s3types.ProgressTracker) *Executor {
	e.tracker = tracker
	return e
}

// WithFileTracker sets the per-file tracker factory.
func (e *Executor) WithFileTracker(factory func(relPath string, size int64) s3types.ProgressTracker) *Executor {
	e.fileTracker = factory
	return e
}

// Execute runs the plan to completion. Deletes that conflict with a
// transfer path (same path, or one is a directory prefix of the other)
// run before the transfers; all remaining deletes run after every
// transfer has settled, so a delete never races a transfer of the same
// path. The returned result reflects partial success; failures are
// aggregated into a single SyncError after all tasks settle.
func (e *Executor) Execute(ctx context.Context, plan *s3types.DiffPlan, cb Callbacks) (*s3types.SyncResult, error) {
	start := time.Now()

	state := &runState{
		totalBytes: plan.TotalBytes(),
	}

	preDeletes, postDeletes := splitDeletes(plan)

	if len(preDeletes) > 0 {
		e.runDeletes(ctx, preDeletes, cb, state)
	}

	e.runTransfers(ctx, plan.Direction, plan.Transfers, cb, state)

	if len(postDeletes) > 0 && ctx.Err() == nil {
		if cb.OnDeleting != nil {
			cb.OnDeleting()
		}
		e.runDeletes(ctx, postDeletes, cb, state)
	}

	result := &s3types.SyncResult{
		Direction:        plan.Direction,
		FilesTransferred: int(state.filesDone.Load()),
		FilesSkipped:     len(plan.Skips),
		FilesDeleted:     int(state.filesDeleted.Load()),
		FilesFailed:      len(state.failed),
		BytesTransferred: state.bytesDone.Load(),
		Plan:             plan,
		Duration:         time.Since(start),
	}

	if len(state.failed) > 0 {
		sort.Slice(state.failed, func(i, j int) bool {
			return state.failed[i].RelPath < state.failed[j].RelPath
		})
		return result, &errors.SyncError{Failed: state.failed}
	}
	if err := ctx.Err(); err != nil {
		return result, errors.NewError("execute", err)
	}
	return result, nil
}

// runState is the mutable state shared across worker goroutines.
type runState struct {
	filesDone    atomic.Int64
	filesDeleted atomic.Int64
	bytesDone    atomic.Int64
	totalBytes   int64

	mu     sync.Mutex
	failed []*errors.TransferError
}

// recordFailure appends a failed path under the lock.
func (s *runState) recordFailure(op string, relPath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, errors.NewTransferError(op, relPath, err))
}

// runTransfers executes the transfer set with a semaphore channel bounding
// concurrency. Scheduling stops when ctx is cancelled; tasks already
// running drain to completion.
func (e *Executor) runTransfers(
	ctx context.Context,
	direction s3types.Direction,
	transfers []s3types.PlannedOp,
	cb Callbacks,
	state *runState,
) {
	if len(transfers) == 0 {
		return
	}

	semaphore := make(chan struct{}, e.maxConcurrency)
	var wg sync.WaitGroup

	// Per-attempt I/O must finish even after cancellation: no mid-write
	// truncation. Cancellation is observed before each task start and
	// between retry attempts.
	ioCtx := context.WithoutCancel(ctx)

	// Serializes overall-tracker callbacks so the counter is never
	// updated concurrently
	var trackerMu sync.Mutex

	for _, op := range transfers {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		if ctx.Err() != nil {
			<-semaphore
			break
		}

		wg.Add(1)
		go func(op s3types.PlannedOp) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			var fileTracker s3types.ProgressTracker
			if e.fileTracker != nil {
				fileTracker = e.fileTracker(op.RelPath, op.Size)
			}

			err := e.retrier.Do(ctx, func(context.Context) error {
				return cb.Transfer(ioCtx, op, fileTracker)
			})
			if err != nil {
				e.logger.Debug("transfer failed", "path", op.RelPath, "error", err)
				state.recordFailure(direction.String(), op.RelPath, err)
				if fileTracker != nil {
					fileTracker.Error(err)
				}
				return
			}

			files := state.filesDone.Add(1)
			bytes := state.bytesDone.Add(op.Size)
			if fileTracker != nil {
				fileTracker.Complete()
			}
			if e.tracker != nil {
				// Reading the counter under the lock keeps the reported
				// byte count monotonic across workers
				trackerMu.Lock()
				e.tracker.Update(state.bytesDone.Load(), state.totalBytes)
				trackerMu.Unlock()
			}
			e.logger.Debug("transfer complete", "path", op.RelPath, "files", files, "bytes", bytes)
		}(op)
	}

	wg.Wait()
}

// runDeletes removes destination entries in batches, retrying each batch
// as one unit. A failed batch records every path in it as failed.
func (e *Executor) runDeletes(ctx context.Context, deletes []s3types.PlannedOp, cb Callbacks, state *runState) {
	batchSize := cb.DeleteBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	ioCtx := context.WithoutCancel(ctx)

	for i := 0; i < len(deletes); i += batchSize {
		if ctx.Err() != nil {
			return
		}

		end := i + batchSize
		if end > len(deletes) {
			end = len(deletes)
		}

		relPaths := make([]string, 0, end-i)
		for _, op := range deletes[i:end] {
			relPaths = append(relPaths, op.RelPath)
		}

		err := e.retrier.Do(ctx, func(context.Context) error {
			return cb.Delete(ioCtx, relPaths)
		})
		if err != nil {
			for _, relPath := range relPaths {
				state.recordFailure("delete", relPath, err)
			}
			continue
		}
		state.filesDeleted.Add(int64(len(relPaths)))
	}
}

// splitDeletes separates deletes that must precede the transfers from the
// rest. A delete conflicts with a transfer when the two paths are equal or
// one is a directory prefix of the other (kind mismatch in mirror mode:
// the stale destination entry has to go before the source entry lands).
func splitDeletes(plan *s3types.DiffPlan) (pre, post []s3types.PlannedOp) {
	if len(plan.Deletes) == 0 {
		return nil, nil
	}

	for _, del := range plan.Deletes {
		conflicting := false
		for _, tr := range plan.Transfers {
			if pathsConflict(del.RelPath, tr.RelPath) {
				conflicting = true
				break
			}
		}
		if conflicting {
			pre = append(pre, del)
		} else {
			post = append(post, del)
		}
	}
	return pre, post
}

// pathsConflict reports whether two relative paths occupy overlapping
// filesystem locations. The empty path is the root and overlaps everything.
func pathsConflict(a, b string) bool {
	if a == b || a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
