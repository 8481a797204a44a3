// Package executor runs a diff plan under bounded concurrency.
// This includes scheduling transfer tasks, batching deletions, and
// aggregating per-path failures.
//
// The executor completes every task it can: a path that exhausts its
// retries is recorded as failed without cancelling sibling tasks.
package executor
