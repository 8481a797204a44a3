// Package s3types provides shared type definitions for the s3lync module.
package s3types

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// Defaults applied when the corresponding option or environment variable is absent.
const (
	// DefaultMaxConcurrency is the default ceiling on concurrent transfers
	DefaultMaxConcurrency = 8

	// DefaultRetryMaxAttempts is the default number of attempts per I/O call
	DefaultRetryMaxAttempts = 3

	// DefaultRetryBaseDelay is the default backoff base delay
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRetryMultiplier is the default backoff growth factor
	DefaultRetryMultiplier = 2.0
)

// EntryKind distinguishes files from directories in a tree snapshot.
type EntryKind int

// Entry kinds
const (
	// KindFile is a regular file or object
	KindFile EntryKind = iota

	// KindDir is a directory, derived from file paths and never transferred
	KindDir
)

// String returns the kind name.
func (k EntryKind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// PathEntry describes one file (or implicit directory) on either side of a
// sync. Relative paths are slash-separated and case-sensitive; they are the
// join key between the local and remote snapshots.
type PathEntry struct {
	// RelPath is the path relative to the sync root
	RelPath string

	// Kind is file or directory
	Kind EntryKind

	// Size is the content size in bytes (zero for directories)
	Size int64

	// Tag is the integrity tag: a hex content digest for local files, the
	// store-provided ETag for remote objects. Remote tags are not always
	// comparable digests (multipart uploads carry a composite tag).
	Tag string

	// ModTime is informational only and never used for comparison
	ModTime time.Time

	// ScanErr records a failure to digest this file during the scan. The
	// entry's tag is untrustworthy, so planning always routes the path to
	// a transfer and the transfer attempt surfaces the failure as that
	// file's task.
	ScanErr error
}

// TreeSnapshot is a point-in-time enumeration of one side's files, keyed by
// relative path. Built fresh at the start of every sync call and read-only
// afterwards, so it is freely shared across worker goroutines.
type TreeSnapshot struct {
	entries map[string]*PathEntry
}

// NewTreeSnapshot creates an empty snapshot.
func NewTreeSnapshot() *TreeSnapshot {
	return &TreeSnapshot{entries: make(map[string]*PathEntry)}
}

// Add records an entry, replacing any previous entry at the same path.
func (s *TreeSnapshot) Add(e *PathEntry) {
	s.entries[e.RelPath] = e
}

// Lookup returns the entry at relPath, or nil.
func (s *TreeSnapshot) Lookup(relPath string) *PathEntry {
	return s.entries[relPath]
}

// Len returns the number of entries.
func (s *TreeSnapshot) Len() int {
	return len(s.entries)
}

// Paths returns the relative paths in sorted order.
func (s *TreeSnapshot) Paths() []string {
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Direction indicates which side is the source of truth for a sync.
type Direction int

// Sync directions
const (
	// DirectionUpload pushes the local tree to the remote prefix
	DirectionUpload Direction = iota

	// DirectionDownload pulls the remote prefix to the local tree
	DirectionDownload
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionDownload {
		return "download"
	}
	return "upload"
}

// Action is the planned disposition of one path.
type Action int

// Plan actions
const (
	// ActionTransfer moves the file from source to destination
	ActionTransfer Action = iota

	// ActionSkip leaves the file alone because both sides are equal
	ActionSkip

	// ActionDelete removes the destination entry (mirror mode only)
	ActionDelete
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionDelete:
		return "delete"
	default:
		return "transfer"
	}
}

// PlannedOp is one entry of a DiffPlan.
type PlannedOp struct {
	// RelPath is the path relative to the sync root
	RelPath string

	// Action is the planned disposition
	Action Action

	// Size is the source-side size for transfers, destination-side for deletes
	Size int64

	// Reason records why the planner chose this action
	Reason string
}

// DiffPlan is the pure output of the diff phase: three disjoint path sets
// that together partition the filtered union of both snapshots' keys.
// Deletes is populated only in mirror mode.
type DiffPlan struct {
	// Direction the plan will be executed in
	Direction Direction

	// Transfers are paths that differ or are missing at the destination
	Transfers []PlannedOp

	// Skips are paths equal at both ends
	Skips []PlannedOp

	// Deletes are destination paths absent from the source (mirror only)
	Deletes []PlannedOp
}

// TotalBytes returns the sum of transfer sizes, used for overall progress.
func (p *DiffPlan) TotalBytes() int64 {
	var total int64
	for _, op := range p.Transfers {
		total += op.Size
	}
	return total
}

// IsNoop reports whether the plan has no work to execute.
func (p *DiffPlan) IsNoop() bool {
	return len(p.Transfers) == 0 && len(p.Deletes) == 0
}

// Phase is the facade's operation state. One sync call moves
// Idle → Scanning → Diffing → Transferring → (Deleting) → Done or Failed.
type Phase int32

// Operation phases
const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseDiffing
	PhaseTransferring
	PhaseDeleting
	PhaseDone
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseScanning:
		return "scanning"
	case PhaseDiffing:
		return "diffing"
	case PhaseTransferring:
		return "transferring"
	case PhaseDeleting:
		return "deleting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations can provide real-time progress updates during uploads and downloads.
type ProgressTracker interface {
	// Update is called periodically with transfer progress
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	// Direction the sync ran in
	Direction Direction

	// FilesTransferred is the number of files moved
	FilesTransferred int

	// FilesSkipped is the number of files left alone (unchanged)
	FilesSkipped int

	// FilesDeleted is the number of destination entries removed (mirror mode)
	FilesDeleted int

	// FilesFailed is the number of paths whose transfer or delete failed
	FilesFailed int

	// BytesTransferred is the total bytes moved
	BytesTransferred int64

	// Plan is the computed plan; always set so callers can inspect dry runs
	Plan *DiffPlan

	// Duration is how long the operation took
	Duration time.Duration
}

// Configuration types for functional options

// ClientConfig holds configuration for the s3lync client.
type ClientConfig struct {
	Region           string
	Endpoint         string
	ForcePathStyle   bool
	CustomAWSConfig  *aws.Config
	CustomHTTPClient *http.Client
	Logger           *slog.Logger
	Filesystem       fs.Filesystem // Filesystem abstraction for local file operations
}

// ObjectConfig holds per-object configuration via functional options.
type ObjectConfig struct {
	// LocalPath overrides the default cache-directory mapping
	LocalPath string

	// ExcludePatterns replaces the default exclude set entirely when
	// ExcludeSet is true (even with an empty slice)
	ExcludePatterns []string
	ExcludeSet      bool
}

// SyncConfig holds per-operation configuration via functional options.
type SyncConfig struct {
	// CheckHash enables digest comparison and post-transfer verification
	CheckHash bool

	// Mirror deletes destination entries absent from the source
	Mirror bool

	// Excludes are appended to the object's active exclude set for this call
	Excludes []string

	// DryRun computes the plan without executing it
	DryRun bool

	// AssumeMultipartInSync treats existence plus equal size as in-sync when
	// the remote tag is not a comparable digest. When false such entries are
	// always transferred.
	AssumeMultipartInSync bool

	// MaxConcurrency caps concurrent transfer tasks
	MaxConcurrency int

	// RetryMaxAttempts caps attempts per I/O call
	RetryMaxAttempts int

	// RetryBaseDelay is the backoff base delay
	RetryBaseDelay time.Duration

	// RetryMultiplier is the backoff growth factor
	RetryMultiplier float64

	// Tracker receives overall progress (files and bytes across the plan)
	Tracker ProgressTracker

	// FileTracker, when set, is invoked per transfer to obtain a per-file tracker
	FileTracker func(relPath string, size int64) ProgressTracker
}

// Option is a functional option for configuring the s3lync client.
type (
	Option func(*ClientConfig)
	// ObjectOption is a functional option for configuring a single S3Object.
	ObjectOption func(*ObjectConfig)
	// SyncOption is a functional option for configuring one sync operation.
	SyncOption func(*SyncConfig)
)
