// Package engine composes the sync pipeline: snapshot both sides, compute
// the diff plan, execute it. One Manager is bound to a bucket/key pair and
// a local path; every operation moves through the phases
// Idle → Scanning → Diffing → Transferring → (Deleting) → Done or Failed.
package engine

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3sdktypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"golang.org/x/sync/errgroup"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/pool"
	"github.com/bestend/s3lync/internal/s3api"
	"github.com/bestend/s3lync/internal/sync/exclude"
	"github.com/bestend/s3lync/internal/sync/executor"
	"github.com/bestend/s3lync/internal/sync/hasher"
	"github.com/bestend/s3lync/internal/sync/planner"
	"github.com/bestend/s3lync/internal/sync/retry"
	"github.com/bestend/s3lync/internal/sync/scanner"
	"github.com/bestend/s3lync/s3types"
)

// defaultContentType is used when content sniffing and extension lookup
// both come up empty.
const defaultContentType = "application/octet-stream"

// remoteDeleteBatchSize is the DeleteObjects request ceiling.
const remoteDeleteBatchSize = 1000

// Config binds a Manager to one local path and one remote location.
type Config struct {
	S3         s3api.S3API
	Filesystem fs.Filesystem
	Logger     *slog.Logger

	Bucket    string
	Key       string
	LocalPath string

	// BaseFilter is the construction-time exclude set (defaults, or the
	// replacement supplied when the object was built)
	BaseFilter *exclude.Filter
}

// Manager runs sync operations for one local-path/remote-location binding.
type Manager struct {
	s3Client   s3api.S3API
	filesystem fs.Filesystem
	logger     *slog.Logger

	bucket    string
	key       string
	localPath string

	baseFilter *exclude.Filter
	scanner    *scanner.Scanner
	buffers    *pool.BufferPool

	phase atomic.Int32
}

// New creates a Manager from the given binding.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		s3Client:   cfg.S3,
		filesystem: cfg.Filesystem,
		logger:     logger,
		bucket:     cfg.Bucket,
		key:        cfg.Key,
		localPath:  cfg.LocalPath,
		baseFilter: cfg.BaseFilter,
		scanner:    scanner.New(cfg.S3, cfg.Filesystem, logger),
		buffers:    pool.NewBufferPool(),
	}
}

// Phase returns the state of the current (or last) operation.
func (m *Manager) Phase() s3types.Phase {
	return s3types.Phase(m.phase.Load())
}

func (m *Manager) setPhase(p s3types.Phase) {
	m.phase.Store(int32(p))
}

// Upload pushes the local tree to the remote location. The local side is
// the source of truth; with Mirror set, extra remote entries are deleted.
func (m *Manager) Upload(ctx context.Context, cfg *s3types.SyncConfig) (*s3types.SyncResult, error) {
	exists, err := m.filesystem.Exists(m.localPath)
	if err != nil {
		return nil, errors.NewError("upload", err).WithKey(m.localPath)
	}
	if !exists {
		return nil, errors.NewError("upload", errors.ErrInvalidInput).
			WithMessage("local path does not exist: " + m.localPath)
	}
	return m.run(ctx, s3types.DirectionUpload, cfg)
}

// Download pulls the remote location into the local tree. The remote side
// is the source of truth; with Mirror set, extra local entries are deleted.
func (m *Manager) Download(ctx context.Context, cfg *s3types.SyncConfig) (*s3types.SyncResult, error) {
	return m.run(ctx, s3types.DirectionDownload, cfg)
}

// run drives one operation through the full phase sequence.
func (m *Manager) run(ctx context.Context, direction s3types.Direction, cfg *s3types.SyncConfig) (*s3types.SyncResult, error) {
	start := time.Now()

	filter, err := m.baseFilter.Append(cfg.Excludes)
	if err != nil {
		m.setPhase(s3types.PhaseFailed)
		return nil, err
	}

	m.setPhase(s3types.PhaseScanning)
	local, remote, err := m.buildSnapshots(ctx, filter, cfg.CheckHash)
	if err != nil {
		m.setPhase(s3types.PhaseFailed)
		return nil, err
	}

	source, dest := local, remote
	if direction == s3types.DirectionDownload {
		source, dest = remote, local
	}

	m.setPhase(s3types.PhaseDiffing)
	pl := planner.New(cfg.CheckHash, cfg.AssumeMultipartInSync)
	plan, err := pl.Plan(source, dest, direction, cfg.Mirror)
	if err != nil {
		m.setPhase(s3types.PhaseFailed)
		return nil, err
	}

	m.logger.Info("sync plan computed",
		"direction", direction.String(),
		"transfers", len(plan.Transfers),
		"skips", len(plan.Skips),
		"deletes", len(plan.Deletes))

	if cfg.DryRun {
		m.setPhase(s3types.PhaseDone)
		return &s3types.SyncResult{
			Direction:    direction,
			FilesSkipped: len(plan.Skips),
			Plan:         plan,
			Duration:     time.Since(start),
		}, nil
	}

	m.setPhase(s3types.PhaseTransferring)
	retrier := retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMultiplier, m.logger)
	exec := executor.New(cfg.MaxConcurrency, retrier, m.logger).
		WithProgressTracker(cfg.Tracker).
		WithFileTracker(cfg.FileTracker)

	result, execErr := exec.Execute(ctx, plan, m.callbacks(direction, cfg, source))

	if direction == s3types.DirectionDownload && cfg.Mirror && len(plan.Deletes) > 0 {
		m.pruneEmptyDirs(m.localPath)
	}

	result.Duration = time.Since(start)
	if execErr != nil {
		m.setPhase(s3types.PhaseFailed)
		m.logger.Info("sync finished with failures",
			"direction", direction.String(),
			"transferred", result.FilesTransferred,
			"failed", result.FilesFailed)
		return result, execErr
	}

	m.setPhase(s3types.PhaseDone)
	m.logger.Info("sync complete",
		"direction", direction.String(),
		"transferred", result.FilesTransferred,
		"skipped", result.FilesSkipped,
		"deleted", result.FilesDeleted,
		"bytes", result.BytesTransferred,
		"duration", result.Duration)
	return result, nil
}

// buildSnapshots scans both sides concurrently. The remote snapshot merges
// the prefix listing with a head of the exact key, so a remote location
// that is a single object, a tree, or both (kind mismatch) is always fully
// visible to the planner.
func (m *Manager) buildSnapshots(
	ctx context.Context,
	filter *exclude.Filter,
	withDigest bool,
) (local, remote *s3types.TreeSnapshot, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var scanErr error
		local, scanErr = m.scanner.SnapshotLocal(gctx, m.localPath, filter, withDigest)
		return scanErr
	})

	g.Go(func() error {
		snap, scanErr := m.scanner.SnapshotRemote(gctx, m.bucket, m.key, filter)
		if scanErr != nil {
			return scanErr
		}
		if m.key != "" && !strings.HasSuffix(m.key, "/") {
			entry, statErr := m.scanner.StatRemote(gctx, m.bucket, m.key)
			switch {
			case statErr == nil:
				snap.Add(entry)
			case errors.IsObjectNotFound(statErr):
				// Prefix-only location
			default:
				return statErr
			}
		}
		remote = snap
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

// callbacks wires the executor to this direction's I/O.
func (m *Manager) callbacks(direction s3types.Direction, cfg *s3types.SyncConfig, source *s3types.TreeSnapshot) executor.Callbacks {
	cb := executor.Callbacks{
		OnDeleting: func() { m.setPhase(s3types.PhaseDeleting) },
	}

	if direction == s3types.DirectionUpload {
		cb.Transfer = func(ctx context.Context, op s3types.PlannedOp, tracker s3types.ProgressTracker) error {
			return m.uploadFile(ctx, op, cfg, source, tracker)
		}
		cb.Delete = m.deleteRemoteBatch
		cb.DeleteBatchSize = remoteDeleteBatchSize
		return cb
	}

	cb.Transfer = func(ctx context.Context, op s3types.PlannedOp, tracker s3types.ProgressTracker) error {
		return m.downloadFile(ctx, op, cfg, tracker)
	}
	cb.Delete = m.deleteLocalBatch
	cb.DeleteBatchSize = 1
	return cb
}

// uploadFile streams one local file into its object, sniffing the content
// type from the first bytes. With CheckHash set and a comparable returned
// tag, the store's tag is verified against the local digest.
func (m *Manager) uploadFile(
	ctx context.Context,
	op s3types.PlannedOp,
	cfg *s3types.SyncConfig,
	source *s3types.TreeSnapshot,
	tracker s3types.ProgressTracker,
) error {
	localPath := scanner.JoinLocal(m.localPath, op.RelPath)
	key := scanner.JoinKey(m.key, op.RelPath)

	file, err := m.filesystem.Open(localPath)
	if err != nil {
		return errors.NewObjectError("upload", m.bucket, key, err)
	}
	defer file.Close()

	// Sniff the first bytes for the content type, then stitch them back
	// onto the body
	head := make([]byte, 512)
	n, readErr := file.Read(head)
	if readErr != nil && readErr != io.EOF {
		return errors.NewObjectError("upload", m.bucket, key, readErr)
	}
	contentType := detectContentType(head[:n], localPath)

	var body io.Reader = io.MultiReader(bytes.NewReader(head[:n]), file)
	if tracker != nil {
		body = &progressReader{reader: body, tracker: tracker, total: op.Size}
	}

	input := &s3.PutObjectInput{
		Bucket:        &m.bucket,
		Key:           &key,
		Body:          body,
		ContentLength: aws.Int64(op.Size),
		ContentType:   &contentType,
	}

	output, err := m.s3Client.PutObject(ctx, input)
	if err != nil {
		return errors.NewObjectError("upload", m.bucket, key, err)
	}

	if cfg.CheckHash {
		remoteTag := aws.ToString(output.ETag)
		if src := source.Lookup(op.RelPath); src != nil && hasher.IsComparable(remoteTag) && src.Tag != "" {
			if !hasher.Matches(src.Tag, remoteTag) {
				return &errors.IntegrityError{
					RelPath:     op.RelPath,
					LocalDigest: src.Tag,
					RemoteTag:   hasher.Normalize(remoteTag),
				}
			}
		}
	}

	return nil
}

// downloadFile streams one object into its local file, digesting the bytes
// as they land. A failed copy removes the partial file; an integrity
// mismatch keeps the file and surfaces an IntegrityError.
func (m *Manager) downloadFile(
	ctx context.Context,
	op s3types.PlannedOp,
	cfg *s3types.SyncConfig,
	tracker s3types.ProgressTracker,
) error {
	localPath := scanner.JoinLocal(m.localPath, op.RelPath)
	key := scanner.JoinKey(m.key, op.RelPath)

	if dir := filepath.Dir(localPath); dir != "" && dir != "." {
		if err := m.filesystem.MkdirAll(dir, 0o755); err != nil {
			return errors.NewObjectError("download", m.bucket, key, err)
		}
	}

	input := &s3.GetObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	}
	output, err := m.s3Client.GetObject(ctx, input)
	if err != nil {
		return errors.NewObjectError("download", m.bucket, key, err)
	}
	defer output.Body.Close()

	var reader io.Reader = output.Body
	if tracker != nil {
		reader = &progressReader{reader: reader, tracker: tracker, total: op.Size}
	}

	// A kind-mismatch resolution in mirror mode deletes the files under a
	// stale local directory before this transfer runs; the emptied
	// directory itself still occupies the path and has to go
	if info, statErr := m.filesystem.Stat(localPath); statErr == nil && info.IsDir() {
		if rmErr := m.removeEmptyTree(localPath); rmErr != nil {
			return errors.NewObjectError("download", m.bucket, key, rmErr)
		}
	}

	file, err := m.filesystem.Create(localPath)
	if err != nil {
		return errors.NewObjectError("download", m.bucket, key, err)
	}

	buf := m.buffers.Get()
	digester := md5.New()
	_, copyErr := io.CopyBuffer(io.MultiWriter(file, digester), reader, buf)
	m.buffers.Put(buf)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		// Never leave a truncated file behind
		_ = m.filesystem.Remove(localPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return errors.NewObjectError("download", m.bucket, key, copyErr)
	}

	if cfg.CheckHash {
		remoteTag := aws.ToString(output.ETag)
		if hasher.IsComparable(remoteTag) {
			localDigest := hex.EncodeToString(digester.Sum(nil))
			if !hasher.Matches(localDigest, remoteTag) {
				return &errors.IntegrityError{
					RelPath:     op.RelPath,
					LocalDigest: localDigest,
					RemoteTag:   hasher.Normalize(remoteTag),
				}
			}
		}
	}

	return nil
}

// deleteRemoteBatch removes up to remoteDeleteBatchSize objects in one
// DeleteObjects call.
func (m *Manager) deleteRemoteBatch(ctx context.Context, relPaths []string) error {
	objects := make([]s3sdktypes.ObjectIdentifier, 0, len(relPaths))
	for _, relPath := range relPaths {
		key := scanner.JoinKey(m.key, relPath)
		objects = append(objects, s3sdktypes.ObjectIdentifier{Key: aws.String(key)})
	}

	input := &s3.DeleteObjectsInput{
		Bucket: &m.bucket,
		Delete: &s3sdktypes.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	}

	output, err := m.s3Client.DeleteObjects(ctx, input)
	if err != nil {
		return errors.NewError("deleteObjects", err).WithBucket(m.bucket)
	}

	if len(output.Errors) > 0 {
		first := output.Errors[0]
		return errors.NewObjectError("deleteObjects", m.bucket, aws.ToString(first.Key),
			fmt.Errorf("%d object(s) failed to delete: %s", len(output.Errors), aws.ToString(first.Message)))
	}
	return nil
}

// deleteLocalBatch removes local files one at a time (the executor batches
// local deletes with size 1).
func (m *Manager) deleteLocalBatch(ctx context.Context, relPaths []string) error {
	for _, relPath := range relPaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		localPath := scanner.JoinLocal(m.localPath, relPath)
		if err := m.filesystem.Remove(localPath); err != nil {
			return errors.NewError("deleteLocal", err).WithKey(localPath)
		}
	}
	return nil
}

// removeEmptyTree removes path and the empty directories beneath it. A
// file surviving under path makes the removal fail.
func (m *Manager) removeEmptyTree(path string) error {
	entries, err := m.filesystem.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return fmt.Errorf("directory %s is not empty: %s remains", path, entry.Name())
		}
		if err := m.removeEmptyTree(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}
	//nolint:wrapcheck // callers wrap with the operation context
	return m.filesystem.Remove(path)
}

// pruneEmptyDirs removes directories left empty by a mirror deletion
// pass. Best effort: a directory that cannot be read or removed is left
// in place.
func (m *Manager) pruneEmptyDirs(root string) {
	entries, err := m.filesystem.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			m.pruneEmptyDirs(filepath.Join(root, entry.Name()))
		}
	}

	entries, err = m.filesystem.ReadDir(root)
	if err == nil && len(entries) == 0 && root != m.localPath {
		_ = m.filesystem.Remove(root)
	}
}

// RemoteExists reports whether the bound key exists as an object or as a
// non-empty prefix.
func (m *Manager) RemoteExists(ctx context.Context) (bool, error) {
	_, err := m.scanner.StatRemote(ctx, m.bucket, m.key)
	switch {
	case err == nil:
		return true, nil
	case errors.IsObjectNotFound(err):
		return m.scanner.RemoteHasChildren(ctx, m.bucket, m.key)
	default:
		return false, err
	}
}

// DeleteRemote removes the bound key: the exact object if one exists, and
// every object under the key treated as a prefix.
func (m *Manager) DeleteRemote(ctx context.Context) error {
	_, err := m.scanner.StatRemote(ctx, m.bucket, m.key)
	switch {
	case err == nil:
		input := &s3.DeleteObjectInput{Bucket: &m.bucket, Key: &m.key}
		if _, err := m.s3Client.DeleteObject(ctx, input); err != nil {
			return errors.NewObjectError("delete", m.bucket, m.key, err)
		}
	case errors.IsObjectNotFound(err):
		// Not a plain object; fall through to the prefix sweep
	default:
		return err
	}

	noFilter, _ := exclude.New(nil)
	snap, err := m.scanner.SnapshotRemote(ctx, m.bucket, m.key, noFilter)
	if err != nil {
		return err
	}
	paths := snap.Paths()
	for i := 0; i < len(paths); i += remoteDeleteBatchSize {
		end := i + remoteDeleteBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		if err := m.deleteRemoteBatch(ctx, paths[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// StatRemote exposes a head of the bound key for the facade.
func (m *Manager) StatRemote(ctx context.Context) (*s3types.PathEntry, error) {
	return m.scanner.StatRemote(ctx, m.bucket, m.key)
}

// EnsureLocalParent creates the parent directory of the bound local path.
func (m *Manager) EnsureLocalParent() error {
	dir := filepath.Dir(m.localPath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := m.filesystem.MkdirAll(dir, 0o755); err != nil {
		return errors.NewError("mkdir", err).WithKey(dir)
	}
	return nil
}

// detectContentType sniffs content first and falls back to the extension.
func detectContentType(head []byte, path string) string {
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil {
			return mt.String()
		}
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return defaultContentType
}

// progressReader wraps an io.Reader to feed a per-file tracker.
type progressReader struct {
	reader    io.Reader
	tracker   s3types.ProgressTracker
	total     int64
	bytesRead int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.bytesRead += int64(n)
		pr.tracker.Update(pr.bytesRead, pr.total)
	}
	//nolint:wrapcheck // io.Reader interface contract - error comes from underlying reader
	return n, err
}
