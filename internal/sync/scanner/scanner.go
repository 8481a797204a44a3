// Package scanner builds tree snapshots of both sides of a sync.
// This includes walking local directories and listing S3 objects.
//
// Snapshots are built fresh at the start of every sync call and are
// read-only afterwards.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	stderrors "errors"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/s3api"
	"github.com/bestend/s3lync/internal/sync/exclude"
	"github.com/bestend/s3lync/internal/sync/hasher"
	"github.com/bestend/s3lync/s3types"
)

// Scanner builds snapshots of the local filesystem and the remote prefix.
type Scanner struct {
	s3Client   s3api.S3API
	filesystem fs.Filesystem
	hasher     *hasher.Verifier
	logger     *slog.Logger
}

// New creates a scanner with the provided S3 client and filesystem.
func New(s3Client s3api.S3API, filesystem fs.Filesystem, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		s3Client:   s3Client,
		filesystem: filesystem,
		hasher:     hasher.New(filesystem),
		logger:     logger,
	}
}

// SnapshotLocal walks the local tree rooted at root and returns a snapshot
// of the files that survive the exclude filter. When withDigest is set,
// each file's content digest is computed and stored as its integrity tag.
//
// A root that does not exist yields an empty snapshot (the usual state
// before a first download). A root that is a regular file yields the
// degenerate single-entry snapshot keyed by the empty relative path.
func (s *Scanner) SnapshotLocal(
	ctx context.Context,
	root string,
	filter *exclude.Filter,
	withDigest bool,
) (*s3types.TreeSnapshot, error) {
	snap := s3types.NewTreeSnapshot()

	exists, err := s.filesystem.Exists(root)
	if err != nil {
		return nil, errors.NewError("scanLocal", err).WithKey(root)
	}
	if !exists {
		return snap, nil
	}

	info, err := s.filesystem.Stat(root)
	if err != nil {
		return nil, errors.NewError("scanLocal", err).WithKey(root)
	}

	if !info.IsDir() {
		entry := s.localEntry(root, "", info.Size(), withDigest)
		entry.ModTime = info.ModTime()
		snap.Add(entry)
		return snap, nil
	}

	err = s.filesystem.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Directories are implicit; only files become entries
		if info.IsDir() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return errors.NewError("scanLocal", err).WithKey(p)
		}
		relPath = filepath.ToSlash(relPath)

		if filter.Matches(relPath) {
			s.logger.Debug("excluded from sync", "path", relPath)
			return nil
		}

		entry := s.localEntry(p, relPath, info.Size(), withDigest)
		entry.ModTime = info.ModTime()
		snap.Add(entry)
		return nil
	})
	if err != nil {
		return nil, errors.NewError("scanLocal", err).WithKey(root)
	}

	return snap, nil
}

// localEntry builds a file entry, digesting the content when asked. A file
// that cannot be digested stays in the snapshot with the failure recorded
// on the entry; the scan itself never aborts for one unreadable file.
func (s *Scanner) localEntry(fullPath, relPath string, size int64, withDigest bool) *s3types.PathEntry {
	entry := &s3types.PathEntry{
		RelPath: relPath,
		Kind:    s3types.KindFile,
		Size:    size,
	}

	if withDigest {
		digest, err := s.hasher.Digest(fullPath)
		if err != nil {
			s.logger.Warn("could not digest local file", "path", fullPath, "error", err)
			entry.ScanErr = err
			return entry
		}
		entry.Tag = digest
	}

	return entry
}

// SnapshotRemote lists every object under prefix and returns a snapshot
// keyed by the path relative to the prefix. The listing paginates through
// ListObjectsV2; zero-byte directory-marker keys are skipped.
func (s *Scanner) SnapshotRemote(
	ctx context.Context,
	bucket string,
	prefix string,
	filter *exclude.Filter,
) (*s3types.TreeSnapshot, error) {
	snap := s3types.NewTreeSnapshot()

	listPrefix := prefix
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	var continuationToken *string
	for {
		select {
		case <-ctx.Done():
			return nil, errors.NewObjectError("scanRemote", bucket, prefix, ctx.Err())
		default:
		}

		input := &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &listPrefix,
			ContinuationToken: continuationToken,
			MaxKeys:           aws.Int32(1000), // AWS default and maximum
		}

		result, err := s.s3Client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, errors.NewObjectError("scanRemote", bucket, prefix, err)
		}

		for _, obj := range result.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasPrefix(key, listPrefix) {
				continue
			}

			relPath := strings.TrimPrefix(key, listPrefix)
			// A key equal to the prefix is a directory marker, not a file
			if relPath == "" || strings.HasSuffix(relPath, "/") {
				continue
			}

			if filter.Matches(relPath) {
				s.logger.Debug("excluded from sync", "key", key)
				continue
			}

			entry := &s3types.PathEntry{
				RelPath: relPath,
				Kind:    s3types.KindFile,
				Size:    aws.ToInt64(obj.Size),
				Tag:     hasher.Normalize(aws.ToString(obj.ETag)),
			}
			if obj.LastModified != nil {
				entry.ModTime = *obj.LastModified
			}
			snap.Add(entry)
		}

		if result.IsTruncated == nil || !*result.IsTruncated {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	return snap, nil
}

// StatRemote heads a single object and returns its entry keyed by the
// empty relative path, or ErrObjectNotFound when the key does not exist.
func (s *Scanner) StatRemote(ctx context.Context, bucket, key string) (*s3types.PathEntry, error) {
	input := &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}

	result, err := s.s3Client.HeadObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewObjectError("statRemote", bucket, key, errors.ErrObjectNotFound)
		}
		return nil, errors.NewObjectError("statRemote", bucket, key, err)
	}

	entry := &s3types.PathEntry{
		RelPath: "",
		Kind:    s3types.KindFile,
		Size:    aws.ToInt64(result.ContentLength),
		Tag:     hasher.Normalize(aws.ToString(result.ETag)),
	}
	if result.LastModified != nil {
		entry.ModTime = *result.LastModified
	}
	return entry, nil
}

// RemoteHasChildren reports whether any object exists under key treated as
// a directory prefix. Used to decide whether a remote location is a file,
// a directory, or absent.
func (s *Scanner) RemoteHasChildren(ctx context.Context, bucket, key string) (bool, error) {
	prefix := key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  &bucket,
		Prefix:  &prefix,
		MaxKeys: aws.Int32(1),
	}

	result, err := s.s3Client.ListObjectsV2(ctx, input)
	if err != nil {
		return false, errors.NewObjectError("scanRemote", bucket, key, err)
	}

	// Any key under the prefix counts, a bare directory marker included
	return len(result.Contents) > 0, nil
}

// JoinKey maps a relative path back to a full object key under prefix.
// The empty relative path names the prefix itself (single-file mode).
func JoinKey(prefix, relPath string) string {
	if relPath == "" {
		return prefix
	}
	if prefix == "" {
		return relPath
	}
	return strings.TrimSuffix(prefix, "/") + "/" + relPath
}

// JoinLocal maps a relative path to a full local path under root.
func JoinLocal(root, relPath string) string {
	if relPath == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(path.Clean(relPath)))
}

// isNotFound recognizes the store's missing-object signals.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
