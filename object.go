package s3lync

import (
	"context"
	"log/slog"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/sync/engine"
	"github.com/bestend/s3lync/internal/sync/exclude"
	"github.com/bestend/s3lync/internal/validation"
	"github.com/bestend/s3lync/s3types"
)

// S3Object binds one S3 location to one local path and synchronizes the
// two on demand. The location may be a single object or a prefix tree;
// the local side mirrors it as a file or a directory respectively.
//
// An S3Object is safe for concurrent reads of its accessors, but Download
// and Upload must not run concurrently on the same object.
type S3Object struct {
	uri       string
	bucket    string
	key       string
	localPath string

	engine *engine.Manager
	fs     fs.Filesystem
	logger *slog.Logger
}

// Object binds an s3://bucket/key URI to a local path. Without
// WithLocalPath the local side defaults to a per-user cache location
// derived from the bucket and key.
//
// Example:
//
//	obj, err := client.Object("s3://my-bucket/data/",
//	    s3lync.WithLocalPath("/tmp/data"),
//	)
func (c *Client) Object(uri string, opts ...s3types.ObjectOption) (*S3Object, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if key != "" {
		if err := validation.ValidateObjectKey(key); err != nil {
			return nil, err
		}
	}

	objCfg := &s3types.ObjectConfig{}
	for _, opt := range opts {
		opt(objCfg)
	}

	localPath := objCfg.LocalPath
	if localPath == "" {
		localPath = defaultLocalPath(bucket, key)
	}

	// Construction-time patterns replace the defaults; per-call patterns
	// are appended on top of whichever set is active here
	patterns := exclude.Defaults(excludeHiddenDefault())
	if objCfg.ExcludeSet {
		patterns = objCfg.ExcludePatterns
	}
	baseFilter, err := exclude.New(patterns)
	if err != nil {
		return nil, err
	}

	logger := c.log().With("bucket", bucket, "key", key)

	mgr := engine.New(engine.Config{
		S3:         c.s3Client,
		Filesystem: c.filesystem(),
		Logger:     logger,
		Bucket:     bucket,
		Key:        key,
		LocalPath:  localPath,
		BaseFilter: baseFilter,
	})

	return &S3Object{
		uri:       uri,
		bucket:    bucket,
		key:       key,
		localPath: localPath,
		engine:    mgr,
		fs:        c.filesystem(),
		logger:    logger,
	}, nil
}

// URI returns the object's s3:// URI.
func (o *S3Object) URI() string {
	return o.uri
}

// Bucket returns the bucket name.
func (o *S3Object) Bucket() string {
	return o.bucket
}

// Key returns the object key or prefix, without the s3:// scheme.
func (o *S3Object) Key() string {
	return o.key
}

// LocalPath returns the local file or directory this object syncs with.
func (o *S3Object) LocalPath() string {
	return o.localPath
}

// Phase returns the current lifecycle phase of the object's sync engine.
func (o *S3Object) Phase() s3types.Phase {
	return o.engine.Phase()
}

// Download synchronizes the remote side to the local path: remote files
// that are missing or differ locally are fetched, files already in sync
// are skipped, and in mirror mode local entries absent remotely are
// removed.
func (o *S3Object) Download(ctx context.Context, opts ...s3types.SyncOption) (*s3types.SyncResult, error) {
	cfg := defaultSyncConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return o.engine.Download(ctx, cfg)
}

// Upload synchronizes the local path to the remote side: local files that
// are missing or differ remotely are pushed, files already in sync are
// skipped, and in mirror mode remote entries absent locally are removed.
func (o *S3Object) Upload(ctx context.Context, opts ...s3types.SyncOption) (*s3types.SyncResult, error) {
	cfg := defaultSyncConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return o.engine.Upload(ctx, cfg)
}

// Exists reports whether anything is stored at the object's location,
// either an exact object or at least one key under the prefix.
func (o *S3Object) Exists(ctx context.Context) (bool, error) {
	return o.engine.RemoteExists(ctx)
}

// Stat returns the metadata of the exact remote object. It fails with
// ErrObjectNotFound when the location only exists as a prefix.
func (o *S3Object) Stat(ctx context.Context) (*s3types.PathEntry, error) {
	return o.engine.StatRemote(ctx)
}

// Delete removes the remote object, or every object under the prefix when
// the location names a tree. The local path is left untouched.
func (o *S3Object) Delete(ctx context.Context) error {
	return o.engine.DeleteRemote(ctx)
}

// Open opens the object's local copy as a file. Read-oriented flags
// trigger a download first so the content is current; write-oriented
// flags only ensure the parent directory exists, and the file is
// uploaded when it is closed cleanly.
//
// Open is only valid for single-object URIs, not prefixes.
func (o *S3Object) Open(ctx context.Context, flag int) (*File, error) {
	if o.key == "" || o.key[len(o.key)-1] == '/' {
		return nil, errors.NewObjectError("open", o.bucket, o.key,
			errors.ErrInvalidInput).WithMessage("cannot open a prefix as a file")
	}
	return openFile(ctx, o, flag)
}
