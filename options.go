package s3lync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/bestend/s3lync/s3types"
)

// Client options.

// WithRegion sets the AWS region for the client.
// This overrides the region from the default AWS configuration chain and
// the S3LYNC_REGION environment variable.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services like MinIO or LocalStack.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style addressing (bucket in the path
// rather than the host). Most S3-compatible services require this.
func WithForcePathStyle() s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = true
	}
}

// WithAWSConfig uses a pre-configured AWS config instead of the default
// credential chain.
func WithAWSConfig(cfg aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = &cfg
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomHTTPClient = client
	}
}

// WithLogger sets the structured logger used by the client and every
// object built from it. Logging is disabled by default.
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithFilesystem sets the filesystem abstraction used for local file
// operations. Defaults to the OS filesystem; an in-memory filesystem is
// useful for testing.
func WithFilesystem(filesystem fs.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// Object options.

// WithLocalPath binds the object to an explicit local path instead of the
// default location under the user cache directory.
func WithLocalPath(path string) s3types.ObjectOption {
	return func(c *s3types.ObjectConfig) {
		c.LocalPath = path
	}
}

// WithExcludePatterns replaces the object's default exclusion set with the
// given regular expressions. Passing no patterns disables exclusion
// entirely. To add patterns on top of the defaults for a single sync call,
// use WithSyncExcludes instead.
func WithExcludePatterns(patterns ...string) s3types.ObjectOption {
	return func(c *s3types.ObjectConfig) {
		c.ExcludePatterns = patterns
		c.ExcludeSet = true
	}
}

// Sync options.

// WithSyncCheckHash controls content verification. When enabled, files are
// compared by MD5 digest where the stored tag allows it; when disabled,
// existence at the destination counts as in sync. Enabled by default.
func WithSyncCheckHash(enabled bool) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.CheckHash = enabled
	}
}

// WithSyncMirror enables mirror mode: destination entries with no source
// counterpart are deleted after the transfers complete.
func WithSyncMirror() s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.Mirror = true
	}
}

// WithSyncExcludes appends exclusion patterns for this call on top of the
// object's configured set.
func WithSyncExcludes(patterns ...string) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.Excludes = append(c.Excludes, patterns...)
	}
}

// WithSyncDryRun computes and returns the diff plan without transferring
// or deleting anything.
func WithSyncDryRun() s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.DryRun = true
	}
}

// WithSyncMaxConcurrency sets the number of parallel transfer workers.
// Defaults to 8.
func WithSyncMaxConcurrency(n int) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.MaxConcurrency = n
	}
}

// WithSyncRetryAttempts sets the number of attempts per transfer before
// the path is recorded as failed. Defaults to 3.
func WithSyncRetryAttempts(n int) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithSyncRetryBaseDelay sets the delay before the first retry. Subsequent
// retries back off exponentially from this base. Defaults to 500ms.
func WithSyncRetryBaseDelay(d time.Duration) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.RetryBaseDelay = d
	}
}

// WithSyncRetryMultiplier sets the exponential backoff multiplier.
// Defaults to 2.
func WithSyncRetryMultiplier(multiplier float64) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.RetryMultiplier = multiplier
	}
}

// WithSyncAssumeMultipartInSync controls how entries whose stored tag is a
// composite multipart checksum are compared when hash checking is on.
// When true (the default), existence plus matching size counts as in sync;
// when false, such entries are always re-transferred.
func WithSyncAssumeMultipartInSync(assume bool) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.AssumeMultipartInSync = assume
	}
}

// WithSyncProgress sets a tracker for overall sync progress.
func WithSyncProgress(tracker s3types.ProgressTracker) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.Tracker = tracker
	}
}

// WithSyncFileProgress sets a factory producing a per-file tracker for
// each transferred file.
func WithSyncFileProgress(factory func(relPath string, size int64) s3types.ProgressTracker) s3types.SyncOption {
	return func(c *s3types.SyncConfig) {
		c.FileTracker = factory
	}
}
