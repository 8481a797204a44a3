package s3lync

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/s3types"
)

// ParseURI splits an s3://bucket/key URI into its bucket and key parts.
// The key may be empty (the whole bucket) and may carry a trailing slash
// to force prefix semantics.
func ParseURI(uri string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", errors.NewError("parseURI",
			fmt.Errorf("%w: URI must start with s3://, got %q", errors.ErrInvalidURI, uri))
	}

	rest := uri[len(scheme):]
	if rest == "" {
		return "", "", errors.NewError("parseURI",
			fmt.Errorf("%w: missing bucket in %q", errors.ErrInvalidURI, uri))
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.NewError("parseURI",
			fmt.Errorf("%w: missing bucket in %q", errors.ErrInvalidURI, uri))
	}
	return bucket, key, nil
}

// defaultLocalPath returns the local cache location for a bucket and key:
// a per-user cache directory, falling back to the system temp directory
// when none is available.
func defaultLocalPath(bucket, key string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	parts := []string{base, "s3lync", bucket}
	if key != "" {
		parts = append(parts, filepath.FromSlash(strings.TrimSuffix(key, "/")))
	}
	return filepath.Join(parts...)
}

// defaultSyncConfig builds the per-call sync configuration, resolving
// defaults from the environment once per operation before the options
// are applied.
func defaultSyncConfig() *s3types.SyncConfig {
	cfg := &s3types.SyncConfig{
		CheckHash:             true,
		AssumeMultipartInSync: true,
		MaxConcurrency:        s3types.DefaultMaxConcurrency,
		RetryMaxAttempts:      s3types.DefaultRetryMaxAttempts,
		RetryBaseDelay:        s3types.DefaultRetryBaseDelay,
		RetryMultiplier:       s3types.DefaultRetryMultiplier,
	}
	if n, ok := envInt("S3LYNC_MAX_CONCURRENCY"); ok && n > 0 {
		cfg.MaxConcurrency = n
	}
	if n, ok := envInt("S3LYNC_RETRY_MAX_ATTEMPTS"); ok && n > 0 {
		cfg.RetryMaxAttempts = n
	}
	if d, ok := envDuration("S3LYNC_RETRY_BASE_DELAY"); ok && d > 0 {
		cfg.RetryBaseDelay = d
	}
	return cfg
}

// excludeHiddenDefault reports whether hidden files are excluded by
// default, honoring the S3LYNC_EXCLUDE_HIDDEN environment variable.
func excludeHiddenDefault() bool {
	if b, ok := envBool("S3LYNC_EXCLUDE_HIDDEN"); ok {
		return b
	}
	return true
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
