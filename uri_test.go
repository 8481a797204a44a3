package s3lync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/s3types"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"bucket and key", "s3://my-bucket/path/to/obj.txt", "my-bucket", "path/to/obj.txt", false},
		{"bucket and prefix", "s3://my-bucket/data/", "my-bucket", "data/", false},
		{"bucket only", "s3://my-bucket", "my-bucket", "", false},
		{"bucket with trailing slash", "s3://my-bucket/", "my-bucket", "", false},
		{"missing scheme", "my-bucket/key", "", "", true},
		{"wrong scheme", "http://my-bucket/key", "", "", true},
		{"empty", "", "", "", true},
		{"scheme only", "s3://", "", "", true},
		{"no bucket", "s3:///key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestDefaultLocalPath(t *testing.T) {
	path := defaultLocalPath("my-bucket", "data/set")
	assert.Contains(t, path, "s3lync")
	assert.Contains(t, path, "my-bucket")
	assert.Contains(t, path, "set")

	bucketOnly := defaultLocalPath("my-bucket", "")
	assert.Contains(t, bucketOnly, "my-bucket")
}

func TestDefaultSyncConfig(t *testing.T) {
	t.Run("built-in defaults", func(t *testing.T) {
		t.Setenv("S3LYNC_MAX_CONCURRENCY", "")
		t.Setenv("S3LYNC_RETRY_MAX_ATTEMPTS", "")
		t.Setenv("S3LYNC_RETRY_BASE_DELAY", "")

		cfg := defaultSyncConfig()
		assert.True(t, cfg.CheckHash)
		assert.True(t, cfg.AssumeMultipartInSync)
		assert.False(t, cfg.Mirror)
		assert.Equal(t, s3types.DefaultMaxConcurrency, cfg.MaxConcurrency)
		assert.Equal(t, s3types.DefaultRetryMaxAttempts, cfg.RetryMaxAttempts)
		assert.Equal(t, s3types.DefaultRetryBaseDelay, cfg.RetryBaseDelay)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("S3LYNC_MAX_CONCURRENCY", "16")
		t.Setenv("S3LYNC_RETRY_MAX_ATTEMPTS", "5")
		t.Setenv("S3LYNC_RETRY_BASE_DELAY", "2s")

		cfg := defaultSyncConfig()
		assert.Equal(t, 16, cfg.MaxConcurrency)
		assert.Equal(t, 5, cfg.RetryMaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	})

	t.Run("malformed environment values are ignored", func(t *testing.T) {
		t.Setenv("S3LYNC_MAX_CONCURRENCY", "lots")
		t.Setenv("S3LYNC_RETRY_BASE_DELAY", "soon")

		cfg := defaultSyncConfig()
		assert.Equal(t, s3types.DefaultMaxConcurrency, cfg.MaxConcurrency)
		assert.Equal(t, s3types.DefaultRetryBaseDelay, cfg.RetryBaseDelay)
	})
}

func TestSyncOptions(t *testing.T) {
	cfg := defaultSyncConfig()
	for _, opt := range []s3types.SyncOption{
		WithSyncCheckHash(false),
		WithSyncMirror(),
		WithSyncDryRun(),
		WithSyncExcludes(`\.log$`),
		WithSyncExcludes(`\.tmp$`),
		WithSyncMaxConcurrency(2),
		WithSyncRetryAttempts(7),
		WithSyncRetryBaseDelay(time.Second),
		WithSyncRetryMultiplier(3.0),
		WithSyncAssumeMultipartInSync(false),
	} {
		opt(cfg)
	}

	assert.False(t, cfg.CheckHash)
	assert.True(t, cfg.Mirror)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, []string{`\.log$`, `\.tmp$`}, cfg.Excludes, "per-call excludes accumulate")
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, 7, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 3.0, cfg.RetryMultiplier)
	assert.False(t, cfg.AssumeMultipartInSync)
}
