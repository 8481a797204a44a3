package s3lync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3sdktypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/s3types"
)

// fakeStore is a stateful in-memory object store backing the facade tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) put(key string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func etagFor(content []byte) string {
	sum := md5.Sum(content)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeStore) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(params.Key)] = content
	f.mu.Unlock()
	return &s3.PutObjectOutput{ETag: aws.String(etagFor(content))}, nil
}

func (f *fakeStore) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	content, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: aws.Int64(int64(len(content))),
		ETag:          aws.String(etagFor(content)),
	}, nil
}

func (f *fakeStore) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	content, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(content))),
		ETag:          aws.String(etagFor(content)),
	}, nil
}

func (f *fakeStore) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)

	f.mu.Lock()
	var contents []s3sdktypes.Object
	for _, key := range f.sortedKeysLocked() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		contents = append(contents, s3sdktypes.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(f.objects[key]))),
			ETag: aws.String(etagFor(f.objects[key])),
		})
	}
	f.mu.Unlock()

	return &s3.ListObjectsV2Output{
		Contents: contents,
		KeyCount: aws.Int32(int32(len(contents))),
	}, nil
}

func (f *fakeStore) sortedKeysLocked() []string {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) DeleteObject(
	ctx context.Context,
	params *s3.DeleteObjectInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(params.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeStore) DeleteObjects(
	ctx context.Context,
	params *s3.DeleteObjectsInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	for _, obj := range params.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	f.mu.Unlock()
	return &s3.DeleteObjectsOutput{}, nil
}

// newTestClient builds a facade client over a fake store and an in-memory
// filesystem.
func newTestClient(store *fakeStore) (*Client, *billy.FS) {
	memfs := billy.NewInMemoryFS()
	client := NewWithClient(store)
	client.SetFilesystem(memfs)
	return client, memfs
}

func writeFile(t *testing.T, memfs *billy.FS, path, content string) {
	t.Helper()
	require.NoError(t, memfs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, memfs.WriteFile(path, []byte(content), 0o644))
}

func TestObject_Construction(t *testing.T) {
	client, _ := newTestClient(newFakeStore())

	t.Run("valid URI", func(t *testing.T) {
		obj, err := client.Object("s3://my-bucket/data/set")
		require.NoError(t, err)

		assert.Equal(t, "s3://my-bucket/data/set", obj.URI())
		assert.Equal(t, "my-bucket", obj.Bucket())
		assert.Equal(t, "data/set", obj.Key())
		assert.Contains(t, obj.LocalPath(), "my-bucket")
		assert.Equal(t, s3types.PhaseIdle, obj.Phase())
	})

	t.Run("explicit local path", func(t *testing.T) {
		obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/work/data"))
		require.NoError(t, err)
		assert.Equal(t, "/work/data", obj.LocalPath())
	})

	t.Run("invalid URI", func(t *testing.T) {
		_, err := client.Object("https://example.com/thing")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidURI)
	})

	t.Run("invalid bucket name", func(t *testing.T) {
		_, err := client.Object("s3://ab/key")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidBucketName)
	})

	t.Run("invalid object key", func(t *testing.T) {
		_, err := client.Object("s3://my-bucket/../escape")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidObjectKey)
	})

	t.Run("invalid exclude pattern", func(t *testing.T) {
		_, err := client.Object("s3://my-bucket/data", WithExcludePatterns(`[broken`))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestObject_UploadMirror(t *testing.T) {
	store := newFakeStore()
	store.put("data/a.txt", []byte("alpha"))
	store.put("data/c.txt", []byte("gamma"))

	client, memfs := newTestClient(store)
	writeFile(t, memfs, "/local/a.txt", "alpha")
	writeFile(t, memfs, "/local/b.txt", "beta")
	writeFile(t, memfs, "/local/.git/cfg", "[core]")

	obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/local"))
	require.NoError(t, err)

	result, err := obj.Upload(context.Background(), WithSyncMirror())
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesTransferred)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, s3types.PhaseDone, obj.Phase())

	// b.txt pushed, c.txt mirrored away, hidden file never considered
	assert.Equal(t, []string{"data/a.txt", "data/b.txt"}, store.keys())
}

func TestObject_DownloadRoundTrip(t *testing.T) {
	store := newFakeStore()
	store.put("data/a.txt", []byte("alpha"))
	store.put("data/dir/b.txt", []byte("beta"))

	client, memfs := newTestClient(store)

	obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/local"))
	require.NoError(t, err)

	result, err := obj.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesTransferred)

	content, err := memfs.ReadFile("/local/dir/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(content))

	// A second download is a no-op
	again, err := obj.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesTransferred)
	assert.Equal(t, 2, again.FilesSkipped)
}

func TestObject_ExcludeSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("construction patterns replace the defaults", func(t *testing.T) {
		store := newFakeStore()
		client, memfs := newTestClient(store)
		writeFile(t, memfs, "/local/.hidden", "h")
		writeFile(t, memfs, "/local/kept.log", "l")

		obj, err := client.Object("s3://my-bucket/data",
			WithLocalPath("/local"),
			WithExcludePatterns(`\.log$`),
		)
		require.NoError(t, err)

		_, err = obj.Upload(ctx)
		require.NoError(t, err)

		// Hidden files upload because the default set was replaced
		assert.Equal(t, []string{"data/.hidden"}, store.keys())
	})

	t.Run("per-call patterns append to the defaults", func(t *testing.T) {
		store := newFakeStore()
		client, memfs := newTestClient(store)
		writeFile(t, memfs, "/local/.hidden", "h")
		writeFile(t, memfs, "/local/kept.txt", "k")
		writeFile(t, memfs, "/local/skipped.log", "l")

		obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/local"))
		require.NoError(t, err)

		_, err = obj.Upload(ctx, WithSyncExcludes(`\.log$`))
		require.NoError(t, err)

		// Hidden files stay excluded alongside the appended pattern
		assert.Equal(t, []string{"data/kept.txt"}, store.keys())
	})
}

func TestObject_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	store.put("data/a.txt", []byte("alpha"))

	client, _ := newTestClient(store)
	obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/local"))
	require.NoError(t, err)

	exists, err := obj.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, obj.Delete(ctx))

	exists, err = obj.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, store.keys())
}

func TestObject_Stat(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	store.put("models/model.bin", []byte("weights"))

	client, _ := newTestClient(store)
	obj, err := client.Object("s3://my-bucket/models/model.bin", WithLocalPath("/data/model.bin"))
	require.NoError(t, err)

	entry, err := obj.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Size)

	missing, err := client.Object("s3://my-bucket/models/other.bin", WithLocalPath("/data/other.bin"))
	require.NoError(t, err)

	_, err = missing.Stat(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestObject_DryRunPlan(t *testing.T) {
	store := newFakeStore()
	store.put("data/c.txt", []byte("gamma"))

	client, memfs := newTestClient(store)
	writeFile(t, memfs, "/local/a.txt", "alpha")

	obj, err := client.Object("s3://my-bucket/data", WithLocalPath("/local"))
	require.NoError(t, err)

	result, err := obj.Upload(context.Background(), WithSyncDryRun(), WithSyncMirror())
	require.NoError(t, err)

	require.NotNil(t, result.Plan)
	assert.Len(t, result.Plan.Transfers, 1)
	assert.Len(t, result.Plan.Deletes, 1)
	assert.Equal(t, []string{"data/c.txt"}, store.keys(), "dry run must not touch the store")
}
