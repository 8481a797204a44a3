package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	forgefs "github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/sync/exclude"
)

// mockS3Client implements the subset of s3api.S3API the scanner touches.
type mockS3Client struct {
	listObjectsV2Func func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	headObjectFunc    func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func (m *mockS3Client) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	if m.listObjectsV2Func != nil {
		return m.listObjectsV2Func(ctx, params, optFns...)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *mockS3Client) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	if m.headObjectFunc != nil {
		return m.headObjectFunc(ctx, params, optFns...)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3Client) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(
	ctx context.Context,
	params *s3.DeleteObjectInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObjects(
	ctx context.Context,
	params *s3.DeleteObjectsInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectsOutput, error) {
	return &s3.DeleteObjectsOutput{}, nil
}

// unreadableFS denies Open for one path, standing in for a file the
// process lacks permission to read.
type unreadableFS struct {
	forgefs.Filesystem
	denied string
}

func (u *unreadableFS) Open(name string) (forgefs.File, error) {
	if name == u.denied {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return u.Filesystem.Open(name)
}

func noFilter(t *testing.T) *exclude.Filter {
	t.Helper()
	filter, err := exclude.New(nil)
	require.NoError(t, err)
	return filter
}

func TestSnapshotLocal(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *billy.FS {
		fs := billy.NewInMemoryFS()
		files := map[string]string{
			"a.txt":       "alpha",
			"b.txt":       "beta",
			"dir/c.txt":   "gamma",
			".git/config": "[core]",
		}
		for p, content := range files {
			full := filepath.Join("/local", p)
			require.NoError(t, fs.MkdirAll(filepath.Dir(full), 0o755))
			require.NoError(t, fs.WriteFile(full, []byte(content), 0o644))
		}
		return fs
	}

	t.Run("walks tree and applies filter", func(t *testing.T) {
		fs := setup(t)
		filter, err := exclude.New(exclude.Defaults(true))
		require.NoError(t, err)

		s := New(&mockS3Client{}, fs, nil)
		snap, err := s.SnapshotLocal(ctx, "/local", filter, false)
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "b.txt", "dir/c.txt"}, snap.Paths())
		assert.Nil(t, snap.Lookup(".git/config"))
		assert.Equal(t, int64(5), snap.Lookup("a.txt").Size)
	})

	t.Run("digests content when asked", func(t *testing.T) {
		fs := setup(t)

		s := New(&mockS3Client{}, fs, nil)
		snap, err := s.SnapshotLocal(ctx, "/local", noFilter(t), true)
		require.NoError(t, err)

		// md5("alpha")
		assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", snap.Lookup("a.txt").Tag)
	})

	t.Run("unreadable file stays in snapshot with its failure", func(t *testing.T) {
		fs := setup(t)

		s := New(&mockS3Client{}, &unreadableFS{Filesystem: fs, denied: "/local/b.txt"}, nil)
		snap, err := s.SnapshotLocal(ctx, "/local", noFilter(t), true)
		require.NoError(t, err, "one unreadable file never aborts the scan")

		bad := snap.Lookup("b.txt")
		require.NotNil(t, bad)
		assert.Error(t, bad.ScanErr)
		assert.Empty(t, bad.Tag)

		// Siblings are digested as usual
		good := snap.Lookup("a.txt")
		require.NotNil(t, good)
		assert.NoError(t, good.ScanErr)
		assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", good.Tag)
	})

	t.Run("missing root yields empty snapshot", func(t *testing.T) {
		fs := billy.NewInMemoryFS()

		s := New(&mockS3Client{}, fs, nil)
		snap, err := s.SnapshotLocal(ctx, "/absent", noFilter(t), false)
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Len())
	})

	t.Run("file root yields single empty-keyed entry", func(t *testing.T) {
		fs := billy.NewInMemoryFS()
		require.NoError(t, fs.MkdirAll("/data", 0o755))
		require.NoError(t, fs.WriteFile("/data/single.bin", []byte("payload"), 0o644))

		s := New(&mockS3Client{}, fs, nil)
		snap, err := s.SnapshotLocal(ctx, "/data/single.bin", noFilter(t), false)
		require.NoError(t, err)

		require.Equal(t, 1, snap.Len())
		entry := snap.Lookup("")
		require.NotNil(t, entry)
		assert.Equal(t, int64(7), entry.Size)
	})
}

func TestSnapshotRemote(t *testing.T) {
	ctx := context.Background()
	modTime := time.Now()

	t.Run("lists and strips the prefix", func(t *testing.T) {
		mock := &mockS3Client{
			listObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				assert.Equal(t, "data/", aws.ToString(params.Prefix))
				return &s3.ListObjectsV2Output{
					Contents: []types.Object{
						{Key: aws.String("data/"), Size: aws.Int64(0)},
						{Key: aws.String("data/a.txt"), Size: aws.Int64(5), ETag: aws.String(`"AABB"`), LastModified: &modTime},
						{Key: aws.String("data/dir/b.txt"), Size: aws.Int64(7), ETag: aws.String(`"ccdd"`)},
					},
				}, nil
			},
		}

		s := New(mock, billy.NewInMemoryFS(), nil)
		snap, err := s.SnapshotRemote(ctx, "bucket", "data", noFilter(t))
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "dir/b.txt"}, snap.Paths())
		assert.Equal(t, "aabb", snap.Lookup("a.txt").Tag, "tags are normalized")
	})

	t.Run("paginates through truncated listings", func(t *testing.T) {
		calls := 0
		mock := &mockS3Client{
			listObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				calls++
				if calls == 1 {
					return &s3.ListObjectsV2Output{
						Contents:              []types.Object{{Key: aws.String("p/a"), Size: aws.Int64(1)}},
						IsTruncated:           aws.Bool(true),
						NextContinuationToken: aws.String("token"),
					}, nil
				}
				assert.Equal(t, "token", aws.ToString(params.ContinuationToken))
				return &s3.ListObjectsV2Output{
					Contents: []types.Object{{Key: aws.String("p/b"), Size: aws.Int64(2)}},
				}, nil
			},
		}

		s := New(mock, billy.NewInMemoryFS(), nil)
		snap, err := s.SnapshotRemote(ctx, "bucket", "p", noFilter(t))
		require.NoError(t, err)

		assert.Equal(t, 2, calls)
		assert.Equal(t, []string{"a", "b"}, snap.Paths())
	})

	t.Run("filter applies to remote paths", func(t *testing.T) {
		mock := &mockS3Client{
			listObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				return &s3.ListObjectsV2Output{
					Contents: []types.Object{
						{Key: aws.String("p/.git/config"), Size: aws.Int64(1)},
						{Key: aws.String("p/kept.txt"), Size: aws.Int64(1)},
					},
				}, nil
			},
		}

		filter, err := exclude.New(exclude.Defaults(true))
		require.NoError(t, err)

		s := New(mock, billy.NewInMemoryFS(), nil)
		snap, err := s.SnapshotRemote(ctx, "bucket", "p", filter)
		require.NoError(t, err)

		assert.Equal(t, []string{"kept.txt"}, snap.Paths())
	})
}

func TestStatRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entry for existing object", func(t *testing.T) {
		mock := &mockS3Client{
			headObjectFunc: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return &s3.HeadObjectOutput{
					ContentLength: aws.Int64(42),
					ETag:          aws.String(`"FFEE"`),
				}, nil
			},
		}

		s := New(mock, billy.NewInMemoryFS(), nil)
		entry, err := s.StatRemote(ctx, "bucket", "some/key")
		require.NoError(t, err)

		assert.Equal(t, "", entry.RelPath)
		assert.Equal(t, int64(42), entry.Size)
		assert.Equal(t, "ffee", entry.Tag)
	})

	t.Run("missing object maps to the sentinel", func(t *testing.T) {
		mock := &mockS3Client{
			headObjectFunc: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "NotFound"}
			},
		}

		s := New(mock, billy.NewInMemoryFS(), nil)
		_, err := s.StatRemote(ctx, "bucket", "gone")
		require.Error(t, err)
		assert.True(t, errors.IsObjectNotFound(err))
	})
}

func TestRemoteHasChildren(t *testing.T) {
	ctx := context.Background()

	list := func(contents ...types.Object) *mockS3Client {
		return &mockS3Client{
			listObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				assert.Equal(t, "data/", aws.ToString(params.Prefix))
				return &s3.ListObjectsV2Output{
					Contents: contents,
					KeyCount: aws.Int32(int32(len(contents))),
				}, nil
			},
		}
	}

	t.Run("child object", func(t *testing.T) {
		s := New(list(types.Object{Key: aws.String("data/a.txt"), Size: aws.Int64(5)}), billy.NewInMemoryFS(), nil)
		has, err := s.RemoteHasChildren(ctx, "bucket", "data")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("bare directory marker", func(t *testing.T) {
		s := New(list(types.Object{Key: aws.String("data/"), Size: aws.Int64(0)}), billy.NewInMemoryFS(), nil)
		has, err := s.RemoteHasChildren(ctx, "bucket", "data")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("nothing under the prefix", func(t *testing.T) {
		s := New(list(), billy.NewInMemoryFS(), nil)
		has, err := s.RemoteHasChildren(ctx, "bucket", "data")
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "prefix/a.txt", JoinKey("prefix", "a.txt"))
	assert.Equal(t, "prefix/a.txt", JoinKey("prefix/", "a.txt"))
	assert.Equal(t, "prefix", JoinKey("prefix", ""))
	assert.Equal(t, "a.txt", JoinKey("", "a.txt"))
}

func TestJoinLocal(t *testing.T) {
	assert.Equal(t, filepath.Join("/root", "dir", "a.txt"), JoinLocal("/root", "dir/a.txt"))
	assert.Equal(t, "/root", JoinLocal("/root", ""))
}
