package s3lync

import (
	"context"
	"io/fs"
	"os"

	forgefs "github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/bestend/s3lync/errors"
)

// File is an open handle on an S3Object's local copy. Handles opened for
// reading see content downloaded at Open time; handles opened for writing
// upload their content when closed cleanly.
type File struct {
	obj  *S3Object
	file forgefs.File

	// ctx carries the deadline and cancellation from Open into the upload
	// performed by Close
	ctx context.Context

	writable bool
	writeErr error
	closed   bool
}

// openFile implements S3Object.Open.
func openFile(ctx context.Context, o *S3Object, flag int) (*File, error) {
	writable := flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_TRUNC|os.O_CREATE) != 0

	if writable {
		if err := o.engine.EnsureLocalParent(); err != nil {
			return nil, err
		}
		flag |= os.O_CREATE
	} else {
		// Refresh the local copy so reads observe the current remote content
		if _, err := o.Download(ctx); err != nil {
			return nil, err
		}
	}

	f, err := o.fs.OpenFile(o.localPath, flag, 0o644)
	if err != nil {
		return nil, errors.NewObjectError("open", o.bucket, o.key, err)
	}

	return &File{
		obj:      o,
		file:     f,
		ctx:      ctx,
		writable: writable,
	}, nil
}

// Name returns the name of the underlying local file.
func (f *File) Name() string {
	return f.file.Name()
}

// Read reads from the local copy.
func (f *File) Read(p []byte) (int, error) {
	return f.file.Read(p) //nolint:wrapcheck // passthrough I/O keeps io.Reader semantics intact
}

// ReadAt reads from the local copy at the given offset.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off) //nolint:wrapcheck // passthrough I/O keeps io.ReaderAt semantics intact
}

// Seek sets the offset for the next read or write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence) //nolint:wrapcheck // passthrough I/O keeps io.Seeker semantics intact
}

// Stat returns the local file's metadata.
func (f *File) Stat() (fs.FileInfo, error) {
	return f.file.Stat() //nolint:wrapcheck // passthrough I/O keeps fs semantics intact
}

// Write writes to the local copy. The first write error is remembered and
// suppresses the upload on Close so a partially written file never
// replaces the remote object.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	if err != nil && f.writeErr == nil {
		f.writeErr = err
	}
	return n, err //nolint:wrapcheck // passthrough I/O keeps io.Writer semantics intact
}

// Close closes the local file and, for handles opened for writing,
// uploads the content to S3. The upload is skipped when any Write failed
// or when the underlying close fails; the recorded error is returned in
// that case.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	closeErr := f.file.Close()

	if !f.writable {
		if closeErr != nil {
			return errors.NewObjectError("close", f.obj.bucket, f.obj.key, closeErr)
		}
		return nil
	}

	if f.writeErr != nil {
		return errors.NewObjectError("close", f.obj.bucket, f.obj.key, f.writeErr).
			WithMessage("upload skipped after failed write")
	}
	if closeErr != nil {
		return errors.NewObjectError("close", f.obj.bucket, f.obj.key, closeErr).
			WithMessage("upload skipped after failed close")
	}

	if _, err := f.obj.Upload(f.ctx); err != nil {
		return err
	}
	return nil
}
