// Package errors provides error types and handling for s3lync operations.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents an s3lync operation error with context about the operation
// that failed. It wraps the underlying AWS SDK or filesystem error with
// additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "download", "plan")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3lync.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3lync.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3lync.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3lync.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// Sentinel errors for common s3lync operation failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("s3lync: object not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3lync: invalid input")

	// ErrInvalidURI indicates that an S3 URI could not be parsed
	ErrInvalidURI = errors.New("s3lync: invalid s3 uri")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("s3lync: invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("s3lync: invalid object key")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("s3lync: access denied")

	// ErrTooManyRequests indicates that the request rate is too high
	ErrTooManyRequests = errors.New("s3lync: too many requests")

	// ErrTimeout indicates that the operation timed out
	ErrTimeout = errors.New("s3lync: operation timeout")

	// ErrChecksumMismatch indicates that checksums don't match after a transfer
	ErrChecksumMismatch = errors.New("s3lync: checksum mismatch")

	// ErrKindMismatch indicates a path is a file on one side and a
	// directory on the other
	ErrKindMismatch = errors.New("s3lync: path kind mismatch")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// TransferError records the terminal failure of a single file's transfer or
// delete after retries are exhausted. Sibling transfers keep running; the
// collected TransferErrors are surfaced together in a SyncError.
type TransferError struct {
	// RelPath is the path relative to the sync root
	RelPath string

	// Op is the action that failed ("upload", "download", "delete")
	Op string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.RelPath, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a TransferError for the given action and path.
func NewTransferError(op, relPath string, err error) *TransferError {
	return &TransferError{RelPath: relPath, Op: op, Err: err}
}

// IntegrityError indicates that a post-transfer digest did not match the
// remote integrity tag when the two were comparable. It travels inside a
// TransferError but stays distinguishable with errors.As, so callers can
// treat corruption differently from transport failures.
type IntegrityError struct {
	// RelPath is the path relative to the sync root
	RelPath string

	// LocalDigest is the digest computed from the local file's bytes
	LocalDigest string

	// RemoteTag is the integrity tag reported by the object store
	RemoteTag string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: local=%s remote=%s", e.RelPath, e.LocalDigest, e.RemoteTag)
}

// Is matches ErrChecksumMismatch so errors.Is works without errors.As.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// PlanError indicates an ambiguous diff state that prevents a plan from
// being executed, such as a file/directory kind mismatch outside mirror
// mode. It is fatal: no transfer begins.
type PlanError struct {
	// RelPath is the ambiguous path
	RelPath string

	// Reason describes the ambiguity
	Reason string
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	return fmt.Sprintf("cannot plan %s: %s", e.RelPath, e.Reason)
}

// Is matches ErrKindMismatch.
func (e *PlanError) Is(target error) bool {
	return target == ErrKindMismatch
}

// SyncError aggregates all per-path failures from one sync operation. It is
// returned only after every task has settled, so partial success stays
// visible to the caller instead of being hidden behind a fail-fast abort.
type SyncError struct {
	// Failed holds one entry per path that could not be transferred or deleted
	Failed []*TransferError
}

// Error implements the error interface with a summary listing the failed paths.
func (e *SyncError) Error() string {
	if len(e.Failed) == 0 {
		return "sync failed"
	}
	paths := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		paths[i] = f.RelPath
	}
	return fmt.Sprintf("sync failed for %d path(s): %s", len(e.Failed), strings.Join(paths, ", "))
}

// Unwrap exposes the individual failures for errors.Is / errors.As traversal.
func (e *SyncError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}
