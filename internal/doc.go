// Package internal contains private implementation details for the s3lync module.
// These packages are not intended for external use and may change without notice.
//
// The internal packages are organized as follows:
//   - s3api: The S3 client interface boundary
//   - sync: Snapshotting, diffing, and executing sync operations
//   - validation: Input validation logic
//   - pool: Reusable copy buffers for streaming transfers
package internal
