// Package scanner builds tree snapshots of both sides of a sync.
// This includes walking local directories and listing S3 objects.
//
// Snapshots are built fresh at the start of every sync call and are
// read-only afterwards.
package scanner
