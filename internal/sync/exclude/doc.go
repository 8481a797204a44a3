// Package exclude decides which relative paths participate in a sync
// operation. Paths matching any active pattern are removed from both the
// local and remote listings before diffing, so mirrored deletion never
// touches an entry that was never governed by the sync.
package exclude
