// Package sync groups the synchronization pipeline stages.
// The scanner snapshots both sides, the planner computes the diff, and the
// executor runs it under bounded concurrency; the engine composes them.
//
// The exclude, hasher, and retry packages hold the policies shared across
// the stages.
package sync
