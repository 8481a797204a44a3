// Package engine composes the sync pipeline: snapshot both sides, compute
// the diff plan, execute it. One Manager is bound to a bucket/key pair and
// a local path; every operation moves through the phases
// Idle → Scanning → Diffing → Transferring → (Deleting) → Done or Failed.
package engine
