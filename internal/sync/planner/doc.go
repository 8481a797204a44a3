// Package planner computes diff plans for sync operations.
// This includes determining which files need to be transferred, skipped,
// or deleted.
//
// The planner is a pure function of the two snapshots: no I/O, no clock,
// no randomness. Every filtered path from either snapshot lands in exactly
// one of the plan's three sets.
package planner
