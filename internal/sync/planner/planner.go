// Package planner computes diff plans for sync operations.
// This includes determining which files need to be transferred, skipped,
// or deleted.
//
// The planner is a pure function of the two snapshots: no I/O, no clock,
// no randomness. Every filtered path from either snapshot lands in exactly
// one of the plan's three sets.
package planner

import (
	"sort"
	"strings"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/sync/hasher"
	"github.com/bestend/s3lync/s3types"
)

// Planner computes diff plans between a source and a destination snapshot.
type Planner struct {
	// checkHash enables digest comparison; without it, existence at the
	// destination is the only in-sync signal
	checkHash bool

	// assumeMultipartInSync treats existence plus equal size as in-sync
	// when the destination tag is not a comparable digest
	assumeMultipartInSync bool
}

// New creates a planner with the given comparison policy.
func New(checkHash, assumeMultipartInSync bool) *Planner {
	return &Planner{
		checkHash:             checkHash,
		assumeMultipartInSync: assumeMultipartInSync,
	}
}

// Plan partitions the union of both snapshots' paths into transfer, skip
// and delete sets. The delete set is populated only in mirror mode. A
// path that is a file on one side and a directory on the other is a
// PlanError outside mirror mode; in mirror mode the destination entry
// resolves through the delete set and the executor orders the conflicting
// deletes ahead of the transfers.
func (p *Planner) Plan(
	source, dest *s3types.TreeSnapshot,
	direction s3types.Direction,
	mirror bool,
) (*s3types.DiffPlan, error) {
	plan := &s3types.DiffPlan{Direction: direction}

	sourcePaths := source.Paths()
	destPaths := dest.Paths()
	destDirs := dirPrefixes(destPaths)
	sourceDirs := dirPrefixes(sourcePaths)

	if !mirror {
		if conflict, found := findKindConflict(sourcePaths, destPaths, sourceDirs, destDirs, source, dest); found {
			return nil, &errors.PlanError{
				RelPath: conflict,
				Reason:  "path is a file on one side and a directory on the other",
			}
		}
	}

	for _, relPath := range sourcePaths {
		src := source.Lookup(relPath)
		dst := dest.Lookup(relPath)

		if dst == nil {
			plan.Transfers = append(plan.Transfers, s3types.PlannedOp{
				RelPath: relPath,
				Action:  s3types.ActionTransfer,
				Size:    src.Size,
				Reason:  "missing at destination",
			})
			continue
		}

		equal, reason := p.entriesEqual(src, dst)
		if equal {
			plan.Skips = append(plan.Skips, s3types.PlannedOp{
				RelPath: relPath,
				Action:  s3types.ActionSkip,
				Size:    src.Size,
				Reason:  reason,
			})
		} else {
			plan.Transfers = append(plan.Transfers, s3types.PlannedOp{
				RelPath: relPath,
				Action:  s3types.ActionTransfer,
				Size:    src.Size,
				Reason:  reason,
			})
		}
	}

	if mirror {
		for _, relPath := range destPaths {
			if source.Lookup(relPath) != nil {
				continue
			}
			dst := dest.Lookup(relPath)
			plan.Deletes = append(plan.Deletes, s3types.PlannedOp{
				RelPath: relPath,
				Action:  s3types.ActionDelete,
				Size:    dst.Size,
				Reason:  "extra destination entry",
			})
		}
	}

	return plan, nil
}

// entriesEqual decides whether a source entry and the destination entry at
// the same path are in sync, returning the decision and its reason.
func (p *Planner) entriesEqual(src, dst *s3types.PathEntry) (bool, string) {
	if src.ScanErr != nil || dst.ScanErr != nil {
		// One side could not be digested; force the transfer so the
		// failure surfaces as that file's task
		return false, "digest unavailable"
	}

	if !p.checkHash {
		// Without hash checking, existence at the destination is the
		// only signal available
		return true, "exists at destination"
	}

	if hasher.IsComparable(src.Tag) && hasher.IsComparable(dst.Tag) {
		if hasher.Matches(src.Tag, dst.Tag) {
			return true, "digest match"
		}
		return false, "digest differs"
	}

	// One side carries a composite multipart tag: no strong verification
	// is possible for this entry
	if p.assumeMultipartInSync {
		if src.Size == dst.Size {
			return true, "size match, tag not comparable"
		}
		return false, "size differs"
	}
	return false, "tag not comparable"
}

// dirPrefixes returns the set of every proper directory prefix implied by
// the given slash-separated paths.
func dirPrefixes(paths []string) map[string]bool {
	dirs := make(map[string]bool)
	for _, p := range paths {
		for {
			i := strings.LastIndexByte(p, '/')
			if i < 0 {
				break
			}
			p = p[:i]
			if dirs[p] {
				break
			}
			dirs[p] = true
		}
	}
	return dirs
}

// findKindConflict returns the first path (in sorted order) that is a file
// in one snapshot and an implied directory in the other. The empty relative
// path names the root itself, so a root file on one side conflicts with any
// tree on the other.
func findKindConflict(
	sourcePaths, destPaths []string,
	sourceDirs, destDirs map[string]bool,
	source, dest *s3types.TreeSnapshot,
) (string, bool) {
	// Root-level mismatch: one side is a single file (""), the other a tree
	if source.Lookup("") != nil && dest.Len() > 0 && dest.Lookup("") == nil {
		return "", true
	}
	if dest.Lookup("") != nil && source.Len() > 0 && source.Lookup("") == nil {
		return "", true
	}

	var conflicts []string
	for _, sp := range sourcePaths {
		if sp != "" && destDirs[sp] {
			conflicts = append(conflicts, sp)
		}
	}
	for _, dp := range destPaths {
		if dp != "" && sourceDirs[dp] {
			conflicts = append(conflicts, dp)
		}
	}
	if len(conflicts) == 0 {
		return "", false
	}
	sort.Strings(conflicts)
	return conflicts[0], true
}
