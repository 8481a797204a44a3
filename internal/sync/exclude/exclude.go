// Package exclude decides which relative paths participate in a sync
// operation. Paths matching any active pattern are removed from both the
// local and remote listings before diffing, so mirrored deletion never
// touches an entry that was never governed by the sync.
package exclude

import (
	"regexp"

	"github.com/bestend/s3lync/errors"
)

// Default patterns, active unless replaced at object construction time.
// Hidden paths (any segment beginning with a dot), Python bytecode caches,
// and egg-info metadata directories.
const (
	hiddenPattern      = `(^|/)\.[^/]`
	pycachePattern     = `(^|/)__pycache__(/|$)`
	eggInfoPattern     = `\.egg-info(/|$)`
	defaultPatternsCap = 3
)

// Defaults returns the default exclude patterns. The hidden-file pattern is
// omitted when excludeHidden is false.
func Defaults(excludeHidden bool) []string {
	patterns := make([]string, 0, defaultPatternsCap)
	if excludeHidden {
		patterns = append(patterns, hiddenPattern)
	}
	patterns = append(patterns, pycachePattern, eggInfoPattern)
	return patterns
}

// Filter evaluates an ordered set of regular-expression patterns against
// relative paths. A Filter is immutable once built and safe for concurrent
// use. Pattern matching is unanchored: a pattern matches anywhere in the
// path unless it anchors itself.
type Filter struct {
	patterns []string
	compiled []*regexp.Regexp
}

// New compiles the given patterns into a Filter. An invalid pattern is a
// configuration failure surfaced before any I/O happens.
func New(patterns []string) (*Filter, error) {
	f := &Filter{
		patterns: make([]string, 0, len(patterns)),
		compiled: make([]*regexp.Regexp, 0, len(patterns)),
	}

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.NewError("compileExcludePattern", errors.ErrInvalidInput).
				WithMessage("invalid exclude pattern " + p)
		}
		f.patterns = append(f.patterns, p)
		f.compiled = append(f.compiled, re)
	}

	return f, nil
}

// Append returns a new Filter with the extra patterns added after the
// receiver's. The receiver is not modified: construction-time patterns
// replace the defaults, per-call patterns only ever append.
func (f *Filter) Append(patterns []string) (*Filter, error) {
	if len(patterns) == 0 {
		return f, nil
	}

	combined := make([]string, 0, len(f.patterns)+len(patterns))
	combined = append(combined, f.patterns...)
	combined = append(combined, patterns...)
	return New(combined)
}

// Matches reports whether relPath is excluded from the operation.
// The first matching pattern short-circuits.
func (f *Filter) Matches(relPath string) bool {
	for _, re := range f.compiled {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

// Patterns returns the active pattern set in evaluation order.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}
