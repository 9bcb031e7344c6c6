package dispatcher

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// FileLockRegistry tracks which work unit has claimed which file path
// patterns, and gates dispatch: a unit otherwise ready is held back if
// any of its files_hint patterns overlap a path pattern currently
// claimed by a running unit. This enforces spec.md's universal
// invariant that no two running units ever hold overlapping file
// claims, rather than relying solely on the planner's (possibly
// incomplete) dependency edges.
type FileLockRegistry struct {
	mu     sync.Mutex
	claims map[string][]string // unit id -> claimed patterns
}

// NewFileLockRegistry constructs an empty registry.
func NewFileLockRegistry() *FileLockRegistry {
	return &FileLockRegistry{claims: make(map[string][]string)}
}

// Claim attempts to claim paths for unitID. Returns the list of
// conflicting patterns (empty means the claim succeeded and is now
// held). A unit re-claiming its own previously-held paths never
// conflicts with itself.
func (r *FileLockRegistry) Claim(unitID string, paths []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(paths) == 0 {
		return nil
	}

	var conflicts []string
	for _, p := range paths {
		for heldUnit, held := range r.claims {
			if heldUnit == unitID {
				continue
			}
			for _, h := range held {
				if patternsOverlap(p, h) {
					conflicts = append(conflicts, p)
					break
				}
			}
		}
	}
	if len(conflicts) > 0 {
		return conflicts
	}
	r.claims[unitID] = paths
	return nil
}

// Release frees every path held by unitID.
func (r *FileLockRegistry) Release(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, unitID)
}

// HasConflict reports whether paths overlap any currently held claim
// other than unitID's own, without attempting to claim anything -- used
// by the dispatch-readiness check, which must not mutate state just to
// look.
func (r *FileLockRegistry) HasConflict(unitID string, paths []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range paths {
		for heldUnit, held := range r.claims {
			if heldUnit == unitID {
				continue
			}
			for _, h := range held {
				if patternsOverlap(p, h) {
					return true
				}
			}
		}
	}
	return false
}

// PatternsOverlap reports whether two files_hint entries can ever match
// the same path. Exported so the planner-time file-overlap resolution
// pass (internal/round) can inject synthetic dependency edges using
// exactly the same overlap rule this package's runtime file-lock gate
// enforces -- a plan-time hint and a dispatch-time gate computing
// overlap two different ways would be a correctness trap waiting to
// happen.
func PatternsOverlap(a, b string) bool {
	return patternsOverlap(a, b)
}

// patternsOverlap reports whether two files_hint entries can ever match
// the same path. Plain paths (no glob metacharacters) use the
// directory-containment rule a literal path claim implies (a claim
// ending in "/" covers everything under it); a pattern containing glob
// metacharacters is compared by testing whether it matches the other
// side's concrete literal prefix, via doublestar -- the same library
// internal/gitops-style teacher code in the pack uses for **-aware glob
// matching.
func patternsOverlap(a, b string) bool {
	if a == b {
		return true
	}

	aGlob := isGlob(a)
	bGlob := isGlob(b)

	switch {
	case !aGlob && !bGlob:
		return literalPathsOverlap(a, b)
	case aGlob && !bGlob:
		return globMatchesOrContains(a, b)
	case !aGlob && bGlob:
		return globMatchesOrContains(b, a)
	default:
		// Both are globs: conservatively treat them as overlapping
		// only when they share a literal directory prefix, since
		// general glob-vs-glob intersection is undecidable in
		// general and a false positive here only costs a dispatch
		// delay, never correctness.
		return sharedLiteralPrefix(a, b)
	}
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func literalPathsOverlap(a, b string) bool {
	aNorm := strings.TrimSuffix(a, "/")
	bNorm := strings.TrimSuffix(b, "/")
	if aNorm == bNorm {
		return true
	}
	aDir := strings.HasSuffix(a, "/")
	bDir := strings.HasSuffix(b, "/")
	if aDir && isUnder(bNorm, aNorm) {
		return true
	}
	if bDir && isUnder(aNorm, bNorm) {
		return true
	}
	return false
}

func isUnder(child, parent string) bool {
	prefix := parent + "/"
	return strings.HasPrefix(child, prefix) && child != parent
}

func globMatchesOrContains(glob, literal string) bool {
	ok, err := doublestar.Match(glob, strings.TrimSuffix(literal, "/"))
	if err == nil && ok {
		return true
	}
	return sharedLiteralPrefix(glob, literal)
}

// sharedLiteralPrefix compares the non-glob directory prefix of each
// pattern (everything before its first meta character).
func sharedLiteralPrefix(a, b string) bool {
	return literalPrefix(a) == literalPrefix(b)
}

func literalPrefix(p string) string {
	idx := strings.IndexAny(p, "*?[{")
	if idx < 0 {
		return p
	}
	prefix := p[:idx]
	if slash := strings.LastIndex(prefix, "/"); slash >= 0 {
		return prefix[:slash]
	}
	return ""
}
