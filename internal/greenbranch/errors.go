package greenbranch

import "errors"

var (
	// ErrSpeculativeBranchFailed means the speculative-batch protocol
	// itself broke (branch creation or checkout failed) before any unit
	// could be tested, not that a unit's content conflicted.
	ErrSpeculativeBranchFailed = errors.New("speculative batch branch setup failed")
	// ErrNoFixupCandidatePassed means every parallel fixup attempt left
	// verification failing, so RunFixup has nothing to merge.
	ErrNoFixupCandidatePassed = errors.New("no fixup candidate passed verification")
)
