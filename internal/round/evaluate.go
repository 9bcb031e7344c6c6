package round

import (
	"github.com/missioncontrol/missionctl/internal/models"
)

// Evaluation is the outcome of evaluating one round's progress toward
// the mission objective.
type Evaluation struct {
	Score float64
	Met   bool
}

// objectiveMetThreshold is the default score above which a round with
// no outstanding failures and full unit completion is considered to
// have met its objective.
const objectiveMetThreshold = 0.9

// EvaluateObjective computes a round's score and objective_met decision
// deterministically from the before/after project-health snapshots,
// the round's unit completion counts, whether GreenBranchManager's
// fixup promoted a repair, and the previous round's score.
//
// No original_source/evaluator.py exists in the retrieval pack despite
// round_controller.py importing evaluate_objective from it; this
// function is an original design against that gap, grounded in
// spec.md §4.6's own wording ("evaluate objective deterministically
// from before/after snapshots, unit counts, fixup outcome, and
// previous-round score") and built directly on the already-existing
// models.SnapshotDelta.Improved()/Regressed() methods, which exist for
// exactly this comparison.
//
// Score blends two signals: the fraction of this round's units that
// reached completed (dispatch progress), and a project-health term
// derived from the snapshot delta (did the codebase actually get
// better, worse, or unchanged). A fixup that promoted a repair nudges
// the health term up, since it recovered from an otherwise-regressed
// state. When the snapshot delta shows a regression and the prior
// round's score is positive, the score is capped at 80% of that prior
// score, so a backslide is always visible to stall/trend-based stopping
// conditions rather than masked by unit-completion volume.
func EvaluateObjective(before, after models.Snapshot, completedUnits, totalUnits int, fixupPromoted bool, prevScore float64) Evaluation {
	delta := models.CompareSnapshots(before, after)

	completion := 1.0
	if totalUnits > 0 {
		completion = float64(completedUnits) / float64(totalUnits)
	}

	health := 0.5
	switch {
	case delta.Regressed():
		health = 0.0
	case delta.Improved():
		health = 1.0
	}
	if fixupPromoted && health < 1.0 {
		health += 0.2
	}

	score := 0.6*completion + 0.4*health
	score = clamp01(score)

	if delta.Regressed() && prevScore > 0 && score > prevScore*0.8 {
		score = prevScore * 0.8
	}

	met := completion == 1.0 &&
		!delta.Regressed() &&
		after.TestFailed == 0 &&
		after.SecurityFindings == 0 &&
		score >= objectiveMetThreshold

	return Evaluation{Score: score, Met: met}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
