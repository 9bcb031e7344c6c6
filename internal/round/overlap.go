package round

import (
	"sort"

	"github.com/missioncontrol/missionctl/internal/dispatcher"
	"github.com/missioncontrol/missionctl/internal/models"
)

// ResolveFileOverlaps adds a synthetic DependsOn edge between any two
// units whose FilesHint patterns overlap, using dispatcher.PatternsOverlap
// -- the exact overlap rule the Dispatcher's own runtime file-lock gate
// enforces, so a planner-time hint and the dispatch-time gate never
// disagree about what "overlap" means. Mutates units in place.
//
// No original_source/overlap.py exists in the retrieval pack despite
// round_controller.py importing resolve_file_overlaps from it; this is
// an original design against that gap, grounded in spec.md §4.6's own
// wording ("any two units whose files_hint overlap get a synthetic
// dependency edge between them (deterministic order)") plus the
// already-built Dispatcher overlap rule.
//
// Units are visited in a fixed order (sorted by ID) and an edge is only
// ever added from the later unit in that order to the earlier one, so
// the result is both deterministic and guaranteed acyclic: no pair can
// ever end up depending on each other.
func ResolveFileOverlaps(units []*models.WorkUnit) {
	ordered := make([]*models.WorkUnit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i := 1; i < len(ordered); i++ {
		later := ordered[i]
		for j := 0; j < i; j++ {
			earlier := ordered[j]
			if unitsOverlap(later, earlier) {
				later.DependsOn = appendIfMissing(later.DependsOn, earlier.ID)
			}
		}
	}
}

func unitsOverlap(a, b *models.WorkUnit) bool {
	for _, pa := range a.FilesHint {
		for _, pb := range b.FilesHint {
			if dispatcher.PatternsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func appendIfMissing(deps []string, id string) []string {
	for _, d := range deps {
		if d == id {
			return deps
		}
	}
	return append(deps, id)
}
