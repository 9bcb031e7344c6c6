package round

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// defaultMaxDiscoveryChars mirrors the reference implementation's
// _curate_discoveries default budget.
const defaultMaxDiscoveryChars = 4000

// CurateDiscoveries trims a list of discovery strings to a total
// character budget, keeping items in insertion order until adding the
// next one would exceed the budget. The item that would overflow the
// budget is not dropped outright -- it is truncated at the last
// Unicode sentence boundary that still fits, so the digest carried
// into the next round's planner prompt ends on a complete thought
// instead of mid-word. Ported from
// original_source/round_controller.py's _curate_discoveries, which
// truncates on a naive byte slice; uax29 lets us do better in Go.
func CurateDiscoveries(discoveries []string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultMaxDiscoveryChars
	}

	out := make([]string, 0, len(discoveries))
	total := 0
	for _, d := range discoveries {
		if total+len(d) <= maxChars {
			out = append(out, d)
			total += len(d)
			continue
		}

		remaining := maxChars - total
		if remaining <= 0 {
			break
		}
		if truncated := truncateAtSentenceBoundary(d, remaining); truncated != "" {
			out = append(out, truncated)
		}
		break
	}
	return out
}

// truncateAtSentenceBoundary returns the longest prefix of s, made up
// of whole sentences per the Unicode sentence-segmentation algorithm,
// that fits within budget bytes, with the trailing whitespace the last
// sentence segment carries removed. Returns "" if not even the first
// sentence fits.
func truncateAtSentenceBoundary(s string, budget int) string {
	var kept string
	for seg := range sentences.FromString(s) {
		candidate := kept + seg.String()
		if len(candidate) > budget {
			break
		}
		kept = candidate
	}
	return strings.TrimRightFunc(kept, unicode.IsSpace)
}
