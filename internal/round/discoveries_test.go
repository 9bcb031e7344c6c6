package round

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurateDiscoveriesKeepsItemsUnderBudget(t *testing.T) {
	in := []string{"first finding.", "second finding.", "third finding."}
	out := CurateDiscoveries(in, 1000)
	require.Equal(t, in, out)
}

func TestCurateDiscoveriesTruncatesOverflowItemAtSentenceBoundary(t *testing.T) {
	in := []string{
		"Discovered a caching layer. It was never invalidated on write. This caused stale reads under load.",
	}
	out := CurateDiscoveries(in, 45)
	require.Len(t, out, 1)
	require.True(t, strings.HasSuffix(out[0], "."), "truncated discovery should end on a sentence boundary, got %q", out[0])
	require.LessOrEqual(t, len(out[0]), 45)
	require.True(t, strings.HasPrefix(in[0], out[0]))
}

func TestCurateDiscoveriesDropsOverflowItemWhenNoSentenceFits(t *testing.T) {
	in := []string{"a very long single sentence with no punctuation at all to break on whatsoever"}
	out := CurateDiscoveries(in, 5)
	require.Empty(t, out)
}

func TestCurateDiscoveriesStopsAfterFirstOverflowingItem(t *testing.T) {
	in := []string{"short one.", "this one overflows the remaining budget entirely and more.", "never reached."}
	out := CurateDiscoveries(in, 15)
	require.Len(t, out, 1)
	require.Equal(t, "short one.", out[0])
}

func TestCurateDiscoveriesDefaultsBudgetWhenNonPositive(t *testing.T) {
	out := CurateDiscoveries([]string{"x"}, 0)
	require.Equal(t, []string{"x"}, out)
}
