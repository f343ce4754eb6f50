package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateStringCountsRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncateString("héllo", 5))
	assert.Equal(t, "hé...", TruncateString("héllo", 2))
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SortedUnique([]string{"b", "", "a", "b"}))
	assert.Empty(t, SortedUnique(nil))
}

func TestNormalizeAll(t *testing.T) {
	assert.Equal(t, []string{"proven", "fast acting"}, NormalizeAll([]string{" Proven ", "", "FAST acting"}))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 3, RoundHalfAwayFromZero(2.5))
	assert.Equal(t, -3, RoundHalfAwayFromZero(-2.5))
	assert.Equal(t, 33.33, RoundTo(100.0/3, 2))
	assert.Equal(t, 2.5, MeanInt([]int{2, 3}))
	assert.Zero(t, MeanInt(nil))
	assert.Equal(t, 10, ClampInt(42, 1, 10))
	assert.Equal(t, 2, Min(2, 7))
}
