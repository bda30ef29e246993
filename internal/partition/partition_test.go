package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitTilesRange checks the partition property for a grid of (n, w):
// ranges are contiguous, disjoint, cover [0, n) and differ in size by at
// most one.
func TestSplitTilesRange(t *testing.T) {
	for n := 0; n <= 40; n++ {
		for w := 1; w <= 12; w++ {
			ranges := Split(n, w)
			require.Len(t, ranges, w)

			next, total := 0, 0
			minSize, maxSize := n, 0
			for i, r := range ranges {
				assert.Equal(t, next, r.Offset, "n=%d w=%d worker=%d", n, w, i)
				next = r.End()
				total += r.Size
				minSize = min(minSize, r.Size)
				maxSize = max(maxSize, r.Size)
				assert.Equal(t, r, Of(n, w, i))
			}
			assert.Equal(t, n, total, "n=%d w=%d", n, w)
			assert.Equal(t, n, next, "n=%d w=%d", n, w)
			assert.LessOrEqual(t, maxSize-minSize, 1, "n=%d w=%d", n, w)
		}
	}
}

func TestSplitExtraGoesToFirstWorkers(t *testing.T) {
	got := Split(10, 4)
	want := []Range{
		{Offset: 0, Size: 3},
		{Offset: 3, Size: 3},
		{Offset: 6, Size: 2},
		{Offset: 8, Size: 2},
	}
	assert.Equal(t, want, got)
}

func TestSplitFewerItemsThanWorkers(t *testing.T) {
	got := Split(2, 5)
	assert.Equal(t, Range{Offset: 0, Size: 1}, got[0])
	assert.Equal(t, Range{Offset: 1, Size: 1}, got[1])
	for _, r := range got[2:] {
		assert.True(t, r.Empty())
		assert.Equal(t, 2, r.Offset)
	}
}

func TestSplitPanicsOnBadInput(t *testing.T) {
	assert.Panics(t, func() { Split(10, 0) })
	assert.Panics(t, func() { Split(-1, 2) })
	assert.Panics(t, func() { Of(10, 2, 2) })
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "[3, 7)", Range{Offset: 3, Size: 4}.String())
}
