package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, start, end uint16) Range {
	r, err := NewRange(start, end)
	require.NoError(t, err)
	return r
}

func TestPlanRangesMergesAdjacent(t *testing.T) {
	in := []Range{mustRange(t, 0, 9), mustRange(t, 10, 19)}
	out, err := PlanRanges(in, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, []Range{mustRange(t, 0, 19)}, out)
}

func TestPlanRangesSplitsOnMaxLength(t *testing.T) {
	in := []Range{mustRange(t, 0, 9)}
	out, err := PlanRanges(in, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []Range{
		mustRange(t, 0, 3),
		mustRange(t, 4, 7),
		mustRange(t, 8, 9),
	}, out)
}

func TestPlanRangesRespectsAllowedWaste(t *testing.T) {
	in := []Range{mustRange(t, 0, 4), mustRange(t, 10, 14)}

	out, err := PlanRanges(in, 100, 4)
	require.NoError(t, err)
	assert.Len(t, out, 2, "gap of 5 exceeds allowedWaste of 4, ranges stay separate")

	out, err = PlanRanges(in, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, []Range{mustRange(t, 0, 14)}, out, "gap of 5 is within allowedWaste of 5")
}

func TestPlanRangesMonotonicInAllowedWaste(t *testing.T) {
	in := []Range{mustRange(t, 0, 4), mustRange(t, 20, 24), mustRange(t, 40, 44)}

	narrow, err := PlanRanges(in, 100, 0)
	require.NoError(t, err)
	wide, err := PlanRanges(in, 100, 100)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(narrow), len(wide), "increasing allowedWaste must not increase output range count")
}

func TestPlanRangesCoversEveryInputAddress(t *testing.T) {
	in := []Range{mustRange(t, 3, 7), mustRange(t, 5, 20), mustRange(t, 100, 100)}
	out, err := PlanRanges(in, 12, 2)
	require.NoError(t, err)

	covered := make(map[uint16]bool)
	for _, r := range out {
		assert.LessOrEqual(t, r.Length(), 12)
		for a := r.Start; ; a++ {
			covered[a] = true
			if a == r.End {
				break
			}
		}
	}
	for a := uint16(3); a <= 20; a++ {
		assert.True(t, covered[a], "address %d must be covered", a)
	}
	assert.True(t, covered[100])
}

func TestPlanRangesRejectsInvertedInput(t *testing.T) {
	_, err := PlanRanges([]Range{{Start: 5, End: 2}}, 100, 0)
	assert.Error(t, err)
}

func TestPlanRangesEmptyInput(t *testing.T) {
	out, err := PlanRanges(nil, 100, 0)
	require.NoError(t, err)
	assert.Nil(t, out)
}
