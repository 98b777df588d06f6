package rangeset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/rangeset"
)

func TestAdd_CoalescesAdjacentRanges(t *testing.T) {
	rs := rangeset.New(1 << 20)

	require.NoError(t, rs.Add(0x1000, 0x1000))
	require.NoError(t, rs.Add(0x2000, 0x1000)) // adjacent to the right
	require.NoError(t, rs.Add(0x0000, 0x1000)) // adjacent to the left

	require.Equal(t, 1, rs.Len())
	assert.Equal(t, uintptr(0x3000), rs.Size())
}

func TestAdd_OverlapIsRejected(t *testing.T) {
	rs := rangeset.New(1 << 20)
	require.NoError(t, rs.Add(0x1000, 0x2000))

	err := rs.Add(0x1800, 0x1000)
	require.Error(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestAdd_RespectsMaxSize(t *testing.T) {
	rs := rangeset.New(0x1000)
	require.NoError(t, rs.Add(0x1000, 0x1000))

	assert.True(t, rs.WouldExceedMax(1))
	err := rs.Add(0x2000, 0x1000)
	require.Error(t, err)
}

func TestRemove_ExactMatch(t *testing.T) {
	rs := rangeset.New(1 << 20)
	require.NoError(t, rs.Add(0x1000, 0x1000))
	require.NoError(t, rs.Remove(0x1000, 0x1000))
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, uintptr(0), rs.Size())
}

func TestRemove_SplitsInteriorHole(t *testing.T) {
	rs := rangeset.New(1 << 20)
	require.NoError(t, rs.Add(0x1000, 0x3000)) // [0x1000, 0x4000)

	require.NoError(t, rs.Remove(0x2000, 0x1000)) // carve out [0x2000,0x3000)

	require.Equal(t, 2, rs.Len())
	ranges := rs.Ranges()
	assert.Equal(t, uintptr(0x1000), ranges[0].Start)
	assert.Equal(t, uintptr(0x2000), ranges[0].End)
	assert.Equal(t, uintptr(0x3000), ranges[1].Start)
	assert.Equal(t, uintptr(0x4000), ranges[1].End)
}

func TestRemove_UncoveredRangeFails(t *testing.T) {
	rs := rangeset.New(1 << 20)
	require.NoError(t, rs.Add(0x1000, 0x1000))

	err := rs.Remove(0x5000, 0x1000)
	assert.Error(t, err)
}

func TestIter_VisitsInOrder(t *testing.T) {
	rs := rangeset.New(1 << 20)
	require.NoError(t, rs.Add(0x5000, 0x1000))
	require.NoError(t, rs.Add(0x1000, 0x1000))

	var starts []uintptr
	rs.Iter(func(r rangeset.Range) bool {
		starts = append(starts, r.Start)
		return true
	})
	assert.Equal(t, []uintptr{0x1000, 0x5000}, starts)
}
