package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/profile"
)

func TestRunInterval_CombinesCollectorsAndFoldsRollingStats(t *testing.T) {
	agg := profile.New([]string{"LOADS", "STORES"}, profile.EventWeight{"LOADS": 1, "STORES": 2}, nil)

	collectors := profile.Collectors{
		AccessCounts: func() map[uint32][]uint64 {
			return map[uint32][]uint64{1: {10, 5}}
		},
		ArenaPebs: func() map[uint32]uint64 {
			return map[uint32]uint64{1: 100}
		},
	}

	ivs, err := agg.RunInterval(context.Background(), collectors)
	require.NoError(t, err)
	require.Contains(t, ivs, uint32(1))

	iv := ivs[1]
	assert.Equal(t, []uint64{10, 5}, iv.AccessCounts)
	assert.Equal(t, float64(10*1+5*2), iv.WeightedAccess)

	assert.Equal(t, uint64(15), agg.TotalAccess(1))
	assert.Len(t, agg.History(1), 1)
}

func TestRunInterval_AccumulatesHistoryAcrossIntervals(t *testing.T) {
	agg := profile.New([]string{"LOADS"}, nil, nil)

	for i := 0; i < 3; i++ {
		idx := i
		c := profile.Collectors{
			AccessCounts: func() map[uint32][]uint64 {
				return map[uint32][]uint64{1: {uint64(idx + 1)}}
			},
		}
		_, err := agg.RunInterval(context.Background(), c)
		require.NoError(t, err)
	}

	assert.Len(t, agg.History(1), 3)
	assert.Equal(t, uint64(1+2+3), agg.TotalAccess(1))
}

func TestArenaIDs_ReturnsEveryTrackedArena(t *testing.T) {
	agg := profile.New([]string{"LOADS"}, nil, nil)
	_, err := agg.RunInterval(context.Background(), profile.Collectors{
		AccessCounts: func() map[uint32][]uint64 {
			return map[uint32][]uint64{1: {1}, 2: {2}}
		},
	})
	require.NoError(t, err)

	ids := agg.ArenaIDs()
	assert.ElementsMatch(t, []uint32{1, 2}, ids)
}
