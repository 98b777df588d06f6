package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankSites_OrdersByValuePerByteDescending(t *testing.T) {
	sites := []*Site{
		{ArenaID: 1, Weight: 1000, Value: 100}, // 0.1/byte
		{ArenaID: 2, Weight: 1000, Value: 500}, // 0.5/byte
		{ArenaID: 3, Weight: 2000, Value: 200}, // 0.1/byte, larger
	}
	rankSites(sites)

	assert.Equal(t, uint32(2), sites[0].ArenaID)
	// sites 1 and 3 tie on value/byte; smaller (site 1) sorts first.
	assert.Equal(t, uint32(1), sites[1].ArenaID)
	assert.Equal(t, uint32(3), sites[2].ArenaID)
}

func TestCutHotset_MarksHotUntilCapacityExhausted(t *testing.T) {
	sites := []*Site{
		{ArenaID: 1, Weight: 400, Value: 400},
		{ArenaID: 2, Weight: 400, Value: 400},
		{ArenaID: 3, Weight: 400, Value: 400},
	}
	rankSites(sites)
	cutHotset(sites, 900)

	hot := map[uint32]bool{}
	for _, s := range sites {
		hot[s.ArenaID] = s.Hot
	}
	hotCount := 0
	for _, v := range hot {
		if v {
			hotCount++
		}
	}
	assert.Equal(t, 2, hotCount)
}

func TestCutHotset_TracksConsecutiveHotIntervals(t *testing.T) {
	sites := []*Site{{ArenaID: 1, Weight: 100, Value: 100}}

	cutHotset(sites, 1000)
	assert.Equal(t, 1, sites[0].NumHotIntervals)

	cutHotset(sites, 1000)
	assert.Equal(t, 2, sites[0].NumHotIntervals)

	cutHotset(sites, 0)
	assert.Equal(t, 0, sites[0].NumHotIntervals)
}

func TestPenaltyMove_FloorsAtMinimum(t *testing.T) {
	assert.Equal(t, minMovePenaltyMs, penaltyMove(1))
	assert.Greater(t, penaltyMove(1<<30), minMovePenaltyMs)
}

func TestPenaltyStayOrDisplace_ScalesWithAccesses(t *testing.T) {
	assert.Equal(t, 0.0, penaltyStayOrDisplace(0))
	assert.Greater(t, penaltyStayOrDisplace(1000), penaltyStayOrDisplace(500))
}

func TestNeedsRebind(t *testing.T) {
	assert.True(t, needsRebind(&Site{Tier: TierUnbound, Hot: true}))
	assert.True(t, needsRebind(&Site{Tier: TierLower, Hot: true}))
	assert.True(t, needsRebind(&Site{Tier: TierUpper, Hot: false}))
	assert.False(t, needsRebind(&Site{Tier: TierUpper, Hot: true}))
	assert.False(t, needsRebind(&Site{Tier: TierLower, Hot: false}))
}
