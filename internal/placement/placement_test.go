package placement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/arena"
	"github.com/lanl/SICM-sub001/internal/config"
	"github.com/lanl/SICM-sub001/internal/devicetable"
	"github.com/lanl/SICM-sub001/internal/placement"
	"github.com/lanl/SICM-sub001/internal/profile"
	"github.com/lanl/SICM-sub001/internal/registry"
)

func newTestTable(t *testing.T) *devicetable.DeviceTable {
	t.Helper()
	dt, err := devicetable.New([]devicetable.Device{
		{TagName: "DRAM", NumaNode: 0, PageSizeKiB: 4},
		{TagName: "PERSISTENT_NVM", NumaNode: 0, PageSizeKiB: 4},
	})
	require.NoError(t, err)
	return dt
}

// TestEngine_SkiStrategy_TriggersFullRebindWhenRentExceedsBuy exercises
// spec.md §8's ski-rental rebind scenario: a site hot in the lower tier
// whose "rent" for this interval (wasted access latency) exceeds the
// one-time "buy" cost of actually moving it.
func TestEngine_SkiStrategy_TriggersFullRebindWhenRentExceedsBuy(t *testing.T) {
	table := newTestTable(t)
	reg := registry.New()

	a, err := arena.Create(table, reg, 1<<20, 0, []int{1}, -1) // starts on the lower tier
	require.NoError(t, err)
	defer a.Destroy()

	cfg := &config.Config{OnlineStrategy: config.StrategySki}
	eng := placement.New(cfg, []int{0}, []int{1}, 1<<20, nil)
	eng.Register(a, placement.TierLower)

	intervals := map[uint32]*profile.Interval{
		a.ID(): {
			ArenaID:        a.ID(),
			ResidentBytes:  1024,
			WeightedAccess: 1_000_000, // large enough to make rent-cost dominate
		},
	}

	err = eng.Evaluate(context.Background(), intervals)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, a.Devices()) // rebound from the lower tier (1) to the upper tier (0)
}

// TestEngine_OrigStrategy_RebindsAfterConfiguredHotIntervals exercises
// spec.md §8's orig-strategy scenario: a site that stays hot for exactly
// SH_PROFILE_ONLINE_HOT_INTERVALS consecutive intervals gets rebound even
// though the full-rebind ratio gate never fires.
func TestEngine_OrigStrategy_RebindsAfterConfiguredHotIntervals(t *testing.T) {
	table := newTestTable(t)
	reg := registry.New()

	a, err := arena.Create(table, reg, 1<<20, 0, []int{1}, -1)
	require.NoError(t, err)
	defer a.Destroy()

	cfg := &config.Config{
		OnlineStrategy:          config.StrategyOrig,
		OnlineHotIntervals:      3,
		OnlineReconfWeightRatio: 1.0,
		OnlineGraceAccesses:     1e18, // never reached, so the full-rebind gate stays closed
	}
	eng := placement.New(cfg, []int{0}, []int{1}, 1<<30, nil)
	eng.Register(a, placement.TierLower)

	intervals := map[uint32]*profile.Interval{
		a.ID(): {ArenaID: a.ID(), ResidentBytes: 1024, WeightedAccess: 10},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, eng.Evaluate(context.Background(), intervals))
		if i < 2 {
			assert.Equal(t, []int{1}, a.Devices(), "rebound before the third hot interval")
		}
	}
	assert.Equal(t, []int{0}, a.Devices()) // rebound to the upper tier (0) on the third interval
}
