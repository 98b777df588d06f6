package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"SH_DEFAULT_DEVICE", "SH_UPPER_DEVICE", "SH_LOWER_DEVICE",
		"SH_PROFILE_ONLINE_STRAT", "SH_PROFILE_ONLINE_HOT_INTERVALS",
	} {
		require.NoError(t, os.Unsetenv(k))
	}

	c := config.Load()
	assert.Equal(t, config.StrategySki, c.OnlineStrategy)
	assert.Equal(t, 1, c.LowerDevice)
	assert.Equal(t, 3, c.OnlineHotIntervals)
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("SH_PROFILE_ONLINE_STRAT", "orig")
	t.Setenv("SH_UPPER_DEVICE", "2")
	t.Setenv("SH_PROFILE_PEBS_EVENTS", "EVENT_A, EVENT_B ,EVENT_C")

	c := config.Load()
	assert.Equal(t, config.StrategyOrig, c.OnlineStrategy)
	assert.Equal(t, 2, c.UpperDevice)
	assert.Equal(t, []string{"EVENT_A", "EVENT_B", "EVENT_C"}, c.ProfilePebsEvents)
}
