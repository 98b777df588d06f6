package sicm_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/devicetable"
	"github.com/lanl/SICM-sub001/sicm"
)

func testDevices() []devicetable.Device {
	return []devicetable.Device{
		{TagName: "DRAM", NumaNode: 0, PageSizeKiB: 4},
		{TagName: "PERSISTENT_NVM", NumaNode: 0, PageSizeKiB: 4},
	}
}

func TestInitCreateAllocFreeFini(t *testing.T) {
	ctx, err := sicm.Init(testDevices())
	require.NoError(t, err)
	defer ctx.Fini()

	a, err := ctx.CreateArena(1<<20, 0, []int{0})
	require.NoError(t, err)

	ptr, err := a.Alloc(128)
	require.NoError(t, err)
	require.NotZero(t, ptr)

	found, ok := ctx.Lookup(ptr)
	require.True(t, ok)
	assert.Equal(t, a.ID(), found.ID())

	require.NoError(t, a.Free(ptr))
}

func TestPageSize_MatchesOSPageSize(t *testing.T) {
	assert.Positive(t, sicm.PageSize())
	assert.Equal(t, os.Getpagesize(), sicm.PageSize())
}

func TestStartStopProfiling_NoConfiguredEventsIsANoop(t *testing.T) {
	ctx, err := sicm.Init(testDevices())
	require.NoError(t, err)
	defer ctx.Fini()

	require.NoError(t, ctx.StartProfiling(1<<20))
	defer ctx.StopProfiling()

	_, err = ctx.CreateArena(1<<20, 0, []int{0})
	require.NoError(t, err)

	err = ctx.StartProfiling(1 << 20)
	assert.Error(t, err, "starting profiling twice should report it is already running")
}

func TestDefaultArena_MallocCallocFree(t *testing.T) {
	ctx, err := sicm.Init(testDevices())
	require.NoError(t, err)
	defer ctx.Fini()

	ptr, err := sicm.Malloc(256)
	require.NoError(t, err)
	require.NotZero(t, ptr)
	require.NoError(t, sicm.Free(ptr))

	ptr2, err := sicm.Calloc(4, 64)
	require.NoError(t, err)
	require.NotZero(t, ptr2)
	require.NoError(t, sicm.Free(ptr2))
}
