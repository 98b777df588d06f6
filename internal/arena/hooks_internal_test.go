package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/devicetable"
	"github.com/lanl/SICM-sub001/internal/registry"
)

func TestRoundUpToDevicePage(t *testing.T) {
	assert.Equal(t, uintptr(4096), roundUpToDevicePage(1, 4096))
	assert.Equal(t, uintptr(4096), roundUpToDevicePage(4096, 4096))
	assert.Equal(t, uintptr(8192), roundUpToDevicePage(4097, 4096))
	assert.Equal(t, uintptr(100), roundUpToDevicePage(100, 0))
}

func TestHookAlloc_RoundsUpToHugePageDevice(t *testing.T) {
	table, err := devicetable.New([]devicetable.Device{
		{TagName: "PERSISTENT_NVM", NumaNode: 0, PageSizeKiB: 2048}, // 2MiB pages
	})
	require.NoError(t, err)
	reg := registry.New()

	a, err := Create(table, reg, 1<<24, 0, []int{0}, -1)
	require.NoError(t, err)
	defer a.Destroy()

	a.mu.Lock()
	base, err := a.hookAlloc(1)
	a.mu.Unlock()
	require.NoError(t, err)
	require.NotZero(t, base)

	assert.GreaterOrEqual(t, a.ranges.Size(), uintptr(2<<20))
}
