package devicetable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/devicetable"
)

func TestNew_ResolvesTagFromName(t *testing.T) {
	dt, err := devicetable.New([]devicetable.Device{
		{TagName: "DRAM", NumaNode: 0, PageSizeKiB: 4},
		{TagName: "PERSISTENT_NVM", NumaNode: 1, PageSizeKiB: 4, TierData: devicetable.TierData{MountPoint: "/mnt/pmem0"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, dt.Len())

	assert.Equal(t, devicetable.DRAM, dt.Device(0).Tag)
	assert.Equal(t, devicetable.PersistentNVM, dt.Device(1).Tag)
	assert.Equal(t, "/mnt/pmem0", dt.Device(1).TierData.MountPoint)
}

func TestNew_FillsTagNameFromEnum(t *testing.T) {
	dt, err := devicetable.New([]devicetable.Device{
		{Tag: devicetable.HBM, NumaNode: 2, PageSizeKiB: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "HBM", dt.Device(0).TagName)
}

func TestNew_RejectsZeroPageSize(t *testing.T) {
	_, err := devicetable.New([]devicetable.Device{
		{TagName: "DRAM", NumaNode: 0, PageSizeKiB: 0},
	})
	assert.Error(t, err)
}

func TestNew_RejectsUnknownTagName(t *testing.T) {
	_, err := devicetable.New([]devicetable.Device{
		{TagName: "QUANTUM_FOAM", PageSizeKiB: 4},
	})
	assert.Error(t, err)
}

func TestPageSizeAndNumaNode(t *testing.T) {
	dt, err := devicetable.New([]devicetable.Device{
		{TagName: "DRAM", NumaNode: 3, PageSizeKiB: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 4096, dt.PageSize(0))
	assert.Equal(t, 3, dt.NumaNode(0))
}
