package bandwidth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanl/SICM-sub001/internal/bandwidth"
)

func TestDistribute_ProportionalToPebsShare(t *testing.T) {
	out := bandwidth.Distribute(1000, map[uint32]uint64{
		1: 30,
		2: 70,
	})

	assert.InDelta(t, 300, out[1], 0.001)
	assert.InDelta(t, 700, out[2], 0.001)
}

func TestDistribute_ZeroTotalPebsYieldsZeroForEveryArena(t *testing.T) {
	out := bandwidth.Distribute(1000, map[uint32]uint64{1: 0, 2: 0})
	assert.Equal(t, 0.0, out[1])
	assert.Equal(t, 0.0, out[2])
}

func TestDistribute_EmptyInputYieldsEmptyOutput(t *testing.T) {
	out := bandwidth.Distribute(1000, map[uint32]uint64{})
	assert.Empty(t, out)
}
