package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanl/SICM-sub001/internal/registry"
)

func TestAccumulator_AddAndSnapshotResets(t *testing.T) {
	acc := newAccumulator(2)
	acc.add(1, 0, 2)
	acc.add(1, 0, 2)
	acc.add(1, 1, 2)
	acc.add(2, 0, 2)

	snap := acc.Snapshot()
	assert.Equal(t, []uint64{2, 1}, snap[1])
	assert.Equal(t, []uint64{1, 0}, snap[2])

	// A second snapshot immediately after should be empty: Snapshot resets.
	empty := acc.Snapshot()
	assert.Empty(t, empty)
}

func TestReadAt_HandlesWraparound(t *testing.T) {
	ring := make([]byte, 8) // small power-of-two ring to force wraparound
	var want uint32 = 0x11223344
	b := []byte{0x44, 0x33, 0x22, 0x11}
	// Place the 4 bytes straddling the end of the ring.
	copy(ring[6:], b[:2])
	copy(ring[:2], b[2:])

	var got uint32
	readAt(ring, 6, &got)
	assert.Equal(t, want, got)
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 8: 8, 9: 16}
	for in, want := range cases {
		assert.Equal(t, want, nextPow2(in))
	}
}

func TestDefaultAttribution_MissReturnsFalse(t *testing.T) {
	id, ok := DefaultAttribution(registry.New(), 1234, 0xdeadbeef)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), id)
}
