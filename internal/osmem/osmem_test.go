package osmem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/osmem"
)

func TestMapAnonymous_RoundTrip(t *testing.T) {
	size := uintptr(osmem.PageSize())

	addr, err := osmem.MapAnonymous(size, 0)
	require.NoError(t, err)
	require.NotZero(t, addr)

	require.NoError(t, osmem.Unmap(addr, size))
}

func TestPageSize_IsPositiveAndPowerOfTwo(t *testing.T) {
	ps := osmem.PageSize()
	require.Positive(t, ps)
	assert.Zero(t, ps&(ps-1))
}
