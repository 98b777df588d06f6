package rss

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/registry"
)

// newFakePagemap writes a pagemap-shaped file where page index i is
// present iff presentPages[i] is true, so pageMapRange can be exercised
// without needing the real kernel file.
func newFakePagemap(t *testing.T, presentPages []bool) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pagemap")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	buf := make([]byte, pagemapEntrySize)
	for _, present := range presentPages {
		var entry uint64
		if present {
			entry |= presentBit
		}
		binary.LittleEndian.PutUint64(buf, entry)
		_, err := f.Write(buf)
		require.NoError(t, err)
	}
	return f
}

func TestSample_SumsResidentBytesPerArena(t *testing.T) {
	const pageSize = 4096
	f := newFakePagemap(t, []bool{true, false, true, true})

	p := &Prober{f: f, backend: BackendPageMap, pageSz: pageSize}

	reg := registry.New()
	reg.Insert(0, 2*pageSize, 1)   // pages 0,1 -> 1 resident page
	reg.Insert(2*pageSize, 4*pageSize, 2) // pages 2,3 -> 2 resident pages

	out, err := p.Sample(reg)
	require.NoError(t, err)
	assert.Equal(t, uint64(pageSize), out[1])
	assert.Equal(t, uint64(2*pageSize), out[2])
}

func TestSample_EmptyRegistryYieldsEmptyMap(t *testing.T) {
	f := newFakePagemap(t, nil)
	p := &Prober{f: f, backend: BackendPageMap, pageSz: 4096}

	out, err := p.Sample(registry.New())
	require.NoError(t, err)
	assert.Empty(t, out)
}
