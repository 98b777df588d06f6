package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanl/SICM-sub001/internal/metrics"
)

func TestNew_RegistersAllMetrics(t *testing.T) {
	m := metrics.New()
	// Labelled gauge vectors are only gathered once they have a child.
	m.ObserveResident("1", 1)
	m.ObserveBandwidth("1", 1)
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestObservers_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveResident("1", 100)
		m.ObserveBandwidth("1", 100)
		m.ObserveHotset(2)
		m.ObserveRebind(0.5)
	})
}

func TestObserveRebind_IncrementsCounter(t *testing.T) {
	m := metrics.New()
	m.ObserveRebind(1.5)
	m.ObserveRebind(2.5)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "sicm_placement_rebinds_total" {
			found = true
			assert.Equal(t, 2.0, f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
