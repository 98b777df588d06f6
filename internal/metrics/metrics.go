// Package metrics is the ambient instrumentation surface: a thin
// prometheus.Registry wrapper the profile aggregator and placement engine
// publish gauges to. Grounded on _examples/nmxmxh-inos_v1's dependency on
// github.com/prometheus/client_golang; the teacher has no metrics of its
// own. Registration is optional — passing a nil *Metrics disables it, so
// library consumers that never expose an HTTP endpoint pay nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gauges named in SPEC_FULL.md's ambient stack section.
type Metrics struct {
	Registry *prometheus.Registry

	ResidentBytes    *prometheus.GaugeVec
	BandwidthEstimate *prometheus.GaugeVec
	HotsetSize       prometheus.Gauge
	RebindTotal      prometheus.Counter
	RebindDuration   prometheus.Histogram
}

// New creates a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ResidentBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sicm",
			Name:      "arena_resident_bytes",
			Help:      "Resident bytes per arena, from the most recent profile interval.",
		}, []string{"arena_id"}),
		BandwidthEstimate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sicm",
			Name:      "arena_bandwidth_bytes_per_second",
			Help:      "Estimated per-arena memory bandwidth.",
		}, []string{"arena_id"}),
		HotsetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sicm",
			Name:      "placement_hotset_arenas",
			Help:      "Number of arenas in the most recent hotset.",
		}),
		RebindTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sicm",
			Name:      "placement_rebinds_total",
			Help:      "Total number of arena rebind operations issued by the placement engine.",
		}),
		RebindDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sicm",
			Name:      "placement_rebind_duration_seconds",
			Help:      "Wall-clock duration of arena rebind operations.",
		}),
	}
	reg.MustRegister(m.ResidentBytes, m.BandwidthEstimate, m.HotsetSize, m.RebindTotal, m.RebindDuration)
	return m
}

// ObserveResident records the resident-byte gauge for an arena. Safe to call
// with a nil *Metrics (no-op).
func (m *Metrics) ObserveResident(arenaID string, bytes float64) {
	if m == nil {
		return
	}
	m.ResidentBytes.WithLabelValues(arenaID).Set(bytes)
}

// ObserveBandwidth records the bandwidth gauge for an arena.
func (m *Metrics) ObserveBandwidth(arenaID string, bps float64) {
	if m == nil {
		return
	}
	m.BandwidthEstimate.WithLabelValues(arenaID).Set(bps)
}

// ObserveHotset records the size of the most recent hotset.
func (m *Metrics) ObserveHotset(n int) {
	if m == nil {
		return
	}
	m.HotsetSize.Set(float64(n))
}

// ObserveRebind records one rebind operation and its duration in seconds.
func (m *Metrics) ObserveRebind(seconds float64) {
	if m == nil {
		return
	}
	m.RebindTotal.Inc()
	m.RebindDuration.Observe(seconds)
}
