// Package profile implements spec.md §3/§4.6's profile interval aggregator:
// once per SH_PROFILE_INTERVAL (spec.md §6), it fans out across the access
// sampler, RSS prober, and bandwidth collector concurrently, combines their
// per-arena results into one profile.Interval per arena, and maintains each
// arena's rolling peak/total statistics across the whole run.
//
// Grounded on _examples/original_source/include/sicm_profile.h's
// arena_profile/profile_info layout (per-arena accumulators that persist
// across intervals, rolled up via each profiler's *_post_interval) and on
// the teacher's concurrency idiom generalized via golang.org/x/sync/errgroup
// for the three-way fan-out (the teacher has no such fan-out; errgroup is
// adopted from _examples' broader pack for exactly this "run N independent
// collectors, fail together" shape).
package profile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lanl/SICM-sub001/internal/bandwidth"
	"github.com/lanl/SICM-sub001/internal/metrics"
	"github.com/lanl/SICM-sub001/internal/registry"
	"github.com/lanl/SICM-sub001/internal/rss"
	"github.com/lanl/SICM-sub001/internal/slog"
)

// EventWeight is the per-access-type multiplier spec.md §9 uses when
// folding multiple hardware events into a single "value" score (e.g.
// weighting a write-miss sample higher than a read-hit sample).
type EventWeight map[string]float64

// Interval is one arena's profiling results for a single interval
// (spec.md §3's Profile interval record).
type Interval struct {
	ArenaID        uint32
	AccessCounts   []uint64 // index-aligned with the sampler's configured events
	ResidentBytes  uint64
	BandwidthBps   float64
	WeightedAccess float64 // sum(AccessCounts[i] * weights[events[i]])
}

// arenaStats is the rolling peak/total state kept across the run for one
// arena (spec.md §3 "Rolling statistics").
type arenaStats struct {
	peakResident uint64
	totalAccess  uint64
	intervals    []Interval
}

// Aggregator owns the rolling per-arena history and drives one fan-out pass
// per interval tick.
type Aggregator struct {
	mu       sync.Mutex
	stats    map[uint32]*arenaStats
	eventIDs []string
	weights  EventWeight
	metrics  *metrics.Metrics
}

// Collectors bundles the three independent data sources an interval pulls
// from; any may be nil, in which case that contribution is skipped
// (spec.md §4.6 "a collector that failed to initialize is treated as
// permanently silent, not fatal").
type Collectors struct {
	AccessCounts func() map[uint32][]uint64 // sampler.Accumulator.Snapshot equivalent
	RSS          *rss.Prober
	Reg          *registry.Registry
	BW           *bandwidth.Collector
	ArenaPebs    func() map[uint32]uint64 // per-arena PEBS share for bandwidth.Distribute
}

// New creates an aggregator tracking the named events with the given
// per-event weights (spec.md §9's ski-rental value function inputs).
func New(eventIDs []string, weights EventWeight, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		stats:    make(map[uint32]*arenaStats),
		eventIDs: eventIDs,
		weights:  weights,
		metrics:  m,
	}
}

// RunInterval executes one fan-out collection pass and folds the result
// into the rolling per-arena history, returning the freshly-collected
// intervals keyed by arena id (spec.md §4.6).
func (a *Aggregator) RunInterval(ctx context.Context, c Collectors) (map[uint32]*Interval, error) {
	var (
		accessCounts map[uint32][]uint64
		residentMap  map[uint32]uint64
		totalBW      float64
	)

	g, gctx := errgroup.WithContext(ctx)
	_ = gctx

	if c.AccessCounts != nil {
		g.Go(func() error {
			accessCounts = c.AccessCounts()
			return nil
		})
	}
	if c.RSS != nil && c.Reg != nil {
		g.Go(func() error {
			m, err := c.RSS.Sample(c.Reg)
			if err != nil {
				slog.Warn("rss sample failed, treating as silent for this interval")
				return nil
			}
			residentMap = m
			return nil
		})
	}
	if c.BW != nil {
		g.Go(func() error {
			bps, err := c.BW.TotalBytesPerSec()
			if err != nil {
				slog.Warn("bandwidth collection failed, treating as silent for this interval")
				return nil
			}
			totalBW = bps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var bwPerArena map[uint32]float64
	if c.ArenaPebs != nil {
		bwPerArena = bandwidth.Distribute(totalBW, c.ArenaPebs())
	}

	intervalID := uuid.NewString()
	out := make(map[uint32]*Interval)
	arenaIDs := unionArenaIDs(accessCounts, residentMap, bwPerArena)
	for id := range arenaIDs {
		iv := &Interval{ArenaID: id}
		if ac, ok := accessCounts[id]; ok {
			iv.AccessCounts = ac
			iv.WeightedAccess = a.weighted(ac)
		}
		if r, ok := residentMap[id]; ok {
			iv.ResidentBytes = r
		}
		if bw, ok := bwPerArena[id]; ok {
			iv.BandwidthBps = bw
		}
		out[id] = iv
		a.fold(id, iv)
		if a.metrics != nil {
			label := strconv.FormatUint(uint64(id), 10)
			a.metrics.ObserveResident(label, float64(iv.ResidentBytes))
			a.metrics.ObserveBandwidth(label, iv.BandwidthBps)
		}
	}
	slog.Debug("profile interval complete: " + intervalID)
	return out, nil
}

func (a *Aggregator) weighted(counts []uint64) float64 {
	var total float64
	for i, c := range counts {
		if i >= len(a.eventIDs) {
			break
		}
		w := a.weights[a.eventIDs[i]]
		if w == 0 {
			w = 1
		}
		total += float64(c) * w
	}
	return total
}

func (a *Aggregator) fold(arenaID uint32, iv *Interval) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.stats[arenaID]
	if !ok {
		st = &arenaStats{}
		a.stats[arenaID] = st
	}
	if iv.ResidentBytes > st.peakResident {
		st.peakResident = iv.ResidentBytes
	}
	for _, c := range iv.AccessCounts {
		st.totalAccess += c
	}
	st.intervals = append(st.intervals, *iv)
}

// PeakResident returns the all-time peak resident byte count for an arena
// (spec.md §3 "peak").
func (a *Aggregator) PeakResident(arenaID uint32) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.stats[arenaID]; ok {
		return st.peakResident
	}
	return 0
}

// TotalAccess returns the all-time summed access count for an arena
// (spec.md §3 "total").
func (a *Aggregator) TotalAccess(arenaID uint32) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.stats[arenaID]; ok {
		return st.totalAccess
	}
	return 0
}

// History returns a copy of every interval recorded so far for an arena.
func (a *Aggregator) History(arenaID uint32) []Interval {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.stats[arenaID]
	if !ok {
		return nil
	}
	out := make([]Interval, len(st.intervals))
	copy(out, st.intervals)
	return out
}

// ArenaIDs returns every arena id with at least one recorded interval.
func (a *Aggregator) ArenaIDs() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint32, 0, len(a.stats))
	for id := range a.stats {
		out = append(out, id)
	}
	return out
}

func unionArenaIDs(maps ...interface{}) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, m := range maps {
		switch mm := m.(type) {
		case map[uint32][]uint64:
			for id := range mm {
				out[id] = struct{}{}
			}
		case map[uint32]uint64:
			for id := range mm {
				out[id] = struct{}{}
			}
		case map[uint32]float64:
			for id := range mm {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// Ticker runs RunInterval on a fixed cadence until ctx is cancelled
// (spec.md §4.6's interval loop driver).
func (a *Aggregator) Ticker(ctx context.Context, cadence time.Duration, c Collectors, onInterval func(map[uint32]*Interval)) {
	t := time.NewTicker(cadence)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ivs, err := a.RunInterval(ctx, c)
			if err != nil {
				slog.Error("profile interval failed")
				continue
			}
			if onInterval != nil {
				onInterval(ivs)
			}
		}
	}
}
