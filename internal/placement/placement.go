// Package placement implements spec.md §4.7: the online tiering engine that
// ranks arenas by value-per-byte, cuts a hotset at the upper tier's
// capacity, and decides whether/when to actually rebind using one of two
// interchangeable strategies.
//
// Grounded on _examples/original_source/src/high/hotset.c (the
// bandwidth/byte and accesses/byte ranking comparators, "maximize
// value/byte, break ties toward smaller size") and
// _examples/original_source/src/high/profilers/sicm_profile_online_ski.h /
// sicm_profile_online_orig.h (the two online strategies this package names
// StrategySki and StrategyOrig) plus
// sicm_profile_online_utils.h's rebind_arena timing/logging shape.
package placement

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lanl/SICM-sub001/internal/arena"
	"github.com/lanl/SICM-sub001/internal/config"
	"github.com/lanl/SICM-sub001/internal/metrics"
	"github.com/lanl/SICM-sub001/internal/profile"
	"github.com/lanl/SICM-sub001/internal/slog"
)

func appendFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, []byte("---\n")...)); err != nil {
		return err
	}
	return nil
}

// Tier identifies which side of the binding a site currently sits on
// (spec.md §4.7; mirrors the original's dev == 0/1/-1 "unbound" encoding).
type Tier int

const (
	TierUnbound Tier = -1
	TierLower   Tier = 0
	TierUpper   Tier = 1
)

// Site is one arena's ranking input and rolling hotness state
// (spec.md §4.7, grounded on hotset.c's `site` struct and
// sicm_profile_online_orig.h's num_hot_intervals bookkeeping).
type Site struct {
	ArenaID         uint32
	Weight          uint64 // resident bytes in the latest interval — the knapsack "size"
	Value           float64
	Tier            Tier
	Hot             bool
	PrevHot         bool
	NumHotIntervals int
}

func valuePerByte(s *Site) float64 {
	if s.Weight == 0 {
		return 0
	}
	return s.Value / float64(s.Weight)
}

// rankSites sorts sites by value/byte descending, tie-broken toward the
// smaller site (hotset.c's bandwidth_cmp/accesses_cmp).
func rankSites(sites []*Site) {
	sort.Slice(sites, func(i, j int) bool {
		vi, vj := valuePerByte(sites[i]), valuePerByte(sites[j])
		if vi != vj {
			return vi > vj
		}
		return sites[i].Weight < sites[j].Weight
	})
}

// cutHotset walks the ranked list and marks sites hot until capacity is
// exhausted (spec.md §4.7 "capacity cut").
func cutHotset(sorted []*Site, capacity uint64) {
	var used uint64
	for _, s := range sorted {
		s.PrevHot = s.Hot
		if used+s.Weight <= capacity {
			s.Hot = true
			used += s.Weight
		} else {
			s.Hot = false
		}
		if s.Hot {
			s.NumHotIntervals++
		} else {
			s.NumHotIntervals = 0
		}
	}
}

// Strategy is the spec.md §6 SH_PROFILE_ONLINE_STRAT selector.
type Strategy = config.OnlineStrategy

// Penalties holds the ski-rental cost-model sums for one interval
// (spec.md §4.7, sicm_profile_online_ski.h).
type Penalties struct {
	Move     float64 // ms to actually perform the rebind (mbind overhead)
	Stay     float64 // ms wasted this interval keeping hot sites in the lower tier
	Displace float64 // ms that would be wasted displacing cold sites from the upper tier
}

const (
	moveBandwidthBytesPerMs = 2097152.0 // 2 GB/s, converted to bytes/ms
	minMovePenaltyMs        = 50.0
	pebsSampleRate          = 200.0   // PEBS samples ~0.5% (1 in 200) of accesses
	nsPerAccess             = 0.0003  // 300ns per access, converted to ms
)

func penaltyMove(weight uint64) float64 {
	p := float64(weight) / moveBandwidthBytesPerMs
	if p < minMovePenaltyMs {
		p = minMovePenaltyMs
	}
	return p
}

func penaltyStayOrDisplace(accesses uint64) float64 {
	return float64(accesses) * pebsSampleRate * nsPerAccess
}

// Engine is the online placement driver (spec.md §4.7).
type Engine struct {
	cfg        *config.Config
	upperDev   []int
	lowerDev   []int
	capacity   uint64
	strategy   Strategy
	sites      map[uint32]*Site
	arenas     map[uint32]*arena.Arena
	metrics    *metrics.Metrics
	debug      *debugSink
}

// New constructs the engine. upperDevices/lowerDevices are device-table
// indices for the two tiers being arbitrated between (spec.md §4.7's
// two-device-list model).
func New(cfg *config.Config, upperDevices, lowerDevices []int, upperCapacity uint64, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:      cfg,
		upperDev: append([]int(nil), upperDevices...),
		lowerDev: append([]int(nil), lowerDevices...),
		capacity: upperCapacity,
		strategy: cfg.OnlineStrategy,
		sites:    make(map[uint32]*Site),
		arenas:   make(map[uint32]*arena.Arena),
		metrics:  m,
		debug:    newDebugSink(cfg.OnlineDebugFile),
	}
}

// Register associates an arena with the engine so it can be rebound
// (spec.md §4.7 "every tracked arena participates in ranking").
func (e *Engine) Register(a *arena.Arena, initialTier Tier) {
	e.arenas[a.ID()] = a
	e.sites[a.ID()] = &Site{ArenaID: a.ID(), Tier: initialTier}
}

// Registered reports how many arenas the engine currently tracks.
func (e *Engine) Registered() int {
	return len(e.sites)
}

// Evaluate runs one decision cycle: update site stats from the interval's
// weighted-access/resident values, rank, cut the hotset, and execute the
// configured strategy (spec.md §4.7).
func (e *Engine) Evaluate(ctx context.Context, intervals map[uint32]*profile.Interval) error {
	cid := uuid.NewString()

	for id, iv := range intervals {
		s, ok := e.sites[id]
		if !ok {
			continue // arena not registered with the engine; ignore (spec.md §7)
		}
		s.Weight = iv.ResidentBytes
		s.Value = iv.WeightedAccess
	}

	sorted := make([]*Site, 0, len(e.sites))
	for _, s := range e.sites {
		sorted = append(sorted, s)
	}
	rankSites(sorted)
	cutHotset(sorted, e.capacity)

	var hot int
	for _, s := range sorted {
		if s.Hot {
			hot++
		}
	}
	e.metrics.ObserveHotset(hot)

	var err error
	switch e.strategy {
	case config.StrategyOrig:
		err = e.runOrig(ctx, sorted, cid)
	default:
		err = e.runSki(ctx, sorted, cid)
	}
	e.debug.Flush(cid, sorted)
	return err
}

// runSki implements the ski-rental break-even rule: rebind everything to
// match the current hotset once the cost of "renting" (keeping hot sites in
// the lower tier) meets or exceeds the cost to "buy" (actually performing
// the rebind plus displacing cold sites) (spec.md §4.7,
// sicm_profile_online_ski.h). Both costs are computed from the current
// interval alone; rent is not carried over from earlier intervals.
func (e *Engine) runSki(ctx context.Context, sorted []*Site, cid string) error {
	if e.cfg.OnlineNoBind {
		return nil
	}

	var pen Penalties
	for _, s := range sorted {
		if needsRebind(s) {
			pen.Move += penaltyMove(s.Weight)
			if s.Hot && (s.Tier == TierUnbound || s.Tier == TierLower) {
				pen.Stay += penaltyStayOrDisplace(uint64(s.Value))
			} else if !s.Hot && s.Tier == TierUpper {
				pen.Displace += penaltyStayOrDisplace(uint64(s.Value))
			}
		}
	}

	rentCost := pen.Stay
	buyCost := pen.Move + pen.Displace
	if rentCost <= 0 || rentCost < buyCost {
		slog.Debug("ski: no rebind this interval")
		return nil
	}
	slog.Debug("ski: full rebind triggered")
	return e.fullRebind(ctx, sorted, cid)
}

func needsRebind(s *Site) bool {
	return (s.Tier == TierUnbound && s.Hot) ||
		(s.Tier == TierLower && s.Hot) ||
		(s.Tier == TierUpper && !s.Hot)
}

// runOrig implements the grace-period/ratio-gated original strategy: only
// perform a full rebind once the accumulated access value exceeds a grace
// threshold and the fraction of total weight needing to move exceeds the
// configured ratio; otherwise, optionally rebind individual sites that have
// been hot for a configured number of consecutive intervals
// (spec.md §4.7, sicm_profile_online_orig.h).
func (e *Engine) runOrig(ctx context.Context, sorted []*Site, cid string) error {
	if e.cfg.OnlineNoBind {
		return nil
	}

	var totalWeight, weightToRebind uint64
	var totalValue float64
	for _, s := range sorted {
		totalWeight += s.Weight
		totalValue += s.Value
		if needsRebind(s) {
			weightToRebind += s.Weight
		}
	}

	ratio := 0.0
	if totalWeight > 0 {
		ratio = float64(weightToRebind) / float64(totalWeight)
	}

	if totalValue > e.cfg.OnlineGraceAccesses && ratio >= e.cfg.OnlineReconfWeightRatio {
		slog.Debug("orig: full rebind triggered")
		return e.fullRebind(ctx, sorted, cid)
	}

	if e.cfg.OnlineHotIntervals > 0 {
		for _, s := range sorted {
			if s.NumHotIntervals == e.cfg.OnlineHotIntervals {
				if err := e.rebindOne(ctx, s, TierUpper, cid); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Engine) fullRebind(ctx context.Context, sorted []*Site, cid string) error {
	for _, s := range sorted {
		var target Tier
		switch {
		case (s.Tier == TierUnbound || s.Tier == TierLower) && s.Hot:
			target = TierUpper
		case s.Tier == TierUpper && !s.Hot:
			target = TierLower
		default:
			continue
		}
		if err := e.rebindOne(ctx, s, target, cid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rebindOne(ctx context.Context, s *Site, target Tier, cid string) error {
	a, ok := e.arenas[s.ArenaID]
	if !ok {
		return nil
	}
	devices := e.lowerDev
	if target == TierUpper {
		devices = e.upperDev
	}

	start := time.Now()
	err := a.SetDevices(devices)
	elapsed := time.Since(start)

	if e.metrics != nil {
		e.metrics.ObserveRebind(elapsed.Seconds())
	}
	slog.Debug("rebind",
		zap.Uint32("arena_id", s.ArenaID),
		zap.String("correlation", cid),
		zap.Int("target_tier", int(target)),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))
	if err != nil {
		return err
	}
	s.Tier = target
	return nil
}

// debugSink mirrors spec.md §6's SH_PROFILE_ONLINE_DEBUG_FILE: a yaml dump
// of the ranked site list and decision outcome, one document per interval.
type debugSink struct {
	path string
}

func newDebugSink(path string) *debugSink {
	return &debugSink{path: path}
}

type debugDump struct {
	CorrelationID string  `yaml:"correlation_id"`
	Sites         []*Site `yaml:"sites"`
}

// Flush writes one yaml document describing this interval's ranking and
// hotset decision, if a debug file path is configured. Best-effort: write
// errors are logged, not propagated, matching spec.md §7's "diagnostics
// never fail the placement decision".
func (d *debugSink) Flush(cid string, sorted []*Site) {
	if d.path == "" {
		return
	}
	b, err := yaml.Marshal(debugDump{CorrelationID: cid, Sites: sorted})
	if err != nil {
		slog.Warn("placement debug dump marshal failed")
		return
	}
	if err := appendFile(d.path, b); err != nil {
		slog.Warn("placement debug dump write failed")
	}
}
