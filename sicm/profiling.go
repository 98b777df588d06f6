// Profiling wiring: turns the sampler/RSS/bandwidth/profile/placement
// packages, each independently testable, into the single background loop
// spec.md §4.6/§4.7 describes as "every SH_PROFILE_INTERVAL_MS, sample,
// aggregate, rank, and (maybe) rebind". Kept in its own file because it is
// the one part of the public package that owns a long-running goroutine.
package sicm

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lanl/SICM-sub001/internal/bandwidth"
	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/osmem"
	"github.com/lanl/SICM-sub001/internal/placement"
	"github.com/lanl/SICM-sub001/internal/profile"
	"github.com/lanl/SICM-sub001/internal/rss"
	"github.com/lanl/SICM-sub001/internal/sampler"
	"github.com/lanl/SICM-sub001/internal/slog"
)

// latestCounts holds the most recent sampler snapshot between sampler.Run's
// own cadence and the profile aggregator's interval read (spec.md §4.4/§4.6:
// the sampler and the profiler tick on the same cadence, but
// Accumulator.Snapshot resets its counters on read, so it may only be
// called once per interval).
type latestCounts struct {
	mu   sync.Mutex
	data map[uint32][]uint64
}

func (l *latestCounts) set(data map[uint32][]uint64) {
	l.mu.Lock()
	l.data = data
	l.mu.Unlock()
}

func (l *latestCounts) get() map[uint32][]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return map[uint32][]uint64{}
	}
	return l.data
}

// StartProfiling opens the perf-event sampler, the RSS prober, and (when
// SH_PROFILE_BW_EVENTS names any) the per-IMC bandwidth collector, then
// starts the profile aggregator's ticker feeding the online placement
// engine once per SH_PROFILE_INTERVAL_MS (spec.md §4.6 tail, §4.7).
//
// upperCapacity is the byte budget of the upper (fast) tier the placement
// engine ranks arenas against; see Engine. StartProfiling is idempotent
// per-Context: a second call returns errs.ErrEventDecodeFailed.
func (c *Context) StartProfiling(upperCapacity uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sampler != nil {
		return errs.Wrap(errs.ErrEventDecodeFailed, "sicm: profiling already started")
	}

	samplerCfg := sampler.Config{
		Events:         c.cfg.ProfilePebsEvents,
		EventAttrs:     rawEventAttrs(c.cfg.ProfilePebsEvents, c.cfg.SampleFreq),
		CPUs:           []int{-1},
		SamplePeriod:   uint64(c.cfg.SampleFreq),
		MaxSamplePages: c.cfg.MaxSamplePages,
	}
	samp, err := sampler.New(samplerCfg, c.reg, sampler.DefaultAttribution)
	if err != nil {
		return err
	}

	rssProbe, err := rss.Open(rss.BackendPageMap, osmem.PageSize())
	if err != nil {
		samp.Stop()
		return err
	}

	var bwColl *bandwidth.Collector
	if len(c.cfg.ProfileBwEvents) > 0 {
		var events []bandwidth.IMCEvent
		for i, name := range c.cfg.ProfileBwEvents {
			events = append(events, bandwidth.IMCEvent{
				CPU:   0,
				IMC:   "imc" + strconv.Itoa(i),
				Event: name,
				Attr:  rawAttr(name, 0),
			})
		}
		bwColl, err = bandwidth.Open(events)
		if err != nil {
			slog.Warn("bandwidth collector disabled", zap.Error(err))
			bwColl = nil
		}
	}

	if c.engine == nil {
		c.engine = placement.New(&c.cfg, []int{c.cfg.UpperDevice}, []int{c.cfg.LowerDevice}, upperCapacity, c.metric)
	}
	engine := c.engine

	ctx, cancel := context.WithCancel(context.Background())
	c.sampler = samp
	c.rssProbe = rssProbe
	c.bwColl = bwColl
	c.cancel = cancel

	counts := &latestCounts{}
	go samp.Run(ctx, time.Duration(c.cfg.ProfileInterval)*time.Millisecond, func(_ string, snap map[uint32][]uint64) {
		counts.set(snap)
	})

	collectors := profile.Collectors{
		AccessCounts: counts.get,
		Reg:          c.reg,
		RSS:          rssProbe,
		BW:           bwColl,
		ArenaPebs:    func() map[uint32]uint64 { return pebsCounts(counts.get()) },
	}

	go c.prof.Ticker(ctx, time.Duration(c.cfg.ProfileInterval)*time.Millisecond, collectors, func(intervals map[uint32]*profile.Interval) {
		if err := engine.Evaluate(ctx, intervals); err != nil {
			slog.Warn("placement evaluation failed", zap.Error(err))
		}
	})

	slog.Info("profiling started", zap.Int("interval_ms", c.cfg.ProfileInterval))
	return nil
}

// pebsCounts collapses a per-arena, per-event access-count slice into a
// single PEBS sample count per arena for bandwidth.Distribute (spec.md
// §4.6's "total_arena_pebs").
func pebsCounts(snap map[uint32][]uint64) map[uint32]uint64 {
	out := make(map[uint32]uint64, len(snap))
	for id, counts := range snap {
		var sum uint64
		for _, v := range counts {
			sum += v
		}
		out[id] = sum
	}
	return out
}

// rawEventAttrs builds one PERF_TYPE_RAW sampling attr per configured event
// name. Without libpfm (unavailable in Go, see DESIGN.md) event names are
// taken as raw hex encodings ("r1cd" style, the same shorthand Linux's perf
// tool accepts) rather than resolved symbolic names.
func rawEventAttrs(names []string, sampleFreq int) []unix.PerfEventAttr {
	out := make([]unix.PerfEventAttr, len(names))
	for i, n := range names {
		out[i] = rawAttr(n, uint64(sampleFreq))
	}
	return out
}

func rawAttr(name string, period uint64) unix.PerfEventAttr {
	attr := unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_RAW,
		Config:      parseRawEvent(name),
		Bits:        unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		Sample_type: unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_ADDR,
	}
	if period > 0 {
		attr.Sample = period
	}
	return attr
}

func parseRawEvent(name string) uint64 {
	s := name
	if len(s) > 0 && (s[0] == 'r' || s[0] == 'R') {
		s = s[1:]
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// StopProfiling cancels the background sampling/aggregation loop without
// tearing down the rest of the context.
func (c *Context) StopProfiling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopProfilingLocked()
}

// stopProfilingLocked does the teardown; callers must already hold c.mu.
func (c *Context) stopProfilingLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.sampler != nil {
		c.sampler.Stop()
		c.sampler = nil
	}
	if c.rssProbe != nil {
		_ = c.rssProbe.Close()
		c.rssProbe = nil
	}
	if c.bwColl != nil {
		c.bwColl.Close()
		c.bwColl = nil
	}
}
