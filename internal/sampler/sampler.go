// Package sampler implements spec.md §4.4: a single background thread that
// reads per-(cpu,event) kernel sample ring buffers and attributes each
// sample's faulting address to an arena via the process-wide extent
// registry.
//
// Grounded on _examples/other_examples/5b188d3e_joeycold-ebpf__perf-ring.go.go:
// the same perf_event_open + mmap'd ring buffer + head/tail metadata page
// shape, trimmed to the forward (non-overwritable) reader this module needs
// and to PERF_SAMPLE_TID|PERF_SAMPLE_ADDR records (thread id + faulting
// address, exactly spec.md §3's Sample tuple).
package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/registry"
	"github.com/lanl/SICM-sub001/internal/slog"
)

const (
	perfRecordSample = 9
)

// AttributionFunc charges one decoded sample to the arena owning its
// address, via the extent registry (spec.md §4.4).
type AttributionFunc func(reg *registry.Registry, tid uint32, addr uint64) (arenaID uint32, ok bool)

// Accumulator holds the current-interval per-arena, per-event access
// counts (spec.md §3/§4.4).
type Accumulator struct {
	mu     sync.Mutex
	counts map[uint32][]uint64 // arena id -> per-event counts, index-aligned with Config.Events
}

func newAccumulator(nEvents int) *Accumulator {
	return &Accumulator{counts: make(map[uint32][]uint64)}
}

func (a *Accumulator) add(arenaID uint32, eventIdx, nEvents int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counts[arenaID]
	if !ok {
		c = make([]uint64, nEvents)
		a.counts[arenaID] = c
	}
	c[eventIdx]++
}

// Snapshot returns a copy of the accumulated counts and resets them to zero,
// implementing spec.md §4.4's "atomically swaps the accumulator into the
// arena's latest-interval profile slot".
func (a *Accumulator) Snapshot() map[uint32][]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint32][]uint64, len(a.counts))
	for id, c := range a.counts {
		cp := make([]uint64, len(c))
		copy(cp, c)
		out[id] = cp
	}
	a.counts = make(map[uint32][]uint64)
	return out
}

// Config configures the sampler (spec.md §4.4/§6).
type Config struct {
	Events         []string // hardware event names; resolved by caller into EventAttrs
	EventAttrs     []unix.PerfEventAttr
	CPUs           []int // -1 means thread-follow (watch calling process across CPUs)
	SamplePeriod   uint64
	MaxSamplePages int // ring buffer size in pages (power of two)
}

// ring is one (cpu, event) perf fd + its mmap'd buffer.
type ring struct {
	fd   int
	cpu  int
	eIdx int
	mmap []byte
	meta *unix.PerfEventMmapPage
	data []byte
	tail uint64
}

// Sampler is the per-process background sampling thread.
type Sampler struct {
	cfg     Config
	reg     *registry.Registry
	attrib  AttributionFunc
	rings   []*ring
	acc     *Accumulator
	done    chan struct{}
	stopped int32

	selfTID uint32
}

// New opens perf fds and mmaps a ring buffer for every (cpu, event) pair.
// Returns errs.ErrEventDecodeFailed if an event attr is malformed — spec.md
// §7 treats this as fatal at init time.
func New(cfg Config, reg *registry.Registry, attrib AttributionFunc) (*Sampler, error) {
	if len(cfg.EventAttrs) != len(cfg.Events) {
		return nil, errs.Wrap(errs.ErrEventDecodeFailed, "sampler: EventAttrs/Events length mismatch")
	}

	s := &Sampler{
		cfg:     cfg,
		reg:     reg,
		attrib:  attrib,
		acc:     newAccumulator(len(cfg.Events)),
		done:    make(chan struct{}),
		selfTID: uint32(unix.Gettid()),
	}

	for ei, attr := range cfg.EventAttrs {
		for _, cpu := range cfg.CPUs {
			r, err := openRing(attr, cpu, cfg.MaxSamplePages, ei)
			if err != nil {
				s.closeAll()
				return nil, errs.Wrapf(errs.ErrEventDecodeFailed, "sampler: open event %q cpu %d: %v", cfg.Events[ei], cpu, err)
			}
			s.rings = append(s.rings, r)
		}
	}
	return s, nil
}

func openRing(attr unix.PerfEventAttr, cpu, maxSamplePages, eIdx int) (*ring, error) {
	pid := -1
	if cpu < 0 {
		pid = 0 // follow the calling process; CPU -1 means "any"
		cpu = -1
	}
	attr.Size = uint32(unsafe.Sizeof(attr))
	fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	pageSize := unix.Getpagesize()
	nPages := nextPow2(maxSamplePages)
	if nPages < 1 {
		nPages = 1
	}
	totalSize := (1 + nPages) * pageSize

	mm, err := unix.Mmap(fd, 0, totalSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	// The event may have been opened disabled; start it once the ring exists.
	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		_ = unix.Munmap(mm)
		unix.Close(fd)
		return nil, err
	}

	meta := (*unix.PerfEventMmapPage)(unsafe.Pointer(&mm[0]))
	r := &ring{
		fd:   fd,
		cpu:  cpu,
		eIdx: eIdx,
		mmap: mm,
		meta: meta,
		data: mm[meta.Data_offset : meta.Data_offset+meta.Data_size],
		tail: atomic.LoadUint64(&meta.Data_tail),
	}
	return r, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *Sampler) closeAll() {
	for _, r := range s.rings {
		_ = unix.Munmap(r.mmap)
		_ = unix.Close(r.fd)
	}
	s.rings = nil
}

// Run drains every ring buffer at the given cadence until ctx is cancelled
// or Stop is called, publishing one Accumulator snapshot per interval
// (spec.md §4.4's interval boundary behavior).
func (s *Sampler) Run(ctx context.Context, cadence time.Duration, onInterval func(intervalID string, counts map[uint32][]uint64)) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.done:
			s.shutdown()
			return
		case <-ticker.C:
			s.drainAll()
			snap := s.acc.Snapshot()
			onInterval(uuid.NewString(), snap)
		}
	}
}

// Stop requests cooperative shutdown at the next interval boundary
// (spec.md §4.4 "Cancellation").
func (s *Sampler) Stop() {
	if atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		close(s.done)
	}
}

func (s *Sampler) shutdown() {
	slog.Debug("sampler shutdown complete", zap.Int("rings", len(s.rings)))
	s.closeAll()
}

// drainAll advances tail->head on every ring whose head moved since the
// previous interval, decoding and attributing each sample
// (spec.md §4.4).
func (s *Sampler) drainAll() {
	for _, r := range s.rings {
		head := atomic.LoadUint64(&r.meta.Data_head)
		if head == r.tail {
			continue // unchanged since previous interval; skip (spec.md §4.4)
		}
		s.drainRing(r, head)
	}
}

type rawSample struct {
	pid, tid uint32
	addr     uint64
}

func (s *Sampler) drainRing(r *ring, head uint64) {
	mask := uint64(len(r.data) - 1)
	for r.tail < head {
		hdrStart := r.tail & mask
		if head-r.tail < 8 {
			break // partial header; drop remainder of this batch (spec.md §7)
		}
		var recType uint32
		var recSize uint16
		readAt(r.data, hdrStart, &recType)
		readAt(r.data, hdrStart+6, &recSize) // header: type u32, misc u16, size u16
		if recSize == 0 || uint64(recSize) > head-r.tail {
			slog.Warn("sampler dropped malformed ring batch",
				zap.Int("event_index", r.eIdx), zap.Uint16("record_size", recSize))
			break // malformed/short read; drop the batch (spec.md §7)
		}

		if recType == perfRecordSample {
			const bodyOff = 8
			const bodySize = 16 // pid(4) + tid(4) + addr(8), our fixed Sample_type layout
			if uint64(recSize) >= bodyOff+bodySize {
				var sm rawSample
				readAt(r.data, hdrStart+bodyOff, &sm.pid)
				readAt(r.data, hdrStart+bodyOff+4, &sm.tid)
				readAt(r.data, hdrStart+bodyOff+8, &sm.addr)
				s.attributeSample(sm, r.eIdx)
			}
		}
		r.tail += uint64(recSize)
	}
	atomic.StoreUint64(&r.meta.Data_tail, r.tail)
}

func (s *Sampler) attributeSample(sm rawSample, eIdx int) {
	if sm.tid == s.selfTID {
		return // exclude the sampler's own accesses (spec.md §4.4)
	}
	arenaID, ok := s.attrib(s.reg, sm.tid, sm.addr)
	if !ok {
		return
	}
	s.acc.add(arenaID, eIdx, len(s.cfg.Events))
}

// readAt copies sizeof(*out) bytes starting at a ring-relative offset,
// handling wraparound, into out (a pointer to a fixed-size integer type).
func readAt(ring []byte, off uint64, out interface{}) {
	n := len(ring)
	mask := uint64(n - 1)
	switch p := out.(type) {
	case *uint32:
		var b [4]byte
		for i := range b {
			b[i] = ring[(off+uint64(i))&mask]
		}
		*p = *(*uint32)(unsafe.Pointer(&b[0]))
	case *uint16:
		var b [2]byte
		for i := range b {
			b[i] = ring[(off+uint64(i))&mask]
		}
		*p = *(*uint16)(unsafe.Pointer(&b[0]))
	case *uint64:
		var b [8]byte
		for i := range b {
			b[i] = ring[(off+uint64(i))&mask]
		}
		*p = *(*uint64)(unsafe.Pointer(&b[0]))
	}
}

// DefaultAttribution implements AttributionFunc via the registry's
// FindContaining (spec.md §4.4).
func DefaultAttribution(reg *registry.Registry, tid uint32, addr uint64) (uint32, bool) {
	return reg.FindContaining(uintptr(addr))
}
