// Package bandwidth implements spec.md §4.6: per-IMC (integrated memory
// controller) perf counters, diffed every profiling interval and converted
// to an aggregate bytes/sec estimate, then spread across arenas in
// proportion to each arena's share of PEBS samples that interval.
//
// Grounded on
// _examples/original_source/src/high/profilers/sicm_profile_bw.c: the same
// reset/enable/read/disable counter cycle per (socket, imc, event), the same
// elapsed-time normalization, and the same total_arena_pebs/total_pebs
// proportional-distribution formula — translated from libpfm's event
// encoding (unavailable in Go) to raw unix.PerfEventAttr configs supplied by
// the caller.
package bandwidth

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lanl/SICM-sub001/internal/errs"
)

// counter is one (socket-cpu, imc, event) perf fd.
type counter struct {
	fd        int
	cpu       int
	imc       string
	event     string
	lastCount int64
}

// Collector owns the per-IMC perf fds and the rolling clock used to
// normalize raw counts to bytes/sec (spec.md §4.6).
type Collector struct {
	counters []*counter
	lastTime time.Time
}

// IMCEvent names one memory-controller counter to open (spec.md §6
// SH_PROFILE_BW_EVENTS, crossed with the socket CPU list and IMC list).
type IMCEvent struct {
	CPU   int
	IMC   string
	Event string
	Attr  unix.PerfEventAttr
}

// Open opens and starts every counter (spec.md §4.6 init: reset + enable).
func Open(events []IMCEvent) (*Collector, error) {
	c := &Collector{lastTime: time.Now()}
	for _, e := range events {
		attr := e.Attr
		attr.Size = uint32(unsafe.Sizeof(attr))
		fd, err := unix.PerfEventOpen(&attr, -1, e.CPU, -1, 0)
		if err != nil {
			c.Close()
			return nil, errs.Wrapf(errs.ErrEventDecodeFailed, "bandwidth: open imc %s event %s cpu %d: %v", e.IMC, e.Event, e.CPU, err)
		}
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0)
		c.counters = append(c.counters, &counter{fd: fd, cpu: e.CPU, imc: e.IMC, event: e.Event})
	}
	return c, nil
}

// Close disables and releases every counter fd.
func (c *Collector) Close() {
	for _, cn := range c.counters {
		_ = unix.IoctlSetInt(cn.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
		_ = unix.Close(cn.fd)
	}
	c.counters = nil
}

// TotalBytesPerSec reads, diffs, and disables+re-enables every counter,
// returning the aggregate estimated bandwidth for this interval
// (spec.md §4.6).
func (c *Collector) TotalBytesPerSec() (float64, error) {
	now := time.Now()
	elapsed := now.Sub(c.lastTime).Seconds()
	c.lastTime = now
	if elapsed <= 0 {
		elapsed = 1
	}

	var totalDelta int64
	for _, cn := range c.counters {
		_ = unix.IoctlSetInt(cn.fd, unix.PERF_EVENT_IOC_DISABLE, 0)

		var buf [8]byte
		n, err := unix.Read(cn.fd, buf[:])
		if err != nil || n < 8 {
			return 0, errs.Wrapf(errs.ErrEventDecodeFailed, "bandwidth: read imc %s event %s: %v", cn.imc, cn.event, err)
		}
		count := int64(le64(buf[:]))
		totalDelta += count - cn.lastCount

		_ = unix.IoctlSetInt(cn.fd, unix.PERF_EVENT_IOC_RESET, 0)
		cn.lastCount = 0 // the counter restarts from zero after the reset
		_ = unix.IoctlSetInt(cn.fd, unix.PERF_EVENT_IOC_ENABLE, 0)
	}
	if totalDelta < 0 {
		totalDelta = 0
	}
	return float64(totalDelta) / elapsed, nil
}

// Distribute spreads a total interval bandwidth across arenas in proportion
// to each arena's PEBS sample share (spec.md §4.6's
// "total_arena_pebs/total_pebs * total_bw"). arenaPebs maps arena id to its
// summed PEBS sample count this interval.
func Distribute(totalBW float64, arenaPebs map[uint32]uint64) map[uint32]float64 {
	var totalPebs uint64
	for _, v := range arenaPebs {
		totalPebs += v
	}
	out := make(map[uint32]float64, len(arenaPebs))
	if totalPebs == 0 {
		for id := range arenaPebs {
			out[id] = 0
		}
		return out
	}
	for id, v := range arenaPebs {
		out[id] = (float64(v) / float64(totalPebs)) * totalBW
	}
	return out
}

func le64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
