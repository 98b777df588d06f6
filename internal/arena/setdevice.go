package arena

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/osmem"
	"github.com/lanl/SICM-sub001/internal/rangeset"
	"github.com/lanl/SICM-sub001/internal/slog"
)

// SetDevice atomically (w.r.t. the arena mutex) migrates every range of the
// arena to device's NUMA node (spec.md §4.3). On any per-range failure, the
// call stops at the failing range and returns errs.ErrBindingFailed; ranges
// already migrated are kept as migrated (spec.md §7 BindingFailed: "the
// migration is abandoned at the failing range ... arena's devices field
// remains unchanged").
func (a *Arena) SetDevice(device int) error {
	return a.SetDevices([]int{device})
}

// SetDevices is the multi-device variant: it records devices as the arena's
// binding, but migrates every range to a single NUMA node, that of the
// first NUMA-addressable device in devices; the other devices' nodes are
// not used as migration targets.
func (a *Arena) SetDevices(devices []int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cid := uuid.NewString()
	nodes := make([]int, 0, len(devices))
	for _, d := range devices {
		if n := a.table.NumaNode(d); n >= 0 {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return errs.Wrap(errs.ErrOsMappingFailed, "set_device: no NUMA-addressable device in requested set")
	}
	target := nodes[0]

	var migrated int
	var failErr error
	a.ranges.Iter(func(r rangeset.Range) bool {
		if err := osmem.MigratePages(r.Start, r.Size(), target); err != nil {
			failErr = err
			return false
		}
		migrated++
		return true
	})

	if failErr != nil {
		slog.Warn("set_device partial migration",
			zap.Uint32("arena_id", a.id),
			zap.String("correlation", cid),
			zap.Int("migrated_ranges", migrated),
			zap.Error(failErr))
		return failErr
	}

	a.devices = append([]int(nil), devices...)
	slog.Debug("set_device complete",
		zap.Uint32("arena_id", a.id),
		zap.String("correlation", cid),
		zap.Ints("devices", devices))
	return nil
}

// SetDeviceArray is the spec.md §4.3 C-ABI-shaped variant accepting a raw
// slice and explicit count; in Go, devices[:n] already expresses this, so it
// is kept only as a thin alias for API parity with spec.md's named entry
// point.
func (a *Arena) SetDeviceArray(devices []int, n int) error {
	return a.SetDevices(devices[:n])
}
