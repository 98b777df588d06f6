// Package arena implements spec.md §4.3: named, device-bound allocation
// arenas over a process-wide extent registry. Each call to Alloc requests
// one mapped extent from the arena's own growth path (hooks.go's six
// extent-hook callbacks); there is no intermediate slab/size-class free-list
// allocator here — spec.md §1's Non-goals explicitly exclude reimplementing
// one (the original SICM forwards every allocation to jemalloc's je_mallocx,
// per original_source/src/sicm_arena.c; this module's hooks play the role
// jemalloc's extent hooks play there, with the arena itself standing in for
// jemalloc's arena, not for jemalloc's slab allocator).
package arena

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lanl/SICM-sub001/internal/devicetable"
	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/rangeset"
	"github.com/lanl/SICM-sub001/internal/registry"
	"github.com/lanl/SICM-sub001/internal/slog"
	"go.uber.org/zap"
)

// Flags are the per-arena behavior bits of spec.md §3/§4.3.
type Flags uint32

const (
	MutexHot Flags = 1 << iota // grow mutex capacity hint; advisory only here
	Shared                     // back by a shared file mapping
	Persist                    // do not release mapping on destroy
)

var (
	idMu   sync.Mutex
	nextID uint32 = 1
	byID          = map[uint32]*Arena{}
)

// Arena is a device-bound allocation domain (spec.md §3/§4.3).
type Arena struct {
	id    uint32
	mu    sync.Mutex
	flags Flags

	table   *devicetable.DeviceTable
	reg     *registry.Registry
	devices []int // indices into table, current binding

	ranges  *rangeset.RangeSet
	maxSize uintptr

	// sizes maps a live object's base address to the extent size backing
	// it (spec.md §4.3: one mapped extent per allocation). Guarded by mu.
	sizes map[uintptr]uintptr

	// Shared-file mapping state (spec.md §4.3 "Shared mapping mode").
	sharedFD     int
	sharedOffset int64

	destroyed bool
}

// Create allocates the arena descriptor, assigns it a fresh id, and
// registers it with the process-wide arena list (spec.md §4.3). sharedFD is
// only consulted when flags has Shared set (spec.md §4.3 "Shared mapping
// mode").
func Create(table *devicetable.DeviceTable, reg *registry.Registry, maxSize uintptr, flags Flags, devices []int, sharedFD int) (*Arena, error) {
	if len(devices) == 0 {
		return nil, errs.Wrap(errs.ErrOsMappingFailed, "arena create: at least one device required")
	}
	a := &Arena{
		id:       atomic.AddUint32(&nextID, 1) - 1,
		flags:    flags,
		table:    table,
		reg:      reg,
		devices:  append([]int(nil), devices...),
		ranges:   rangeset.New(maxSize),
		maxSize:  maxSize,
		sizes:    make(map[uintptr]uintptr),
		sharedFD: sharedFD,
	}

	idMu.Lock()
	byID[a.id] = a
	idMu.Unlock()

	slog.Debug("arena created", zap.Uint32("arena_id", a.id), zap.Uintptr("max_size", maxSize), zap.Ints("devices", devices))
	return a, nil
}

// ByID returns the arena with the given id, used by Free(ptr) after a
// registry lookup resolves the owning arena id (spec.md §4.3 "free(ptr) —
// arena-less; uses the extent registry to find the owning arena").
func ByID(id uint32) (*Arena, bool) {
	idMu.Lock()
	defer idMu.Unlock()
	a, ok := byID[id]
	return a, ok
}

// ID returns the arena's numeric id.
func (a *Arena) ID() uint32 { return a.id }

// Size returns the arena's current total mapped size.
func (a *Arena) Size() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ranges.Size()
}

// Devices returns the arena's current device index binding.
func (a *Arena) Devices() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.devices...)
}

// Alloc maps one dedicated extent of at least size bytes via the arena's
// alloc hook (spec.md §4.3) and records its size for later Free/Realloc/
// objectSize lookups. Returns 0 on CapacityExceeded or OsMappingFailed,
// matching spec.md §4.3's "Returns null".
func (a *Arena) Alloc(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return 0, errs.Wrap(errs.ErrOsMappingFailed, "alloc on destroyed arena")
	}

	needed := roundUpToDevicePage(size, a.table.PageSize(a.devices[0]))
	if a.ranges.WouldExceedMax(needed) {
		return 0, errs.Wrap(errs.ErrCapacityExceeded, "alloc: arena max_size reached")
	}

	base, err := a.hookAlloc(needed)
	if err != nil {
		return 0, err
	}
	a.sizes[base] = needed
	return base, nil
}

// Realloc moves the allocation to a new size within the same arena
// (spec.md §4.3). If the existing extent already covers newSize the pointer
// is kept in place; otherwise a fresh extent is mapped, the overlapping
// prefix copied, and the old extent released.
func (a *Arena) Realloc(ptr uintptr, newSize uintptr) (uintptr, error) {
	if ptr == 0 {
		return a.Alloc(newSize)
	}
	oldSize, ok := a.objectSize(ptr)
	if !ok {
		return 0, a.fatalOrErr(errs.Wrap(errs.ErrRegistryNotFound, "realloc: pointer not owned by this arena"))
	}
	if newSize <= oldSize {
		return ptr, nil
	}
	newPtr, err := a.Alloc(newSize)
	if err != nil {
		return 0, err
	}
	copyMemory(newPtr, ptr, oldSize)
	if err := a.free(ptr); err != nil {
		return 0, err
	}
	return newPtr, nil
}

// objectSize returns the live extent size at ptr and whether ptr is owned
// by this arena.
func (a *Arena) objectSize(ptr uintptr) (uintptr, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sz, ok := a.sizes[ptr]
	return sz, ok
}

// Free releases ptr. Exported as a method for callers that already know the
// owning arena; the arena-less spec.md entry point lives in the sicm
// package via ByID + registry lookup.
func (a *Arena) Free(ptr uintptr) error {
	return a.free(ptr)
}

func (a *Arena) free(ptr uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	size, ok := a.sizes[ptr]
	if !ok {
		return a.fatalOrErr(errs.Wrap(errs.ErrRegistryNotFound, "free: pointer not owned by this arena"))
	}
	delete(a.sizes, ptr)

	return a.hookDalloc(ptr, size)
}

// fatalOrErr implements spec.md §7: categories errs.IsFatal names must abort
// the process (mirroring the teacher's throw()) rather than propagate as an
// ordinary error.
func (a *Arena) fatalOrErr(err error) error {
	if errs.IsFatal(err) {
		slog.Fatal("fatal allocator error", zap.Uint32("arena_id", a.id), zap.Error(err))
	}
	return err
}

// Destroy releases every range of the arena (spec.md §3 lifecycle).
func (a *Arena) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return nil
	}

	var firstErr error
	a.ranges.Iter(func(r rangeset.Range) bool {
		if a.flags&Persist == 0 {
			if err := a.hookDestroyLocked(r.Start, r.Size()); err != nil && firstErr == nil {
				firstErr = err
			}
		} else {
			a.reg.Delete(r.Start)
		}
		return true
	})
	a.destroyed = true
	a.sizes = nil

	idMu.Lock()
	delete(byID, a.id)
	idMu.Unlock()

	slog.Debug("arena destroyed", zap.Uint32("arena_id", a.id), zap.String("correlation", uuid.NewString()))
	return firstErr
}
