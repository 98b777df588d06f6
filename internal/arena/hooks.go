package arena

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/osmem"
	"github.com/lanl/SICM-sub001/internal/slog"
)

// The six extent-hook callbacks of spec.md §4.3. Unlike the C
// implementation, which plugs these into jemalloc's generic extent-hooked
// allocator, arena.go's Alloc/Realloc/free call them directly as the
// arena's own growth path — there is no third-party pluggable-hook
// allocator in the retrieved pack to plug into, so the hooks keep their
// documented contract and ordering but are invoked in-process rather than
// through a callback table.
//
// Caller of hookAlloc and hookDalloc must hold a.mu (spec.md: "the hook
// takes the arena mutex around the RangeSet updates").

// hookAlloc implements spec.md §4.3 hook (1): switch memory policy to BIND,
// map (anonymous or shared-file), restore policy, then register the new
// range in both the RangeSet and the process-wide registry. The base is
// used as mmap returns it (aligned to the OS page size); it is not
// re-mapped to a larger alignment such as the device's page size.
func (a *Arena) hookAlloc(size uintptr) (uintptr, error) {
	nodeMask := a.numaNodeMaskLocked()
	size = roundUpToDevicePage(size, a.table.PageSize(a.devices[0]))

	var base uintptr
	err := osmem.WithBindPolicy(nodeMask, func() error {
		var mapErr error
		if a.flags&Shared != 0 {
			base, mapErr = osmem.MapShared(a.sharedFD, a.sharedOffset, size)
			if mapErr == nil {
				a.sharedOffset += int64(size)
			}
		} else {
			base, mapErr = osmem.MapAnonymous(size, 0)
		}
		return mapErr
	})
	if err != nil {
		return 0, err
	}

	if err := a.ranges.Add(base, size); err != nil {
		_ = osmem.Unmap(base, size)
		if errs.IsFatal(err) {
			slog.Fatal("rangeset invariant violated on alloc", zap.Uint32("arena_id", a.id), zap.Error(err))
		}
		return 0, err
	}
	a.reg.Insert(base, base+size, a.id)
	return base, nil
}

// hookDalloc implements spec.md §4.3 hook (2): remove the range from the
// RangeSet and registry, then unmap.
func (a *Arena) hookDalloc(base, size uintptr) error {
	if err := a.ranges.Remove(base, size); err != nil {
		if errs.IsFatal(err) {
			slog.Fatal("rangeset invariant violated on free", zap.Uint32("arena_id", a.id), zap.Error(err))
		}
		return err
	}
	a.reg.Delete(base)
	return osmem.Unmap(base, size)
}

// hookDestroyLocked implements spec.md §4.3 hook (3): equivalent to dalloc,
// no commit/decommit distinction is kept per-extent.
func (a *Arena) hookDestroyLocked(base, size uintptr) error {
	return a.hookDalloc(base, size)
}

// hookCommit/hookDecommit implement spec.md §4.3 hook (4): no-ops, since the
// arena's mappings are already fully committed via anonymous/MAP_POPULATE-
// style mapping at alloc time.
func (a *Arena) hookCommit(base, size uintptr) error   { return errNotSupported }
func (a *Arena) hookDecommit(base, size uintptr) error { return errNotSupported }

// hookSplit/hookMerge implement spec.md §4.3 hook (5): no-ops, since
// RangeSet coalesces lazily on insert rather than keeping split/merge state
// per extent.
func (a *Arena) hookSplit(base, size, splitAt uintptr) error { return errNotSupported }
func (a *Arena) hookMerge(baseA, sizeA, baseB, sizeB uintptr) error {
	return errNotSupported
}

// roundUpToDevicePage rounds size up to a multiple of the owning device's
// page size (spec.md §3's DeviceTable "page_size(device)" operation) so a
// tier backed by huge pages (e.g. a 2MiB-paged PERSISTENT_NVM mount) never
// gets a mapping smaller than one of its own pages.
func roundUpToDevicePage(size uintptr, pageSize int) uintptr {
	if pageSize <= 0 {
		return size
	}
	ps := uintptr(pageSize)
	if rem := size % ps; rem != 0 {
		size += ps - rem
	}
	return size
}

// numaNodeMaskLocked returns the NUMA node set the arena's current device
// binding maps to. Caller must hold a.mu.
func (a *Arena) numaNodeMaskLocked() []int {
	nodes := make([]int, 0, len(a.devices))
	for _, d := range a.devices {
		n := a.table.NumaNode(d)
		if n >= 0 {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func copyMemory(dst, src, size uintptr) {
	if size == 0 {
		return
	}
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(size))
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(size))
	copy(d, s)
}

var errNotSupported = &notSupportedError{}

type notSupportedError struct{}

func (*notSupportedError) Error() string { return "sicm: hook not supported" }
