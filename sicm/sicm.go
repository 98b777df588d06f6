// Package sicm is the public entry point for the heterogeneous-memory
// allocator and online placement engine (spec.md §3-4). It wires together
// internal/devicetable, internal/registry, internal/arena,
// internal/sampler, internal/rss, internal/bandwidth, internal/profile and
// internal/placement behind the small surface an application actually
// calls: Init/Fini, arena creation, and a default-arena malloc family
// (spec.md §4.1's override entry points, resolved per DESIGN.md's Open
// Question #1: Go cannot interpose libc's malloc/free without cgo, so these
// become ordinary exported functions on a process-wide default arena rather
// than symbol overrides).
package sicm

import (
	"context"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/lanl/SICM-sub001/internal/arena"
	"github.com/lanl/SICM-sub001/internal/bandwidth"
	"github.com/lanl/SICM-sub001/internal/config"
	"github.com/lanl/SICM-sub001/internal/devicetable"
	"github.com/lanl/SICM-sub001/internal/errs"
	"github.com/lanl/SICM-sub001/internal/metrics"
	"github.com/lanl/SICM-sub001/internal/osmem"
	"github.com/lanl/SICM-sub001/internal/placement"
	"github.com/lanl/SICM-sub001/internal/profile"
	"github.com/lanl/SICM-sub001/internal/registry"
	"github.com/lanl/SICM-sub001/internal/rss"
	"github.com/lanl/SICM-sub001/internal/sampler"
	"github.com/lanl/SICM-sub001/internal/slog"
)

// Arena is the public handle over an internal arena (spec.md §3).
type Arena struct {
	a *arena.Arena
}

// ID returns the arena's numeric identifier.
func (h *Arena) ID() uint32 { return h.a.ID() }

// Alloc allocates size bytes from the arena (spec.md §4.3).
func (h *Arena) Alloc(size uintptr) (uintptr, error) { return h.a.Alloc(size) }

// Realloc resizes an existing allocation (spec.md §4.3).
func (h *Arena) Realloc(ptr, newSize uintptr) (uintptr, error) { return h.a.Realloc(ptr, newSize) }

// Free releases ptr, which must have come from this arena.
func (h *Arena) Free(ptr uintptr) error { return h.a.Free(ptr) }

// SetDevice rebinds the arena to a single device (spec.md §4.3).
func (h *Arena) SetDevice(device int) error { return h.a.SetDevice(device) }

// SetDevices rebinds the arena to a set of acceptable devices (spec.md §4.3).
func (h *Arena) SetDevices(devices []int) error { return h.a.SetDevices(devices) }

// Size returns the arena's current mapped size.
func (h *Arena) Size() uintptr { return h.a.Size() }

// Flags re-exports internal/arena.Flags for callers constructing arenas
// (spec.md §3/§4.3).
type Flags = arena.Flags

const (
	MutexHot = arena.MutexHot
	Shared   = arena.Shared
	Persist  = arena.Persist
)

// Context is the process-wide handle produced by Init (spec.md §3
// "Context").
type Context struct {
	mu     sync.Mutex
	table  *devicetable.DeviceTable
	reg    *registry.Registry
	cfg    config.Config
	metric *metrics.Metrics

	defaultArena *arena.Arena

	sampler  *sampler.Sampler
	rssProbe *rss.Prober
	bwColl   *bandwidth.Collector
	prof     *profile.Aggregator
	engine   *placement.Engine

	cancel context.CancelFunc
}

var (
	globalMu  sync.Mutex
	globalCtx *Context
)

// Init constructs the runtime context: loads configuration, probes the
// device table, and creates the default arena every Malloc/Free call uses
// (spec.md §4.1/§4.2).
func Init(devices []devicetable.Device) (*Context, error) {
	table, err := devicetable.New(devices)
	if err != nil {
		return nil, err
	}
	cfg := config.Load()
	reg := registry.New()
	m := metrics.New()

	defaultDevices := []int{cfg.DefaultDevice}
	defArena, err := arena.Create(table, reg, ^uintptr(0), 0, defaultDevices, -1)
	if err != nil {
		return nil, err
	}

	c := &Context{
		table:        table,
		reg:          reg,
		cfg:          cfg,
		metric:       m,
		defaultArena: defArena,
		prof:         profile.New(append(cfg.ProfilePebsEvents, cfg.ProfileBwEvents...), nil, m),
	}
	c.registerWithEngine(defArena, defaultDevices)

	globalMu.Lock()
	globalCtx = c
	globalMu.Unlock()

	slog.Info("sicm context initialized")
	return c, nil
}

// Fini releases every arena and background resource owned by the context
// (spec.md §3 lifecycle "Fini").
func (c *Context) Fini() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopProfilingLocked()

	err := c.defaultArena.Destroy()

	globalMu.Lock()
	if globalCtx == c {
		globalCtx = nil
	}
	globalMu.Unlock()

	slog.Info("sicm context finalized")
	return err
}

// CreateArena creates a new named arena bound to the given devices
// (spec.md §4.3). The arena is registered with the online placement engine
// (spec.md §4.7) so it participates in ranking/hotset decisions from its
// first profiling interval onward.
func (c *Context) CreateArena(maxSize uintptr, flags Flags, devices []int) (*Arena, error) {
	a, err := arena.Create(c.table, c.reg, maxSize, flags, devices, -1)
	if err != nil {
		return nil, err
	}
	c.registerWithEngine(a, devices)
	return &Arena{a: a}, nil
}

// CreateSharedArena creates an arena backed by a shared file mapping
// (spec.md §4.3 "Shared mapping mode").
func (c *Context) CreateSharedArena(maxSize uintptr, devices []int, fd int) (*Arena, error) {
	a, err := arena.Create(c.table, c.reg, maxSize, Shared, devices, fd)
	if err != nil {
		return nil, err
	}
	c.registerWithEngine(a, devices)
	return &Arena{a: a}, nil
}

// registerWithEngine associates a newly created arena with the placement
// engine (spec.md §4.7), starting it in the upper tier if any of its bound
// devices is the configured upper device, lower otherwise.
func (c *Context) registerWithEngine(a *arena.Arena, devices []int) {
	tier := placement.TierLower
	for _, d := range devices {
		if d == c.cfg.UpperDevice {
			tier = placement.TierUpper
			break
		}
	}
	c.Engine(c.cfg.UpperCapacityBytes).Register(a, tier)
}

// Lookup resolves the arena owning ptr via the process-wide extent
// registry (spec.md §4.3 "free(ptr) is arena-less").
func (c *Context) Lookup(ptr uintptr) (*Arena, bool) {
	id, ok := c.reg.FindContaining(ptr)
	if !ok {
		return nil, false
	}
	a, ok := arena.ByID(id)
	if !ok {
		return nil, false
	}
	return &Arena{a: a}, true
}

// DeviceTable returns the context's probed device table.
func (c *Context) DeviceTable() *devicetable.DeviceTable { return c.table }

// Engine returns the online placement engine, constructing it on first use
// from the context's configured upper/lower devices (spec.md §4.7).
func (c *Context) Engine(upperCapacity uint64) *placement.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		c.engine = placement.New(&c.cfg, []int{c.cfg.UpperDevice}, []int{c.cfg.LowerDevice}, upperCapacity, c.metric)
	}
	return c.engine
}

// Profile returns the context's profile aggregator (spec.md §4.6).
func (c *Context) Profile() *profile.Aggregator { return c.prof }

// default-arena entry points (spec.md §4.1), resolved per DESIGN.md's Open
// Question #1.

// Malloc allocates size bytes from the process default arena.
func Malloc(size uintptr) (uintptr, error) {
	c, err := requireContext()
	if err != nil {
		return 0, err
	}
	return c.defaultArena.Alloc(size)
}

// Calloc allocates n*size bytes from the default arena, zeroed.
func Calloc(n, size uintptr) (uintptr, error) {
	c, err := requireContext()
	if err != nil {
		return 0, err
	}
	total := n * size
	ptr, err := c.defaultArena.Alloc(total)
	if err != nil || ptr == 0 {
		return ptr, err
	}
	zero(ptr, total)
	return ptr, nil
}

// Realloc resizes a default-arena allocation.
func Realloc(ptr, newSize uintptr) (uintptr, error) {
	c, err := requireContext()
	if err != nil {
		return 0, err
	}
	return c.defaultArena.Realloc(ptr, newSize)
}

// Free releases ptr, locating its owning arena via the registry so it need
// not be the default arena (spec.md §4.1 "free(ptr) is arena-less").
func Free(ptr uintptr) error {
	c, err := requireContext()
	if err != nil {
		return err
	}
	if a, ok := c.Lookup(ptr); ok {
		return a.Free(ptr)
	}
	err = errs.Wrap(errs.ErrRegistryNotFound, "sicm.Free: pointer not owned by any arena")
	if errs.IsFatal(err) {
		slog.Fatal("fatal allocator error", zap.Error(err))
	}
	return err
}

func requireContext() (*Context, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCtx == nil {
		return nil, errs.Wrap(errs.ErrOsMappingFailed, "sicm: context not initialized; call Init first")
	}
	return globalCtx, nil
}

func zero(ptr, size uintptr) {
	if size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	for i := range b {
		b[i] = 0
	}
}

// PageSize returns the OS page size (spec.md §3 glossary "page").
func PageSize() int { return osmem.PageSize() }
