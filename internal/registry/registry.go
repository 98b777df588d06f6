// Package registry implements the process-wide ExtentRegistry of spec.md
// §4.2: a concurrent, insert/delete/point-query index from virtual address
// ranges to arena ids, backed by a dense array with tombstones and a single
// RW-lock, exactly as spec.md specifies ("a reader-writer lock with
// array-of-structs backing is the baseline").
//
// Grounded on _examples/cloudfly-readgo/runtime/mcentral.go's centrally
// locked index of spans (mCentral_CacheSpan takes c.lock around the
// nonempty/empty span lists the same way this registry takes its RWMutex
// around the backing slice).
package registry

import (
	"sort"
	"sync"
)

// entry is one slot of the dense backing array. A tombstoned entry has
// Start == End == 0, which can never collide with a live range because
// spec.md's address space starts above the zero page.
type entry struct {
	start, end uintptr
	arenaID    uint32
	live       bool
}

// Registry is the process-wide extent registry.
//
// LinearScanThreshold controls the DESIGN.md open-question resolution:
// below it FindContaining does a linear scan (spec.md §4.2 baseline), at or
// above it lookups use a binary search over a sorted live-index, which
// spec.md §9 explicitly invites once extent counts exceed "a small
// threshold".
type Registry struct {
	mu sync.RWMutex

	entries   []entry
	freeList  []int // reusable tombstone slots, oldest first
	sortedIdx []int // entries indices, sorted by start; rebuilt lazily
	dirty     bool  // sortedIdx needs a rebuild

	LinearScanThreshold int
}

// New returns an empty Registry with the default linear-scan threshold.
func New() *Registry {
	return &Registry{LinearScanThreshold: 512}
}

// Insert records [start, end) as owned by arenaID. Reuses a tombstoned slot
// before growing the backing array (spec.md §4.2).
func (r *Registry) Insert(start, end uintptr, arenaID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{start: start, end: end, arenaID: arenaID, live: true}
	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.entries[idx] = e
	} else {
		r.entries = append(r.entries, e)
	}
	r.dirty = true
}

// Delete marks the range starting at `start` empty. Physical compaction is
// deferred; the slot becomes reusable by a future Insert (spec.md §4.2).
func (r *Registry) Delete(start uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].live && r.entries[i].start == start {
			idx := i
			r.entries[idx] = entry{}
			r.freeList = append(r.freeList, idx)
			r.dirty = true
			return
		}
	}
}

// ForEachLive visits every non-empty entry under a read lock. fn must not
// call back into the Registry.
func (r *Registry) ForEachLive(fn func(start, end uintptr, arenaID uint32)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.live {
			fn(e.start, e.end, e.arenaID)
		}
	}
}

// LiveCount returns the number of currently live (non-tombstoned) entries.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) - len(r.freeList)
}

// FindContaining returns the arena id owning addr, and whether any range
// covers it (spec.md §4.2). Below LinearScanThreshold live extents this is a
// linear scan; at or above it, a binary search over a lazily rebuilt sorted
// index (spec.md §9's suggested optimization).
func (r *Registry) FindContaining(addr uintptr) (uint32, bool) {
	r.mu.RLock()
	live := len(r.entries) - len(r.freeList)
	needsSort := live >= r.LinearScanThreshold && r.dirty
	r.mu.RUnlock()

	if needsSort {
		r.rebuildSortedIdx()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if live < r.LinearScanThreshold {
		for _, e := range r.entries {
			if e.live && e.start <= addr && addr < e.end {
				return e.arenaID, true
			}
		}
		return 0, false
	}

	idx := r.sortedIdx
	i := sort.Search(len(idx), func(i int) bool {
		return r.entries[idx[i]].start > addr
	})
	if i == 0 {
		return 0, false
	}
	cand := r.entries[idx[i-1]]
	if cand.live && cand.start <= addr && addr < cand.end {
		return cand.arenaID, true
	}
	return 0, false
}

// rebuildSortedIdx rebuilds the sorted live-entry index under the write
// lock. Called with no lock held; acquires the lock itself so FindContaining
// never upgrades a read lock in place (sync.RWMutex has no such primitive).
func (r *Registry) rebuildSortedIdx() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty && r.sortedIdx != nil {
		return
	}
	idx := make([]int, 0, len(r.entries))
	for i, e := range r.entries {
		if e.live {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		return r.entries[idx[a]].start < r.entries[idx[b]].start
	})
	r.sortedIdx = idx
	r.dirty = false
}
