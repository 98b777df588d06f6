// Package rangeset implements the per-arena RangeSet of spec.md §4.1: a
// sorted, coalescing set of (start, size) virtual-address ranges with a
// bounded-size backing store.
//
// Grounded on _examples/cloudfly-readgo/runtime/mcentral.go's sorted span
// list membership and original_source/include/extent_arr.h's bounded,
// doubling extent array — this is the Go rendition of that array: a plain
// sorted slice, doubled on overflow, binary-searched on lookup, exactly as
// spec.md §4.1 prescribes ("a sorted array doubling its capacity is
// acceptable").
package rangeset

import (
	"sort"

	"github.com/lanl/SICM-sub001/internal/errs"
)

// Range is a closed-open virtual address interval [Start, End).
type Range struct {
	Start uintptr
	End   uintptr
}

func (r Range) Size() uintptr { return r.End - r.Start }

// RangeSet is a sorted, coalesced, disjoint set of Ranges, bounded by
// MaxSize when MaxSize != 0 (spec.md §3 invariant (d)).
type RangeSet struct {
	ranges  []Range // sorted by Start; invariants (a)-(c) always hold between calls
	size    uintptr // sum of range sizes, invariant (c)
	maxSize uintptr // 0 = unbounded
}

// New creates an empty RangeSet bounded by maxSize (0 = unbounded).
func New(maxSize uintptr) *RangeSet {
	return &RangeSet{maxSize: maxSize}
}

// Size returns the sum of all range sizes (spec.md invariant 1).
func (rs *RangeSet) Size() uintptr { return rs.size }

// MaxSize returns the configured cap, or 0 if unbounded.
func (rs *RangeSet) MaxSize() uintptr { return rs.maxSize }

// WouldExceedMax reports whether adding extra bytes would cross MaxSize.
func (rs *RangeSet) WouldExceedMax(extra uintptr) bool {
	return rs.maxSize != 0 && rs.size+extra > rs.maxSize
}

// Len returns the number of disjoint ranges currently tracked.
func (rs *RangeSet) Len() int { return len(rs.ranges) }

// locate returns the index of the first range whose Start is >= start.
func (rs *RangeSet) locate(start uintptr) int {
	return sort.Search(len(rs.ranges), func(i int) bool {
		return rs.ranges[i].Start >= start
	})
}

// overlaps reports whether [start, end) intersects any tracked range.
func (rs *RangeSet) overlaps(start, end uintptr) bool {
	i := rs.locate(start)
	// the candidate range just before i might still overlap on its tail
	if i > 0 {
		prev := rs.ranges[i-1]
		if prev.End > start {
			return true
		}
	}
	if i < len(rs.ranges) && rs.ranges[i].Start < end {
		return true
	}
	return false
}

// Add inserts [start, start+size) and coalesces it with an immediately
// adjacent predecessor and/or successor (spec.md §4.1). Returns
// errs.ErrRangeInvariantViolation if the new range overlaps an existing one,
// and errs.ErrCapacityExceeded if it would grow the set past MaxSize.
func (rs *RangeSet) Add(start, size uintptr) error {
	if size == 0 {
		return nil
	}
	end := start + size
	if rs.overlaps(start, end) {
		return errs.Wrapf(errs.ErrRangeInvariantViolation, "add [%#x, %#x) overlaps an existing range", start, end)
	}
	if rs.WouldExceedMax(size) {
		return errs.Wrapf(errs.ErrCapacityExceeded, "add [%#x, %#x) would exceed max size %#x", start, end, rs.maxSize)
	}

	i := rs.locate(start)
	r := Range{Start: start, End: end}

	mergedPrev := i > 0 && rs.ranges[i-1].End == start
	mergedNext := i < len(rs.ranges) && rs.ranges[i].Start == end

	switch {
	case mergedPrev && mergedNext:
		rs.ranges[i-1].End = rs.ranges[i].End
		rs.ranges = append(rs.ranges[:i], rs.ranges[i+1:]...)
	case mergedPrev:
		rs.ranges[i-1].End = end
	case mergedNext:
		rs.ranges[i].Start = start
	default:
		rs.ranges = append(rs.ranges, Range{})
		copy(rs.ranges[i+1:], rs.ranges[i:])
		rs.ranges[i] = r
	}
	rs.size += size
	return nil
}

// Remove deletes [start, start+size) from the set, splitting the covering
// range into at most two residuals (spec.md §4.1, §9 "never split unless
// interior"). Returns errs.ErrRangeInvariantViolation if no tracked range
// covers the input.
func (rs *RangeSet) Remove(start, size uintptr) error {
	if size == 0 {
		return nil
	}
	end := start + size

	i := rs.locate(start)
	// the covering range, if any, starts at or before `start`: either
	// ranges[i] itself (start equals its Start) or ranges[i-1].
	var idx int
	switch {
	case i < len(rs.ranges) && rs.ranges[i].Start == start:
		idx = i
	case i > 0 && rs.ranges[i-1].Start <= start && rs.ranges[i-1].End >= end:
		idx = i - 1
	default:
		return errs.Wrapf(errs.ErrRangeInvariantViolation, "remove [%#x, %#x) not covered by any range", start, end)
	}

	r := rs.ranges[idx]
	if r.Start > start || r.End < end {
		return errs.Wrapf(errs.ErrRangeInvariantViolation, "remove [%#x, %#x) not fully covered by range [%#x, %#x)", start, end, r.Start, r.End)
	}

	leadHole := start > r.Start
	trailHole := end < r.End

	switch {
	case !leadHole && !trailHole:
		rs.ranges = append(rs.ranges[:idx], rs.ranges[idx+1:]...)
	case leadHole && !trailHole:
		rs.ranges[idx].End = start
	case !leadHole && trailHole:
		rs.ranges[idx].Start = end
	default: // interior removal: produce exactly two residuals, never a hole
		rs.ranges[idx].End = start
		trailing := Range{Start: end, End: r.End}
		rs.ranges = append(rs.ranges, Range{})
		copy(rs.ranges[idx+2:], rs.ranges[idx+1:])
		rs.ranges[idx+1] = trailing
	}
	rs.size -= size
	return nil
}

// Iter calls fn for every range in ascending Start order. Iteration stops
// early if fn returns false.
func (rs *RangeSet) Iter(fn func(Range) bool) {
	for _, r := range rs.ranges {
		if !fn(r) {
			return
		}
	}
}

// Ranges returns a snapshot copy of the tracked ranges, ascending by Start.
func (rs *RangeSet) Ranges() []Range {
	out := make([]Range, len(rs.ranges))
	copy(out, rs.ranges)
	return out
}
