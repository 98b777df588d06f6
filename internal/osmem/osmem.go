// Package osmem wraps the raw OS primitives the arena's extent hooks need:
// anonymous/file-backed mmap, munmap, thread-local memory-policy save/set/
// restore, and page migration (mbind/move_pages). spec.md §9 notes these
// cannot be merged into one call when the target language lacks real
// thread-local OS state; Go goroutines can migrate between OS threads
// mid-function, so every policy-sensitive call here locks its goroutine to
// its OS thread for the duration, same intent as the teacher's raw-syscall
// mapping call in mCentral_Grow but split into the two-step "map, then bind"
// shape spec.md §9 calls out.
//
// Grounded on golang.org/x/sys/unix usage in
// _examples/other_examples/5b188d3e_joeycold-ebpf__perf-ring.go.go (Mmap,
// Munmap, protection/flag constants) and _examples/xyproto-vibe67's direct
// dependency on golang.org/x/sys.
package osmem

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lanl/SICM-sub001/internal/errs"
)

// mbind / set_mempolicy / get_mempolicy are not wrapped by
// golang.org/x/sys/unix; syscall_linux.go issues them by number, taking the
// per-architecture numbers from unix.SYS_*. This mirrors how the upstream C
// implementation calls mbind(2) and move_pages(2) directly.
const (
	mpolBind = 2 // MPOL_BIND
)

// MapAnonymous maps a fresh, zero-filled anonymous region of `size` bytes.
// If newAddr != 0 a fixed mapping is requested there (best-effort; callers
// re-check alignment per spec.md §4.3 hook step (iv)).
func MapAnonymous(size uintptr, newAddr uintptr) (uintptr, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	var fixedAddr uintptr
	if newAddr != 0 {
		flags |= unix.MAP_FIXED
		fixedAddr = newAddr
	}
	b, err := unix.Mmap(-1, int64(fixedAddr), int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return 0, errs.Wrapf(errs.ErrOsMappingFailed, "mmap anonymous size=%d: %v", size, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

// MapShared maps `size` bytes of file descriptor fd starting at offset,
// for the SHARED arena flag (spec.md §4.3 "Shared mapping mode").
func MapShared(fd int, offset int64, size uintptr) (uintptr, error) {
	b, err := unix.Mmap(fd, offset, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return 0, errs.Wrapf(errs.ErrOsMappingFailed, "mmap shared fd=%d offset=%d size=%d: %v", fd, offset, size, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

// Unmap releases the mapping at [addr, addr+size).
func Unmap(addr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	if err := unix.Munmap(b); err != nil {
		return errs.Wrapf(errs.ErrOsMappingFailed, "munmap addr=%#x size=%d: %v", addr, size, err)
	}
	return nil
}

// WithBindPolicy locks the calling goroutine to its OS thread, switches the
// thread's NUMA memory policy to MPOL_BIND against nodeMask, runs fn, then
// restores the previous policy — spec.md §4.3 hook step (ii)/(v) and §9's
// "memory-policy manipulation is thread-local" note.
func WithBindPolicy(nodeMask []int, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prevMode, prevMask, haveGet := getMempolicy()

	if err := setMempolicy(mpolBind, nodeMask); err != nil {
		return errs.Wrapf(errs.ErrOsMappingFailed, "set_mempolicy bind: %v", err)
	}

	err := fn()

	if haveGet {
		_ = setMempolicyRaw(prevMode, prevMask)
	} else {
		_ = setMempolicy(0 /* MPOL_DEFAULT */, nil)
	}
	return err
}

// MigratePages moves every currently-resident page of [addr, addr+size) to
// toNode, the Go rendition of the upstream mbind(MPOL_MF_MOVE) call used by
// set_device (spec.md §4.3). It is intentionally a single bulk call per
// range rather than a move_pages() per page, matching the "bind the whole
// extent" granularity spec.md describes.
func MigratePages(addr, size uintptr, toNode int) error {
	if err := mbindMove(addr, size, toNode); err != nil {
		return errs.Wrapf(errs.ErrBindingFailed, "mbind move addr=%#x size=%d node=%d: %v", addr, size, toNode, err)
	}
	return nil
}

// PageSize returns the OS's base page size, used when no device-specific
// page size override applies.
func PageSize() int {
	return unix.Getpagesize()
}
