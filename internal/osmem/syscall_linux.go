//go:build linux

// Raw mbind(2)/get_mempolicy(2)/set_mempolicy(2) wrappers. golang.org/x/sys/unix
// does not expose NUMA policy syscalls directly, so this file issues them via
// unix.Syscall6/unix.Syscall with the stable Linux syscall numbers, the same
// approach _examples/xyproto-vibe67's syscall_*.go files take for raw
// platform syscalls outside what golang.org/x/sys/unix wraps.
package osmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sysMbind          = unix.SYS_MBIND
	sysGetMempolicy   = unix.SYS_GET_MEMPOLICY
	sysSetMempolicy   = unix.SYS_SET_MEMPOLICY
	sysMovePages      = unix.SYS_MOVE_PAGES
	mpolFDefault      = 0
	mbindMfMove       = 1 << 1 // MPOL_MF_MOVE
	mbindMfMoveAll    = 1 << 2 // MPOL_MF_MOVE_ALL
	maxNumaNodesGuess = 1024   // upper bound for the node-mask bitmap word count
)

func nodeMaskWords() int {
	return (maxNumaNodesGuess + 63) / 64
}

func buildNodeMask(nodes []int) []uint64 {
	words := make([]uint64, nodeMaskWords())
	for _, n := range nodes {
		if n < 0 {
			continue
		}
		words[n/64] |= 1 << uint(n%64)
	}
	return words
}

func setMempolicy(mode int, nodes []int) error {
	mask := buildNodeMask(nodes)
	_, _, errno := unix.Syscall(sysSetMempolicy, uintptr(mode), uintptr(unsafe.Pointer(&mask[0])), uintptr(len(mask)*64))
	if errno != 0 {
		return errno
	}
	return nil
}

func setMempolicyRaw(mode int, mask []uint64) error {
	if len(mask) == 0 {
		mask = make([]uint64, nodeMaskWords())
	}
	_, _, errno := unix.Syscall(sysSetMempolicy, uintptr(mode), uintptr(unsafe.Pointer(&mask[0])), uintptr(len(mask)*64))
	if errno != 0 {
		return errno
	}
	return nil
}

// getMempolicy returns the thread's current policy mode and node mask.
// The bool reports whether the call succeeded; callers fall back to
// MPOL_DEFAULT on failure rather than failing the whole allocation.
func getMempolicy() (int, []uint64, bool) {
	var mode int
	mask := make([]uint64, nodeMaskWords())
	_, _, errno := unix.Syscall6(sysGetMempolicy,
		uintptr(unsafe.Pointer(&mode)),
		uintptr(unsafe.Pointer(&mask[0])),
		uintptr(len(mask)*64),
		0, 0, 0)
	if errno != 0 {
		return mpolFDefault, nil, false
	}
	return mode, mask, true
}

// mbindMove applies MPOL_BIND + MPOL_MF_MOVE|MPOL_MF_MOVE_ALL over [addr, addr+size) so
// already-resident pages migrate to toNode immediately, matching spec.md
// §4.3's "issues an OS page-migration call for every range" semantics.
func mbindMove(addr, size uintptr, toNode int) error {
	mask := buildNodeMask([]int{toNode})
	_, _, errno := unix.Syscall6(sysMbind,
		addr, size,
		uintptr(mpolBind),
		uintptr(unsafe.Pointer(&mask[0])),
		uintptr(len(mask)*64),
		uintptr(mbindMfMove|mbindMfMoveAll))
	if errno != 0 {
		return errno
	}
	return nil
}
