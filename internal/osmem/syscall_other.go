//go:build !linux

// NUMA page-policy syscalls are Linux-specific (spec.md's target platform:
// mbind/get_mempolicy/set_mempolicy). On other platforms these are stubs so
// the module still builds; WithBindPolicy/MigratePages return
// errs.ErrOsMappingFailed/errs.ErrBindingFailed at the call site instead of
// silently doing nothing.
package osmem

import "errors"

var errUnsupportedPlatform = errors.New("osmem: NUMA policy syscalls unsupported on this platform")

func setMempolicy(mode int, nodes []int) error {
	return errUnsupportedPlatform
}

func setMempolicyRaw(mode int, mask []uint64) error {
	return errUnsupportedPlatform
}

func getMempolicy() (int, []uint64, bool) {
	return 0, nil, false
}

func mbindMove(addr, size uintptr, toNode int) error {
	return errUnsupportedPlatform
}
