// Package errs defines the error categories the allocator core recognises,
// per spec.md §7. Each category is a sentinel; call sites wrap it with
// github.com/pkg/errors to attach the offending range/arena/event.
package errs

import "github.com/pkg/errors"

// Sentinel errors, one per category in spec.md §7.
var (
	// ErrCapacityExceeded: max_size would be exceeded. Returned to the caller,
	// never fatal.
	ErrCapacityExceeded = errors.New("sicm: capacity exceeded")

	// ErrOsMappingFailed: the OS mapping primitive failed. Arena state is left
	// unchanged. Returned to the caller.
	ErrOsMappingFailed = errors.New("sicm: os mapping failed")

	// ErrBindingFailed: a per-range page-migration call failed inside
	// SetDevice. The migration stops at the failing range; already-migrated
	// ranges are kept as-is.
	ErrBindingFailed = errors.New("sicm: page binding failed")

	// ErrRangeInvariantViolation: RangeSet.Add/Remove detected overlap or a
	// missing range. Fatal — implies allocator corruption.
	ErrRangeInvariantViolation = errors.New("sicm: range invariant violation")

	// ErrRegistryNotFound: free(ptr) found no enclosing range. Fatal unless
	// ptr was nil.
	ErrRegistryNotFound = errors.New("sicm: registry lookup found no owning arena")

	// ErrEventDecodeFailed: a hardware event name could not be resolved.
	// Fatal at init time.
	ErrEventDecodeFailed = errors.New("sicm: event decode failed")
)

// IsFatal reports whether err belongs to a category that spec.md §7 says
// must abort the process rather than be returned to the caller.
func IsFatal(err error) bool {
	switch errors.Cause(err) {
	case ErrRangeInvariantViolation, ErrRegistryNotFound, ErrEventDecodeFailed:
		return true
	default:
		return false
	}
}

// Wrap attaches context to a sentinel, preserving Cause() for IsFatal and
// category checks.
func Wrap(sentinel error, context string) error {
	return errors.Wrap(sentinel, context)
}

// Wrapf is the formatted variant of Wrap.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return errors.Wrapf(sentinel, format, args...)
}
