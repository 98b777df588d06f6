package errs_test

import (
	"testing"

	stderrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lanl/SICM-sub001/internal/errs"
)

func TestIsFatal_ClassifiesCorrectly(t *testing.T) {
	assert.True(t, errs.IsFatal(errs.ErrRangeInvariantViolation))
	assert.True(t, errs.IsFatal(errs.ErrRegistryNotFound))
	assert.True(t, errs.IsFatal(errs.ErrEventDecodeFailed))

	assert.False(t, errs.IsFatal(errs.ErrCapacityExceeded))
	assert.False(t, errs.IsFatal(errs.ErrOsMappingFailed))
	assert.False(t, errs.IsFatal(errs.ErrBindingFailed))
}

func TestWrap_PreservesCauseForFatalClassification(t *testing.T) {
	wrapped := errs.Wrap(errs.ErrRegistryNotFound, "free: pointer not owned")
	assert.True(t, errs.IsFatal(wrapped))
	assert.Equal(t, errs.ErrRegistryNotFound, stderrors.Cause(wrapped))
	assert.Contains(t, wrapped.Error(), "free: pointer not owned")
}

func TestWrapf_FormatsMessage(t *testing.T) {
	wrapped := errs.Wrapf(errs.ErrCapacityExceeded, "arena %d over by %d bytes", 3, 128)
	assert.Contains(t, wrapped.Error(), "arena 3 over by 128 bytes")
}
