package common

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors_Codes(t *testing.T) {
	err := NewError(UnknownOperatorError, "no operator registered for tag %q", "nope")
	assert.Contains(t, err.Error(), "UnknownOperatorError")
	assert.Contains(t, err.Error(), `"nope"`)

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, UnknownOperatorError, code)

	wrapped := errors.Wrapf(err, "decoding node %d", 3)
	assert.True(t, IsCode(wrapped, UnknownOperatorError))
	assert.False(t, IsCode(wrapped, InferenceError))

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrors_WrapKeepsCause(t *testing.T) {
	cause := NewError(ResourceFaultError, "disk on fire")
	fault := WrapError(ExecutionFaultError, errors.Wrap(cause, "reading block"), "operator %s failed", "file_scan")

	code, _ := CodeOf(fault)
	assert.Equal(t, ExecutionFaultError, code)
	assert.True(t, IsCode(fault, ExecutionFaultError))
	assert.True(t, IsCode(fault, ResourceFaultError), "cause codes remain visible through the fault")
	assert.Contains(t, fault.Error(), "disk on fire")
}
