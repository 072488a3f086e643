package common

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type FlowDBErrorCode int

const (
	// MalformedNodeError indicates a plan node whose parameters are missing or carry the wrong kind. It is
	// detected when the node is decoded into an operator, never mid-execution.
	MalformedNodeError FlowDBErrorCode = iota
	// ArityMismatchError indicates a plan node whose input count disagrees with the arity its operator declares.
	ArityMismatchError
	// UnknownOperatorError indicates a plan node tag that has no registered operator. It signals a
	// registration defect rather than bad input.
	UnknownOperatorError
	// DuplicateOperatorError indicates a second registration for the same tag.
	DuplicateOperatorError
	// InferenceError indicates contradictory or irresolvable output types or lengths. It is surfaced before
	// execution begins.
	InferenceError
	// ResourceFaultError is raised by external collaborators such as storage (I/O failure, corrupt data).
	ResourceFaultError
	// ExecutionFaultError aborts a running pipeline. It wraps the cause raised by the failing operator.
	ExecutionFaultError
	// DuplicateObjectError indicates an attempt to create a table that already exists in the catalog.
	DuplicateObjectError
	// NoSuchObjectError indicates a request for a table that does not exist in the catalog.
	NoSuchObjectError
)

func (ec FlowDBErrorCode) String() string {
	switch ec {
	case MalformedNodeError:
		return "MalformedNodeError"
	case ArityMismatchError:
		return "ArityMismatchError"
	case UnknownOperatorError:
		return "UnknownOperatorError"
	case DuplicateOperatorError:
		return "DuplicateOperatorError"
	case InferenceError:
		return "InferenceError"
	case ResourceFaultError:
		return "ResourceFaultError"
	case ExecutionFaultError:
		return "ExecutionFaultError"
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	}
	return "unknown"
}

// FlowDBError is the custom error type for the engine.
// It wraps a specific FlowDBErrorCode with a detailed message. Layers above usually wrap it further with
// errors.Wrapf to say which node or operator was involved; IsCode and CodeOf look through those wrappers.
type FlowDBError struct {
	Code      FlowDBErrorCode
	ErrString string
	// Cause is the underlying error, if any. ExecutionFaultError always carries one.
	Cause error
}

func (e FlowDBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("err: %s; msg: %s: %v", e.Code.String(), e.ErrString, e.Cause)
	}
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

func (e FlowDBError) Unwrap() error {
	return e.Cause
}

// NewError builds a FlowDBError with a formatted message and attaches a stack trace.
func NewError(code FlowDBErrorCode, format string, args ...any) error {
	return errors.WithStackDepth(FlowDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}, 1)
}

// WrapError builds a FlowDBError of the given code around cause.
func WrapError(code FlowDBErrorCode, cause error, format string, args ...any) error {
	return errors.WithStackDepth(FlowDBError{Code: code, ErrString: fmt.Sprintf(format, args...), Cause: cause}, 1)
}

// CodeOf returns the code of the outermost FlowDBError in err's chain.
func CodeOf(err error) (FlowDBErrorCode, bool) {
	var fe FlowDBError
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return 0, false
}

// IsCode reports whether err's chain contains a FlowDBError with the given code.
func IsCode(err error, code FlowDBErrorCode) bool {
	for err != nil {
		var fe FlowDBError
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = errors.UnwrapOnce(err)
	}
	return false
}
