package operator

import (
	"fmt"
	"strings"
)

// Flags is the capability bitfield of an operator kind.
type Flags uint8

const (
	// Linear operators have exactly one input and one output column and preserve the row count, so their
	// length can be inferred from their input.
	Linear Flags = 1 << iota
	// Source operators have no inputs and never call GetNext.
	Source
	// Sink operators consume their inputs and never call Emit.
	Sink
)

// VariadicInputs declares that an operator accepts one or more inputs.
const VariadicInputs = -1

// UnknownLength is the inferred length of an output whose row count cannot be determined without executing.
const UnknownLength int64 = -1

// Attributes describes the shape of an operator kind: its capability flags and declared input arity.
type Attributes struct {
	Flags     Flags
	NumInputs int
}

func (a Attributes) IsLinear() bool {
	return a.Flags&Linear != 0
}

func (a Attributes) IsSource() bool {
	return a.Flags&Source != 0
}

func (a Attributes) IsSink() bool {
	return a.Flags&Sink != 0
}

// AcceptsInputs reports whether an operator with these attributes can be built with n inputs.
func (a Attributes) AcceptsInputs(n int) bool {
	if a.NumInputs == VariadicInputs {
		return n >= 1
	}
	return a.NumInputs == n
}

func (a Attributes) String() string {
	var flags []string
	if a.IsLinear() {
		flags = append(flags, "LINEAR")
	}
	if a.IsSource() {
		flags = append(flags, "SOURCE")
	}
	if a.IsSink() {
		flags = append(flags, "SINK")
	}
	arity := "*"
	if a.NumInputs != VariadicInputs {
		arity = fmt.Sprintf("%d", a.NumInputs)
	}
	return fmt.Sprintf("{%s inputs=%s}", strings.Join(flags, "|"), arity)
}
