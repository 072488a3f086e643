package planner

import (
	"fmt"
	"sync/atomic"

	"mit.edu/dsg/flowdb/common"
)

// ParamKind discriminates the plain parameter kinds a PlanNode can carry.
type ParamKind int8

const (
	IntKind ParamKind = iota
	BoolKind
	StringKind
	TypeKind
)

func (k ParamKind) String() string {
	switch k {
	case IntKind:
		return "int"
	case BoolKind:
		return "bool"
	case StringKind:
		return "string"
	case TypeKind:
		return "type"
	}
	return "unknown"
}

// Param is a plain, comparable operator parameter: an integer, a bool, a string or a value type tag.
type Param struct {
	kind ParamKind
	i    int64
	s    string
	t    common.Type
}

func IntParam(v int64) Param {
	return Param{kind: IntKind, i: v}
}

func BoolParam(v bool) Param {
	p := Param{kind: BoolKind}
	if v {
		p.i = 1
	}
	return p
}

func StringParam(v string) Param {
	return Param{kind: StringKind, s: v}
}

func TypeParam(v common.Type) Param {
	return Param{kind: TypeKind, t: v}
}

// Kind returns the kind of the parameter.
func (p Param) Kind() ParamKind {
	return p.kind
}

func (p Param) String() string {
	switch p.kind {
	case IntKind:
		return fmt.Sprintf("%d", p.i)
	case BoolKind:
		return fmt.Sprintf("%t", p.i != 0)
	case StringKind:
		return fmt.Sprintf("%q", p.s)
	case TypeKind:
		return p.t.String()
	}
	return "?"
}

// Params maps parameter names to plain parameters.
type Params map[string]Param

// IntListParams writes values under prefix_count and prefix_<i> into params, creating the map if needed.
func IntListParams(params Params, prefix string, values []int64) Params {
	if params == nil {
		params = Params{}
	}
	params[prefix+"_count"] = IntParam(int64(len(values)))
	for i, v := range values {
		params[fmt.Sprintf("%s_%d", prefix, i)] = IntParam(v)
	}
	return params
}

// BoolListParams is IntListParams for bools.
func BoolListParams(params Params, prefix string, values []bool) Params {
	if params == nil {
		params = Params{}
	}
	params[prefix+"_count"] = IntParam(int64(len(values)))
	for i, v := range values {
		params[fmt.Sprintf("%s_%d", prefix, i)] = BoolParam(v)
	}
	return params
}

// TypeListParams is IntListParams for value types.
func TypeListParams(params Params, prefix string, values []common.Type) Params {
	if params == nil {
		params = Params{}
	}
	params[prefix+"_count"] = IntParam(int64(len(values)))
	for i, v := range values {
		params[fmt.Sprintf("%s_%d", prefix, i)] = TypeParam(v)
	}
	return params
}

var capabilitySeq atomic.Uint64

// Capability boxes an opaque parameter value such as a closure. Capabilities are compared by identity: two
// nodes are only structurally equal if they share the same box.
type Capability struct {
	id    uint64
	value any
}

// NewCapability boxes v.
func NewCapability(v any) *Capability {
	return &Capability{id: capabilitySeq.Add(1), value: v}
}

// Value returns the boxed value.
func (c *Capability) Value() any {
	return c.value
}

func (c *Capability) String() string {
	return fmt.Sprintf("<%T#%d>", c.value, c.id)
}

// Capabilities maps parameter names to opaque parameters.
type Capabilities map[string]*Capability
