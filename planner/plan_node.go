package planner

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"mit.edu/dsg/flowdb/common"
)

// Tag names the kind of operation a PlanNode describes. The set of tags is open: any tag registered with the
// operator registry is valid.
type Tag string

// PlanNode represents the static structure of one step of a query plan.
//
// A node is immutable and may be shared by several parents, so a plan is a DAG rather than a tree. Inputs must
// exist before the node that consumes them, which makes cycles impossible. Whether the input count suits the tag
// is not checked here: arity belongs to the operator registry and is verified when the node is decoded.
//
// Nodes are identified by pointer. ID is a stable, printable identity used in logs and error messages.
type PlanNode struct {
	id           uuid.UUID
	tag          Tag
	params       Params
	capabilities Capabilities
	inputs       []*PlanNode
}

// NewPlanNode creates a node. The maps and the input slice are copied, so later changes by the caller are not
// visible through the node.
func NewPlanNode(tag Tag, params Params, capabilities Capabilities, inputs ...*PlanNode) *PlanNode {
	for i, in := range inputs {
		common.Assert(in != nil, "input %d of %s node is nil", i, tag)
	}
	n := &PlanNode{
		id:           uuid.New(),
		tag:          tag,
		params:       make(Params, len(params)),
		capabilities: make(Capabilities, len(capabilities)),
		inputs:       append([]*PlanNode(nil), inputs...),
	}
	for k, v := range params {
		n.params[k] = v
	}
	for k, v := range capabilities {
		common.Assert(v != nil, "capability %q of %s node is nil", k, tag)
		n.capabilities[k] = v
	}
	return n
}

func (n *PlanNode) ID() uuid.UUID {
	return n.id
}

func (n *PlanNode) Tag() Tag {
	return n.tag
}

// NumInputs returns the number of inputs.
func (n *PlanNode) NumInputs() int {
	return len(n.inputs)
}

// Input returns input i.
func (n *PlanNode) Input(i int) *PlanNode {
	return n.inputs[i]
}

// Inputs returns a copy of the input list.
func (n *PlanNode) Inputs() []*PlanNode {
	return append([]*PlanNode(nil), n.inputs...)
}

// Param returns the plain parameter called name, if present.
func (n *PlanNode) Param(name string) (Param, bool) {
	p, ok := n.params[name]
	return p, ok
}

// ParamNames returns the sorted names of the plain parameters.
func (n *PlanNode) ParamNames() []string {
	return sortedKeys(n.params)
}

// CapabilityNames returns the sorted names of the opaque parameters.
func (n *PlanNode) CapabilityNames() []string {
	return sortedKeys(n.capabilities)
}

func (n *PlanNode) String() string {
	return fmt.Sprintf("%s(%s)", n.tag, n.id.String()[:8])
}

func (n *PlanNode) lookup(name string, kind ParamKind) (Param, error) {
	p, ok := n.params[name]
	if !ok {
		return Param{}, common.NewError(common.MalformedNodeError, "%s: missing parameter %q", n, name)
	}
	if p.kind != kind {
		return Param{}, common.NewError(common.MalformedNodeError, "%s: parameter %q is %s, expected %s", n, name, p.kind, kind)
	}
	return p, nil
}

// Int returns the integer parameter called name.
func (n *PlanNode) Int(name string) (int64, error) {
	p, err := n.lookup(name, IntKind)
	return p.i, err
}

// Bool returns the bool parameter called name.
func (n *PlanNode) Bool(name string) (bool, error) {
	p, err := n.lookup(name, BoolKind)
	return p.i != 0, err
}

// StringParam returns the string parameter called name.
func (n *PlanNode) StringParam(name string) (string, error) {
	p, err := n.lookup(name, StringKind)
	return p.s, err
}

// Type returns the value type parameter called name.
func (n *PlanNode) Type(name string) (common.Type, error) {
	p, err := n.lookup(name, TypeKind)
	if err == nil && !p.t.IsValid() {
		return 0, common.NewError(common.MalformedNodeError, "%s: parameter %q holds invalid type %d", n, name, p.t)
	}
	return p.t, err
}

func (n *PlanNode) listLength(prefix string) (int, error) {
	count, err := n.Int(prefix + "_count")
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, common.NewError(common.MalformedNodeError, "%s: negative length for list %q", n, prefix)
	}
	return int(count), nil
}

// IntList reads a list written by IntListParams.
func (n *PlanNode) IntList(prefix string) ([]int64, error) {
	count, err := n.listLength(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]int64, count)
	for i := range out {
		if out[i], err = n.Int(fmt.Sprintf("%s_%d", prefix, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BoolList reads a list written by BoolListParams.
func (n *PlanNode) BoolList(prefix string) ([]bool, error) {
	count, err := n.listLength(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]bool, count)
	for i := range out {
		if out[i], err = n.Bool(fmt.Sprintf("%s_%d", prefix, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TypeList reads a list written by TypeListParams.
func (n *PlanNode) TypeList(prefix string) ([]common.Type, error) {
	count, err := n.listLength(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]common.Type, count)
	for i := range out {
		if out[i], err = n.Type(fmt.Sprintf("%s_%d", prefix, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Capability returns the opaque parameter called name.
func (n *PlanNode) Capability(name string) (*Capability, error) {
	c, ok := n.capabilities[name]
	if !ok {
		return nil, common.NewError(common.MalformedNodeError, "%s: missing capability %q", n, name)
	}
	return c, nil
}

// CapabilityOf extracts the opaque parameter called name as a T. It fails with MalformedNodeError if the
// parameter is missing or holds something else.
func CapabilityOf[T any](n *PlanNode, name string) (T, error) {
	var zero T
	c, err := n.Capability(name)
	if err != nil {
		return zero, err
	}
	v, ok := c.value.(T)
	if !ok {
		return zero, common.NewError(common.MalformedNodeError, "%s: capability %q holds %T, expected %T", n, name, c.value, zero)
	}
	return v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
