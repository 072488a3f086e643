// Package inference computes the output types and row counts of plan nodes without executing them.
package inference

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Engine runs the inference hooks of a registry bottom-up over plan graphs.
//
// Results are memoized by node identity, so a node reachable through several parents is inferred once, and a
// plan graph that is inferred repeatedly only costs a lookup after the first time. Plan nodes are immutable, so
// memoized results never go stale. An Engine is safe for concurrent use.
type Engine struct {
	registry *operator.Registry
	types    *xsync.MapOf[*planner.PlanNode, []common.Type]
	lengths  *xsync.MapOf[*planner.PlanNode, int64]
}

func NewEngine(registry *operator.Registry) *Engine {
	return &Engine{
		registry: registry,
		types:    xsync.NewMapOf[*planner.PlanNode, []common.Type](),
		lengths:  xsync.NewMapOf[*planner.PlanNode, int64](),
	}
}

// Registry returns the registry whose hooks the engine runs.
func (e *Engine) Registry() *operator.Registry {
	return e.registry
}

func (e *Engine) lookup(node *planner.PlanNode) (*operator.Definition, error) {
	def, err := e.registry.Lookup(node.Tag())
	if err != nil {
		return nil, err
	}
	if !def.Attributes.AcceptsInputs(node.NumInputs()) {
		return nil, common.NewError(common.ArityMismatchError, "%s: %s takes %d inputs, node has %d",
			node, def.Name, def.Attributes.NumInputs, node.NumInputs())
	}
	return def, nil
}

// InferType returns the ordered output types of node in a slice the caller owns. The first failure anywhere
// below node is returned as is; a failing hook is reported as an InferenceError naming its node.
func (e *Engine) InferType(node *planner.PlanNode) ([]common.Type, error) {
	if types, ok := e.types.Load(node); ok {
		return slices.Clone(types), nil
	}
	def, err := e.lookup(node)
	if err != nil {
		return nil, err
	}
	inputTypes := make([][]common.Type, node.NumInputs())
	for i := range inputTypes {
		if inputTypes[i], err = e.InferType(node.Input(i)); err != nil {
			return nil, err
		}
	}
	types, err := def.InferType(node, inputTypes)
	if err != nil {
		return nil, common.WrapError(common.InferenceError, err, "%s: cannot infer output types of %s", node, def.Name)
	}
	for i, t := range types {
		if !t.IsValid() {
			return nil, common.NewError(common.InferenceError, "%s: %s output %d has invalid type %d", node, def.Name, i, t)
		}
	}
	e.types.Store(node, slices.Clone(types))
	return types, nil
}

// InferLength returns the number of rows node will produce, or operator.UnknownLength. Linear nodes without a
// length hook have the length of their input.
func (e *Engine) InferLength(node *planner.PlanNode) (int64, error) {
	if length, ok := e.lengths.Load(node); ok {
		return length, nil
	}
	def, err := e.lookup(node)
	if err != nil {
		return 0, err
	}
	inputLengths := make([]int64, node.NumInputs())
	for i := range inputLengths {
		if inputLengths[i], err = e.InferLength(node.Input(i)); err != nil {
			return 0, err
		}
	}

	var length int64
	switch {
	case def.InferLength != nil:
		if length, err = def.InferLength(node, inputLengths); err != nil {
			return 0, common.WrapError(common.InferenceError, err, "%s: cannot infer length of %s", node, def.Name)
		}
	case def.Attributes.IsLinear():
		length = inputLengths[0]
	default:
		return 0, common.NewError(common.InferenceError, "%s: %s has no length rule", node, def.Name)
	}
	if length < operator.UnknownLength {
		return 0, common.NewError(common.InferenceError, "%s: %s inferred negative length %d", node, def.Name, length)
	}
	e.lengths.Store(node, length)
	return length, nil
}

// Schema returns both the output types and the length of node.
func (e *Engine) Schema(node *planner.PlanNode) ([]common.Type, int64, error) {
	types, err := e.InferType(node)
	if err != nil {
		return nil, 0, err
	}
	length, err := e.InferLength(node)
	if err != nil {
		return nil, 0, err
	}
	return types, length, nil
}

// Reset drops all memoized results.
func (e *Engine) Reset() {
	e.types.Clear()
	e.lengths.Clear()
}
