package operators

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// TransformFunc computes one output value from an input row. The row slice is reused between calls.
type TransformFunc func(row []common.Value) (common.Value, error)

// FilterFunc decides whether an input row is kept. The row slice is reused between calls.
type FilterFunc func(row []common.Value) (bool, error)

// Transform maps every input row to a single value of a declared type.
type Transform struct {
	fn      *planner.Capability
	call    TransformFunc
	outType common.Type
}

func NewTransform(fn TransformFunc, outType common.Type) *Transform {
	return &Transform{fn: planner.NewCapability(fn), call: fn, outType: outType}
}

func NewTransformNode(input *planner.PlanNode, fn TransformFunc, outType common.Type) *planner.PlanNode {
	return NewTransform(fn, outType).node(input)
}

func (t *Transform) node(input *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagTransform,
		planner.Params{"output_type": planner.TypeParam(t.outType)},
		planner.Capabilities{"fn": t.fn},
		input)
}

func (t *Transform) Name() string { return string(TagTransform) }

func (t *Transform) Attributes() operator.Attributes {
	return transformDefinition.Attributes
}

func (t *Transform) Clone() operator.Operator {
	c := *t
	return &c
}

func (t *Transform) Execute(ctx operator.Context) error {
	var row []common.Value
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		out := ctx.OutputBuffer()
		out.Resize(in.NumRows())
		for i := 0; i < in.NumRows(); i++ {
			row = in.Row(i, row)
			v, err := t.call(row)
			if err != nil {
				return errors.Wrapf(err, "transform row %d", i)
			}
			if err := checkValue(v, t.outType); err != nil {
				return errors.Wrap(err, "transform")
			}
			out.Set(i, 0, v)
		}
		if !ctx.Emit(out) {
			return nil
		}
	}
}

func decodeTransform(node *planner.PlanNode) (*Transform, error) {
	box, err := node.Capability("fn")
	if err != nil {
		return nil, err
	}
	fn, err := planner.CapabilityOf[TransformFunc](node, "fn")
	if err != nil {
		return nil, err
	}
	outType, err := node.Type("output_type")
	if err != nil {
		return nil, err
	}
	return &Transform{fn: box, call: fn, outType: outType}, nil
}

var transformDefinition = operator.Definition{
	Tag:        TagTransform,
	Attributes: operator.Attributes{Flags: operator.Linear, NumInputs: 1},
	Encode: encodeAs(TagTransform, func(t *Transform, inputs []*planner.PlanNode) *planner.PlanNode {
		return t.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeTransform(node)
	},
	InferType: func(node *planner.PlanNode, _ [][]common.Type) ([]common.Type, error) {
		outType, err := node.Type("output_type")
		if err != nil {
			return nil, err
		}
		return []common.Type{outType}, nil
	},
	Print: func(node *planner.PlanNode) string {
		outType, err := node.Type("output_type")
		if err != nil {
			return string(TagTransform)
		}
		return fmt.Sprintf("transform -> %s", outType)
	},
}

// Filter keeps the input rows a predicate accepts.
type Filter struct {
	pred *planner.Capability
	call FilterFunc
}

func NewFilter(pred FilterFunc) *Filter {
	return &Filter{pred: planner.NewCapability(pred), call: pred}
}

func NewFilterNode(input *planner.PlanNode, pred FilterFunc) *planner.PlanNode {
	return NewFilter(pred).node(input)
}

func (f *Filter) node(input *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagFilter, nil, planner.Capabilities{"predicate": f.pred}, input)
}

func (f *Filter) Name() string { return string(TagFilter) }

func (f *Filter) Attributes() operator.Attributes {
	return filterDefinition.Attributes
}

func (f *Filter) Clone() operator.Operator {
	c := *f
	return &c
}

func (f *Filter) Execute(ctx operator.Context) error {
	var row []common.Value
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		out := ctx.OutputBuffer()
		out.Resize(0)
		for i := 0; i < in.NumRows(); i++ {
			row = in.Row(i, row)
			keep, err := f.call(row)
			if err != nil {
				return errors.Wrapf(err, "filter row %d", i)
			}
			if keep {
				out.AppendRow(row...)
			}
		}
		// Emitting an empty batch is a no-op, so fully filtered inputs cost nothing downstream.
		if !ctx.Emit(out) {
			return nil
		}
	}
}

func decodeFilter(node *planner.PlanNode) (*Filter, error) {
	box, err := node.Capability("predicate")
	if err != nil {
		return nil, err
	}
	pred, err := planner.CapabilityOf[FilterFunc](node, "predicate")
	if err != nil {
		return nil, err
	}
	return &Filter{pred: box, call: pred}, nil
}

var filterDefinition = operator.Definition{
	Tag:        TagFilter,
	Attributes: operator.Attributes{NumInputs: 1},
	Encode: encodeAs(TagFilter, func(f *Filter, inputs []*planner.PlanNode) *planner.PlanNode {
		return f.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeFilter(node)
	},
	InferType:   inputTypes,
	InferLength: unknownLength,
}
