package operators

import (
	"fmt"

	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Limit forwards the first limit rows of its input and stops pulling once it has them.
type Limit struct {
	limit int64
}

func NewLimit(limit int64) *Limit {
	return &Limit{limit: limit}
}

func NewLimitNode(input *planner.PlanNode, limit int64) *planner.PlanNode {
	return NewLimit(limit).node(input)
}

func (l *Limit) node(input *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagLimit, planner.Params{"limit": planner.IntParam(l.limit)}, nil, input)
}

func (l *Limit) Name() string { return string(TagLimit) }

func (l *Limit) Attributes() operator.Attributes {
	return limitDefinition.Attributes
}

func (l *Limit) Clone() operator.Operator {
	c := *l
	return &c
}

func (l *Limit) Execute(ctx operator.Context) error {
	remaining := l.limit
	for remaining > 0 {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		n := int64(in.NumRows())
		if n <= remaining {
			remaining -= n
			if !ctx.Emit(in) {
				return nil
			}
			continue
		}
		out := ctx.OutputBuffer()
		out.Resize(int(remaining))
		for c := 0; c < in.NumColumns(); c++ {
			out.CopyRows(c, 0, in, c, 0, int(remaining))
		}
		remaining = 0
		ctx.Emit(out)
	}
	return nil
}

func decodeLimit(node *planner.PlanNode) (*Limit, error) {
	limit, err := node.Int("limit")
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, common.NewError(common.MalformedNodeError, "%s: negative limit %d", node, limit)
	}
	return NewLimit(limit), nil
}

var limitDefinition = operator.Definition{
	Tag:        TagLimit,
	Attributes: operator.Attributes{NumInputs: 1},
	Encode: encodeAs(TagLimit, func(l *Limit, inputs []*planner.PlanNode) *planner.PlanNode {
		return l.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeLimit(node)
	},
	InferType: inputTypes,
	InferLength: func(node *planner.PlanNode, in []int64) (int64, error) {
		l, err := decodeLimit(node)
		if err != nil {
			return 0, err
		}
		if in[0] == operator.UnknownLength {
			return operator.UnknownLength, nil
		}
		return min(in[0], l.limit), nil
	},
	Print: func(node *planner.PlanNode) string {
		l, err := decodeLimit(node)
		if err != nil {
			return string(TagLimit)
		}
		return fmt.Sprintf("limit %d", l.limit)
	},
}
