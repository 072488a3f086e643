package operators

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

// Append concatenates one or more inputs with identical column types, draining them in order.
type Append struct{}

func NewAppend() *Append {
	return &Append{}
}

func NewAppendNode(inputs ...*planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagAppend, nil, nil, inputs...)
}

func (a *Append) Name() string { return string(TagAppend) }

func (a *Append) Attributes() operator.Attributes {
	return appendDefinition.Attributes
}

func (a *Append) Clone() operator.Operator {
	return &Append{}
}

func (a *Append) Execute(ctx operator.Context) error {
	for i := 0; i < ctx.NumInputs(); i++ {
		for {
			in, err := ctx.GetNext(i)
			if err != nil {
				return err
			}
			if in == nil {
				break
			}
			if !ctx.Emit(in) {
				return nil
			}
		}
	}
	return nil
}

var appendDefinition = operator.Definition{
	Tag:        TagAppend,
	Attributes: operator.Attributes{NumInputs: operator.VariadicInputs},
	Encode: encodeAs(TagAppend, func(_ *Append, inputs []*planner.PlanNode) *planner.PlanNode {
		return NewAppendNode(inputs...)
	}),
	Decode: func(*planner.PlanNode) (operator.Operator, error) {
		return NewAppend(), nil
	},
	InferType: func(_ *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
		for i, types := range in[1:] {
			if !slices.Equal(types, in[0]) {
				return nil, errors.Newf("input %d has types %v, input 0 has %v", i+1, types, in[0])
			}
		}
		return in[0], nil
	},
	InferLength: func(_ *planner.PlanNode, in []int64) (int64, error) {
		if !knownLengths(in) {
			return operator.UnknownLength, nil
		}
		var total int64
		for _, n := range in {
			total += n
		}
		return total, nil
	},
}

// Union zips two inputs of equal length row by row: the output has the columns of the left input followed by
// those of the right one.
type Union struct{}

func NewUnion() *Union {
	return &Union{}
}

func NewUnionNode(left, right *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagUnion, nil, nil, left, right)
}

func (u *Union) Name() string { return string(TagUnion) }

func (u *Union) Attributes() operator.Attributes {
	return unionDefinition.Attributes
}

func (u *Union) Clone() operator.Operator {
	return &Union{}
}

// unionSide is the unconsumed part of the last batch read from one input.
type unionSide struct {
	input int
	batch *storage.RowBatch
	pos   int
	rows  int64
	ended bool
}

func (s *unionSide) fill(ctx operator.Context) error {
	if s.ended || (s.batch != nil && s.pos < s.batch.NumRows()) {
		return nil
	}
	b, err := ctx.GetNext(s.input)
	if err != nil {
		return err
	}
	s.batch, s.pos = b, 0
	if b == nil {
		s.ended = true
	}
	return nil
}

func (s *unionSide) available() int {
	if s.ended {
		return 0
	}
	return s.batch.NumRows() - s.pos
}

func (u *Union) Execute(ctx operator.Context) error {
	left := &unionSide{input: 0}
	right := &unionSide{input: 1}
	leftWidth := len(ctx.InputTypes(0))
	for {
		if err := left.fill(ctx); err != nil {
			return err
		}
		if err := right.fill(ctx); err != nil {
			return err
		}
		if left.ended || right.ended {
			if left.ended && right.ended {
				return nil
			}
			return errors.Newf("union inputs differ in length: left has %d rows, right has %d",
				left.rows+int64(left.available()), right.rows+int64(right.available()))
		}
		n := min(left.available(), right.available())
		out := ctx.OutputBuffer()
		out.Resize(n)
		for c := 0; c < left.batch.NumColumns(); c++ {
			out.CopyRows(c, 0, left.batch, c, left.pos, n)
		}
		for c := 0; c < right.batch.NumColumns(); c++ {
			out.CopyRows(leftWidth+c, 0, right.batch, c, right.pos, n)
		}
		left.pos += n
		right.pos += n
		left.rows += int64(n)
		right.rows += int64(n)
		if !ctx.Emit(out) {
			return nil
		}
	}
}

var unionDefinition = operator.Definition{
	Tag:        TagUnion,
	Attributes: operator.Attributes{NumInputs: 2},
	Encode: encodeAs(TagUnion, func(_ *Union, inputs []*planner.PlanNode) *planner.PlanNode {
		return NewUnionNode(inputs[0], inputs[1])
	}),
	Decode: func(*planner.PlanNode) (operator.Operator, error) {
		return NewUnion(), nil
	},
	InferType: func(_ *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
		return slices.Concat(in[0], in[1]), nil
	},
	InferLength: func(_ *planner.PlanNode, in []int64) (int64, error) {
		if !knownLengths(in) {
			return operator.UnknownLength, nil
		}
		if in[0] != in[1] {
			return 0, errors.Newf("union of %d and %d rows", in[0], in[1])
		}
		return in[0], nil
	},
	Print: func(node *planner.PlanNode) string {
		return fmt.Sprintf("union %s + %s", node.Input(0).Tag(), node.Input(1).Tag())
	},
}
