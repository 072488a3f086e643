package operators

import (
	"fmt"
	"math"

	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Range produces the integers in [start, end) as a single int column.
type Range struct {
	start, end int64
}

func NewRange(start, end int64) *Range {
	return &Range{start: start, end: end}
}

func NewRangeNode(start, end int64) *planner.PlanNode {
	return NewRange(start, end).node()
}

func (r *Range) node() *planner.PlanNode {
	return planner.NewPlanNode(TagRange, planner.Params{
		"start": planner.IntParam(r.start),
		"end":   planner.IntParam(r.end),
	}, nil)
}

func (r *Range) Name() string { return string(TagRange) }

func (r *Range) Attributes() operator.Attributes {
	return rangeDefinition.Attributes
}

func (r *Range) Clone() operator.Operator {
	c := *r
	return &c
}

func (r *Range) Execute(ctx operator.Context) error {
	size := uint64(ctx.BatchSize())
	next := r.start
	for remaining := r.span(); remaining > 0; {
		n := min(size, remaining)
		out := ctx.OutputBuffer()
		out.Resize(int(n))
		for i := uint64(0); i < n; i++ {
			out.Set(int(i), 0, common.NewIntValue(next+int64(i)))
		}
		if !ctx.Emit(out) {
			return nil
		}
		remaining -= n
		next += int64(n)
	}
	return nil
}

// span is the number of values in [start, end). It can exceed math.MaxInt64.
func (r *Range) span() uint64 {
	if r.end <= r.start {
		return 0
	}
	return uint64(r.end) - uint64(r.start)
}

// length is the row count, or UnknownLength when it does not fit in an int64.
func (r *Range) length() int64 {
	span := r.span()
	if span > math.MaxInt64 {
		return operator.UnknownLength
	}
	return int64(span)
}

func decodeRange(node *planner.PlanNode) (*Range, error) {
	start, err := node.Int("start")
	if err != nil {
		return nil, err
	}
	end, err := node.Int("end")
	if err != nil {
		return nil, err
	}
	return NewRange(start, end), nil
}

var rangeDefinition = operator.Definition{
	Tag:        TagRange,
	Attributes: operator.Attributes{Flags: operator.Source},
	Encode: encodeAs(TagRange, func(r *Range, _ []*planner.PlanNode) *planner.PlanNode {
		return r.node()
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeRange(node)
	},
	InferType: func(*planner.PlanNode, [][]common.Type) ([]common.Type, error) {
		return []common.Type{common.IntType}, nil
	},
	InferLength: func(node *planner.PlanNode, _ []int64) (int64, error) {
		r, err := decodeRange(node)
		if err != nil {
			return 0, err
		}
		return r.length(), nil
	},
	Print: func(node *planner.PlanNode) string {
		r, err := decodeRange(node)
		if err != nil {
			return string(TagRange)
		}
		return fmt.Sprintf("range [%d, %d)", r.start, r.end)
	},
}
