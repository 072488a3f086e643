package operators

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Aggregator folds rows into a single value. A fresh Aggregator is used for every run.
type Aggregator interface {
	Add(row []common.Value) error
	Result() (common.Value, error)
}

// AggregatorFactory makes the Aggregator for one run of a reduce.
type AggregatorFactory func() Aggregator

type countAggregator struct {
	n int64
}

func (a *countAggregator) Add([]common.Value) error {
	a.n++
	return nil
}

func (a *countAggregator) Result() (common.Value, error) {
	return common.NewIntValue(a.n), nil
}

// Count counts rows. It produces an int.
func Count() AggregatorFactory {
	return func() Aggregator { return &countAggregator{} }
}

type sumAggregator struct {
	col int
	sum int64
}

func (a *sumAggregator) Add(row []common.Value) error {
	v := row[a.col]
	if v.IsNull() {
		return nil
	}
	if v.Type() != common.IntType {
		return errors.Newf("cannot sum a %s value", v.Type())
	}
	a.sum += v.IntValue()
	return nil
}

func (a *sumAggregator) Result() (common.Value, error) {
	return common.NewIntValue(a.sum), nil
}

// SumInt adds up the int column col, skipping NULLs. It produces an int.
func SumInt(col int) AggregatorFactory {
	return func() Aggregator { return &sumAggregator{col: col} }
}

// Reduce folds its whole input into a single row holding one value.
type Reduce struct {
	factory *planner.Capability
	call    AggregatorFactory
	outType common.Type
}

func NewReduce(factory AggregatorFactory, outType common.Type) *Reduce {
	return &Reduce{factory: planner.NewCapability(factory), call: factory, outType: outType}
}

func NewReduceNode(input *planner.PlanNode, factory AggregatorFactory, outType common.Type) *planner.PlanNode {
	return NewReduce(factory, outType).node(input)
}

func (r *Reduce) node(input *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagReduce,
		planner.Params{"output_type": planner.TypeParam(r.outType)},
		planner.Capabilities{"aggregator": r.factory},
		input)
}

func (r *Reduce) Name() string { return string(TagReduce) }

func (r *Reduce) Attributes() operator.Attributes {
	return reduceDefinition.Attributes
}

func (r *Reduce) Clone() operator.Operator {
	c := *r
	return &c
}

func (r *Reduce) Execute(ctx operator.Context) error {
	agg := r.call()
	var row []common.Value
	for {
		in, err := ctx.GetNext(0)
		if err != nil {
			return err
		}
		if in == nil {
			break
		}
		for i := 0; i < in.NumRows(); i++ {
			row = in.Row(i, row)
			if err := agg.Add(row); err != nil {
				return errors.Wrap(err, "reduce")
			}
		}
	}
	v, err := agg.Result()
	if err != nil {
		return errors.Wrap(err, "reduce")
	}
	if err := checkValue(v, r.outType); err != nil {
		return errors.Wrap(err, "reduce")
	}
	out := ctx.OutputBuffer()
	out.Resize(1)
	out.Set(0, 0, v)
	ctx.Emit(out)
	return nil
}

func decodeReduce(node *planner.PlanNode) (*Reduce, error) {
	box, err := node.Capability("aggregator")
	if err != nil {
		return nil, err
	}
	factory, err := planner.CapabilityOf[AggregatorFactory](node, "aggregator")
	if err != nil {
		return nil, err
	}
	outType, err := node.Type("output_type")
	if err != nil {
		return nil, err
	}
	return &Reduce{factory: box, call: factory, outType: outType}, nil
}

var reduceDefinition = operator.Definition{
	Tag:        TagReduce,
	Attributes: operator.Attributes{NumInputs: 1},
	Encode: encodeAs(TagReduce, func(r *Reduce, inputs []*planner.PlanNode) *planner.PlanNode {
		return r.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeReduce(node)
	},
	InferType: func(node *planner.PlanNode, _ [][]common.Type) ([]common.Type, error) {
		outType, err := node.Type("output_type")
		if err != nil {
			return nil, err
		}
		return []common.Type{outType}, nil
	},
	InferLength: func(*planner.PlanNode, []int64) (int64, error) {
		return 1, nil
	},
	Print: func(node *planner.PlanNode) string {
		outType, err := node.Type("output_type")
		if err != nil {
			return string(TagReduce)
		}
		return fmt.Sprintf("reduce -> %s", outType)
	},
}
