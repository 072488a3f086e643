package execution

import (
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

// handle stands in for an external resource such as an open file.
type handle struct {
	opened int
	closed int
}

// numbers is the shared, observable state of a test source.
type numbers struct {
	batches [][]int64
	handle  *handle
	emits   atomic.Int64
}

type numbersOp struct {
	src *numbers
}

func (o *numbersOp) Name() string { return "numbers" }
func (o *numbersOp) Attributes() operator.Attributes {
	return operator.Attributes{Flags: operator.Source}
}
func (o *numbersOp) Clone() operator.Operator { return &numbersOp{src: o.src} }

func (o *numbersOp) Execute(ctx operator.Context) error {
	if h := o.src.handle; h != nil {
		h.opened++
		defer func() { h.closed++ }()
	}
	for _, values := range o.src.batches {
		out := ctx.OutputBuffer()
		out.Resize(len(values))
		for i, v := range values {
			out.Set(i, 0, common.NewIntValue(v))
		}
		o.src.emits.Add(1)
		if !ctx.Emit(out) {
			return nil
		}
	}
	return nil
}

type doubleOp struct{}

func (doubleOp) Name() string { return "double" }
func (doubleOp) Attributes() operator.Attributes {
	return operator.Attributes{Flags: operator.Linear, NumInputs: 1}
}
func (o doubleOp) Clone() operator.Operator { return o }

func (doubleOp) Execute(ctx operator.Context) error {
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		out := ctx.OutputBuffer()
		out.Resize(in.NumRows())
		for i := 0; i < in.NumRows(); i++ {
			out.Set(i, 0, common.NewIntValue(2*in.Get(i, 0).IntValue()))
		}
		if !ctx.Emit(out) {
			return nil
		}
	}
}

// takeOp forwards the first n batches of its input and then stops pulling.
type takeOp struct {
	n int64
}

func (o *takeOp) Name() string                    { return "take" }
func (o *takeOp) Attributes() operator.Attributes { return operator.Attributes{NumInputs: 1} }
func (o *takeOp) Clone() operator.Operator        { c := *o; return &c }

func (o *takeOp) Execute(ctx operator.Context) error {
	for i := int64(0); i < o.n; i++ {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		if !ctx.Emit(in) {
			return nil
		}
	}
	return nil
}

// failOp forwards `after` batches and then fails like a broken storage device.
type failOp struct {
	after int64
	panic bool
}

func (o *failOp) Name() string                    { return "fail" }
func (o *failOp) Attributes() operator.Attributes { return operator.Attributes{NumInputs: 1} }
func (o *failOp) Clone() operator.Operator        { c := *o; return &c }

func (o *failOp) Execute(ctx operator.Context) error {
	for i := int64(0); ; i++ {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		if i == o.after {
			if o.panic {
				panic("operator bug")
			}
			return common.NewError(common.ResourceFaultError, "device vanished")
		}
		if !ctx.Emit(in) {
			return nil
		}
	}
}

// interleaveOp alternates between its two inputs until both are exhausted.
type interleaveOp struct{}

func (interleaveOp) Name() string                    { return "interleave" }
func (interleaveOp) Attributes() operator.Attributes { return operator.Attributes{NumInputs: 2} }
func (o interleaveOp) Clone() operator.Operator      { return o }

func (interleaveOp) Execute(ctx operator.Context) error {
	done := []bool{false, false}
	for !done[0] || !done[1] {
		for i := range done {
			if done[i] {
				continue
			}
			in, err := ctx.GetNext(i)
			if err != nil {
				return err
			}
			if in == nil {
				done[i] = true
				continue
			}
			if !ctx.Emit(in) {
				return nil
			}
		}
	}
	return nil
}

// countOp is a sink that counts the rows it consumes.
type countOp struct {
	rows *int64
}

func (o *countOp) Name() string { return "count" }
func (o *countOp) Attributes() operator.Attributes {
	return operator.Attributes{Flags: operator.Sink, NumInputs: 1}
}
func (o *countOp) Clone() operator.Operator { return &countOp{rows: o.rows} }

func (o *countOp) Execute(ctx operator.Context) error {
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		*o.rows += int64(in.NumRows())
	}
}

func intTypes(*planner.PlanNode, [][]common.Type) ([]common.Type, error) {
	return []common.Type{common.IntType}, nil
}

func firstInputTypes(_ *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
	return in[0], nil
}

func unknownLength(*planner.PlanNode, []int64) (int64, error) {
	return operator.UnknownLength, nil
}

func testRegistry(t *testing.T) *operator.Registry {
	r := operator.NewRegistry()
	r.MustRegister(operator.Definition{
		Tag:        "numbers",
		Attributes: operator.Attributes{Flags: operator.Source},
		Decode: func(n *planner.PlanNode) (operator.Operator, error) {
			src, err := planner.CapabilityOf[*numbers](n, "source")
			if err != nil {
				return nil, err
			}
			return &numbersOp{src: src}, nil
		},
		InferType: intTypes,
		InferLength: func(n *planner.PlanNode, _ []int64) (int64, error) {
			src, err := planner.CapabilityOf[*numbers](n, "source")
			if err != nil {
				return 0, err
			}
			var rows int64
			for _, b := range src.batches {
				rows += int64(len(b))
			}
			return rows, nil
		},
	})
	r.MustRegister(operator.Definition{
		Tag:        "double",
		Attributes: operator.Attributes{Flags: operator.Linear, NumInputs: 1},
		Decode:     func(*planner.PlanNode) (operator.Operator, error) { return doubleOp{}, nil },
		InferType:  firstInputTypes,
	})
	r.MustRegister(operator.Definition{
		Tag:        "take",
		Attributes: operator.Attributes{NumInputs: 1},
		Decode: func(n *planner.PlanNode) (operator.Operator, error) {
			k, err := n.Int("n")
			if err != nil {
				return nil, err
			}
			return &takeOp{n: k}, nil
		},
		InferType:   firstInputTypes,
		InferLength: unknownLength,
	})
	r.MustRegister(operator.Definition{
		Tag:        "fail",
		Attributes: operator.Attributes{NumInputs: 1},
		Decode: func(n *planner.PlanNode) (operator.Operator, error) {
			after, err := n.Int("after")
			if err != nil {
				return nil, err
			}
			_, panics := n.Param("panic")
			return &failOp{after: after, panic: panics}, nil
		},
		InferType:   firstInputTypes,
		InferLength: unknownLength,
	})
	r.MustRegister(operator.Definition{
		Tag:         "interleave",
		Attributes:  operator.Attributes{NumInputs: 2},
		Decode:      func(*planner.PlanNode) (operator.Operator, error) { return interleaveOp{}, nil },
		InferType:   firstInputTypes,
		InferLength: unknownLength,
	})
	r.MustRegister(operator.Definition{
		Tag:        "count",
		Attributes: operator.Attributes{Flags: operator.Sink, NumInputs: 1},
		Decode: func(n *planner.PlanNode) (operator.Operator, error) {
			rows, err := planner.CapabilityOf[*int64](n, "rows")
			if err != nil {
				return nil, err
			}
			return &countOp{rows: rows}, nil
		},
		InferType:   func(*planner.PlanNode, [][]common.Type) ([]common.Type, error) { return nil, nil },
		InferLength: func(*planner.PlanNode, []int64) (int64, error) { return 0, nil },
	})
	return r
}

func numbersNode(src *numbers) *planner.PlanNode {
	return planner.NewPlanNode("numbers", nil, planner.Capabilities{"source": planner.NewCapability(src)})
}

func doubleNode(in *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode("double", nil, nil, in)
}

var valueComparer = cmp.Comparer(func(a, b common.Value) bool { return a.Equal(b) })

// requireBatches drains p and checks that it produced exactly the given int batches.
func requireBatches(t *testing.T, p *Pipeline, want ...[]int64) {
	t.Helper()
	got := make([][]common.Value, 0)
	for p.Next() {
		got = append(got, append([]common.Value(nil), p.Current().Column(0)...))
	}
	require.NoError(t, p.Error())
	wantValues := make([][]common.Value, len(want))
	for i, b := range want {
		wantValues[i] = storage.IntColumn(b...).Column(0)
	}
	if diff := cmp.Diff(wantValues, got, valueComparer); diff != "" {
		t.Fatalf("unexpected batches (-want +got):\n%s", diff)
	}
}
