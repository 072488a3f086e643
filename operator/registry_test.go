package operator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/planner"
)

type constOp struct {
	value int64
}

func (o *constOp) Name() string           { return "const" }
func (o *constOp) Attributes() Attributes { return Attributes{Flags: Source} }
func (o *constOp) Execute(Context) error  { return nil }
func (o *constOp) Clone() Operator        { c := *o; return &c }

type passOp struct{}

func (passOp) Name() string           { return "pass" }
func (passOp) Attributes() Attributes { return Attributes{Flags: Linear, NumInputs: 1} }
func (passOp) Execute(Context) error  { return nil }
func (o passOp) Clone() Operator      { return o }

func constDefinition() Definition {
	return Definition{
		Tag:        "const",
		Attributes: Attributes{Flags: Source},
		Encode: func(op Operator, _ []*planner.PlanNode) (*planner.PlanNode, error) {
			return planner.NewPlanNode("const", planner.Params{"value": planner.IntParam(op.(*constOp).value)}, nil), nil
		},
		Decode: func(node *planner.PlanNode) (Operator, error) {
			v, err := node.Int("value")
			if err != nil {
				return nil, err
			}
			return &constOp{value: v}, nil
		},
		InferType: func(*planner.PlanNode, [][]common.Type) ([]common.Type, error) {
			return []common.Type{common.IntType}, nil
		},
		InferLength: func(*planner.PlanNode, []int64) (int64, error) { return 1, nil },
		Print: func(node *planner.PlanNode) string {
			v, _ := node.Int("value")
			return fmt.Sprintf("const %d", v)
		},
	}
}

func passDefinition() Definition {
	return Definition{
		Tag:        "pass",
		Attributes: Attributes{Flags: Linear, NumInputs: 1},
		Decode: func(node *planner.PlanNode) (Operator, error) {
			if _, ok := node.Param("broken"); ok {
				return nil, errors.New("plain failure")
			}
			return passOp{}, nil
		},
		InferType: func(_ *planner.PlanNode, in [][]common.Type) ([]common.Type, error) { return in[0], nil },
	}
}

func testRegistry(t *testing.T) *Registry {
	r := NewRegistry()
	require.NoError(t, r.Register(constDefinition()))
	require.NoError(t, r.Register(passDefinition()))
	return r
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, []planner.Tag{"const", "pass"}, r.Tags())

	def, err := r.Lookup("pass")
	require.NoError(t, err)
	assert.Equal(t, "pass", def.Name, "name defaults to the tag")
	assert.True(t, def.Attributes.IsLinear())

	err = r.Register(constDefinition())
	assert.True(t, common.IsCode(err, common.DuplicateOperatorError))

	_, err = r.Lookup("nope")
	assert.True(t, common.IsCode(err, common.UnknownOperatorError))
}

func TestRegistry_RejectsBadDefinitions(t *testing.T) {
	r := NewRegistry()
	noDecode := constDefinition()
	noDecode.Decode = nil
	assert.Error(t, r.Register(noDecode))

	noType := constDefinition()
	noType.InferType = nil
	assert.Error(t, r.Register(noType))

	sourceWithInputs := constDefinition()
	sourceWithInputs.Attributes.NumInputs = 2
	assert.Error(t, r.Register(sourceWithInputs))

	wideLinear := passDefinition()
	wideLinear.Attributes.NumInputs = 2
	assert.Error(t, r.Register(wideLinear))

	noTag := constDefinition()
	noTag.Tag = ""
	assert.Error(t, r.Register(noTag))
	assert.Empty(t, r.Tags())

	assert.Panics(t, func() {
		r.MustRegister(noType)
	})
}

func TestRegistry_DecodeChecks(t *testing.T) {
	r := testRegistry(t)

	src, err := r.Encode("const", &constOp{value: 7})
	require.NoError(t, err)
	op, err := r.Decode(src)
	require.NoError(t, err)
	assert.Equal(t, &constOp{value: 7}, op, "encode then decode round trips")
	assert.Equal(t, "const 7", r.Print(src))

	_, err = r.Decode(planner.NewPlanNode("const", planner.Params{"value": planner.IntParam(1)}, nil, src))
	assert.True(t, common.IsCode(err, common.ArityMismatchError))

	_, err = r.Decode(planner.NewPlanNode("pass", nil, nil))
	assert.True(t, common.IsCode(err, common.ArityMismatchError))

	_, err = r.Decode(planner.NewPlanNode("const", planner.Params{"value": planner.StringParam("x")}, nil))
	assert.True(t, common.IsCode(err, common.MalformedNodeError))

	_, err = r.Decode(planner.NewPlanNode("pass", planner.Params{"broken": planner.BoolParam(true)}, nil, src))
	assert.True(t, common.IsCode(err, common.MalformedNodeError), "plain decode errors are classified")

	_, err = r.Decode(planner.NewPlanNode("mystery", nil, nil))
	assert.True(t, common.IsCode(err, common.UnknownOperatorError))

	_, err = r.Encode("pass", passOp{}, src)
	assert.True(t, common.IsCode(err, common.MalformedNodeError), "pass has no encoder")
	_, err = r.Encode("const", &constOp{}, src)
	assert.True(t, common.IsCode(err, common.ArityMismatchError))

	assert.Equal(t, "pass", r.Print(planner.NewPlanNode("pass", nil, nil, src)))
	assert.Equal(t, "mystery?", r.Print(planner.NewPlanNode("mystery", nil, nil)))
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register(constDefinition()); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 7, failures, "exactly one registration of a tag wins")
}

func TestExplain_SharedNodes(t *testing.T) {
	r := testRegistry(t)
	src, err := r.Encode("const", &constOp{value: 1})
	require.NoError(t, err)
	left := planner.NewPlanNode("pass", nil, nil, src)
	right := planner.NewPlanNode("pass", nil, nil, src)
	root := planner.NewPlanNode("both", nil, nil, left, right)

	assert.Equal(t, "both?\n  pass\n    const 1 #1\n  pass\n    -> #1\n", Explain(r, root))
}

func TestAttributes(t *testing.T) {
	a := Attributes{Flags: Source | Sink}
	assert.True(t, a.IsSource())
	assert.True(t, a.IsSink())
	assert.False(t, a.IsLinear())
	assert.True(t, a.AcceptsInputs(0))
	assert.False(t, a.AcceptsInputs(1))
	assert.Equal(t, "{SOURCE|SINK inputs=0}", a.String())

	v := Attributes{NumInputs: VariadicInputs}
	assert.True(t, v.AcceptsInputs(5))
	assert.True(t, v.AcceptsInputs(1))
	assert.False(t, v.AcceptsInputs(0))
	assert.Equal(t, "{ inputs=*}", v.String())
}
