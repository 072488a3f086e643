package operators

import (
	"fmt"
	"strings"

	"github.com/tidwall/btree"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Sort orders its whole input by a list of key columns. Rows with equal keys keep their input order.
type Sort struct {
	keys       []int
	descending []bool
}

// NewSort sorts by keys; descending[i] reverses the order of keys[i]. A nil descending sorts every key
// ascending.
func NewSort(keys []int, descending []bool) *Sort {
	if descending == nil {
		descending = make([]bool, len(keys))
	}
	return &Sort{keys: append([]int(nil), keys...), descending: append([]bool(nil), descending...)}
}

func NewSortNode(input *planner.PlanNode, keys []int, descending []bool) *planner.PlanNode {
	return NewSort(keys, descending).node(input)
}

func (s *Sort) node(input *planner.PlanNode) *planner.PlanNode {
	params := columnParams(nil, "keys", s.keys)
	return planner.NewPlanNode(TagSort, planner.BoolListParams(params, "descending", s.descending), nil, input)
}

func (s *Sort) Name() string { return string(TagSort) }

func (s *Sort) Attributes() operator.Attributes {
	return sortDefinition.Attributes
}

func (s *Sort) Clone() operator.Operator {
	return NewSort(s.keys, s.descending)
}

type sortRow struct {
	seq    int64
	values []common.Value
}

func (s *Sort) less(a, b sortRow) bool {
	for i, k := range s.keys {
		c := a.values[k].Compare(b.values[k])
		if s.descending[i] {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return a.seq < b.seq
}

func (s *Sort) Execute(ctx operator.Context) error {
	rows := btree.NewBTreeGOptions(s.less, btree.Options{NoLocks: true})
	var seq int64
	for {
		in, err := ctx.GetNext(0)
		if err != nil {
			return err
		}
		if in == nil {
			break
		}
		for i := 0; i < in.NumRows(); i++ {
			rows.Set(sortRow{seq: seq, values: in.Row(i, nil)})
			seq++
		}
	}

	out := ctx.OutputBuffer()
	out.Resize(0)
	open := true
	rows.Scan(func(r sortRow) bool {
		out.AppendRow(r.values...)
		if out.NumRows() < ctx.BatchSize() {
			return true
		}
		if open = ctx.Emit(out); open {
			out = ctx.OutputBuffer()
			out.Resize(0)
		}
		return open
	})
	if open {
		ctx.Emit(out)
	}
	return nil
}

func decodeSort(node *planner.PlanNode) (*Sort, error) {
	keys, err := columnList(node, "keys")
	if err != nil {
		return nil, err
	}
	desc, err := node.BoolList("descending")
	if err != nil {
		return nil, err
	}
	if len(desc) != len(keys) {
		return nil, common.NewError(common.MalformedNodeError, "%s: %d sort keys but %d directions", node, len(keys), len(desc))
	}
	return &Sort{keys: keys, descending: desc}, nil
}

var sortDefinition = operator.Definition{
	Tag:        TagSort,
	Attributes: operator.Attributes{NumInputs: 1},
	Encode: encodeAs(TagSort, func(s *Sort, inputs []*planner.PlanNode) *planner.PlanNode {
		return s.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeSort(node)
	},
	InferType: func(node *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
		s, err := decodeSort(node)
		if err != nil {
			return nil, err
		}
		if err := checkColumns(s.keys, len(in[0])); err != nil {
			return nil, err
		}
		return in[0], nil
	},
	InferLength: inputLength,
	Print: func(node *planner.PlanNode) string {
		s, err := decodeSort(node)
		if err != nil {
			return string(TagSort)
		}
		keys := make([]string, len(s.keys))
		for i, k := range s.keys {
			keys[i] = fmt.Sprint(k)
			if s.descending[i] {
				keys[i] += " desc"
			}
		}
		return "sort by " + strings.Join(keys, ", ")
	},
}
