package operators

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Materialize appends its input to a memory table. It produces no output.
type Materialize struct {
	table string
	types []common.Type
}

func NewMaterialize(table string, types []common.Type) *Materialize {
	return &Materialize{table: table, types: append([]common.Type(nil), types...)}
}

// NewMaterializeNode describes writing input into the named memory table.
func NewMaterializeNode(cat *catalog.Catalog, table string, input *planner.PlanNode) (*planner.PlanNode, error) {
	meta, err := cat.GetTableMetadata(table)
	if err != nil {
		return nil, err
	}
	if meta.IsFile() {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' is stored in %s and cannot be written", table, meta.Path)
	}
	return NewMaterialize(table, meta.Types()).node(input), nil
}

func (m *Materialize) node(input *planner.PlanNode) *planner.PlanNode {
	params := planner.Params{"table": planner.StringParam(m.table)}
	return planner.NewPlanNode(TagMaterialize, planner.TypeListParams(params, "types", m.types), nil, input)
}

func (m *Materialize) Name() string { return string(TagMaterialize) }

func (m *Materialize) Attributes() operator.Attributes {
	return materializeDefinition.Attributes
}

func (m *Materialize) Clone() operator.Operator {
	c := *m
	return &c
}

func (m *Materialize) Execute(ctx operator.Context) error {
	cat := ctx.Catalog()
	if cat == nil {
		return common.NewError(common.NoSuchObjectError, "no catalog to write '%s' to", m.table)
	}
	data, err := cat.TableData(m.table)
	if err != nil {
		return err
	}
	if err := checkStoredTypes(fmt.Sprintf("table '%s'", m.table), data.Types(), m.types); err != nil {
		return err
	}
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		if err := data.InsertBatch(in); err != nil {
			return err
		}
	}
}

func decodeMaterialize(node *planner.PlanNode) (*Materialize, error) {
	table, err := node.StringParam("table")
	if err != nil {
		return nil, err
	}
	types, err := node.TypeList("types")
	if err != nil {
		return nil, err
	}
	return NewMaterialize(table, types), nil
}

var materializeDefinition = operator.Definition{
	Tag:        TagMaterialize,
	Attributes: operator.Attributes{Flags: operator.Sink, NumInputs: 1},
	Encode: encodeAs(TagMaterialize, func(m *Materialize, inputs []*planner.PlanNode) *planner.PlanNode {
		return m.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeMaterialize(node)
	},
	InferType: func(node *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
		m, err := decodeMaterialize(node)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(m.types, in[0]) {
			return nil, errors.Newf("table '%s' has types %v, input has %v", m.table, m.types, in[0])
		}
		return noTypes(node, in)
	},
	InferLength: func(*planner.PlanNode, []int64) (int64, error) {
		return 0, nil
	},
	Print: func(node *planner.PlanNode) string {
		m, err := decodeMaterialize(node)
		if err != nil {
			return string(TagMaterialize)
		}
		return "materialize into " + m.table
	},
}
