package operators

import (
	"fmt"

	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

// Project reorders, duplicates or drops input columns.
type Project struct {
	columns []int
}

func NewProject(columns ...int) *Project {
	return &Project{columns: append([]int(nil), columns...)}
}

func NewProjectNode(input *planner.PlanNode, columns ...int) *planner.PlanNode {
	return NewProject(columns...).node(input)
}

func (p *Project) node(input *planner.PlanNode) *planner.PlanNode {
	return planner.NewPlanNode(TagProject, columnParams(nil, "columns", p.columns), nil, input)
}

func (p *Project) Name() string { return string(TagProject) }

func (p *Project) Attributes() operator.Attributes {
	return projectDefinition.Attributes
}

func (p *Project) Clone() operator.Operator {
	return NewProject(p.columns...)
}

func (p *Project) Execute(ctx operator.Context) error {
	for {
		in, err := ctx.GetNext(0)
		if err != nil || in == nil {
			return err
		}
		n := in.NumRows()
		out := ctx.OutputBuffer()
		out.Resize(n)
		for i, c := range p.columns {
			out.CopyRows(i, 0, in, c, 0, n)
		}
		if !ctx.Emit(out) {
			return nil
		}
	}
}

func decodeProject(node *planner.PlanNode) (*Project, error) {
	cols, err := columnList(node, "columns")
	if err != nil {
		return nil, err
	}
	return &Project{columns: cols}, nil
}

var projectDefinition = operator.Definition{
	Tag:        TagProject,
	Attributes: operator.Attributes{NumInputs: 1},
	Encode: encodeAs(TagProject, func(p *Project, inputs []*planner.PlanNode) *planner.PlanNode {
		return p.node(inputs[0])
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeProject(node)
	},
	InferType: func(node *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
		p, err := decodeProject(node)
		if err != nil {
			return nil, err
		}
		if err := checkColumns(p.columns, len(in[0])); err != nil {
			return nil, err
		}
		out := make([]common.Type, len(p.columns))
		for i, c := range p.columns {
			out[i] = in[0][c]
		}
		return out, nil
	},
	InferLength: inputLength,
	Print: func(node *planner.PlanNode) string {
		p, err := decodeProject(node)
		if err != nil {
			return string(TagProject)
		}
		return fmt.Sprintf("project %v", p.columns)
	},
}
