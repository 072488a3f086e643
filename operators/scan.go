package operators

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

// Scan reads the first numRows rows of a memory table in row id order. A negative row count reads the whole
// table as it is when the scan runs.
type Scan struct {
	table   string
	numRows int64
	types   []common.Type
}

func NewScan(table string, numRows int64, types []common.Type) *Scan {
	return &Scan{table: table, numRows: numRows, types: append([]common.Type(nil), types...)}
}

// NewScanNode describes a scan of the named table as it is now. Tables backed by a block file get a file_scan
// node.
func NewScanNode(cat *catalog.Catalog, table string) (*planner.PlanNode, error) {
	meta, err := cat.GetTableMetadata(table)
	if err != nil {
		return nil, err
	}
	if meta.IsFile() {
		return NewFileScanNode(meta.Path)
	}
	data, err := cat.TableData(table)
	if err != nil {
		return nil, err
	}
	return NewScan(table, int64(data.Len()), meta.Types()).node(), nil
}

func (s *Scan) node() *planner.PlanNode {
	params := planner.Params{
		"table":    planner.StringParam(s.table),
		"num_rows": planner.IntParam(s.numRows),
	}
	return planner.NewPlanNode(TagScan, planner.TypeListParams(params, "types", s.types), nil)
}

func (s *Scan) Name() string { return string(TagScan) }

func (s *Scan) Attributes() operator.Attributes {
	return scanDefinition.Attributes
}

func (s *Scan) Clone() operator.Operator {
	c := *s
	return &c
}

func (s *Scan) Execute(ctx operator.Context) error {
	cat := ctx.Catalog()
	if cat == nil {
		return common.NewError(common.NoSuchObjectError, "no catalog to scan '%s' from", s.table)
	}
	data, err := cat.TableData(s.table)
	if err != nil {
		return err
	}
	if err := checkStoredTypes(fmt.Sprintf("table '%s'", s.table), data.Types(), s.types); err != nil {
		return err
	}
	reader := data.RangeReader(0, s.numRows, ctx.BatchSize())
	defer reader.Close()
	return emitAll(ctx, reader.Next)
}

// emitAll forwards batches from next until it is exhausted or the consumer goes away.
func emitAll(ctx operator.Context, next func() (*storage.RowBatch, error)) error {
	for {
		b, err := next()
		if err != nil || b == nil {
			return err
		}
		if !ctx.Emit(b) {
			return nil
		}
	}
}

func decodeScan(node *planner.PlanNode) (*Scan, error) {
	table, err := node.StringParam("table")
	if err != nil {
		return nil, err
	}
	numRows, err := node.Int("num_rows")
	if err != nil {
		return nil, err
	}
	types, err := node.TypeList("types")
	if err != nil {
		return nil, err
	}
	return NewScan(table, numRows, types), nil
}

var scanDefinition = operator.Definition{
	Tag:        TagScan,
	Attributes: operator.Attributes{Flags: operator.Source},
	Encode: encodeAs(TagScan, func(s *Scan, _ []*planner.PlanNode) *planner.PlanNode {
		return s.node()
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeScan(node)
	},
	InferType: func(node *planner.PlanNode, _ [][]common.Type) ([]common.Type, error) {
		s, err := decodeScan(node)
		if err != nil {
			return nil, err
		}
		return s.types, nil
	},
	InferLength: func(node *planner.PlanNode, _ []int64) (int64, error) {
		s, err := decodeScan(node)
		if err != nil {
			return 0, err
		}
		return max(s.numRows, operator.UnknownLength), nil
	},
	Print: func(node *planner.PlanNode) string {
		s, err := decodeScan(node)
		if err != nil {
			return string(TagScan)
		}
		return fmt.Sprintf("scan %s %v", s.table, s.types)
	},
}

// FileScan reads a block file written by storage.BlockWriter.
type FileScan struct {
	path    string
	numRows int64
	types   []common.Type
}

// NewFileScan returns a scan of the block file at path. numRows may be operator.UnknownLength.
func NewFileScan(path string, numRows int64, types []common.Type) *FileScan {
	return &FileScan{path: path, numRows: numRows, types: append([]common.Type(nil), types...)}
}

// NewFileScanNode reads the header of the block file at path and describes a scan of it.
func NewFileScanNode(path string) (*planner.PlanNode, error) {
	info, err := storage.StatBlockFile(path)
	if err != nil {
		return nil, err
	}
	return NewFileScan(path, info.Rows, info.Types).node(), nil
}

func (s *FileScan) node() *planner.PlanNode {
	params := planner.Params{
		"path":     planner.StringParam(s.path),
		"num_rows": planner.IntParam(s.numRows),
	}
	return planner.NewPlanNode(TagFileScan, planner.TypeListParams(params, "types", s.types), nil)
}

func (s *FileScan) Name() string { return string(TagFileScan) }

func (s *FileScan) Attributes() operator.Attributes {
	return fileScanDefinition.Attributes
}

func (s *FileScan) Clone() operator.Operator {
	c := *s
	return &c
}

func (s *FileScan) Execute(ctx operator.Context) (err error) {
	reader, err := storage.OpenBlockFile(s.path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, reader.Close())
	}()
	if err := checkStoredTypes(s.path, reader.Types(), s.types); err != nil {
		return err
	}
	return emitAll(ctx, reader.Next)
}

func decodeFileScan(node *planner.PlanNode) (*FileScan, error) {
	path, err := node.StringParam("path")
	if err != nil {
		return nil, err
	}
	numRows, err := node.Int("num_rows")
	if err != nil {
		return nil, err
	}
	types, err := node.TypeList("types")
	if err != nil {
		return nil, err
	}
	return NewFileScan(path, numRows, types), nil
}

var fileScanDefinition = operator.Definition{
	Tag:        TagFileScan,
	Attributes: operator.Attributes{Flags: operator.Source},
	Encode: encodeAs(TagFileScan, func(s *FileScan, _ []*planner.PlanNode) *planner.PlanNode {
		return s.node()
	}),
	Decode: func(node *planner.PlanNode) (operator.Operator, error) {
		return decodeFileScan(node)
	},
	InferType: func(node *planner.PlanNode, _ [][]common.Type) ([]common.Type, error) {
		s, err := decodeFileScan(node)
		if err != nil {
			return nil, err
		}
		return s.types, nil
	},
	InferLength: func(node *planner.PlanNode, _ []int64) (int64, error) {
		s, err := decodeFileScan(node)
		if err != nil {
			return 0, err
		}
		return max(s.numRows, operator.UnknownLength), nil
	},
	Print: func(node *planner.PlanNode) string {
		s, err := decodeFileScan(node)
		if err != nil {
			return string(TagFileScan)
		}
		return fmt.Sprintf("file_scan %s %v", s.path, s.types)
	},
}
