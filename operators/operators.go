// Package operators provides the built-in operator kinds. Importing the package registers all of them in
// operator.Default; RegisterAll installs them in a private registry.
//
// Every kind comes with a constructor for the configured operator (NewLimit) and one for the plan node that
// describes it (NewLimitNode). Node constructors produce exactly what the kind's Encode hook produces.
package operators

import (
	"slices"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
)

const (
	TagRange       planner.Tag = "range"
	TagScan        planner.Tag = "scan"
	TagFileScan    planner.Tag = "file_scan"
	TagTransform   planner.Tag = "transform"
	TagFilter      planner.Tag = "filter"
	TagProject     planner.Tag = "project"
	TagLimit       planner.Tag = "limit"
	TagAppend      planner.Tag = "append"
	TagUnion       planner.Tag = "union"
	TagSort        planner.Tag = "sort"
	TagReduce      planner.Tag = "reduce"
	TagMaterialize planner.Tag = "materialize"
)

func init() {
	if err := RegisterAll(operator.Default); err != nil {
		panic(err)
	}
}

// Definitions returns the definitions of all built-in kinds.
func Definitions() []operator.Definition {
	return []operator.Definition{
		rangeDefinition,
		scanDefinition,
		fileScanDefinition,
		transformDefinition,
		filterDefinition,
		projectDefinition,
		limitDefinition,
		appendDefinition,
		unionDefinition,
		sortDefinition,
		reduceDefinition,
		materializeDefinition,
	}
}

// RegisterAll registers every built-in kind in r.
func RegisterAll(r *operator.Registry) error {
	for _, def := range Definitions() {
		if err := r.Register(def); err != nil {
			return errors.Wrapf(err, "registering %s", def.Tag)
		}
	}
	return nil
}

// encodeAs adapts a typed encoder to the Encode hook signature.
func encodeAs[T operator.Operator](tag planner.Tag, encode func(op T, inputs []*planner.PlanNode) *planner.PlanNode) func(operator.Operator, []*planner.PlanNode) (*planner.PlanNode, error) {
	return func(op operator.Operator, inputs []*planner.PlanNode) (*planner.PlanNode, error) {
		typed, ok := op.(T)
		if !ok {
			return nil, common.NewError(common.MalformedNodeError, "%s cannot encode a %T", tag, op)
		}
		return encode(typed, inputs), nil
	}
}

func noTypes(*planner.PlanNode, [][]common.Type) ([]common.Type, error) {
	return []common.Type{}, nil
}

func inputTypes(_ *planner.PlanNode, in [][]common.Type) ([]common.Type, error) {
	return in[0], nil
}

func inputLength(_ *planner.PlanNode, in []int64) (int64, error) {
	return in[0], nil
}

func unknownLength(*planner.PlanNode, []int64) (int64, error) {
	return operator.UnknownLength, nil
}

// columnList reads a non-negative column index list.
func columnList(node *planner.PlanNode, prefix string) ([]int, error) {
	raw, err := node.IntList(prefix)
	if err != nil {
		return nil, err
	}
	cols := make([]int, len(raw))
	for i, c := range raw {
		if c < 0 {
			return nil, common.NewError(common.MalformedNodeError, "%s: negative column %d in %q", node, c, prefix)
		}
		cols[i] = int(c)
	}
	return cols, nil
}

func columnParams(params planner.Params, prefix string, cols []int) planner.Params {
	raw := make([]int64, len(cols))
	for i, c := range cols {
		raw[i] = int64(c)
	}
	return planner.IntListParams(params, prefix, raw)
}

func checkColumns(cols []int, width int) error {
	for _, c := range cols {
		if c >= width {
			return errors.Newf("column %d out of range for %d input columns", c, width)
		}
	}
	return nil
}

func checkStoredTypes(what string, stored, declared []common.Type) error {
	if !slices.Equal(stored, declared) {
		return common.NewError(common.ResourceFaultError, "%s holds %v, plan expects %v", what, stored, declared)
	}
	return nil
}

// checkValue verifies that a value produced by a user function has the declared type.
func checkValue(v common.Value, t common.Type) error {
	if !v.IsNull() && v.Type() != t {
		return errors.Newf("produced a %s value, declared %s", v.Type(), t)
	}
	return nil
}

// knownLengths reports whether none of lengths is unknown.
func knownLengths(lengths []int64) bool {
	return !slices.Contains(lengths, operator.UnknownLength)
}
