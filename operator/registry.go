package operator

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/planner"
)

// Definition is the hook bundle registered for one operator kind. Adding a kind to the system means registering
// a Definition; nothing else dispatches on tags.
type Definition struct {
	Tag        planner.Tag
	Name       string
	Attributes Attributes

	// Encode packs a configured operator and its inputs into a plan node.
	Encode func(op Operator, inputs []*planner.PlanNode) (*planner.PlanNode, error)

	// Decode builds an operator from a node. Input arity has already been checked. Missing or mistyped
	// parameters must fail with MalformedNodeError.
	Decode func(node *planner.PlanNode) (Operator, error)

	// InferType computes the output types of node from the output types of its inputs. It must not execute
	// anything.
	InferType func(node *planner.PlanNode, inputTypes [][]common.Type) ([]common.Type, error)

	// InferLength computes the output row count of node from the row counts of its inputs, which may be
	// UnknownLength. It may be nil for Linear kinds, which then inherit the length of their input.
	InferLength func(node *planner.PlanNode, inputLengths []int64) (int64, error)

	// Print describes node for plan explanations. It defaults to Name.
	Print func(node *planner.PlanNode) string
}

func (d *Definition) validate() error {
	switch {
	case d.Tag == "":
		return errors.AssertionFailedf("operator definition %q has no tag", d.Name)
	case d.Decode == nil:
		return errors.AssertionFailedf("operator %q has no Decode hook", d.Tag)
	case d.InferType == nil:
		return errors.AssertionFailedf("operator %q has no InferType hook", d.Tag)
	case d.Attributes.NumInputs < VariadicInputs:
		return errors.AssertionFailedf("operator %q declares %d inputs", d.Tag, d.Attributes.NumInputs)
	case d.Attributes.IsSource() && d.Attributes.NumInputs != 0:
		return errors.AssertionFailedf("source operator %q declares %d inputs", d.Tag, d.Attributes.NumInputs)
	case d.Attributes.IsLinear() && (d.Attributes.NumInputs != 1 || d.Attributes.IsSource() || d.Attributes.IsSink()):
		return errors.AssertionFailedf("linear operator %q must have exactly one input and one output", d.Tag)
	}
	return nil
}

// Registry maps tags to operator definitions. It is safe for concurrent use.
type Registry struct {
	defs *xsync.MapOf[planner.Tag, *Definition]
}

func NewRegistry() *Registry {
	return &Registry{defs: xsync.NewMapOf[planner.Tag, *Definition]()}
}

// Default is the process-wide registry. Packages providing operators register into it from init.
var Default = NewRegistry()

// Register adds a definition. It fails with DuplicateOperatorError if the tag is already registered.
func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	if def.Name == "" {
		def.Name = string(def.Tag)
	}
	if _, loaded := r.defs.LoadOrStore(def.Tag, &def); loaded {
		return common.NewError(common.DuplicateOperatorError, "operator %q is already registered", def.Tag)
	}
	return nil
}

// MustRegister is Register for use from init functions. It panics on failure.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered for tag.
func (r *Registry) Lookup(tag planner.Tag) (*Definition, error) {
	def, ok := r.defs.Load(tag)
	if !ok {
		return nil, common.NewError(common.UnknownOperatorError, "no operator registered for tag %q", tag)
	}
	return def, nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []planner.Tag {
	var tags []planner.Tag
	r.defs.Range(func(tag planner.Tag, _ *Definition) bool {
		tags = append(tags, tag)
		return true
	})
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Decode builds the operator for node. It fails with UnknownOperatorError for unregistered tags,
// ArityMismatchError if the node's input count does not fit the kind, and MalformedNodeError for bad
// parameters.
func (r *Registry) Decode(node *planner.PlanNode) (Operator, error) {
	def, err := r.Lookup(node.Tag())
	if err != nil {
		return nil, err
	}
	if !def.Attributes.AcceptsInputs(node.NumInputs()) {
		return nil, common.NewError(common.ArityMismatchError, "%s: %s takes %d inputs, node has %d",
			node, def.Name, def.Attributes.NumInputs, node.NumInputs())
	}
	op, err := def.Decode(node)
	if err != nil {
		if _, ok := common.CodeOf(err); ok {
			return nil, err
		}
		return nil, common.WrapError(common.MalformedNodeError, err, "%s: cannot decode", node)
	}
	common.Assert(op != nil, "%s: Decode returned no operator", node)
	return op, nil
}

// Encode packs op into a node of kind tag with the given inputs. The result is checked against the kind's
// declared arity.
func (r *Registry) Encode(tag planner.Tag, op Operator, inputs ...*planner.PlanNode) (*planner.PlanNode, error) {
	def, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	if def.Encode == nil {
		return nil, common.NewError(common.MalformedNodeError, "operator %q cannot be encoded", tag)
	}
	if !def.Attributes.AcceptsInputs(len(inputs)) {
		return nil, common.NewError(common.ArityMismatchError, "%s takes %d inputs, got %d",
			def.Name, def.Attributes.NumInputs, len(inputs))
	}
	node, err := def.Encode(op, inputs)
	if err != nil {
		return nil, err
	}
	common.Assert(node.Tag() == tag, "encoder for %q produced a %q node", tag, node.Tag())
	return node, nil
}

// Print describes node with its kind's Print hook, or the kind's name.
func (r *Registry) Print(node *planner.PlanNode) string {
	def, err := r.Lookup(node.Tag())
	if err != nil {
		return string(node.Tag()) + "?"
	}
	if def.Print != nil {
		return def.Print(node)
	}
	return def.Name
}
