package execution

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/inference"
	"mit.edu/dsg/flowdb/logging"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

// Pipeline is a compiled plan: one operator per plan node, wired so that each node reads the outputs of its
// inputs.
//
// Operators run as coroutines under a single point of control. Pulling a batch from the pipeline resumes the
// root operator, which resumes its inputs as it calls GetNext, and so on; control comes back up when an
// operator emits. At most one operator runs at any time and nothing is computed that no consumer asked for.
//
// A Pipeline runs once. It is not safe for concurrent use; use Clone to run the same plan again or in parallel.
// Close must be called to release operators that are still suspended.
type Pipeline struct {
	id       uuid.UUID
	root     *planner.PlanNode
	cfg      Config
	logger   *zap.Logger
	entries  []nodeEntry
	nodes    []*execNode
	rootNode *execNode
	rootPort *port

	ctx         context.Context
	span        trace.Span
	initialized bool
	done        bool
	current     *storage.RowBatch
	err         error
	teardownErr error
}

type nodeEntry struct {
	node  *planner.PlanNode
	op    operator.Operator
	types []common.Type
}

// Compile validates the plan rooted at root and builds a pipeline for it. Every node is type checked and
// decoded before anything runs, so unknown tags, arity mismatches, malformed parameters and type errors are
// reported here.
func Compile(root *planner.PlanNode, registry *operator.Registry, opts ...Option) (*Pipeline, error) {
	cfg := newConfig(opts)
	engine := cfg.Inference
	if engine == nil {
		engine = inference.NewEngine(registry)
	}
	if engine.Registry() != registry {
		return nil, errors.AssertionFailedf("inference engine is bound to a different registry")
	}

	var entries []nodeEntry
	err := planner.Walk(root, func(n *planner.PlanNode) error {
		types, err := engine.InferType(n)
		if err != nil {
			return err
		}
		op, err := registry.Decode(n)
		if err != nil {
			return err
		}
		entries = append(entries, nodeEntry{node: n, op: op, types: types})
		return nil
	})
	if err != nil {
		return nil, err
	}
	p := assemble(root, cfg, entries)
	p.logger.Debug("pipeline compiled", zap.String("root", string(root.Tag())), zap.Int("nodes", len(entries)))
	return p, nil
}

func assemble(root *planner.PlanNode, cfg Config, entries []nodeEntry) *Pipeline {
	p := &Pipeline{
		id:      uuid.New(),
		root:    root,
		cfg:     cfg,
		entries: entries,
	}
	p.logger = logging.WithPipeline(logging.WithComponent(cfg.Logger, "execution"), p.id)

	byNode := make(map[*planner.PlanNode]*execNode, len(entries))
	// entries hold decoded operators that never run themselves; every pipeline executes its own clones.
	for _, e := range entries {
		n := newExecNode(p, e.node, e.op.Clone(), e.types)
		for i := 0; i < e.node.NumInputs(); i++ {
			n.inputs[i] = byNode[e.node.Input(i)].newPort()
		}
		byNode[e.node] = n
		p.nodes = append(p.nodes, n)
	}
	p.rootNode = byNode[root]
	p.rootPort = p.rootNode.newPort()
	return p
}

// Clone returns a fresh, unstarted pipeline for the same plan with cloned operators. It can be called at any
// time, from any goroutine, including while the receiver runs.
func (p *Pipeline) Clone() *Pipeline {
	return assemble(p.root, p.cfg, p.entries)
}

// ID identifies this run in logs and traces.
func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

// Plan returns the root of the compiled plan.
func (p *Pipeline) Plan() *planner.PlanNode {
	return p.root
}

// OutputTypes returns the column types of the batches the pipeline produces.
func (p *Pipeline) OutputTypes() []common.Type {
	return p.rootNode.types
}

// Init binds the pipeline to ctx and starts its trace span. Operators do not run until the first Next.
func (p *Pipeline) Init(ctx context.Context) error {
	if p.initialized {
		return errors.AssertionFailedf("pipeline %s was already started", p.id)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.initialized = true
	p.ctx, p.span = p.cfg.Tracer.Start(ctx, "flowdb.pipeline", trace.WithAttributes(
		attribute.String("flowdb.pipeline.id", p.id.String()),
		attribute.String("flowdb.pipeline.root", string(p.root.Tag())),
		attribute.Int("flowdb.pipeline.nodes", len(p.nodes)),
	))
	return nil
}

// Next advances to the next output batch. It returns false at the end of the output, after a failure, or once
// ctx is done; Error tells the cases apart. The pipeline is torn down as soon as Next returns false.
func (p *Pipeline) Next() bool {
	common.Assert(p.initialized, "pipeline %s used before Init", p.id)
	if p.done {
		return false
	}
	if err := p.ctx.Err(); err != nil {
		p.err = errors.Wrapf(err, "pipeline %s interrupted", p.id)
		p.finish()
		return false
	}
	b, err := p.rootPort.pull()
	if err != nil {
		p.err = err
		p.finish()
		return false
	}
	if b == nil {
		p.finish()
		return false
	}
	p.current = b
	return true
}

// Current returns the batch most recently read by Next. It is only valid until the following call to Next.
func (p *Pipeline) Current() *storage.RowBatch {
	return p.current
}

// Error returns the failure that ended the run, if any. Early Close is not a failure.
func (p *Pipeline) Error() error {
	return p.err
}

// Close tears the pipeline down, letting every suspended operator release its resources. It returns errors
// operators reported while unwinding. Close is idempotent.
func (p *Pipeline) Close() error {
	if !p.initialized {
		p.initialized = true
		p.ctx = context.Background()
	}
	p.finish()
	return p.teardownErr
}

func (p *Pipeline) finish() {
	if p.done {
		return
	}
	p.done = true
	p.current = nil
	p.rootPort.release()

	if p.span != nil {
		for _, n := range p.nodes {
			p.span.AddEvent("operator", trace.WithAttributes(
				attribute.String("flowdb.operator", n.stats.Name),
				attribute.String("flowdb.node", n.stats.Node.String()),
				attribute.Int64("flowdb.batches", n.stats.Batches),
				attribute.Int64("flowdb.rows", n.stats.Rows),
			))
		}
		if p.err != nil {
			p.span.RecordError(p.err)
			p.span.SetStatus(codes.Error, p.err.Error())
		}
		p.span.End()
	}
	if p.err != nil {
		p.logger.Warn("pipeline failed", zap.Error(p.err))
	} else {
		p.logger.Debug("pipeline finished", zap.Int64("rows", p.rootNode.stats.Rows))
	}
}

// Run drives the pipeline to completion and discards its output. It is meant for plans whose root is a sink.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Init(ctx); err != nil {
		return err
	}
	for p.Next() {
	}
	closeErr := p.Close()
	if p.err != nil {
		return p.err
	}
	return closeErr
}

// Collect drives the pipeline to completion and returns its whole output as one batch.
func (p *Pipeline) Collect(ctx context.Context) (*storage.RowBatch, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	out := storage.NewRowBatch(len(p.OutputTypes()), 0)
	for p.Next() {
		out.AppendBatch(p.Current())
	}
	closeErr := p.Close()
	if p.err != nil {
		return nil, p.err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return out, nil
}

// Stats returns per-operator counters, inputs before consumers.
func (p *Pipeline) Stats() []NodeStats {
	stats := make([]NodeStats, len(p.nodes))
	for i, n := range p.nodes {
		stats[i] = n.stats
	}
	return stats
}
