package execution

import (
	"fmt"
	"iter"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/logging"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

// port is one consumer's view of a node's output stream. A node with several consumers keeps a port per
// consumer and queues batches for the consumers that have not pulled them yet.
//
// Queues are unbounded: a consumer that pulls only after another has drained the shared node, as the second
// input of an append does, buffers a copy of the node's whole output.
type port struct {
	producer *execNode
	queue    []*storage.RowBatch
	released bool
}

// pull returns the next batch for this consumer, running the producer if nothing is queued.
func (p *port) pull() (*storage.RowBatch, error) {
	if p.released {
		return nil, nil
	}
	if len(p.queue) > 0 {
		b := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		return b, nil
	}
	return p.producer.produce(p)
}

// release tells the producer that this consumer wants no more data. The producer is stopped once all of its
// consumers have released it.
func (p *port) release() {
	if p.released {
		return
	}
	p.released = true
	p.queue = nil
	for _, other := range p.producer.consumers {
		if !other.released {
			return
		}
	}
	p.producer.abandon()
}

// execNode is the runtime state of one plan node: its operator running as a coroutine, the ports it reads from
// and the ports it feeds.
type execNode struct {
	pipeline  *Pipeline
	node      *planner.PlanNode
	op        operator.Operator
	types     []common.Type
	inputs    []*port
	consumers []*port
	logger    *zap.Logger

	next func() (*storage.RowBatch, bool)
	stop func()
	// yield hands a batch to the consumer currently pulling; it is only valid while the coroutine runs.
	yield func(*storage.RowBatch) bool

	started        bool
	finished       bool
	abandoned      bool
	inputsReleased bool
	err            error
	output         *storage.RowBatch

	stats NodeStats
}

func newExecNode(p *Pipeline, node *planner.PlanNode, op operator.Operator, types []common.Type) *execNode {
	n := &execNode{
		pipeline: p,
		node:     node,
		op:       op,
		types:    types,
		inputs:   make([]*port, node.NumInputs()),
		stats:    NodeStats{Node: node.ID(), Tag: node.Tag(), Name: op.Name()},
	}
	n.logger = logging.WithOperator(p.logger, op.Name(), node.ID())
	return n
}

func (n *execNode) newPort() *port {
	p := &port{producer: n}
	n.consumers = append(n.consumers, p)
	return p
}

func (n *execNode) String() string {
	return fmt.Sprintf("%s %s", n.op.Name(), n.node)
}

// produce resumes the operator until it emits a batch or returns, on behalf of consumer to.
func (n *execNode) produce(to *port) (*storage.RowBatch, error) {
	if n.finished {
		return nil, n.err
	}
	if n.next == nil {
		n.next, n.stop = iter.Pull(n.run)
	}
	b, ok := n.next()
	if !ok {
		n.finished = true
		return nil, n.err
	}

	live := 0
	for _, c := range n.consumers {
		if !c.released {
			live++
		}
	}
	if live == 1 {
		return b, nil
	}
	// The producer reuses its buffers once it is resumed, which may happen before every consumer is done with
	// this batch, so each consumer gets its own copy.
	for _, c := range n.consumers {
		if c != to && !c.released {
			c.queue = append(c.queue, b.Clone())
		}
	}
	return b.Clone(), nil
}

// run is the coroutine body. It returns when the operator finishes, fails or is abandoned, and releases the
// node's inputs on every path.
func (n *execNode) run(yield func(*storage.RowBatch) bool) {
	n.started = true
	n.yield = yield
	defer n.releaseInputs()

	n.logger.Debug("operator started")
	err := n.execute()
	switch {
	case err != nil && n.abandoned:
		n.pipeline.teardownErr = errors.CombineErrors(n.pipeline.teardownErr,
			errors.Wrapf(err, "%s failed while being torn down", n))
	case err != nil:
		// Faults raised upstream pass through unchanged so that they keep naming the node they started at.
		if code, _ := common.CodeOf(err); code != common.ExecutionFaultError {
			err = common.WrapError(common.ExecutionFaultError, err, "%s failed", n)
			n.logger.Warn("operator failed", zap.Error(err))
		}
		n.err = err
	}
}

func (n *execNode) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewError(common.ExecutionFaultError, "%s panicked: %v", n, r)
			n.logger.Warn("operator panicked", zap.Any("panic", r))
		}
	}()
	return n.op.Execute(&taskContext{node: n})
}

// emit is the body of operator.Context.Emit.
func (n *execNode) emit(b *storage.RowBatch) bool {
	if n.abandoned {
		return false
	}
	if b.NumRows() == 0 {
		return true
	}
	common.Assert(b.NumColumns() == len(n.types), "%s emitted %d columns, its output has %d", n, b.NumColumns(), len(n.types))
	n.stats.Batches++
	n.stats.Rows += int64(b.NumRows())
	if !n.yield(b) {
		n.abandoned = true
		return false
	}
	return true
}

// abandon stops the node once nobody consumes its output. A suspended operator sees Emit return false and
// unwinds; a node that never ran only releases its inputs.
func (n *execNode) abandon() {
	if n.abandoned {
		return
	}
	n.abandoned = true
	if n.stop != nil {
		n.stop()
	}
	if !n.started {
		n.releaseInputs()
	}
	n.finished = true
}

func (n *execNode) releaseInputs() {
	if n.inputsReleased {
		return
	}
	n.inputsReleased = true
	for _, in := range n.inputs {
		in.release()
	}
}

func (n *execNode) outputBuffer() *storage.RowBatch {
	if n.output == nil {
		n.output = storage.NewRowBatch(len(n.types), n.pipeline.cfg.BatchSize)
	}
	return n.output
}
