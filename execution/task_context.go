package execution

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/storage"
)

// taskContext is the operator.Context handed to a node's operator.
type taskContext struct {
	node *execNode
}

var _ operator.Context = (*taskContext)(nil)

func (c *taskContext) GetNext(i int) (*storage.RowBatch, error) {
	n := c.node
	common.Assert(i >= 0 && i < len(n.inputs), "%s has no input %d", n, i)
	if err := n.pipeline.ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s interrupted", n)
	}
	return n.inputs[i].pull()
}

func (c *taskContext) OutputBuffer() *storage.RowBatch {
	return c.node.outputBuffer()
}

func (c *taskContext) Emit(b *storage.RowBatch) bool {
	return c.node.emit(b)
}

func (c *taskContext) NumInputs() int {
	return len(c.node.inputs)
}

func (c *taskContext) BatchSize() int {
	return c.node.pipeline.cfg.BatchSize
}

func (c *taskContext) OutputTypes() []common.Type {
	return c.node.types
}

func (c *taskContext) InputTypes(i int) []common.Type {
	return c.node.inputs[i].producer.types
}

func (c *taskContext) Catalog() *catalog.Catalog {
	return c.node.pipeline.cfg.Catalog
}

func (c *taskContext) Logger() *zap.Logger {
	return c.node.logger
}

func (c *taskContext) Context() context.Context {
	return c.node.pipeline.ctx
}
