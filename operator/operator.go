package operator

import (
	"context"

	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/storage"
)

// Operator is the runtime instance of one plan node.
//
// An operator is built by its kind's Decode hook and run by the scheduler, which calls Execute once. Execute
// loops pulling input batches with Context.GetNext and handing results downstream with Context.Emit until its
// inputs are exhausted or Emit reports that nobody wants more output.
type Operator interface {
	// Name returns the display name of the operator kind.
	Name() string

	// Attributes returns the shape of the operator kind.
	Attributes() Attributes

	// Execute runs the operator to completion. Abandonment is a normal exit: when Emit returns false the
	// operator must release whatever it holds and return nil. A non-nil error aborts the whole pipeline.
	Execute(ctx Context) error

	// Clone returns an independent instance with the same configuration and no shared mutable state.
	Clone() Operator
}

// Context is the interface through which a running operator talks to the scheduler. Only GetNext and Emit
// transfer control; every other method returns immediately.
type Context interface {
	// GetNext pulls the next batch on input i. It returns nil, nil once the input is exhausted, and keeps doing
	// so on later calls. The batch belongs to the caller until the next GetNext on the same input.
	GetNext(i int) (*storage.RowBatch, error)

	// OutputBuffer returns a scratch batch with the operator's output width. It stays owned by the operator
	// until passed to Emit, and the same batch is handed out again once the consumer is done with it. It must be
	// resized before writing.
	OutputBuffer() *storage.RowBatch

	// Emit hands b downstream and suspends until the consumer pulls again. It returns false if the output was
	// abandoned; the operator must not emit again. Emitting an empty batch is a no-op that returns true.
	Emit(b *storage.RowBatch) bool

	// NumInputs returns the number of inputs the node was built with.
	NumInputs() int

	// BatchSize returns the preferred number of rows per emitted batch.
	BatchSize() int

	// OutputTypes returns the inferred output types of the node.
	OutputTypes() []common.Type

	// InputTypes returns the inferred output types of input i.
	InputTypes(i int) []common.Type

	// Catalog returns the catalog the pipeline was compiled against, or nil.
	Catalog() *catalog.Catalog

	// Logger returns a logger tagged with the pipeline and the operator.
	Logger() *zap.Logger

	// Context returns the context of the current run.
	Context() context.Context
}
