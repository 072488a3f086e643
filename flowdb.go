package flowdb

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/execution"
	"mit.edu/dsg/flowdb/inference"
	"mit.edu/dsg/flowdb/logging"
	"mit.edu/dsg/flowdb/operator"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"

	// Registers the built-in operator kinds in operator.Default.
	_ "mit.edu/dsg/flowdb/operators"
)

// FlowDB is the top-level container: a catalog, the operator registry plans are compiled against, and a shared
// inference memo. Compiled pipelines are cached per structurally equal plan.
//
// FlowDB is safe for concurrent use.
type FlowDB struct {
	Catalog   *catalog.Catalog
	Registry  *operator.Registry
	Inference *inference.Engine

	opts   []execution.Option
	cache  *planner.PlanCache[*execution.Pipeline]
	logger *zap.Logger
}

// New returns a FlowDB over cat that compiles against operator.Default. opts apply to every pipeline.
func New(cat *catalog.Catalog, opts ...execution.Option) *FlowDB {
	return NewWithRegistry(cat, operator.Default, opts...)
}

// NewWithRegistry is New with a caller-provided registry.
func NewWithRegistry(cat *catalog.Catalog, registry *operator.Registry, opts ...execution.Option) *FlowDB {
	return &FlowDB{
		Catalog:   cat,
		Registry:  registry,
		Inference: inference.NewEngine(registry),
		opts:      append([]execution.Option(nil), opts...),
		cache:     planner.NewPlanCache[*execution.Pipeline](),
		logger:    logging.WithComponent(nil, "flowdb"),
	}
}

// Open returns a FlowDB whose catalog is persisted in dataDir, creating the directory if needed.
func Open(dataDir string, opts ...execution.Option) (*FlowDB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "create data directory %s", dataDir)
	}
	cat, err := catalog.NewCatalog(catalog.NewDiskCatalogManager(dataDir))
	if err != nil {
		return nil, err
	}
	db := New(cat, opts...)
	db.logger.Info("opened", zap.String("dir", dataDir), zap.Int("tables", len(cat.Tables)))
	return db, nil
}

// Prepare validates and compiles root, reusing an earlier compilation of a structurally equal plan. The
// returned pipeline is fresh; the caller owns it.
func (db *FlowDB) Prepare(root *planner.PlanNode) (*execution.Pipeline, error) {
	p, err := db.cache.GetOrCompute(root, func() (*execution.Pipeline, error) {
		opts := append([]execution.Option{execution.WithCatalog(db.Catalog)}, db.opts...)
		return execution.Compile(root, db.Registry, append(opts, execution.WithInference(db.Inference))...)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "prepare %s", root)
	}
	return p.Clone(), nil
}

// Query runs root and returns all of its output.
func (db *FlowDB) Query(ctx context.Context, root *planner.PlanNode) (*storage.RowBatch, error) {
	p, err := db.Prepare(root)
	if err != nil {
		return nil, err
	}
	return p.Collect(ctx)
}

// Execute runs root for its effects, typically a plan ending in a sink.
func (db *FlowDB) Execute(ctx context.Context, root *planner.PlanNode) error {
	p, err := db.Prepare(root)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// Explain renders root as an indented tree.
func (db *FlowDB) Explain(root *planner.PlanNode) string {
	return operator.Explain(db.Registry, root)
}

// Schema returns the output types and length of root.
func (db *FlowDB) Schema(root *planner.PlanNode) ([]common.Type, int64, error) {
	return db.Inference.Schema(root)
}
