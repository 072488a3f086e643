package execution

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"mit.edu/dsg/flowdb/catalog"
	"mit.edu/dsg/flowdb/inference"
)

// DefaultBatchSize is the number of rows operators aim to put in one batch unless configured otherwise.
const DefaultBatchSize = 1024

const tracerName = "mit.edu/dsg/flowdb/execution"

// Config holds the settings a pipeline is compiled with.
type Config struct {
	BatchSize int
	Catalog   *catalog.Catalog
	Tracer    trace.Tracer
	Logger    *zap.Logger
	Inference *inference.Engine
}

// Option changes one setting of a Config.
type Option func(*Config)

// WithBatchSize sets the preferred number of rows per batch. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

// WithCatalog sets the catalog that scan and materialize operators resolve tables in.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Config) {
		c.Catalog = cat
	}
}

// WithTracer sets the tracer pipeline runs are recorded with. The default comes from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithLogger sets the parent logger of pipeline and operator loggers. The default is the global logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithInference makes Compile use engine for type inference, sharing its memo with other users.
func WithInference(engine *inference.Engine) Option {
	return func(c *Config) {
		c.Inference = engine
	}
}

func newConfig(opts []Option) Config {
	cfg := Config{BatchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return cfg
}
