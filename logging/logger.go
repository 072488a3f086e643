// Package logging holds the process-wide structured logger.
//
// The logger is a no-op until Init or SetLogger is called, so library users that never configure logging pay
// nothing for it. Components derive child loggers with the With* helpers so that every line carries the
// pipeline or operator it came from.
package logging

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalMu sync.RWMutex
	global   = zap.NewNop()
)

// Init installs a production JSON logger at the given level ("debug", "info", "warn" or "error").
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the global logger. A nil logger restores the no-op default.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	globalMu.Lock()
	global = logger
	globalMu.Unlock()
}

// L returns the global logger.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// WithComponent returns a child of base tagged with a component name. A nil base means the global logger.
func WithComponent(base *zap.Logger, component string) *zap.Logger {
	return orGlobal(base).With(zap.String("component", component))
}

// WithPipeline returns a child of base tagged with a pipeline run id.
func WithPipeline(base *zap.Logger, id uuid.UUID) *zap.Logger {
	return orGlobal(base).With(zap.Stringer("pipeline", id))
}

// WithOperator returns a child of base tagged with an operator name and the id of its plan node.
func WithOperator(base *zap.Logger, name string, node uuid.UUID) *zap.Logger {
	return orGlobal(base).With(zap.String("operator", name), zap.Stringer("node", node))
}

func orGlobal(base *zap.Logger) *zap.Logger {
	if base == nil {
		return L()
	}
	return base
}
