package concurrency

import (
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// Initialize sets GOMAXPROCS from the container CPU quota. Call it first thing in main. The
// returned function restores the previous value.
func Initialize(logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar()
	undo, err := maxprocs.Set(maxprocs.Logger(sugar.Debugf))
	if err != nil {
		logger.Warn("failed to set maxprocs", zap.Error(err))
		return func() {}
	}
	logger.Debug("concurrency initialized", zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))
	return undo
}
