package cmd

import (
	"context"
	"fmt"

	"github.com/lepinkainen/imgmin/types"
	"github.com/lepinkainen/imgmin/utils"
	"github.com/lepinkainen/imgmin/worker"
)

// newWorker builds the compression worker described by the configuration.
// cleanup closes the wasm runtime, if any, and removes the scratch directory.
func newWorker(ctx context.Context, appCtx *types.AppContext, metrics *worker.Metrics) (*worker.Worker, func(), error) {
	cfg := appCtx.GetConfig().Compressor
	logger := appCtx.GetLogger()

	if _, err := utils.ValidateCompressor(cfg); err != nil {
		return nil, nil, err
	}

	scratch, err := worker.NewScratchFS()
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){
		func() {
			if err := scratch.Close(); err != nil {
				logger.Warnw("failed to remove scratch directory", "dir", scratch.Root(), "error", err)
			}
		},
	}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var runner worker.Runner
	if cfg.Wasm != "" {
		wr, err := worker.NewWasmRunner(ctx, worker.WasmConfig{Path: cfg.Wasm, MemoryLimitPages: cfg.MemoryLimitPages})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to load compressor module: %w", err)
		}
		closers = append(closers, func() { _ = wr.Close(context.Background()) })
		runner = wr
		logger.Infow("using wasm compressor", "module", cfg.Wasm, "memory_limit_pages", cfg.MemoryLimitPages)
	} else {
		er, err := worker.NewExecRunner(cfg.Binary)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		runner = er
		logger.Infow("using native compressor", "binary", er.Binary)
	}

	opts := []worker.Option{
		worker.WithLogger(logger.Named("worker")),
		worker.WithDefaultFile(cfg.DefaultFile),
	}
	if metrics != nil {
		opts = append(opts, worker.WithMetrics(metrics))
	}

	return worker.New(runner, scratch, opts...), cleanup, nil
}
