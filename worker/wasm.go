package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasmRunner runs a WASI build of the compressor inside a wazero runtime.
// The module is compiled once and instantiated fresh for every invocation,
// with the scratch directory mounted as the guest root.
type WasmRunner struct {
	name    string
	runtime wazero.Runtime
	code    wazero.CompiledModule
}

// WasmConfig controls the wazero runtime
type WasmConfig struct {
	Path             string
	MemoryLimitPages uint32
}

// NewWasmRunner reads and compiles the module at cfg.Path
func NewWasmRunner(ctx context.Context, cfg WasmConfig) (*WasmRunner, error) {
	wasmBytes, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	return NewWasmRunnerFromBytes(ctx, "compressor", wasmBytes, cfg.MemoryLimitPages)
}

// NewWasmRunnerFromBytes compiles wasmBytes. name becomes argv[0] for the guest.
func NewWasmRunnerFromBytes(ctx context.Context, name string, wasmBytes []byte, memoryLimitPages uint32) (*WasmRunner, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if memoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(memoryLimitPages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}

	code, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to compile wasm module: %w", err)
	}

	return &WasmRunner{name: name, runtime: r, code: code}, nil
}

func (w *WasmRunner) Run(ctx context.Context, inv Invocation) error {
	fsConfig := wazero.NewFSConfig().WithDirMount(inv.Dir, "/")

	modConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{w.name}, inv.Args...)...).
		WithStdout(inv.Stdout).
		WithStderr(inv.Stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithFSConfig(fsConfig)

	mod, err := w.runtime.InstantiateModule(ctx, w.code, modConfig)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("wasm execution failed: %w", err)
	}
	return mod.Close(ctx)
}

// Close releases the compiled module and the runtime
func (w *WasmRunner) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
