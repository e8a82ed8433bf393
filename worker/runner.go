package worker

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Invocation describes a single run of the compressor
type Invocation struct {
	Dir    string // host directory backing the scratch filesystem
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes the opaque compression binary. Run blocks until the binary
// returns; it occupies the worker for the whole call.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, inv Invocation) error

func (f RunnerFunc) Run(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// ExecRunner runs a native compressor executable found on disk or in PATH
type ExecRunner struct {
	Binary string
}

// NewExecRunner resolves binary through PATH
func NewExecRunner(binary string) (*ExecRunner, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("compressor %q not found: %w", binary, err)
	}
	return &ExecRunner{Binary: path}, nil
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, r.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("compressor failed: %w", err)
	}
	return nil
}
