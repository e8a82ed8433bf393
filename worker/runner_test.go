package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	r, err := NewExecRunner("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	err = r.Run(context.Background(), Invocation{
		Dir:    dir,
		Args:   []string{"-c", "echo compressed; echo warn >&2; printf x > out.png"},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stdout.String() != "compressed\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "warn\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "out.png")); err != nil {
		t.Errorf("Expected the binary to run in the scratch dir: %v", err)
	}

	err = r.Run(context.Background(), Invocation{Dir: dir, Args: []string{"-c", "exit 3"}, Stdout: &stdout, Stderr: &stderr})
	if err == nil {
		t.Error("Expected a non-zero exit to fail")
	}
}

func TestNewExecRunner_NotFound(t *testing.T) {
	if _, err := NewExecRunner("imgmin-no-such-compressor"); err == nil {
		t.Error("Expected an error for a missing binary")
	}
}
