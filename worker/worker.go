package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrBusy is returned by Submit while another request is in flight
	ErrBusy = errors.New("worker busy: a compression is already in progress")
	// ErrNoOutput means the compressor finished without leaving an output file
	ErrNoOutput = errors.New("compressor produced no output")
)

// Worker bridges message-based requests and the compressor's file-based interface.
// It handles one request at a time and keeps its scratch filesystem empty while idle.
type Worker struct {
	runner  Runner
	fs      Filesystem
	logger  *zap.SugaredLogger
	metrics *Metrics
	sem     *semaphore.Weighted
	now     func() time.Time

	defaultFile string
}

// Option configures a Worker
type Option func(*Worker)

// WithLogger sets the worker's logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics enables prometheus instrumentation
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock overrides the time source used for durations
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithDefaultFile sets the scratch file name used for requests without one
func WithDefaultFile(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.defaultFile = name
		}
	}
}

// New creates a worker that runs runner against the scratch filesystem fsys
func New(runner Runner, fsys Filesystem, opts ...Option) *Worker {
	w := &Worker{
		runner: runner,
		fs:     fsys,
		logger: zap.NewNop().Sugar(),
		sem:    semaphore.NewWeighted(1),
		now:    time.Now,

		defaultFile: DefaultFileName,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Filesystem exposes the scratch filesystem, mostly for inspection
func (w *Worker) Filesystem() Filesystem { return w.fs }

// Submit starts processing req in the background and returns the channel on
// which the task's messages arrive in send order. The channel is closed after
// the terminal DoneMsg or final StderrMsg. A second Submit while a request is
// running fails with ErrBusy; nothing is queued.
func (w *Worker) Submit(ctx context.Context, req ImageRequest) (<-chan Message, error) {
	if !w.sem.TryAcquire(1) {
		w.logger.Warnw("rejecting request, worker busy", "task", req.TaskID)
		return nil, ErrBusy
	}

	out := make(chan Message, 64)
	send := func(m Message) {
		select {
		case out <- m:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		final := w.Process(ctx, req, send)
		// idle again before the orchestrator sees the terminal message
		w.sem.Release(1)
		send(final)
	}()

	return out, nil
}

// Process runs one request synchronously: stage, invoke, collect, cleanup.
// Output lines go to emit; the returned message is the terminal one.
func (w *Worker) Process(ctx context.Context, req ImageRequest, emit func(Message)) (final Message) {
	start := w.now()
	if strings.TrimSpace(req.FileName) == "" {
		req.FileName = w.defaultFile
	}
	rc := NewRequestContext(req)
	log := w.logger.With("task", rc.TaskID, "file", rc.InputPath)

	w.metrics.started()
	defer func() {
		if r := recover(); r != nil {
			w.discard(rc)
			final = w.fail(rc, start, fmt.Errorf("compressor panicked: %v", r))
		}
		w.metrics.finished()
	}()

	args := BuildArgs(req.Arguments, rc.InputPath)
	log.Debugw("starting compression", "args", args, "bytes", len(req.Data))

	if err := w.stage(rc, req.Data); err != nil {
		w.discard(rc)
		return w.fail(rc, start, err)
	}

	if err := w.invoke(ctx, rc, args, emit); err != nil {
		w.discard(rc)
		return w.fail(rc, start, err)
	}

	out, err := w.collect(rc)
	if err != nil {
		return w.fail(rc, start, err)
	}

	if err := w.cleanup(rc); err != nil {
		log.Warnw("scratch cleanup incomplete", "error", err)
	}

	elapsed := w.now().Sub(start)
	w.metrics.observe("success", elapsed)
	log.Infow("compression finished", "in_bytes", len(req.Data), "out_bytes", len(out), "duration", elapsed)

	return DoneMsg{TaskID: rc.TaskID, File: out, Time: elapsed}
}

func (w *Worker) stage(rc RequestContext, data []byte) error {
	if err := w.fs.WriteFile(rc.InputPath, data); err != nil {
		return fmt.Errorf("failed to stage input: %w", err)
	}
	return nil
}

func (w *Worker) invoke(ctx context.Context, rc RequestContext, args []string, emit func(Message)) error {
	stdout := newLineWriter(func(line string) {
		emit(StdoutMsg{TaskID: rc.TaskID, Line: line})
	})
	stderr := newLineWriter(func(line string) {
		emit(StderrMsg{TaskID: rc.TaskID, Line: line})
	})

	err := w.runner.Run(ctx, Invocation{
		Dir:    w.fs.Root(),
		Args:   args,
		Stdout: stdout,
		Stderr: stderr,
	})
	stdout.Flush()
	stderr.Flush()
	return err
}

// collect reads the output back. A missing output removes the staged input.
func (w *Worker) collect(rc RequestContext) ([]byte, error) {
	data, err := w.fs.ReadFile(rc.OutputPath)
	if err != nil {
		if rmErr := w.fs.Remove(rc.InputPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			w.logger.Warnw("failed to remove staged input", "task", rc.TaskID, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	return data, nil
}

func (w *Worker) cleanup(rc RequestContext) error {
	var errs []error
	if err := w.fs.Remove(rc.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if rc.InputPath != rc.OutputPath {
		if err := w.fs.Remove(rc.InputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// discard clears both paths after a failed step
func (w *Worker) discard(rc RequestContext) {
	if err := w.cleanup(rc); err != nil {
		w.logger.Warnw("scratch cleanup incomplete", "task", rc.TaskID, "error", err)
	}
}

func (w *Worker) fail(rc RequestContext, start time.Time, err error) Message {
	w.metrics.observe("error", w.now().Sub(start))
	w.logger.Errorw("compression failed", "task", rc.TaskID, "file", rc.InputPath, "error", err)
	return StderrMsg{TaskID: rc.TaskID, Line: err.Error(), Final: true}
}
