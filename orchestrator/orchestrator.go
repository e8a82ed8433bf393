package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lepinkainen/imgmin/imaging"
	"github.com/lepinkainen/imgmin/worker"
	"go.uber.org/zap"
)

// ErrNoResult is returned by Download before a task has completed
var ErrNoResult = errors.New("no compressed result to download")

// Dispatcher accepts image requests and returns the channel their messages arrive on
type Dispatcher interface {
	Submit(ctx context.Context, req worker.ImageRequest) (<-chan worker.Message, error)
}

// Controls mirrors the user-facing settings
type Controls struct {
	Mode         string
	Progressive  bool
	AutoDownload bool
}

// BuildOptions turns the controls into compressor options. The mode becomes a
// presence flag and progressive adds a second one.
func BuildOptions(c Controls) worker.Options {
	opts := worker.Options{}
	if c.Mode != "" {
		opts[c.Mode] = ""
	}
	if c.Progressive {
		opts["progressive"] = ""
	}
	return opts
}

// State is a snapshot of everything a front end needs to draw
type State struct {
	Task          Task
	Controls      Controls
	Log           []string
	Banner        string
	Original      *imaging.Preview
	Result        *imaging.Preview
	DownloadReady bool
	SavedTo       string
}

// Orchestrator owns the current task, validates input and talks to the worker
type Orchestrator struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	downloader Downloader
	logger     *zap.SugaredLogger
	now        func() time.Time
	sink       func(string)

	controls      Controls
	task          Task
	runLog        *RunLog
	banner        string
	original      *imaging.Preview
	result        *imaging.Preview
	downloadReady bool
	savedTo       string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the diagnostic logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source of the run log
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogSink receives every run log line as it is written. The sink runs
// while the orchestrator is locked and must not call back into it.
func WithLogSink(sink func(line string)) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// New creates an orchestrator dispatching to d and saving results with dl
func New(d Dispatcher, dl Downloader, controls Controls, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher: d,
		downloader: dl,
		logger:     zap.NewNop().Sugar(),
		now:        time.Now,
		controls:   controls,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runLog = NewRunLog(o.now, o.sink)
	return o
}

// Open accepts the first of files, loads it and dispatches it with the current
// controls. Validation and load errors are returned without contacting the worker.
func (o *Orchestrator) Open(ctx context.Context, files ...File) (<-chan worker.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.task.InProgress {
		o.banner = "A compression is already running, wait for it to finish."
		return nil, worker.ErrBusy
	}

	o.banner = ""
	f, err := AcceptFile(files...)
	if err != nil {
		o.banner = err.Error()
		o.logger.Infow("file rejected", "error", err)
		return nil, err
	}

	o.runLog.Reset()
	o.resetResult()
	o.runLog.Add("Loading file data")

	data, err := LoadFile(f)
	if err != nil {
		o.banner = err.Error()
		o.logger.Warnw("failed to load file", "file", f.Name, "error", err)
		return nil, err
	}
	o.runLog.Add(fmt.Sprintf("File data loaded: %s, %d bytes", f.Name, len(data)))

	task := NewTask(f.Name, bytes.Clone(data), o.now())
	o.original = o.render(task.Original)
	return o.dispatch(ctx, task, data)
}

// SetControls stores new control values. A change of mode or progressive
// re-runs the retained file, unless a task is still running in which case
// nothing is sent. A nil channel means no request was made.
func (o *Orchestrator) SetControls(ctx context.Context, c Controls) (<-chan worker.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	changed := c.Mode != o.controls.Mode || c.Progressive != o.controls.Progressive
	o.controls = c

	if !changed || !o.task.Retained() || o.task.InProgress {
		return nil, nil
	}

	o.runLog.Reset()
	o.resetResult()
	task := NewTask(o.task.FileName, o.task.Original, o.now())
	o.original = o.render(task.Original)
	return o.dispatch(ctx, task, bytes.Clone(task.Original))
}

// dispatch hands data to the worker. data must not be used by the caller afterwards.
func (o *Orchestrator) dispatch(ctx context.Context, task Task, data []byte) (<-chan worker.Message, error) {
	req := worker.ImageRequest{
		TaskID:    task.ID,
		Arguments: BuildOptions(o.controls),
		Data:      data,
		FileName:  task.FileName,
	}

	ch, err := o.dispatcher.Submit(ctx, req)
	if err != nil {
		o.task = task.Fail(err.Error())
		o.runLog.Error(err.Error())
		return nil, err
	}

	o.task = task
	o.logger.Debugw("task dispatched", "task", task.ID, "file", task.FileName, "options", req.Arguments)
	return ch, nil
}

// Handle applies one worker message to the current task. Messages for any
// other task are dropped and Handle returns false.
func (o *Orchestrator) Handle(msg worker.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if msg.Task() != o.task.ID {
		o.logger.Debugw("dropping stale message", "task", msg.Task(), "current", o.task.ID)
		return false
	}

	switch m := msg.(type) {
	case worker.StdoutMsg:
		o.runLog.Add(m.Line)
	case worker.StderrMsg:
		o.runLog.Error(m.Line)
		if m.Final {
			o.task = o.task.Fail(m.Line)
		}
	case worker.DoneMsg:
		o.task = o.task.Complete(m.File, m.Time)
		o.showResult()
	default:
		o.logger.Warnw("unexpected message kind", "kind", msg.Kind())
		return false
	}
	return true
}

func (o *Orchestrator) showResult() {
	t := o.task
	o.result = o.render(t.Result)

	in, out := len(t.Original), len(t.Result)
	saved := 0.0
	if in > 0 {
		saved = float64(in-out) / float64(in) * 100
	}
	o.runLog.Add(fmt.Sprintf("Compressed %s: %d -> %d bytes (%.1f%% saved) in %dms",
		t.FileName, in, out, saved, t.Elapsed.Milliseconds()))

	if o.result != nil && o.original != nil {
		if d, err := imaging.PerceptualDistance(t.Original, t.Result); err == nil {
			o.runLog.Add(fmt.Sprintf("Perceptual distance to original: %d", d))
		}
	}

	if o.controls.AutoDownload {
		_, err := o.download()
		if err == nil {
			return
		}
		o.runLog.Error(err.Error())
	}
	o.downloadReady = true
}

// render decodes data for display. Decode failures are logged and leave the task as it is.
func (o *Orchestrator) render(data []byte) *imaging.Preview {
	p, err := imaging.Decode(data)
	if err != nil {
		o.runLog.Error(imaging.ErrNotImage.Error())
		return nil
	}
	return &p
}

// Download saves the current result as the minified file name
func (o *Orchestrator) Download() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.download()
}

func (o *Orchestrator) download() (string, error) {
	if o.task.Result == nil {
		return "", ErrNoResult
	}

	name := imaging.MinifiedName(o.task.FileName)
	path, err := o.downloader.Save(name, o.task.Result)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	o.savedTo = path
	o.downloadReady = false
	o.runLog.Add("Saved " + path)
	o.logger.Infow("result saved", "task", o.task.ID, "path", path)
	return path, nil
}

func (o *Orchestrator) resetResult() {
	o.original = nil
	o.result = nil
	o.downloadReady = false
	o.savedTo = ""
}

// Controls returns the current control values
func (o *Orchestrator) Controls() Controls {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.controls
}

// State returns a snapshot for rendering
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Task:          o.task,
		Controls:      o.controls,
		Log:           o.runLog.Lines(),
		Banner:        o.banner,
		Original:      o.original,
		Result:        o.result,
		DownloadReady: o.downloadReady,
		SavedTo:       o.savedTo,
	}
}
