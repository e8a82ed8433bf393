package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// halvingRunner pretends to compress by truncating the input file in place
func halvingRunner(ctx context.Context, inv Invocation) error {
	target := filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1])
	data, err := os.ReadFile(target)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.Stdout, "Processing %s\n", filepath.Base(target))
	fmt.Fprintf(inv.Stdout, "Saved %d bytes\n", len(data)-len(data)/2)
	return os.WriteFile(target, data[:len(data)/2], 0o600)
}

func newTestWorker(t *testing.T, runner Runner) *Worker {
	t.Helper()
	return New(runner, NewScratchFSAt(t.TempDir()))
}

func collect(ch <-chan Message) []Message {
	var msgs []Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	return msgs
}

func assertScratchEmpty(t *testing.T, w *Worker) {
	t.Helper()
	names, err := w.Filesystem().List()
	if err != nil {
		t.Fatalf("Failed to list scratch filesystem: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Expected empty scratch filesystem, found %v", names)
	}
}

func TestProcess_Success(t *testing.T) {
	w := newTestWorker(t, RunnerFunc(halvingRunner))
	input := bytes.Repeat([]byte{0x89}, 2048)

	var lines []Message
	final := w.Process(context.Background(), ImageRequest{
		TaskID:    "task-1",
		Arguments: Options{"lossy": ""},
		Data:      input,
		FileName:  "cat.png",
	}, func(m Message) { lines = append(lines, m) })

	done, ok := final.(DoneMsg)
	if !ok {
		t.Fatalf("Expected DoneMsg, got %#v", final)
	}
	if done.TaskID != "task-1" {
		t.Errorf("Expected task id task-1, got %q", done.TaskID)
	}
	if len(done.File) > len(input) {
		t.Errorf("Expected output no larger than %d bytes, got %d", len(input), len(done.File))
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 stdout lines, got %d", len(lines))
	}
	if out, ok := lines[0].(StdoutMsg); !ok || out.Line != "Processing cat.png" {
		t.Errorf("Unexpected first line: %#v", lines[0])
	}

	assertScratchEmpty(t, w)
}

func TestProcess_ArgumentsReachRunner(t *testing.T) {
	var got []string
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		got = inv.Args
		return nil
	}))

	w.Process(context.Background(), ImageRequest{
		TaskID:    "t",
		Arguments: Options{"lossy": "", "progressive": ""},
		Data:      []byte("png"),
		FileName:  "cat.png",
	}, func(Message) {})

	expected := []string{"-lossy", "-progressive", "cat.png"}
	if strings.Join(got, " ") != strings.Join(expected, " ") {
		t.Errorf("Runner args = %v, want %v", got, expected)
	}
}

func TestProcess_BackToBackLeavesNoFiles(t *testing.T) {
	w := newTestWorker(t, RunnerFunc(halvingRunner))

	for i, name := range []string{"a.png", "b.jpg", "a.png"} {
		final := w.Process(context.Background(), ImageRequest{
			TaskID:   fmt.Sprintf("task-%d", i),
			Data:     []byte("some image bytes"),
			FileName: name,
		}, func(Message) {})

		if _, ok := final.(DoneMsg); !ok {
			t.Fatalf("Run %d: expected DoneMsg, got %#v", i, final)
		}
		assertScratchEmpty(t, w)
	}
}

func TestProcess_MissingOutput(t *testing.T) {
	// the binary "fails silently" by consuming its input
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		return os.Remove(filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1]))
	}))

	var emitted []Message
	final := w.Process(context.Background(), ImageRequest{
		TaskID:   "t",
		Data:     []byte("data"),
		FileName: "cat.png",
	}, func(m Message) { emitted = append(emitted, m) })

	all := append(emitted, final)
	var stderr, done int
	for _, m := range all {
		switch m.(type) {
		case StderrMsg:
			stderr++
		case DoneMsg:
			done++
		}
	}
	if stderr != 1 || done != 0 {
		t.Errorf("Expected 1 stderr and 0 done messages, got %d and %d", stderr, done)
	}

	msg, ok := final.(StderrMsg)
	if !ok || !msg.Final {
		t.Fatalf("Expected final StderrMsg, got %#v", final)
	}
	if !strings.Contains(msg.Line, ErrNoOutput.Error()) {
		t.Errorf("Expected no-output error, got %q", msg.Line)
	}

	assertScratchEmpty(t, w)
}

func TestProcess_OutputPathDiffersFromInput(t *testing.T) {
	// a binary writing elsewhere leaves the expected output missing; the staged input must go
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		return os.WriteFile(filepath.Join(inv.Dir, "other.png"), []byte("x"), 0o600)
	}))

	final := w.Process(context.Background(), ImageRequest{TaskID: "t", Data: []byte("d"), FileName: "cat.png"}, func(Message) {})
	if !IsTerminal(final) {
		t.Fatalf("Expected terminal message, got %#v", final)
	}
	if _, err := w.Filesystem().ReadFile("cat.png"); err == nil {
		t.Error("Expected staged input to be removed")
	}
}

func TestProcess_RunnerError(t *testing.T) {
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		fmt.Fprint(inv.Stderr, "unsupported file")
		return errors.New("exit status 1")
	}))

	var emitted []Message
	final := w.Process(context.Background(), ImageRequest{TaskID: "t", Data: []byte("d"), FileName: "x.png"},
		func(m Message) { emitted = append(emitted, m) })

	if len(emitted) != 1 {
		t.Fatalf("Expected the partial stderr line to be flushed, got %v", emitted)
	}
	if line := emitted[0].(StderrMsg); line.Final || line.Line != "unsupported file" {
		t.Errorf("Unexpected forwarded line: %#v", line)
	}

	msg, ok := final.(StderrMsg)
	if !ok || !msg.Final || !strings.Contains(msg.Line, "exit status 1") {
		t.Errorf("Expected final stderr with runner error, got %#v", final)
	}
	assertScratchEmpty(t, w)
}

func TestProcess_RunnerPanic(t *testing.T) {
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		panic("boom")
	}))

	final := w.Process(context.Background(), ImageRequest{TaskID: "t", Data: []byte("d"), FileName: "x.png"}, func(Message) {})

	msg, ok := final.(StderrMsg)
	if !ok || !msg.Final || !strings.Contains(msg.Line, "boom") {
		t.Errorf("Expected final stderr reporting the panic, got %#v", final)
	}
	assertScratchEmpty(t, w)

	// still usable afterwards
	w.runner = RunnerFunc(halvingRunner)
	if _, ok := w.Process(context.Background(), ImageRequest{TaskID: "t2", Data: []byte("dd"), FileName: "x.png"}, func(Message) {}).(DoneMsg); !ok {
		t.Error("Expected worker to accept the next request after a panic")
	}
}

func TestSubmit_DeliversInOrderAndCloses(t *testing.T) {
	w := newTestWorker(t, RunnerFunc(halvingRunner))

	ch, err := w.Submit(context.Background(), ImageRequest{TaskID: "t", Data: []byte("abcdef"), FileName: "cat.png"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	msgs := collect(ch)
	if len(msgs) != 3 {
		t.Fatalf("Expected 2 stdout + 1 done, got %d messages", len(msgs))
	}
	for _, m := range msgs[:2] {
		if m.Kind() != KindStdout {
			t.Errorf("Expected stdout before done, got %s", m.Kind())
		}
	}
	if msgs[2].Kind() != KindDone {
		t.Errorf("Expected done last, got %s", msgs[2].Kind())
	}
}

func TestSubmit_RejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	w := newTestWorker(t, RunnerFunc(func(ctx context.Context, inv Invocation) error {
		<-release
		return nil
	}))

	first, err := w.Submit(context.Background(), ImageRequest{TaskID: "1", Data: []byte("a"), FileName: "a.png"})
	if err != nil {
		t.Fatalf("First Submit() error = %v", err)
	}

	if _, err := w.Submit(context.Background(), ImageRequest{TaskID: "2", Data: []byte("b"), FileName: "b.png"}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for concurrent request, got %v", err)
	}

	close(release)
	msgs := collect(first)
	if len(msgs) != 1 || msgs[0].Kind() != KindDone {
		t.Fatalf("Expected single done message, got %v", msgs)
	}

	// idle once the terminal message has been received
	next, err := w.Submit(context.Background(), ImageRequest{TaskID: "3", Data: []byte("c"), FileName: "c.png"})
	if err != nil {
		t.Fatalf("Submit() after completion error = %v", err)
	}
	collect(next)
}

func TestWorkerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// registering twice reuses the collectors
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("Second NewMetrics() error = %v", err)
	}

	clock := time.Unix(0, 0)
	w := New(RunnerFunc(halvingRunner), NewScratchFSAt(t.TempDir()), WithMetrics(m), WithClock(func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}))

	w.Process(context.Background(), ImageRequest{TaskID: "ok", Data: []byte("abcd"), FileName: "a.png"}, func(Message) {})
	w.runner = RunnerFunc(func(ctx context.Context, inv Invocation) error { return errors.New("nope") })
	w.Process(context.Background(), ImageRequest{TaskID: "bad", Data: []byte("abcd"), FileName: "a.png"}, func(Message) {})

	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful job, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed job, got %v", got)
	}
	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Errorf("Expected no active jobs, got %v", got)
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	lw := newLineWriter(func(s string) { lines = append(lines, s) })

	fmt.Fprint(lw, "first line\nsecond ")
	fmt.Fprint(lw, "half\r\nthird")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 complete lines before flush, got %v", lines)
	}
	lw.Flush()

	expected := []string{"first line", "second half", "third"}
	if strings.Join(lines, "|") != strings.Join(expected, "|") {
		t.Errorf("Lines = %q, want %q", lines, expected)
	}
}

func TestProcess_DefaultFileName(t *testing.T) {
	var target string
	runner := RunnerFunc(func(ctx context.Context, inv Invocation) error {
		target = inv.Args[len(inv.Args)-1]
		return nil
	})

	w := New(runner, NewScratchFSAt(t.TempDir()), WithDefaultFile("source.jpg"))
	final := w.Process(context.Background(), ImageRequest{TaskID: "t", Data: []byte("x")}, func(Message) {})

	if _, ok := final.(DoneMsg); !ok {
		t.Fatalf("Expected DoneMsg, got %#v", final)
	}
	if target != "source.jpg" {
		t.Errorf("Expected configured default file, got %q", target)
	}
	assertScratchEmpty(t, w)
}
