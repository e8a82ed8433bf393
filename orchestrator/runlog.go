package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// FormatLine renders one run log line with the elapsed milliseconds padded to five characters
func FormatLine(elapsed time.Duration, msg string) string {
	return fmt.Sprintf("[%5dms] %s", elapsed.Milliseconds(), msg)
}

// RunLog collects the timestamped lines of the current task
type RunLog struct {
	mu    sync.Mutex
	start time.Time
	lines []string
	now   func() time.Time
	sink  func(string)
}

// NewRunLog creates an empty log. sink, when set, receives every line as it is added.
func NewRunLog(now func() time.Time, sink func(string)) *RunLog {
	if now == nil {
		now = time.Now
	}
	return &RunLog{start: now(), now: now, sink: sink}
}

// Reset clears the log and restarts the clock
func (l *RunLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = l.now()
	l.lines = nil
}

// Add appends msg and returns the formatted line
func (l *RunLog) Add(msg string) string {
	l.mu.Lock()
	line := FormatLine(l.now().Sub(l.start), msg)
	l.lines = append(l.lines, line)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink(line)
	}
	return line
}

// Error appends msg as an error line
func (l *RunLog) Error(msg string) string {
	return l.Add("ERROR " + msg)
}

// Lines returns a copy of the log
func (l *RunLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
