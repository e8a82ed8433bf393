package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Task is one compression round trip. It is a value: transitions return a new
// Task and the orchestrator swaps its current one wholesale.
type Task struct {
	ID         string
	FileName   string
	Original   []byte // retained for re-runs, never handed to the worker
	Result     []byte
	InProgress bool
	Error      string
	StartedAt  time.Time
	Elapsed    time.Duration
}

// NewTask starts a task for fileName holding original as the retained buffer
func NewTask(fileName string, original []byte, now time.Time) Task {
	return Task{
		ID:         uuid.NewString(),
		FileName:   fileName,
		Original:   original,
		InProgress: true,
		StartedAt:  now,
	}
}

// Complete records a successful result
func (t Task) Complete(result []byte, elapsed time.Duration) Task {
	t.Result = result
	t.Elapsed = elapsed
	t.InProgress = false
	t.Error = ""
	return t
}

// Fail marks the task as finished without a result
func (t Task) Fail(reason string) Task {
	t.Result = nil
	t.InProgress = false
	t.Error = reason
	return t
}

// Failed reports whether the task ended in an error
func (t Task) Failed() bool { return t.Error != "" }

// Retained reports whether the task still holds a buffer that can be re-run
func (t Task) Retained() bool { return t.Original != nil }
