package worker

import (
	"encoding/json"
	"time"
)

// Message kinds exchanged between the orchestrator and the worker
const (
	KindImage  = "image"
	KindStdout = "stdout"
	KindStderr = "stderr"
	KindDone   = "done"
)

// Message is one unit of communication between the orchestrator and the worker.
// Every message names the task it belongs to so stale messages can be dropped.
type Message interface {
	Kind() string
	Task() string
}

// ImageRequest asks the worker to compress Data with the given Arguments.
// Ownership of Data moves to the worker; the sender must not touch it afterwards.
type ImageRequest struct {
	TaskID    string
	Arguments Options
	Data      []byte
	FileName  string
}

// StdoutMsg carries one line of standard output from the compressor
type StdoutMsg struct {
	TaskID string
	Line   string
}

// StderrMsg carries one line of standard error, or a worker-side failure.
// Final is set on the failure report that ends a task without a DoneMsg.
type StderrMsg struct {
	TaskID string
	Line   string
	Final  bool
}

// DoneMsg is the terminal success message for a task
type DoneMsg struct {
	TaskID string
	File   []byte
	Time   time.Duration
}

func (ImageRequest) Kind() string { return KindImage }
func (StdoutMsg) Kind() string    { return KindStdout }
func (StderrMsg) Kind() string    { return KindStderr }
func (DoneMsg) Kind() string      { return KindDone }

func (m ImageRequest) Task() string { return m.TaskID }
func (m StdoutMsg) Task() string    { return m.TaskID }
func (m StderrMsg) Task() string    { return m.TaskID }
func (m DoneMsg) Task() string      { return m.TaskID }

// IsTerminal reports whether msg ends its task
func IsTerminal(msg Message) bool {
	switch m := msg.(type) {
	case DoneMsg:
		return true
	case StderrMsg:
		return m.Final
	}
	return false
}

// Envelope is the tagged JSON form of a message: {"type": ..., "data": ...}
type Envelope struct {
	Type   string          `json:"type"`
	TaskID string          `json:"task_id,omitempty"`
	Data   json.RawMessage `json:"data"`
	Final  bool            `json:"final,omitempty"`
}

type imagePayload struct {
	Arguments Options `json:"arguments"`
	Data      []byte  `json:"data"`
	FileName  string  `json:"fileName"`
}

type donePayload struct {
	File []byte  `json:"file"`
	Time float64 `json:"time"`
}

// Encode wraps msg in its JSON envelope. Byte payloads are base64 encoded and
// the done time is expressed in milliseconds.
func Encode(msg Message) (Envelope, error) {
	var payload any
	env := Envelope{Type: msg.Kind(), TaskID: msg.Task()}

	switch m := msg.(type) {
	case ImageRequest:
		payload = imagePayload{Arguments: m.Arguments, Data: m.Data, FileName: m.FileName}
	case StdoutMsg:
		payload = m.Line
	case StderrMsg:
		payload = m.Line
		env.Final = m.Final
	case DoneMsg:
		payload = donePayload{File: m.File, Time: float64(m.Time) / float64(time.Millisecond)}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = data
	return env, nil
}
