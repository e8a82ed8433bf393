package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lepinkainen/imgmin/worker"
)

// WorkerMsg delivers one worker message to the model together with the
// channel it came from, so the model can keep listening
type WorkerMsg struct {
	Message worker.Message
	source  <-chan worker.Message
}

// StreamClosedMsg is sent once the worker closed a task's channel
type StreamClosedMsg struct {
	TaskID string
}

// OpenFilesMsg asks the model to open the first of Paths
type OpenFilesMsg struct {
	Paths []string
}

// waitForMessage blocks on ch and turns the next worker message into a tea.Msg
func waitForMessage(taskID string, ch <-chan worker.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return StreamClosedMsg{TaskID: taskID}
		}
		return WorkerMsg{Message: msg, source: ch}
	}
}
