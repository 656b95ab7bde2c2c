package model

import (
	"fmt"
	"time"
)

// Event types produced by a script execution.
const (
	EventStdout = "stdout"
	EventError  = "error"
	EventExit   = "exit"
)

// Event is one discrete unit of an execution's observable output: a chunk of
// terminal output, an error, or the final exit notification. Content keeps
// embedded carriage returns; interactive prompts depend on them for cursor
// positioning.
type Event struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

// StdoutEvent builds a stdout event carrying one chunk of PTY output.
func StdoutEvent(content string) Event {
	return Event{Type: EventStdout, Content: content, Timestamp: time.Now().UTC()}
}

// ErrorEvent builds an error event. An error event terminates a stream with
// no exit event following it.
func ErrorEvent(content string) Event {
	return Event{Type: EventError, Content: content, Timestamp: time.Now().UTC()}
}

// ExitEvent builds the terminal exit event for a normally-completed run.
// The exit code is carried both as human-readable content and structured.
// A negative code means the process died from a signal.
func ExitEvent(code int) Event {
	c := code
	return Event{
		Type:      EventExit,
		Content:   fmt.Sprintf("process exited with code %d", code),
		Timestamp: time.Now().UTC(),
		ExitCode:  &c,
	}
}
