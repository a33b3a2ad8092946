package core

import "fmt"

// TaskType is the closed set of dispatch categories a message can fall into.
type TaskType int

const (
	// TaskConversation is ordinary chat sharing the resumable session.
	TaskConversation TaskType = iota
	// TaskCapture asks for a capture device (camera, screenshot).
	TaskCapture
	// TaskFetch needs web access (URLs, searches).
	TaskFetch
	// TaskCommand is a prefixed command such as "/status".
	TaskCommand
)

// String returns the lower-case name of the task type.
func (t TaskType) String() string {
	switch t {
	case TaskConversation:
		return "conversation"
	case TaskCapture:
		return "capture"
	case TaskFetch:
		return "fetch"
	case TaskCommand:
		return "command"
	default:
		return fmt.Sprintf("task(%d)", int(t))
	}
}

// TaskClassification is one dispatch unit produced from a batch. Anchor is the
// batch index the group is ordered by. A conversational group may contain
// later messages than its anchor.
type TaskClassification struct {
	Type     TaskType
	Messages []Message
	Anchor   int
}

// TaskResult is the outcome of one dispatched classification.
type TaskResult struct {
	Anchor   int
	Type     TaskType
	Response string
	// SessionID is the session id the engine reported for this invocation.
	// Only the conversational task's id is resumable.
	SessionID string
}
