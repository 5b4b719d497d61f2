// Package dialogue drives one turn of the conversation with a hosted
// assistant: append the caller's words, run the assistant, fetch its reply.
package dialogue

import (
	"context"
	"errors"
	"fmt"
)

// RunStatus is the coarse state of an assistant run.
type RunStatus int

const (
	RunPending RunStatus = iota
	RunCompleted
	RunFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunPending:
		return "PENDING"
	case RunCompleted:
		return "COMPLETED"
	case RunFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Assistant is the conversational-assistant capability. A thread is the
// external conversation context; it grows for the life of a session.
type Assistant interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string) (string, error)
	RunStatus(ctx context.Context, threadID, runID string) (RunStatus, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// ErrDialogueTimeout is returned when a run does not complete in time.
var ErrDialogueTimeout = errors.New("dialogue: assistant run timed out")

// ErrEmptyReply is wrapped in a BackendError when a completed run left no
// assistant text.
var ErrEmptyReply = errors.New("dialogue: assistant returned no text")

// BackendError wraps a failure of the assistant backend.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("dialogue backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
