package tasks

import (
	"errors"
	"fmt"

	"docbot/internal/services"
)

var (
	// ErrTaskNotFound indicates the task id is unknown to the task database.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnknownOperation indicates an operation name missing from the Registry.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrWaitTimeout indicates a bounded wait elapsed before the task finished.
	ErrWaitTimeout = fmt.Errorf("%w: task wait elapsed", services.ErrTimeout)
	// ErrRevoked indicates the task was revoked before it produced a result.
	ErrRevoked = errors.New("task revoked")
)

// TaskError reports a background task that finished with FAILURE.
type TaskError struct {
	ID        string
	Operation string
	Kind      string
	Message   string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.ID, e.Operation, e.Message)
}

func (e *TaskError) Unwrap() error {
	switch e.Kind {
	case "tool", "tool_not_found":
		return services.ErrExternalTool
	case "input":
		return services.ErrValidation
	case "timeout":
		return services.ErrTimeout
	default:
		return services.ErrWorkflow
	}
}

// SnapshotError converts a terminal non-success snapshot into an error.
func SnapshotError(s Snapshot) error {
	switch s.Status {
	case StatusFailure:
		return &TaskError{ID: s.ID, Operation: s.Operation, Kind: s.ErrorKind, Message: s.Error}
	case StatusRevoked:
		return fmt.Errorf("%s: %w", s.ID, ErrRevoked)
	default:
		return nil
	}
}
