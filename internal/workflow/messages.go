package workflow

import (
	"errors"
	"strings"

	"docbot/internal/services"
	"docbot/internal/tasks"
)

const (
	// GenericErrorMessage is the only text a user sees for unexpected failures.
	GenericErrorMessage = "An internal error occurred processing your request."
	doneKeyword         = "done"
	statusKeyword       = "status"
	cancelKeyword       = "cancel"
)

// userFacing renders an operation failure as a short diagnostic fit for a
// chat reply. Commands, exit codes and raw stderr stay in the logs.
func userFacing(err error) string {
	if err == nil {
		return ""
	}
	var (
		input    *services.InvalidInputError
		missing  *services.ToolNotFoundError
		tool     *services.ExternalToolError
		taskErr  *tasks.TaskError
		fileErr  *services.FileProcessingError
		workflow *services.WorkflowError
	)
	switch {
	case errors.As(err, &input):
		return input.Message
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &tool):
		return tool.Message
	case errors.As(err, &taskErr):
		return trimDetail(taskErr.Message)
	case errors.As(err, &fileErr):
		return fileErr.Message
	case errors.As(err, &workflow):
		return workflow.Message
	case errors.Is(err, services.ErrTimeout):
		return "The operation timed out"
	default:
		return "Unknown error"
	}
}

// replyFor picks the message sent when a workflow step fails: messages the
// workflow wrote for the user are passed through, anything else becomes
// fallback.
func replyFor(err error, fallback string) string {
	var (
		input    *services.InvalidInputError
		fileErr  *services.FileProcessingError
		workflow *services.WorkflowError
	)
	switch {
	case errors.As(err, &workflow) && workflow.Message != "":
		return workflow.Message
	case errors.As(err, &fileErr) && fileErr.Message != "":
		return fileErr.Message
	case errors.As(err, &input):
		return input.Message
	case fallback != "":
		return fallback
	default:
		return GenericErrorMessage
	}
}

func trimDetail(message string) string {
	if i := strings.Index(message, " - Command: "); i >= 0 {
		return message[:i]
	}
	return strings.TrimSpace(message)
}

func isKeyword(text, keyword string) bool {
	return strings.EqualFold(strings.TrimSpace(text), keyword)
}
