package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool    = errors.New("external tool error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrStateManagement = errors.New("state management error")
	ErrWorkflow        = errors.New("workflow error")
	ErrFileProcessing  = errors.New("file processing error")
	ErrAPI             = errors.New("api error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// StateManagementError reports a persistence failure of the conversation state store.
type StateManagementError struct {
	Op  string
	Key string
	Err error
}

func (e *StateManagementError) Error() string {
	msg := fmt.Sprintf("state %s failed", e.Op)
	if e.Key != "" {
		msg += " for " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StateManagementError) Unwrap() []error { return compact(ErrStateManagement, e.Err) }

// WorkflowError reports a failure inside a workflow step.
type WorkflowError struct {
	Workflow string
	Message  string
	Err      error
}

func (e *WorkflowError) Error() string {
	msg := e.Message
	if e.Workflow != "" {
		msg += " in " + e.Workflow
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WorkflowError) Unwrap() []error { return compact(ErrWorkflow, e.Err) }

// FileProcessingError reports a failure handling one user file. PDF marks the
// PDF-specific variant.
type FileProcessingError struct {
	Workflow string
	Filename string
	Message  string
	PDF      bool
	Err      error
}

// NewPDFProcessingError builds the PDF variant of FileProcessingError.
func NewPDFProcessingError(workflow, filename, message string, err error) *FileProcessingError {
	return &FileProcessingError{Workflow: workflow, Filename: filename, Message: message, PDF: true, Err: err}
}

func (e *FileProcessingError) Error() string {
	msg := e.Message
	if e.Filename != "" {
		msg += " (" + e.Filename + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileProcessingError) Unwrap() []error { return compact(ErrFileProcessing, e.Err) }

// InvalidInputError reports user input that cannot be processed; Message is user facing.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func (e *InvalidInputError) Unwrap() error { return ErrValidation }

// ToolKind identifies which external tool family produced an ExternalToolError.
type ToolKind string

const (
	ToolGeneric     ToolKind = "generic"
	ToolLibreOffice ToolKind = "libreoffice"
	ToolGhostscript ToolKind = "ghostscript"
	ToolScanner     ToolKind = "scanner"
	ToolMarkdown    ToolKind = "markdown"
	ToolPDF         ToolKind = "pdf"
)

// ExternalToolError reports a failed external converter invocation.
type ExternalToolError struct {
	Tool     ToolKind
	Message  string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Command != "" {
		b.WriteString(" - Command: ")
		b.WriteString(e.Command)
		b.WriteString(".")
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " Exit code: %d.", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(" Error output: ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ExternalToolError) Unwrap() []error { return compact(ErrExternalTool, e.Err) }

// ToolNotFoundError reports that a required binary is not installed.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string { return "Required tool not found: " + e.Name }

func (e *ToolNotFoundError) Unwrap() []error { return []error{ErrExternalTool, ErrNotFound} }

// ApiError reports a failed call to the messaging gateway.
type ApiError struct {
	Message    string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ApiError) Error() string {
	msg := e.Message
	if e.Endpoint != "" {
		msg += " - Endpoint: " + e.Endpoint + "."
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" Status code: %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApiError) Unwrap() []error {
	errs := compact(ErrAPI, e.Err)
	if e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429 {
		errs = append(errs, ErrTransient)
	}
	return errs
}

func compact(marker error, err error) []error {
	if err == nil {
		return []error{marker}
	}
	return []error{marker, err}
}

// Kind returns a short classification label for metrics and log fields.
func Kind(err error) string {
	var notFound *ToolNotFoundError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &notFound):
		return "tool_not_found"
	case errors.Is(err, ErrStateManagement):
		return "state"
	case errors.Is(err, ErrValidation):
		return "input"
	case errors.Is(err, ErrExternalTool):
		return "tool"
	case errors.Is(err, ErrFileProcessing):
		return "file"
	case errors.Is(err, ErrAPI):
		return "api"
	case errors.Is(err, ErrWorkflow):
		return "workflow"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// Retryable reports whether a failed background operation may be attempted again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConfiguration) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}
