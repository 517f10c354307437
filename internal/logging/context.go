package logging

import (
	"context"
	"log/slog"

	"docbot/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSender is the standardized structured logging key for the chat sender identifier.
	FieldSender = "sender"
	// FieldTaskID is the standardized structured logging key for workflow task identifiers.
	FieldTaskID = "task_id"
	// FieldWorkflow is the standardized structured logging key for workflow kinds.
	FieldWorkflow = "workflow"
	// FieldAsyncTaskID is the standardized structured logging key for background task handles.
	FieldAsyncTaskID = "async_task_id"
	// FieldOperation is the standardized structured logging key for background operation names.
	FieldOperation = "operation"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "state_saved").
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact states what a warning means for the user.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if sender, ok := services.SenderFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSender, sender))
	}
	if taskID, ok := services.TaskIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTaskID, taskID))
	}
	if workflow, ok := services.WorkflowFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkflow, workflow))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
