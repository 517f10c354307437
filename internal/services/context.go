package services

import "context"

type contextKey string

const (
	senderKey    contextKey = "sender"
	taskIDKey    contextKey = "task_id"
	workflowKey  contextKey = "workflow"
	requestIDKey contextKey = "request_id"
)

// WithSender annotates context with the chat sender identifier.
func WithSender(ctx context.Context, sender string) context.Context {
	if sender == "" {
		return ctx
	}
	return context.WithValue(ctx, senderKey, sender)
}

// SenderFromContext extracts the chat sender identifier if present.
func SenderFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, senderKey)
}

// WithTaskID annotates context with the workflow task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext returns the workflow task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, taskIDKey)
}

// WithWorkflow annotates context with the workflow kind.
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	if workflow == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowKey, workflow)
}

// WorkflowFromContext returns the workflow kind if present.
func WorkflowFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, workflowKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
