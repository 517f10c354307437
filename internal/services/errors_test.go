package services_test

import (
	"errors"
	"strings"
	"testing"

	"docbot/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "compress", "ghostscript", "failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"compress", "ghostscript", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestTypedErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"tool", &services.ExternalToolError{Tool: services.ToolGhostscript, Message: "Compression failed", Command: "gs -sDEVICE=pdfwrite", ExitCode: 1, Stderr: "invalidfont"},
			"Compression failed - Command: gs -sDEVICE=pdfwrite. Exit code: 1. Error output: invalidfont"},
		{"not found", &services.ToolNotFoundError{Name: "soffice"}, "Required tool not found: soffice"},
		{"workflow", &services.WorkflowError{Workflow: "merge", Message: "Merge failed"}, "Merge failed in merge"},
		{"file", services.NewPDFProcessingError("split", "a.pdf", "Cannot read PDF", nil), "Cannot read PDF (a.pdf)"},
		{"api", &services.ApiError{Message: "Send failed", Endpoint: "/message/sendText/bot", StatusCode: 502}, "Send failed - Endpoint: /message/sendText/bot. Status code: 502"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTypedErrorsClassify(t *testing.T) {
	cause := errors.New("connection refused")
	stateErr := &services.StateManagementError{Op: "save", Key: "docbot:workflow:1", Err: cause}
	if !errors.Is(stateErr, services.ErrStateManagement) || !errors.Is(stateErr, cause) {
		t.Fatalf("state error should match marker and cause")
	}
	if services.Kind(stateErr) != "state" {
		t.Fatalf("unexpected kind %q", services.Kind(stateErr))
	}

	notFound := &services.ToolNotFoundError{Name: "gs"}
	if !errors.Is(notFound, services.ErrExternalTool) {
		t.Fatal("tool not found should belong to the external tool family")
	}
	if services.Kind(notFound) != "tool_not_found" {
		t.Fatalf("unexpected kind %q", services.Kind(notFound))
	}
	if services.Retryable(notFound) {
		t.Fatal("missing tools are not retryable")
	}

	if !services.Retryable(&services.ApiError{Message: "x", StatusCode: 503}) {
		t.Fatal("5xx api errors should be retryable")
	}
	if services.Retryable(&services.ApiError{Message: "x", StatusCode: 400}) {
		t.Fatal("4xx api errors should not be retryable")
	}
	if services.Kind(&services.InvalidInputError{Message: "bad"}) != "input" {
		t.Fatal("invalid input should classify as input")
	}
	if services.Kind(errors.New("other")) != "internal" {
		t.Fatal("unknown errors should classify as internal")
	}
}
