package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"docbot/internal/logging"
	"docbot/internal/services"
)

// Command describes one subprocess invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := append([]string{c.Binary}, c.Args...)
	return strings.Join(parts, " ")
}

// Output captures a finished subprocess.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Runner executes commands for one tool family.
type Runner struct {
	tool    services.ToolKind
	exec    Executor
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a runner. A nil executor uses os/exec.
func NewRunner(tool services.ToolKind, exec Executor, timeout time.Duration, logger *slog.Logger) *Runner {
	if exec == nil {
		exec = commandExecutor{}
	}
	return &Runner{
		tool:    tool,
		exec:    exec,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "tools").With(logging.String("tool", string(tool))),
	}
}

// Run executes cmd and classifies failures. A missing binary yields
// *services.ToolNotFoundError, a timeout wraps services.ErrTimeout and a
// non-zero exit yields *services.ExternalToolError.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("running command", logging.String("command", cmd.String()), logging.String("dir", cmd.Dir))
	start := time.Now()
	out, err := r.exec.Run(runCtx, cmd)
	if err == nil && out.ExitCode == 0 {
		logger.Debug("command finished", logging.Duration("elapsed", time.Since(start)))
		return out, nil
	}

	var notFound *services.ToolNotFoundError
	switch {
	case errors.As(err, &notFound):
		return out, err
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return out, &services.ToolNotFoundError{Name: cmd.Binary}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, services.Wrap(services.ErrTimeout, "tools", string(r.tool),
			fmt.Sprintf("%s timed out after %s", toolLabel(r.tool), r.timeout),
			&services.ExternalToolError{Tool: r.tool, Message: "command timed out", Command: cmd.String()})
	case ctx.Err() != nil:
		return out, ctx.Err()
	}

	detail := Diagnose(r.tool, out.Stderr)
	if detail == "" {
		detail = "Unknown error"
	}
	toolErr := &services.ExternalToolError{
		Tool:     r.tool,
		Message:  toolLabel(r.tool) + " error: " + detail,
		Command:  cmd.String(),
		ExitCode: out.ExitCode,
		Stderr:   out.Stderr,
		Err:      err,
	}
	logger.Warn("command failed",
		logging.String("command", cmd.String()),
		logging.Int("exit_code", out.ExitCode),
		logging.String("stderr", truncate(out.Stderr, 2000)),
		logging.String(logging.FieldEventType, "tool_failed"),
		logging.String(logging.FieldErrorHint, detail),
	)
	return out, toolErr
}

func toolLabel(tool services.ToolKind) string {
	switch tool {
	case services.ToolLibreOffice:
		return "LibreOffice"
	case services.ToolGhostscript:
		return "Ghostscript"
	case services.ToolScanner:
		return "Scanner"
	case services.ToolMarkdown:
		return "Markdown conversion"
	case services.ToolPDF:
		return "PDF processing"
	default:
		return "External command"
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, c Command) (Output, error) {
	if _, err := exec.LookPath(c.Binary); err != nil {
		return Output{}, &services.ToolNotFoundError{Name: c.Binary}
	}
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}
