package tools

import (
	"log/slog"

	"docbot/internal/config"
	"docbot/internal/services"
)

// Kit bundles every converter used by the background operations.
type Kit struct {
	Ghostscript *Ghostscript
	Office      *LibreOffice
	Markdown    *Markdown
	Scanner     *Scanner
	PDF         *PDF
}

// KitOption customizes a Kit.
type KitOption func(*kitOptions)

type kitOptions struct {
	exec Executor
}

// WithExecutor injects a custom executor for every subprocess (primarily for tests).
func WithExecutor(exec Executor) KitOption {
	return func(o *kitOptions) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// NewKit wires the converters from configuration.
func NewKit(cfg *config.Config, logger *slog.Logger, opts ...KitOption) *Kit {
	options := kitOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	toolTimeout := cfg.ToolTimeout()
	return &Kit{
		Ghostscript: NewGhostscript(cfg.Tools.Ghostscript, NewRunner(services.ToolGhostscript, options.exec, toolTimeout, logger)),
		Office:      NewLibreOffice(cfg.Tools.LibreOffice, cfg.Tools.XvfbRun, NewRunner(services.ToolLibreOffice, options.exec, cfg.OfficeTimeout(), logger)),
		Markdown:    NewMarkdown(cfg.Tools.MarkdownBackends, cfg.Tools.ChromiumPath, NewRunner(services.ToolMarkdown, options.exec, toolTimeout, logger), logger),
		Scanner:     NewScanner(cfg.Tools.Scanner, NewRunner(services.ToolScanner, options.exec, toolTimeout, logger)),
		PDF:         NewPDF(),
	}
}
