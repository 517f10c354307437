// Package logging assembles structured slog loggers and formatting helpers used
// across docbot services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so the workflow manager, task
// workers, and tool wrappers automatically tag log lines with the sender,
// workflow task, and correlation IDs. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
package logging
