package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"docbot/internal/config"
	"docbot/internal/daemon"
	"docbot/internal/deps"
	"docbot/internal/logging"
	"docbot/internal/preflight"
	"docbot/internal/tasks"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the docbot serve daemon and blocks until a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newProcessLogger(cfg, opts, "docbot")
	if err != nil {
		return err
	}

	logDependencySnapshot(logger, cfg)
	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if result.Passed {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run docbot doctor for details"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "docbot.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Assemble(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	daemonOpts := []daemon.Option{daemon.WithGatherer(rt.Metrics)}
	if rt.Tasks != nil {
		daemonOpts = append(daemonOpts, daemon.WithTaskStore(rt.Tasks))
		if cfg.Tasks.Workers > 0 {
			daemonOpts = append(daemonOpts, daemon.WithWorker(tasks.NewWorker(cfg, rt.Tasks, rt.Operations, logger)))
		}
	}

	d, err := daemon.New(cfg, rt.Manager, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("docbot daemon shutting down")
	return nil
}

// RunWorker runs a standalone task worker against the shared task database
// until a signal arrives.
func RunWorker(cmdCtx context.Context, cfg *config.Config, opts Options, concurrency int) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newProcessLogger(cfg, opts, "docbot-worker")
	if err != nil {
		return err
	}
	logDependencySnapshot(logger, cfg)

	store, err := tasks.Open(cfg)
	if err != nil {
		logger.Error("open task database", logging.Error(err))
		return err
	}
	defer store.Close()

	ops, err := OperationRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("build operation registry: %w", err)
	}

	var workerOpts []tasks.WorkerOption
	if concurrency > 0 {
		workerOpts = append(workerOpts, tasks.WithConcurrency(concurrency))
	}
	return tasks.NewWorker(cfg, store, ops, logger, workerOpts...).Run(signalCtx)
}

func newProcessLogger(cfg *config.Config, opts Options, name string) (*slog.Logger, error) {
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", name, runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, name+".log", logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", name, err)
	}
	return logger, nil
}

func ensureCurrentLogPointer(logDir, name, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, name)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("state_backend", cfg.State.Backend),
		logging.Bool("async_tasks", cfg.Tasks.AsyncEnabled),
		logging.Bool("transport_configured", cfg.Transport.BaseURL != ""),
		logging.Bool("markdown_available", deps.MarkdownAvailable(statuses)),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Command+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
