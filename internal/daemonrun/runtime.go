package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docbot/internal/archive"
	"docbot/internal/compress"
	"docbot/internal/config"
	"docbot/internal/logging"
	"docbot/internal/notifications"
	"docbot/internal/operations"
	"docbot/internal/statestore"
	"docbot/internal/tasks"
	"docbot/internal/tools"
	"docbot/internal/transport"
	"docbot/internal/workflow"
)

// Runtime is the assembled object graph shared by the serve daemon.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	State      statestore.Store
	Tasks      *tasks.Store
	Operations *tasks.Registry
	Manager    *workflow.Manager
	Metrics    *prometheus.Registry
}

// OperationRegistry builds the table of converter operations backed by the
// configured binaries. Both the daemon and standalone workers use it.
func OperationRegistry(cfg *config.Config, logger *slog.Logger) (*tasks.Registry, error) {
	kit := tools.NewKit(cfg, logger)
	thresholds := compress.ThresholdsFromKB(
		cfg.Compression.AutoLowBelowKB,
		cfg.Compression.AutoMediumBelowKB,
		cfg.Compression.AutoHighBelowKB,
	)
	return operations.Registry(kit, thresholds)
}

// Assemble opens the stores and wires the workflow manager. Optional backends
// degrade instead of failing: an unreachable Redis falls back to memory and an
// unusable task database makes every operation run inline.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ops, err := OperationRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build operation registry: %w", err)
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Operations: ops,
		Metrics:    prometheus.NewRegistry(),
	}
	rt.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Tasks.AsyncEnabled {
		store, openErr := tasks.Open(cfg)
		if openErr != nil {
			logging.WarnWithContext(logger, "task database unavailable; operations run inline", "task_store_unavailable",
				logging.String("db_path", cfg.Tasks.DBPath),
				logging.Error(openErr),
				logging.String(logging.FieldErrorHint, "check tasks.db_path permissions"),
				logging.String(logging.FieldImpact, "long conversions block the message loop"),
			)
		} else {
			rt.Tasks = store
		}
	}

	rt.State = statestore.Open(ctx, cfg, logger)

	dispatcher := tasks.NewDispatcher(cfg, rt.Tasks, ops, logger)
	poller := tasks.NewPoller(cfg, rt.Tasks, logger)
	env := workflow.NewEnv(cfg, dispatcher, poller, logger)

	rt.Manager = workflow.NewManager(cfg, workflow.DefaultRegistry(), rt.State, transport.NewClient(cfg, logger), env, logger,
		workflow.WithArchiver(archive.New(openMirror(ctx, cfg, logger), logger)),
		workflow.WithMetrics(workflow.NewMetrics(rt.Metrics)),
		workflow.WithNotifier(notifications.NewService(cfg)),
	)
	return rt, nil
}

// openMirror returns the blob mirror when configured. A mirror that cannot
// be reached is skipped; local archival still runs.
func openMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) archive.Mirror {
	if !cfg.MirrorEnabled() {
		return nil
	}
	mirror, err := archive.NewAzureMirror(ctx, cfg.Archive.AzureConnectionString, cfg.Archive.AzureContainer, logger)
	if err != nil {
		logging.WarnWithContext(logger, "blob mirror unavailable", "archive_mirror_unavailable",
			logging.String("container", cfg.Archive.AzureContainer),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive.azure_connection_string"),
			logging.String(logging.FieldImpact, "archived files stay local only"),
		)
		return nil
	}
	return mirror
}

// Close releases the stores held by the runtime.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.State != nil {
		errs = append(errs, r.State.Close())
	}
	if r.Tasks != nil {
		errs = append(errs, r.Tasks.Close())
	}
	return errors.Join(errs...)
}
