package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"docbot/internal/archive"
	"docbot/internal/config"
	"docbot/internal/deps"
	"docbot/internal/logging"
	"docbot/internal/tasks"
	"docbot/internal/transport"
	"docbot/internal/workflow"
)

const defaultInboxSize = 256

// ErrInboxFull is returned by Enqueue when the message loop is saturated.
var ErrInboxFull = errors.New("message inbox full")

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	manager   *workflow.Manager
	taskStore *tasks.Store
	worker    *tasks.Worker
	gatherer  prometheus.Gatherer
	deps      []deps.Status

	lockPath string
	lock     *flock.Flock
	server   *apiServer
	inbox    chan transport.Message

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithWorker runs w inside the daemon process.
func WithWorker(w *tasks.Worker) Option {
	return func(d *Daemon) { d.worker = w }
}

// WithTaskStore exposes task database statistics in the status report.
func WithTaskStore(store *tasks.Store) Option {
	return func(d *Daemon) { d.taskStore = store }
}

// WithGatherer serves the given metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(d *Daemon) { d.gatherer = g }
}

// WithInboxSize overrides the number of webhook messages buffered ahead of
// the message loop.
func WithInboxSize(n int) Option {
	return func(d *Daemon) {
		if n > 0 {
			d.inbox = make(chan transport.Message, n)
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool           `json:"running"`
	StateBackend   string         `json:"state_backend"`
	StateHealthy   bool           `json:"state_healthy"`
	ActiveSessions int            `json:"active_sessions"`
	QueuedMessages int            `json:"queued_messages"`
	LockFilePath   string         `json:"lock_file_path"`
	TaskDBPath     string         `json:"task_db_path,omitempty"`
	Tasks          *tasks.Summary `json:"tasks,omitempty"`
	Dependencies   []deps.Status  `json:"dependencies"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, manager *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  manager,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		inbox:    make(chan transport.Message, defaultInboxSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.deps = deps.CheckBinaries(deps.Requirements(cfg))
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the message loop, the
// optional worker, the cleanup loop and the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docbot daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	d.cancel = cancel

	d.spawn(func() { d.messageLoop(runCtx) })
	d.spawn(func() { d.cleanupLoop(runCtx) })
	if d.worker != nil {
		d.spawn(func() {
			if err := d.worker.Run(runCtx); err != nil {
				logging.ErrorWithContext(d.logger, "in-process worker stopped", "worker_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check task database access"),
					logging.String(logging.FieldImpact, "operations run inline"),
				)
			}
		})
	}

	d.logDependencies()
	d.running.Store(true)
	d.logger.Info("docbot daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("in_process_worker", d.worker != nil),
	)
	return nil
}

func (d *Daemon) spawn(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docbot daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the address the HTTP listener is bound to, or "" when the
// listener is disabled or not started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Enqueue hands msg to the message loop without blocking.
func (d *Daemon) Enqueue(msg transport.Message) error {
	select {
	case d.inbox <- msg:
		return nil
	default:
		logging.WarnWithContext(d.logger, "message inbox full; dropping message", "inbox_full",
			logging.String(logging.FieldSender, msg.Sender),
			logging.Int("capacity", cap(d.inbox)),
			logging.String(logging.FieldErrorHint, "the gateway retries rejected webhooks"),
			logging.String(logging.FieldImpact, "the message is not processed until redelivered"),
		)
		return ErrInboxFull
	}
}

// messageLoop feeds queued messages to the manager one at a time.
func (d *Daemon) messageLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.inbox:
			d.manager.HandleMessage(ctx, msg)
		}
	}
}

func (d *Daemon) cleanupLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Archive.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.CleanupStale(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CleanupStale removes abandoned task directories not referenced by any live
// conversation.
func (d *Daemon) CleanupStale(ctx context.Context) archive.CleanResult {
	active, err := d.manager.ActiveTaskDirs(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "stale cleanup skipped; active sessions unavailable", "stale_cleanup_skipped",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state store connectivity"),
		)
		return archive.CleanResult{}
	}
	result := archive.CleanStale(ctx, d.cfg.Paths.DownloadBaseDir, d.cfg.StaleTaskAge(), active, d.logger)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("stale task cleanup finished",
			logging.String(logging.FieldEventType, "stale_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
	return result
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	backend, healthy := d.manager.StoreStatus(ctx)
	status := Status{
		Running:        d.running.Load(),
		StateBackend:   backend,
		StateHealthy:   healthy,
		QueuedMessages: len(d.inbox),
		LockFilePath:   d.lockPath,
		Dependencies:   d.deps,
	}
	if sessions, err := d.manager.ActiveSessions(ctx); err == nil {
		status.ActiveSessions = len(sessions)
	}
	if d.taskStore != nil {
		status.TaskDBPath = d.taskStore.Path()
		cutoff := time.Now().Add(-time.Duration(d.cfg.Tasks.WorkerTimeoutSeconds) * time.Second)
		if summary, err := d.taskStore.Summarize(ctx, cutoff); err == nil {
			status.Tasks = &summary
		}
	}
	return status
}

func (d *Daemon) logDependencies() {
	for _, dep := range d.deps {
		if dep.Available {
			continue
		}
		attrs := []logging.Attr{
			logging.String("dependency", dep.Name),
			logging.String("command", dep.Command),
			logging.String(logging.FieldErrorHint, dep.Detail),
		}
		if dep.Optional {
			d.logger.Info("optional dependency unavailable", logging.Args(attrs...)...)
			continue
		}
		logging.WarnWithContext(d.logger, "required dependency unavailable", "dependency_missing",
			append(attrs, logging.String(logging.FieldImpact, "workflows using it fail until installed"))...)
	}
	if !deps.MarkdownAvailable(d.deps) {
		logging.WarnWithContext(d.logger, "no markdown converter installed", "markdown_backend_missing",
			logging.String(logging.FieldErrorHint, "install pandoc, md-to-pdf, md2pdf or wkhtmltopdf"),
			logging.String(logging.FieldImpact, "markdown to pdf conversions fail"),
		)
	}
}
