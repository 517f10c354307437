package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docbot/internal/config"
	"docbot/internal/logging"
	"docbot/internal/services"
)

const defaultRetryDelay = 5 * time.Second

// Worker claims and executes tasks from the task database.
type Worker struct {
	store         *Store
	registry      *Registry
	info          WorkerInfo
	pollInterval  time.Duration
	heartbeat     time.Duration
	workerTimeout time.Duration
	taskTimeout   time.Duration
	retention     time.Duration
	maxRetries    int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithConcurrency overrides the number of claim loops.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.info.Concurrency = n
		}
	}
}

// WithRetryDelay overrides the delay before a transient failure is retried.
func WithRetryDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryDelay = delay
	}
}

// NewWorker constructs a worker bound to store and registry.
func NewWorker(cfg *config.Config, store *Store, registry *Registry, logger *slog.Logger, opts ...WorkerOption) *Worker {
	hostname, _ := os.Hostname()
	concurrency := cfg.Tasks.Workers
	if concurrency <= 0 {
		concurrency = 1
	}
	w := &Worker{
		store:    store,
		registry: registry,
		info: WorkerInfo{
			ID:          uuid.NewString(),
			Hostname:    hostname,
			PID:         os.Getpid(),
			Concurrency: concurrency,
			StartedAt:   time.Now(),
		},
		pollInterval:  time.Duration(cfg.Tasks.PollIntervalMillis) * time.Millisecond,
		heartbeat:     time.Duration(cfg.Tasks.HeartbeatSeconds) * time.Second,
		workerTimeout: time.Duration(cfg.Tasks.WorkerTimeoutSeconds) * time.Second,
		taskTimeout:   time.Duration(cfg.Tasks.TaskTimeoutSeconds) * time.Second,
		retention:     time.Duration(cfg.Tasks.RetentionHours) * time.Hour,
		maxRetries:    cfg.Tasks.MaxRetries,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(logger, "worker").With(logging.String("worker_id", w.info.ID[:8]))
	return w
}

// ID returns the worker identifier recorded in heartbeats.
func (w *Worker) ID() string {
	return w.info.ID
}

// Run registers the worker, then runs the heartbeat loop, the maintenance loop
// and the claim loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.store.Heartbeat(ctx, w.info); err != nil {
		return err
	}
	w.logger.Info("worker started",
		logging.Int("concurrency", w.info.Concurrency),
		logging.String("operations", fmt.Sprint(w.registry.Names())),
	)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.store.RemoveWorker(cleanupCtx, w.info.ID); err != nil {
			w.logger.Warn("worker deregistration failed", logging.Error(err))
		}
		w.logger.Info("worker stopped")
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return w.heartbeatLoop(groupCtx) })
	group.Go(func() error { return w.maintenanceLoop(groupCtx) })
	for i := 0; i < w.info.Concurrency; i++ {
		group.Go(func() error { return w.claimLoop(groupCtx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, w.info); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				w.logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "worker_heartbeat_failed"),
					logging.String(logging.FieldErrorHint, "check task database access"),
				)
			}
		}
	}
}

func (w *Worker) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.workerTimeout)
	defer ticker.Stop()
	for {
		w.maintain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) maintain(ctx context.Context) {
	cutoff := time.Now().Add(-w.workerTimeout)
	if reclaimed, err := w.store.ReclaimOrphaned(ctx, cutoff); err != nil {
		w.logger.Warn("reclaim orphaned tasks failed; stuck tasks may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check task database access"),
		)
	} else if reclaimed > 0 {
		w.logger.Info("reclaimed orphaned tasks", logging.Int64("count", reclaimed))
	}
	if _, err := w.store.PruneWorkers(ctx, cutoff); err != nil {
		w.logger.Debug("prune workers failed", logging.Error(err))
	}
	if w.retention > 0 {
		if purged, err := w.store.Purge(ctx, time.Now().Add(-w.retention)); err == nil && purged > 0 {
			w.logger.Info("purged finished tasks", logging.Int64("count", purged))
		}
	}
}

func (w *Worker) claimLoop(ctx context.Context) error {
	for {
		worked, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.logger.Warn("task claim failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_claim_failed"),
				logging.String(logging.FieldErrorHint, "check task database access"),
			)
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and executes at most one task. It reports whether a task was
// claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.store.Claim(ctx, w.info.ID)
	if err != nil || task == nil {
		return false, err
	}
	w.execute(ctx, task)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, task *Task) {
	logger := w.logger.With(
		logging.String(logging.FieldAsyncTaskID, task.ID),
		logging.String(logging.FieldOperation, task.Operation),
		logging.Int("attempt", task.Attempts),
	)
	runCtx := ctx
	if w.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	logger.Info("task started")
	result, runErr := w.registry.Run(runCtx, task.Operation, task.Args)
	if runErr == nil {
		stored, err := w.store.Complete(context.WithoutCancel(ctx), task.ID, w.info.ID, result)
		switch {
		case err != nil:
			logger.Error("record task result failed", logging.Error(err))
		case !stored:
			logger.Info("task finished after revocation; result discarded")
		default:
			logger.Info("task succeeded", logging.Duration("elapsed", time.Since(start)))
		}
		return
	}

	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = services.Wrap(services.ErrTimeout, "tasks", task.Operation, "task timed out", runErr)
	}
	kind := services.Kind(runErr)
	var retryAt *time.Time
	if services.Retryable(runErr) && task.Attempts <= w.maxRetries {
		at := time.Now().Add(w.retryDelay)
		retryAt = &at
	}
	if _, err := w.store.Fail(context.WithoutCancel(ctx), task.ID, w.info.ID, kind, runErr.Error(), retryAt); err != nil {
		logger.Error("record task failure failed", logging.Error(err))
		return
	}
	if retryAt != nil {
		logger.Warn("task failed; retry scheduled",
			logging.Error(runErr),
			logging.String(logging.FieldEventType, "task_retry_scheduled"),
			logging.String(logging.FieldErrorHint, "transient failure; the task is retried automatically"),
			logging.String(logging.FieldImpact, "result is delayed"),
		)
		return
	}
	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.Error(runErr),
		logging.String("error_kind", kind),
		logging.String(logging.FieldErrorHint, "inspect with docbot tasks show "+task.ID),
	)
}
