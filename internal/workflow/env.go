package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docbot/internal/config"
	"docbot/internal/logging"
	"docbot/internal/services"
	"docbot/internal/tasks"
)

// ApplyFunc folds a materialized task into a workflow payload. It runs at
// most once per task.
type ApplyFunc func(*TrackedTask)

// Env bundles the collaborators workflows use to run operations.
type Env struct {
	Dispatcher      *tasks.Dispatcher
	Poller          *tasks.Poller
	AwaitBudget     time.Duration
	MaxStatusChecks int
	Logger          *slog.Logger
}

// NewEnv builds an Env from configuration.
func NewEnv(cfg *config.Config, dispatcher *tasks.Dispatcher, poller *tasks.Poller, logger *slog.Logger) *Env {
	return &Env{
		Dispatcher:      dispatcher,
		Poller:          poller,
		AwaitBudget:     cfg.AwaitBudget(),
		MaxStatusChecks: cfg.Tasks.MaxStatusChecks,
		Logger:          logging.NewComponentLogger(logger, "workflow"),
	}
}

func (e *Env) logger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, e.Logger)
}

// Exec runs op inline and decodes its result into out.
func (e *Env) Exec(ctx context.Context, op string, args, out any) error {
	raw, err := e.Dispatcher.RunInline(ctx, op, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	return nil
}

// Run submits op for key and records it in tracker. Inline completions are
// materialized before Run returns; background submissions leave the task
// outstanding. A previous task under the same key is replaced, revoking its
// handle if it is still running.
func (e *Env) Run(ctx context.Context, tracker *Tracker, key, op string, args any, apply ApplyFunc) (*TrackedTask, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", op, err)
	}
	if previous := tracker.Get(key); previous != nil && previous.Outstanding() {
		e.Dispatcher.Revoke(ctx, previous.HandleID)
	}
	task := &TrackedTask{Key: key, Operation: op, Args: raw, Status: tasks.StatusPending}
	tracker.put(task)

	submission, err := e.Dispatcher.Submit(ctx, op, json.RawMessage(raw))
	if err != nil {
		e.materializeError(task, err, apply)
		return task, err
	}
	if submission.Async() {
		task.HandleID = submission.ID()
		e.logger(ctx).Info("operation submitted",
			logging.String(logging.FieldOperation, op),
			logging.String(logging.FieldAsyncTaskID, task.HandleID),
			logging.String("key", key),
		)
		return task, nil
	}
	e.materialize(task, tasks.Snapshot{Status: tasks.StatusSuccess, Result: submission.Result}, apply)
	return task, nil
}

// Refresh is the status command: it counts the check, inspects every
// outstanding handle and applies finished results. Once the persisted check
// counter passes MaxStatusChecks the remaining handles are revoked and their
// operations rerun inline.
func (e *Env) Refresh(ctx context.Context, tracker *Tracker, apply ApplyFunc) {
	tracker.StatusChecks++
	logger := e.logger(ctx)
	for _, task := range tracker.Outstanding() {
		if !e.Poller.Available() {
			break
		}
		snapshot, err := e.Poller.CheckStatus(ctx, task.HandleID)
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			logger.Warn("tracked task missing; it will run inline",
				logging.String(logging.FieldAsyncTaskID, task.HandleID),
				logging.String(logging.FieldEventType, "task_missing"),
				logging.String(logging.FieldErrorHint, "task rows may have been purged"),
				logging.String(logging.FieldImpact, "the item runs during finalize"),
			)
			task.HandleID = ""
		case err != nil:
			logger.Warn("task status check failed",
				logging.String(logging.FieldAsyncTaskID, task.HandleID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_status_failed"),
				logging.String(logging.FieldErrorHint, "check the task database"),
			)
		default:
			task.Status = snapshot.Status
			if snapshot.Ready() {
				e.materialize(task, snapshot, apply)
			}
		}
	}
	if e.MaxStatusChecks > 0 && tracker.StatusChecks >= e.MaxStatusChecks && len(tracker.Outstanding()) > 0 {
		logging.WarnWithContext(logger, "status check limit reached; running remaining work inline", "status_checks_exhausted",
			logging.Int("status_checks", tracker.StatusChecks),
			logging.Int("outstanding", len(tracker.Outstanding())),
			logging.String(logging.FieldErrorHint, "check that docbot workers are running"),
			logging.String(logging.FieldImpact, "this turn blocks while the items run"),
		)
		e.Cancel(ctx, tracker)
		e.RunPending(ctx, tracker, apply)
	}
}

// Await waits for outstanding handles within the global budget and then runs
// every task that never reached a worker inline. Handles still running when
// the budget is spent are revoked and recorded as failed, so finalize only
// sees the results that arrived.
func (e *Env) Await(ctx context.Context, tracker *Tracker, apply ApplyFunc) {
	outstanding := tracker.Outstanding()
	if len(outstanding) > 0 {
		if !e.Poller.Available() {
			e.logger(ctx).Info("task substrate unavailable; running tracked work inline",
				logging.Int("count", len(outstanding)))
			for _, task := range outstanding {
				task.HandleID = ""
			}
		} else {
			ids := make([]string, 0, len(outstanding))
			for _, task := range outstanding {
				ids = append(ids, task.HandleID)
			}
			report := e.Poller.AwaitCompletion(ctx, ids, e.AwaitBudget, func(snapshot tasks.Snapshot) {
				if task := tracker.byHandle(snapshot.ID); task != nil {
					e.materialize(task, snapshot, apply)
				}
			})
			for _, id := range report.Missing {
				if task := tracker.byHandle(id); task != nil {
					task.HandleID = ""
				}
			}
			for _, id := range append(report.TimedOut, report.Abandoned...) {
				e.Dispatcher.Revoke(ctx, id)
				if task := tracker.byHandle(id); task != nil {
					e.materialize(task, tasks.Snapshot{
						ID:        id,
						Status:    tasks.StatusRevoked,
						ErrorKind: "timeout",
						Error:     "not finished within the wait budget",
					}, apply)
				}
			}
		}
	}
	e.RunPending(ctx, tracker, apply)
}

// Cancel revokes every outstanding handle. The tasks stay unmaterialized and
// run inline at the next RunPending. It returns how many handles were dropped.
func (e *Env) Cancel(ctx context.Context, tracker *Tracker) int {
	count := 0
	for _, task := range tracker.Outstanding() {
		revoked := e.Dispatcher.Revoke(ctx, task.HandleID)
		e.logger(ctx).Info("tracked task cancelled",
			logging.String(logging.FieldAsyncTaskID, task.HandleID),
			logging.Bool("revoked", revoked),
		)
		task.HandleID = ""
		task.Status = tasks.StatusPending
		count++
	}
	return count
}

// RunPending runs inline every task that has neither a result nor a live
// handle.
func (e *Env) RunPending(ctx context.Context, tracker *Tracker, apply ApplyFunc) {
	for _, task := range tracker.Unmaterialized() {
		if task.HandleID != "" {
			continue
		}
		result, err := e.Dispatcher.RunInline(ctx, task.Operation, task.Args)
		if err != nil {
			e.materializeError(task, err, apply)
			continue
		}
		e.materialize(task, tasks.Snapshot{Status: tasks.StatusSuccess, Result: result}, apply)
	}
}

func (e *Env) materializeError(task *TrackedTask, err error, apply ApplyFunc) {
	e.materialize(task, tasks.Snapshot{
		Status:    tasks.StatusFailure,
		ErrorKind: services.Kind(err),
		Error:     userFacing(err),
	}, apply)
}

func (e *Env) materialize(task *TrackedTask, snapshot tasks.Snapshot, apply ApplyFunc) {
	if task.Materialized {
		return
	}
	task.Materialized = true
	task.Status = snapshot.Status
	task.Result = snapshot.Result
	task.ErrorKind = snapshot.ErrorKind
	task.Error = snapshot.Error
	if snapshot.Status == tasks.StatusRevoked && task.Error == "" {
		task.Error = "cancelled"
	}
	if apply != nil {
		apply(task)
	}
}
