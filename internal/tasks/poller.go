package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"docbot/internal/config"
	"docbot/internal/logging"
)

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
}

// Ready reports whether the task reached a terminal status.
func (s Snapshot) Ready() bool {
	return s.Status.Ready()
}

// AwaitReport lists how each handle ended up after AwaitCompletion.
type AwaitReport struct {
	Ready     []string
	TimedOut  []string
	Abandoned []string
	Missing   []string
}

// Poller checks and waits on task handles.
type Poller struct {
	store    *Store
	enabled  bool
	interval time.Duration
	wait     time.Duration
	logger   *slog.Logger
}

// NewPoller constructs a poller; a nil store yields an unavailable poller.
func NewPoller(cfg *config.Config, store *Store, logger *slog.Logger) *Poller {
	return &Poller{
		store:    store,
		enabled:  cfg.Tasks.AsyncEnabled && store != nil,
		interval: time.Duration(cfg.Tasks.PollIntervalMillis) * time.Millisecond,
		wait:     time.Duration(cfg.Tasks.WaitSeconds) * time.Second,
		logger:   logging.NewComponentLogger(logger, "poller"),
	}
}

// Available reports whether handles can be inspected at all.
func (p *Poller) Available() bool {
	return p != nil && p.enabled && p.store != nil
}

// CheckStatus returns the current snapshot for id.
func (p *Poller) CheckStatus(ctx context.Context, id string) (Snapshot, error) {
	if !p.Available() {
		return Snapshot{}, errors.New("task substrate unavailable")
	}
	task, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return task.Snapshot(), nil
}

// Wait blocks until id finishes or timeout elapses (ErrWaitTimeout).
func (p *Poller) Wait(ctx context.Context, id string, timeout time.Duration) (Snapshot, error) {
	if !p.Available() {
		return Snapshot{}, errors.New("task substrate unavailable")
	}
	return waitFor(ctx, p.store, id, timeout, p.interval)
}

// AwaitCompletion waits on each handle in turn with a short per-handle wait,
// calling apply for every handle that finishes. The overall wait is capped at
// budget; handles not reached before the budget runs out are abandoned. When
// the substrate is unavailable nothing is awaited.
func (p *Poller) AwaitCompletion(ctx context.Context, ids []string, budget time.Duration, apply func(Snapshot)) AwaitReport {
	var report AwaitReport
	if !p.Available() || len(ids) == 0 {
		return report
	}
	logger := logging.WithContext(ctx, p.logger)
	deadline := time.Now().Add(budget)

	for i, id := range ids {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			report.Abandoned = append(report.Abandoned, ids[i:]...)
			break
		}
		wait := p.wait
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		snapshot, err := waitFor(ctx, p.store, id, wait, p.interval)
		switch {
		case err == nil:
			report.Ready = append(report.Ready, id)
			if apply != nil {
				apply(snapshot)
			}
		case errors.Is(err, ErrTaskNotFound):
			report.Missing = append(report.Missing, id)
			logger.Warn("awaited task missing from task database",
				logging.String(logging.FieldAsyncTaskID, id),
				logging.String(logging.FieldEventType, "task_missing"),
				logging.String(logging.FieldErrorHint, "task rows may have been purged"),
				logging.String(logging.FieldImpact, "the item is re-run synchronously"),
			)
		default:
			report.TimedOut = append(report.TimedOut, id)
			logger.Info("task still running after wait",
				logging.String(logging.FieldAsyncTaskID, id),
				logging.Duration("waited", wait),
			)
		}
	}

	if len(report.Abandoned) > 0 {
		logging.WarnWithContext(logger, "await budget exhausted", "await_budget_exhausted",
			logging.Int("abandoned", len(report.Abandoned)),
			logging.Duration("budget", budget),
			logging.String(logging.FieldErrorHint, "raise tasks.await_budget_seconds or add workers"),
			logging.String(logging.FieldImpact, "abandoned items are missing from the delivered results"),
		)
	}
	return report
}

func waitFor(ctx context.Context, store *Store, id string, timeout, interval time.Duration) (Snapshot, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		task, err := store.Get(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		if task.Status.Ready() {
			return task.Snapshot(), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return task.Snapshot(), ErrWaitTimeout
		}
		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return task.Snapshot(), ctx.Err()
		case <-time.After(sleep):
		}
	}
}
