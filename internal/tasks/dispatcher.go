package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docbot/internal/config"
	"docbot/internal/logging"
)

// Submission is the outcome of Dispatcher.Submit: either a Handle for work
// running in the background or the Result of an inline execution.
type Submission struct {
	Handle *Handle
	Result json.RawMessage
}

// ID returns the background task id, or "" when the operation ran inline.
func (s Submission) ID() string {
	if s.Handle == nil {
		return ""
	}
	return s.Handle.ID
}

// Async reports whether the submission is running in the background.
func (s Submission) Async() bool {
	return s.Handle != nil
}

// Decode unmarshals an inline result into v.
func (s Submission) Decode(v any) error {
	if s.Handle != nil {
		return errors.New("submission is asynchronous; no inline result")
	}
	if len(s.Result) == 0 {
		return errors.New("submission has no result")
	}
	return json.Unmarshal(s.Result, v)
}

// Dispatcher routes operations to background workers when any are alive and
// runs them inline otherwise.
type Dispatcher struct {
	store         *Store
	registry      *Registry
	enabled       bool
	probeTTL      time.Duration
	workerTimeout time.Duration
	pollInterval  time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	probedAt time.Time
	probeOK  bool
}

// NewDispatcher constructs a dispatcher. store may be nil, in which case every
// operation runs inline.
func NewDispatcher(cfg *config.Config, store *Store, registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:         store,
		registry:      registry,
		enabled:       cfg.Tasks.AsyncEnabled && store != nil,
		probeTTL:      time.Duration(cfg.Tasks.ProbeCacheSeconds) * time.Second,
		workerTimeout: time.Duration(cfg.Tasks.WorkerTimeoutSeconds) * time.Second,
		pollInterval:  time.Duration(cfg.Tasks.PollIntervalMillis) * time.Millisecond,
		logger:        logging.NewComponentLogger(logger, "dispatcher"),
		now:           time.Now,
	}
}

// Registry exposes the operation table used for inline execution.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// WorkersAvailable probes the task database for live worker heartbeats. The
// answer is cached for the configured probe interval.
func (d *Dispatcher) WorkersAvailable(ctx context.Context) bool {
	if d == nil || !d.enabled {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.probedAt.IsZero() && now.Sub(d.probedAt) < d.probeTTL {
		return d.probeOK
	}
	count, err := d.store.LiveWorkers(ctx, now.Add(-d.workerTimeout))
	d.probedAt = now
	d.probeOK = err == nil && count > 0
	if err != nil {
		logging.WarnWithContext(d.logger, "worker probe failed", "worker_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the task database path and permissions"),
			logging.String(logging.FieldImpact, "operations run inline until the probe succeeds"),
		)
	}
	return d.probeOK
}

// Invalidate drops the cached probe result.
func (d *Dispatcher) Invalidate() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.probedAt = time.Time{}
	d.mu.Unlock()
}

// Submit enqueues op for a background worker when one is alive, otherwise runs
// it inline. A failed enqueue also falls back to inline execution.
func (d *Dispatcher) Submit(ctx context.Context, op string, args any) (Submission, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Submission{}, fmt.Errorf("encode %s arguments: %w", op, err)
	}
	if !d.registry.Has(op) {
		return Submission{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	if d.WorkersAvailable(ctx) {
		task, enqueueErr := d.store.Enqueue(ctx, op, raw)
		if enqueueErr == nil {
			logging.WithContext(ctx, d.logger).Debug("operation enqueued",
				logging.String(logging.FieldOperation, op),
				logging.String(logging.FieldAsyncTaskID, task.ID),
			)
			return Submission{Handle: &Handle{ID: task.ID, store: d.store, interval: d.pollInterval}}, nil
		}
		d.Invalidate()
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "enqueue failed; running inline", "enqueue_failed",
			logging.String(logging.FieldOperation, op),
			logging.Error(enqueueErr),
			logging.String(logging.FieldImpact, "operation blocks this message turn"),
		)
	}

	result, err := d.run(ctx, op, raw)
	if err != nil {
		return Submission{}, err
	}
	return Submission{Result: result}, nil
}

// RunInline executes op synchronously regardless of worker availability.
func (d *Dispatcher) RunInline(ctx context.Context, op string, args any) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", op, err)
	}
	return d.run(ctx, op, raw)
}

func (d *Dispatcher) run(ctx context.Context, op string, raw json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	result, err := d.registry.Run(ctx, op, raw)
	logging.WithContext(ctx, d.logger).Debug("operation ran inline",
		logging.String(logging.FieldOperation, op),
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("ok", err == nil),
	)
	return result, err
}

// Revoke asks the substrate to drop an outstanding task. Revocation is
// advisory: false means the task had already finished or could not be reached.
func (d *Dispatcher) Revoke(ctx context.Context, id string) bool {
	if d == nil || d.store == nil || id == "" {
		return false
	}
	revoked, err := d.store.Revoke(ctx, id)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "revoke failed", "task_revoke_failed",
			logging.String(logging.FieldAsyncTaskID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a worker may still finish the abandoned task"),
		)
		return false
	}
	return revoked
}

// Handle is a reference to an enqueued task.
type Handle struct {
	ID       string
	store    *Store
	interval time.Duration
}

// Status returns the current task status.
func (h *Handle) Status(ctx context.Context) (Status, error) {
	task, err := h.store.Get(ctx, h.ID)
	if err != nil {
		return "", err
	}
	return task.Status, nil
}

// Get waits up to timeout for the task to finish and returns its result.
func (h *Handle) Get(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	snapshot, err := waitFor(ctx, h.store, h.ID, timeout, h.interval)
	if err != nil {
		return nil, err
	}
	if failure := SnapshotError(snapshot); failure != nil {
		return nil, failure
	}
	return snapshot.Result, nil
}
