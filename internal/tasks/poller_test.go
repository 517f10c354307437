package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"docbot/internal/logging"
	"docbot/internal/tasks"
	"docbot/internal/testsupport"
)

func TestPollerUnavailableWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	poller := tasks.NewPoller(cfg, nil, logging.NewNop())
	if poller.Available() {
		t.Fatal("expected poller to be unavailable without a store")
	}
	called := false
	report := poller.AwaitCompletion(context.Background(), []string{"a"}, time.Second, func(tasks.Snapshot) { called = true })
	if called || len(report.Ready)+len(report.Abandoned)+len(report.TimedOut) != 0 {
		t.Fatalf("expected no-op await, got %+v", report)
	}
}

func TestPollerCheckStatusAndWait(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAsyncTasks())
	store := testsupport.MustOpenTaskStore(t, cfg)
	poller := tasks.NewPoller(cfg, store, logging.NewNop())
	ctx := context.Background()

	task, _ := store.Enqueue(ctx, "echo", nil)
	snapshot, err := poller.CheckStatus(ctx, task.ID)
	if err != nil || snapshot.Status != tasks.StatusPending || snapshot.Ready() {
		t.Fatalf("CheckStatus = %+v, %v", snapshot, err)
	}

	if _, err := poller.Wait(ctx, task.ID, 30*time.Millisecond); !errors.Is(err, tasks.ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}

	_, _ = store.Claim(ctx, "w")
	_, _ = store.Complete(ctx, task.ID, "w", json.RawMessage(`"ok"`))
	snapshot, err = poller.Wait(ctx, task.ID, time.Second)
	if err != nil || snapshot.Status != tasks.StatusSuccess || string(snapshot.Result) != `"ok"` {
		t.Fatalf("Wait = %+v, %v", snapshot, err)
	}
}

func TestAwaitCompletionRespectsGlobalBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAsyncTasks())
	store := testsupport.MustOpenTaskStore(t, cfg)
	poller := tasks.NewPoller(cfg, store, logging.NewNop())
	ctx := context.Background()

	finished, _ := store.Enqueue(ctx, "echo", nil)
	_, _ = store.Claim(ctx, "w")
	_, _ = store.Complete(ctx, finished.ID, "w", json.RawMessage(`1`))
	slowA, _ := store.Enqueue(ctx, "echo", nil)
	slowB, _ := store.Enqueue(ctx, "echo", nil)

	applied := map[string]int{}
	start := time.Now()
	report := poller.AwaitCompletion(ctx, []string{finished.ID, slowA.ID, slowB.ID, "missing"}, 150*time.Millisecond, func(s tasks.Snapshot) {
		applied[s.ID]++
	})
	elapsed := time.Since(start)

	if applied[finished.ID] != 1 || len(applied) != 1 {
		t.Fatalf("expected only the finished task to be applied once, got %v", applied)
	}
	if len(report.Ready) != 1 || report.Ready[0] != finished.ID {
		t.Fatalf("unexpected ready list %v", report.Ready)
	}
	if len(report.TimedOut) == 0 {
		t.Fatalf("expected at least one timed out handle, got %+v", report)
	}
	if len(report.Ready)+len(report.TimedOut)+len(report.Abandoned)+len(report.Missing) != 4 {
		t.Fatalf("every handle must be accounted for: %+v", report)
	}
	if elapsed > time.Second {
		t.Fatalf("await exceeded its budget: %s", elapsed)
	}
}
