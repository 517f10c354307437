package workflow_test

import (
	"context"
	"testing"

	"docbot/internal/operations"
	"docbot/internal/tasks"
	"docbot/internal/workflow"
)

func countingApply(calls *int) workflow.ApplyFunc {
	return func(*workflow.TrackedTask) { *calls++ }
}

func TestRunMaterializesInlineWithoutSubstrate(t *testing.T) {
	h := newHarness(t, false)
	var tracker workflow.Tracker
	var applied int

	task, err := h.env.Run(context.Background(), &tracker, "k", operations.PageCount, operations.PageCountArgs{Input: "x.pdf"}, countingApply(&applied))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if task.HandleID != "" || !task.Succeeded() || applied != 1 {
		t.Fatalf("expected an inline success, got %+v (applied %d)", task, applied)
	}
	var result operations.PageCountResult
	if err := task.Decode(&result); err != nil || result.Pages != 30 {
		t.Fatalf("Decode = %+v, %v", result, err)
	}
}

func TestRefreshAppliesResultsOnce(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	var tracker workflow.Tracker
	var applied int
	apply := countingApply(&applied)

	task, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{Input: "x.pdf"}, apply)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !task.Outstanding() {
		t.Fatal("expected a background task")
	}
	h.drain(t)

	h.env.Refresh(ctx, &tracker, apply)
	h.env.Refresh(ctx, &tracker, apply)
	h.env.Await(ctx, &tracker, apply)
	if applied != 1 {
		t.Fatalf("result applied %d times", applied)
	}
	if tracker.StatusChecks != 2 {
		t.Fatalf("StatusChecks = %d, want 2", tracker.StatusChecks)
	}
	if complete, pending, failed := tracker.Counts(); complete != 1 || pending != 0 || failed != 0 {
		t.Fatalf("Counts = %d/%d/%d", complete, pending, failed)
	}
}

func TestCancelledWorkRunsInlineAtAwait(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	var tracker workflow.Tracker
	var applied int
	apply := countingApply(&applied)

	task, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{}, apply)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	handle := task.HandleID
	if n := h.env.Cancel(ctx, &tracker); n != 1 {
		t.Fatalf("Cancel = %d, want 1", n)
	}
	h.env.Await(ctx, &tracker, apply)
	if applied != 1 || !task.Succeeded() {
		t.Fatalf("expected inline rerun, task %+v applied %d", task, applied)
	}
	stored, err := h.tasks.Get(ctx, handle)
	if err != nil || stored.Status != tasks.StatusRevoked {
		t.Fatalf("background task should be revoked, got %+v (%v)", stored, err)
	}
	h.drain(t)
	if h.counter.count(operations.PageCount) != 1 {
		t.Fatalf("operation ran %d times", h.counter.count(operations.PageCount))
	}
}

func TestStatusCheckLimitFallsBackToInline(t *testing.T) {
	h := newHarness(t, true)
	h.env.MaxStatusChecks = 2
	ctx := context.Background()
	var tracker workflow.Tracker
	var applied int
	apply := countingApply(&applied)

	task, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{}, apply)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	h.env.Refresh(ctx, &tracker, apply)
	if !task.Outstanding() {
		t.Fatal("one check must not exhaust the limit")
	}
	h.env.Refresh(ctx, &tracker, apply)
	if !task.Succeeded() || applied != 1 {
		t.Fatalf("expected inline completion after the limit, got %+v", task)
	}
}

func TestMissingTaskRowsRunInline(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	var tracker workflow.Tracker
	var applied int
	apply := countingApply(&applied)

	task, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{}, apply)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := h.tasks.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	h.env.Refresh(ctx, &tracker, apply)
	if task.HandleID != "" || task.Materialized {
		t.Fatalf("missing task should be detached, got %+v", task)
	}
	h.env.RunPending(ctx, &tracker, apply)
	if !task.Succeeded() || applied != 1 {
		t.Fatalf("expected inline completion, got %+v", task)
	}
}

func TestRunReplacesPreviousTaskForKey(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	var tracker workflow.Tracker

	first, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := h.env.Run(ctx, &tracker, "k", operations.PageCount, operations.PageCountArgs{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tracker.Tasks) != 1 || tracker.Get("k") != second {
		t.Fatalf("expected a single tracked task, got %d", len(tracker.Tasks))
	}
	stored, err := h.tasks.Get(ctx, first.HandleID)
	if err != nil || stored.Status != tasks.StatusRevoked {
		t.Fatalf("superseded task should be revoked, got %+v (%v)", stored, err)
	}
}
