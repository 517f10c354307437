package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docbot/internal/logging"
	"docbot/internal/services"
	"docbot/internal/statestore"
	"docbot/internal/transport"
	"docbot/internal/workflow"
)

// remoteStore wraps a Memory store and reports itself as Redis. Senders in
// corrupt load like undecodable records; failLoads makes the next loads fail
// while the backend stays healthy.
type remoteStore struct {
	*statestore.Memory

	mu        sync.Mutex
	corrupt   map[string]bool
	failLoads int
	closed    bool
}

func newRemoteStore() *remoteStore {
	return &remoteStore{Memory: statestore.NewMemory(time.Hour), corrupt: map[string]bool{}}
}

func (s *remoteStore) Load(ctx context.Context, sender string) (statestore.Record, bool, error) {
	s.mu.Lock()
	corrupt := s.corrupt[sender]
	fail := s.failLoads > 0
	if fail {
		s.failLoads--
	}
	s.mu.Unlock()
	switch {
	case fail:
		return statestore.Record{}, false, &services.StateManagementError{Op: "load", Key: sender, Err: errors.New("i/o timeout")}
	case corrupt:
		return statestore.Record{}, false, &services.StateManagementError{
			Op:  "load",
			Key: sender,
			Err: fmt.Errorf("%w: invalid character 'n'", statestore.ErrCorruptRecord),
		}
	}
	return s.Memory.Load(ctx, sender)
}

func (s *remoteStore) Delete(ctx context.Context, sender string) (bool, error) {
	s.mu.Lock()
	delete(s.corrupt, sender)
	s.mu.Unlock()
	return s.Memory.Delete(ctx, sender)
}

func (s *remoteStore) Backend() string { return "redis" }

func (s *remoteStore) Close() error {
	s.closed = true
	return nil
}

func TestCorruptRecordOnlyResetsItsSender(t *testing.T) {
	h := newHarness(t, false)
	store := newRemoteStore()
	notifier := &recordingNotifier{}
	manager := workflow.NewManager(h.cfg, workflow.DefaultRegistry(), store, h.client, h.env, logging.NewNop(),
		workflow.WithNotifier(notifier))
	ctx := context.Background()

	manager.HandleMessage(ctx, transport.Message{Sender: sender, ID: "1", Text: "merge pdf"})
	const other = "15550002@s.whatsapp.net"
	store.corrupt[other] = true
	manager.HandleMessage(ctx, transport.Message{Sender: other, ID: "2", Text: "split pdf"})

	if store.closed || len(notifier.degraded) != 0 {
		t.Fatal("an unreadable record must not degrade the store")
	}
	if backend, _ := manager.StoreStatus(ctx); backend != "redis" {
		t.Fatalf("backend = %s, want redis", backend)
	}
	sessions, err := manager.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if sessions[sender].WorkflowType != "merge" {
		t.Fatalf("healthy session lost: %v", sessions)
	}
	if sessions[other].WorkflowType != "split" {
		t.Fatalf("sender with the corrupt record should start fresh: %v", sessions)
	}
	if store.corrupt[other] {
		t.Fatal("corrupt record should be deleted")
	}
}

func TestHealthyBackendErrorDoesNotDegrade(t *testing.T) {
	h := newHarness(t, false)
	store := newRemoteStore()
	manager := workflow.NewManager(h.cfg, workflow.DefaultRegistry(), store, h.client, h.env, logging.NewNop())
	ctx := context.Background()

	manager.HandleMessage(ctx, transport.Message{Sender: sender, ID: "1", Text: "merge pdf"})
	store.failLoads = 1
	manager.HandleMessage(ctx, transport.Message{Sender: sender, ID: "2", Text: "done"})

	if got := h.lastText(t); got != workflow.GenericErrorMessage {
		t.Fatalf("unexpected reply %q", got)
	}
	if backend, _ := manager.StoreStatus(ctx); backend != "redis" || store.closed {
		t.Fatalf("backend = %s closed = %v; a transient error must not degrade", backend, store.closed)
	}
	if sessions, _ := manager.ActiveSessions(ctx); len(sessions) != 1 {
		t.Fatalf("session lost: %v", sessions)
	}
}

type blockingWorkflow struct {
	workflow.Workflow
	entered chan<- struct{}
	release <-chan struct{}
}

func (blockingWorkflow) Kind() workflow.Kind { return "slow" }
func (blockingWorkflow) Payload() any        { return struct{}{} }
func (blockingWorkflow) Inputs() []string    { return nil }

func (blockingWorkflow) HandleCommand(context.Context, workflow.Command) (bool, string, error) {
	return true, "", nil
}

func (w blockingWorkflow) Finalize(context.Context) ([]workflow.Output, error) {
	w.entered <- struct{}{}
	<-w.release
	return nil, nil
}

func TestStatusReadsDoNotWaitForFinalize(t *testing.T) {
	h := newHarness(t, false)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	build := func() workflow.Workflow {
		return blockingWorkflow{entered: entered, release: release}
	}
	registry, err := workflow.NewRegistry(workflow.Definition{
		Kind:         "slow",
		StartCommand: "slow job",
		Instructions: "ready",
		Start:        func(workflow.Base, *workflow.Env) workflow.Workflow { return build() },
		Restore: func(workflow.Base, *workflow.Env, json.RawMessage) (workflow.Workflow, error) {
			return build(), nil
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	manager := workflow.NewManager(h.cfg, registry, h.store, h.client, h.env, logging.NewNop())
	ctx := context.Background()
	manager.HandleMessage(ctx, transport.Message{Sender: sender, ID: "1", Text: "slow job"})

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		manager.HandleMessage(ctx, transport.Message{Sender: sender, ID: "2", Text: "done"})
	}()
	<-entered

	reads := make(chan string, 1)
	go func() {
		backend, _ := manager.StoreStatus(ctx)
		sessions, _ := manager.ActiveSessions(ctx)
		reads <- fmt.Sprintf("%s/%d", backend, len(sessions))
	}()
	select {
	case got := <-reads:
		if !strings.HasPrefix(got, "memory/") {
			t.Fatalf("unexpected status %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status reads blocked behind a running finalize")
	}

	close(release)
	<-finished
}
