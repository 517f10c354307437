package statestore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"docbot/internal/logging"
	"docbot/internal/services"
	"docbot/internal/statestore"
	"docbot/internal/testsupport"
)

func sampleRecord(taskID string) statestore.Record {
	return statestore.Record{
		TaskID:       taskID,
		TaskDir:      "/tmp/downloads/15550001/" + taskID,
		WorkflowType: "merge",
		Payload:      json.RawMessage(`{"files":["a.pdf"]}`),
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, store statestore.Store) {
	t.Helper()
	ctx := context.Background()
	sender := "15550001@s.whatsapp.net"

	if _, found, err := store.Load(ctx, sender); err != nil || found {
		t.Fatalf("expected absent state, got found=%v err=%v", found, err)
	}

	rec := sampleRecord("task-1")
	if err := store.Save(ctx, sender, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, found, err := store.Load(ctx, sender)
	if err != nil || !found {
		t.Fatalf("Load = found %v, err %v", found, err)
	}
	if loaded.TaskID != rec.TaskID || loaded.WorkflowType != "merge" || string(loaded.Payload) != `{"files":["a.pdf"]}` {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if !loaded.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created_at changed: %s", loaded.CreatedAt)
	}

	if err := store.Save(ctx, "other", sampleRecord("task-2")); err != nil {
		t.Fatalf("Save other failed: %v", err)
	}
	active, err := store.AllActive(ctx)
	if err != nil {
		t.Fatalf("AllActive failed: %v", err)
	}
	if len(active) != 2 || active[sender].TaskID != "task-1" || active["other"].TaskID != "task-2" {
		t.Fatalf("unexpected active set %v", active)
	}

	removed, err := store.Delete(ctx, sender)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	removed, err = store.Delete(ctx, sender)
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v", removed, err)
	}
	if !store.Health(ctx) {
		t.Fatal("expected healthy store")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, statestore.NewMemory(time.Hour))
}

func TestMemorySlidingExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := statestore.NewMemory(10*time.Minute, statestore.WithClock(clock))
	ctx := context.Background()

	if err := store.Save(ctx, "s", sampleRecord("t")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(8 * time.Minute)
	if _, found, _ := store.Load(ctx, "s"); !found {
		t.Fatal("state should still be alive")
	}
	now = now.Add(8 * time.Minute)
	if _, found, _ := store.Load(ctx, "s"); !found {
		t.Fatal("load should have refreshed the expiry")
	}
	now = now.Add(11 * time.Minute)
	if _, found, _ := store.Load(ctx, "s"); found {
		t.Fatal("state should have expired")
	}
	if active, _ := store.AllActive(ctx); len(active) != 0 {
		t.Fatalf("expired state listed: %v", active)
	}
}

func TestKeyLayout(t *testing.T) {
	if got := statestore.Key("docbot:", "1555"); got != "docbot:workflow:1555" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestKeyPatternEscapesGlobCharacters(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"docbot:", "docbot:workflow:*"},
		{"team*a:", `team\*a:workflow:*`},
		{"q?[x]:", `q\?\[x\]:workflow:*`},
		{`back\slash:`, `back\\slash:workflow:*`},
	}
	for _, tc := range tests {
		if got := statestore.KeyPattern(tc.prefix); got != tc.want {
			t.Errorf("KeyPattern(%q) = %q, want %q", tc.prefix, got, tc.want)
		}
	}
}

func TestOpenFallsBackToMemory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.State.Backend = "redis"
	cfg.State.RedisAddr = "127.0.0.1:1"
	cfg.State.TimeoutSeconds = 1

	store := statestore.Open(context.Background(), cfg, logging.NewNop())
	defer store.Close()
	if store.Backend() != "memory" {
		t.Fatalf("expected memory fallback, got %s", store.Backend())
	}
}

func TestRedisFailuresAreStateErrors(t *testing.T) {
	store := statestore.NewRedis(statestore.RedisOptions{Addr: "127.0.0.1:1", Prefix: "docbot:", TTL: time.Minute, Timeout: 200 * time.Millisecond})
	defer store.Close()

	err := store.Save(context.Background(), "s", sampleRecord("t"))
	var stateErr *services.StateManagementError
	if !errors.As(err, &stateErr) || stateErr.Op != "save" {
		t.Fatalf("expected StateManagementError, got %v", err)
	}
	if !errors.Is(err, services.ErrStateManagement) {
		t.Fatal("expected ErrStateManagement marker")
	}
	if store.Health(context.Background()) {
		t.Fatal("unreachable redis must report unhealthy")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DOCBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOCBOT_TEST_REDIS_ADDR not set")
	}
	run := strconv.FormatInt(time.Now().UnixNano(), 36)
	prefix := "docbot*test-" + run + ":"
	store := statestore.NewRedis(statestore.RedisOptions{
		Addr:    addr,
		Prefix:  prefix,
		TTL:     time.Minute,
		Timeout: time.Second,
	})
	defer store.Close()

	ctx := context.Background()
	raw := redis.NewClient(&redis.Options{Addr: addr})
	defer raw.Close()
	// Matches the prefix only when "*" is treated as a wildcard.
	intruder := "docbot-other-test-" + run + ":workflow:intruder"
	if err := raw.Set(ctx, intruder, `{"task_id":"x"}`, time.Minute).Err(); err != nil {
		t.Fatalf("seed unrelated key: %v", err)
	}
	defer raw.Del(ctx, intruder)

	exerciseStore(t, store)

	if err := raw.Set(ctx, statestore.Key(prefix, "corrupt"), "{not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	if _, _, err := store.Load(ctx, "corrupt"); !errors.Is(err, statestore.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
	active, err := store.AllActive(ctx)
	if err != nil {
		t.Fatalf("AllActive with a corrupt record: %v", err)
	}
	if _, listed := active["corrupt"]; listed || len(active) != 1 {
		t.Fatalf("unexpected active set %v", active)
	}
	_, _ = store.Delete(ctx, "corrupt")
	_, _ = store.Delete(ctx, "other")
}
