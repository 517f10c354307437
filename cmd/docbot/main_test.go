package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docbot/internal/tasks"
	"docbot/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "gateway-secret") {
		t.Fatalf("api key leaked: %s", out)
	}
	requireContains(t, out, redacted)

	out, _, err = runCLI(t, []string{"config", "show", "--reveal"}, env.configPath)
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "gateway-secret")
}

func TestWorkflowsListsStartCommands(t *testing.T) {
	out, _, err := runCLI(t, []string{"workflows"}, "")
	if err != nil {
		t.Fatalf("workflows: %v", err)
	}
	for _, command := range []string{"merge pdf", "split pdf", "scan document", "compress pdf", "markdown to pdf"} {
		requireContains(t, out, command)
	}

	out, _, err = runCLI(t, []string{"workflows", "--json"}, "")
	if err != nil {
		t.Fatalf("workflows --json: %v", err)
	}
	var entries []map[string]string
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode workflows json: %v", err)
	}
	if len(entries) != 8 {
		t.Fatalf("expected 8 workflows, got %d", len(entries))
	}
}

func TestDoctorPassesWithStubbedConverters(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Ghostscript")
	requireContains(t, out, "Download directory")
	requireContains(t, out, "not configured; replies are only logged")
}

func TestDoctorReportsMissingConverter(t *testing.T) {
	env := setupCLITestEnv(t)
	content, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	content = append(content, []byte("\n[tools]\nghostscript = \"definitely-missing-gs\"\n")...)
	if err := os.WriteFile(env.configPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatalf("expected doctor to fail; output:\n%s", out)
	}
	requireContains(t, out, "[ERROR]")
}

func TestStateCommandsRequireRedis(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"state", "list"}, env.configPath); err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("expected memory backend error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"state", "clear"}, env.configPath); err == nil {
		t.Fatal("expected clear without senders to fail")
	}
}

func TestTasksCommands(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAsyncTasks())
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	store := testsupport.MustOpenTaskStore(t, env.cfg)
	ctx := context.Background()
	task, err := store.Enqueue(ctx, "compress_pdf", json.RawMessage(`{"input":"a.pdf"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Revoke(ctx, task.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	out, _, err := runCLI(t, []string{"tasks", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	requireContains(t, out, "compress_pdf")
	requireContains(t, out, string(tasks.StatusRevoked))

	out, _, err = runCLI(t, []string{"tasks", "show", task.ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("tasks show: %v", err)
	}
	requireContains(t, out, task.ID)

	if _, _, err := runCLI(t, []string{"tasks", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, []string{"tasks", "purge", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("tasks purge: %v", err)
	}
	requireContains(t, out, "Removed 1 task(s)")

	out, _, err = runCLI(t, []string{"tasks", "workers"}, env.configPath)
	if err != nil {
		t.Fatalf("tasks workers: %v", err)
	}
	requireContains(t, out, "No workers registered")
}

func TestTasksPurgeAllRecreatesStaleSchema(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAsyncTasks())
	testsupport.WriteStaleTaskSchema(t, env.cfg)

	_, _, err := runCLI(t, []string{"tasks", "list"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "docbot tasks purge --all") {
		t.Fatalf("expected schema mismatch naming the purge command, got %v", err)
	}

	out, _, err := runCLI(t, []string{"tasks", "purge", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("tasks purge --all: %v", err)
	}
	requireContains(t, out, "recreated it empty")

	out, _, err = runCLI(t, []string{"tasks", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("tasks list after recreate: %v", err)
	}
	requireContains(t, out, "No tasks")
}
