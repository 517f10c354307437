package testsupport

import (
	"database/sql"
	"testing"

	"docbot/internal/config"
	"docbot/internal/tasks"
)

// MustOpenTaskStore opens a tasks.Store for tests and registers cleanup.
func MustOpenTaskStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// WriteStaleTaskSchema creates the task database for cfg and stamps it with a
// schema version no release uses.
func WriteStaleTaskSchema(t testing.TB, cfg *config.Config) {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.Tasks.DBPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("UPDATE schema_version SET version = 999"); err != nil {
		t.Fatalf("stamp schema version: %v", err)
	}
}
