package archive_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docbot/internal/archive"
	"docbot/internal/logging"
)

type recordingMirror struct {
	keys []string
	err  error
}

func (m *recordingMirror) Upload(_ context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	return m.err
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestArchiveMovesInputsAndDeliveredOutputs(t *testing.T) {
	base := t.TempDir()
	taskDir := filepath.Join(base, "15550001", "task-1")
	writeFile(t, filepath.Join(taskDir, "MSG1.pdf"))
	writeFile(t, filepath.Join(taskDir, "MSG2.pdf"))
	writeFile(t, filepath.Join(taskDir, "Merged_pdf.pdf"))
	writeFile(t, filepath.Join(taskDir, "unsent.pdf"))

	mirror := &recordingMirror{}
	result := archive.New(mirror, logging.NewNop()).Archive(context.Background(), taskDir,
		[]string{"MSG1.pdf", "MSG2.pdf", "missing.pdf"},
		[]archive.Delivered{
			{Path: filepath.Join(taskDir, "Merged_pdf.pdf"), SentID: "SENT9"},
			{Path: filepath.Join(taskDir, "unsent.pdf")},
		},
	)

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	media := filepath.Join(base, "15550001", archive.MediaDirName)
	for _, name := range []string{"MSG1.pdf", "MSG2.pdf", "SENT9.pdf"} {
		if _, err := os.Stat(filepath.Join(media, name)); err != nil {
			t.Fatalf("expected %s archived: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(media, "unsent.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("outputs without a sent id must not be archived")
	}
	if _, err := os.Stat(taskDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("task directory should be removed")
	}
	if len(mirror.keys) != 1 || mirror.keys[0] != "15550001/SENT9.pdf" {
		t.Fatalf("unexpected mirror keys %v", mirror.keys)
	}
	if len(result.Moved) != 3 {
		t.Fatalf("expected 3 moved files, got %v", result.Moved)
	}
}

func TestArchivePrefixesCollidingInputs(t *testing.T) {
	base := t.TempDir()
	archiver := archive.New(nil, logging.NewNop())
	for _, id := range []string{"task-1", "task-2"} {
		taskDir := filepath.Join(base, "s", id)
		writeFile(t, filepath.Join(taskDir, "notes.md"))
		if result := archiver.Archive(context.Background(), taskDir, []string{"notes.md"}, nil); len(result.Errors) != 0 {
			t.Fatalf("unexpected errors %v", result.Errors)
		}
	}
	media := filepath.Join(base, "s", archive.MediaDirName)
	for _, name := range []string{"notes.md", "task-2_notes.md"} {
		if _, err := os.Stat(filepath.Join(media, name)); err != nil {
			t.Fatalf("expected %s archived: %v", name, err)
		}
	}
}

func TestArchiveCollectsMirrorFailures(t *testing.T) {
	base := t.TempDir()
	taskDir := filepath.Join(base, "s", "t")
	writeFile(t, filepath.Join(taskDir, "out.pdf"))

	mirror := &recordingMirror{err: errors.New("forbidden")}
	result := archive.New(mirror, logging.NewNop()).Archive(context.Background(), taskDir, nil,
		[]archive.Delivered{{Path: filepath.Join(taskDir, "out.pdf"), SentID: "X"}})
	if len(result.Errors) != 1 || len(result.Mirrored) != 0 {
		t.Fatalf("expected one mirror error, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(base, "s", archive.MediaDirName, "X.pdf")); err != nil {
		t.Fatal("local archive must survive mirror failures")
	}
}

func TestCleanStaleSkipsActiveAndMedia(t *testing.T) {
	base := t.TempDir()
	old := time.Now().Add(-3 * time.Hour)
	paths := map[string]string{
		"stale":  filepath.Join(base, "s1", "stale-task"),
		"active": filepath.Join(base, "s1", "active-task"),
		"fresh":  filepath.Join(base, "s2", "fresh-task"),
		"media":  filepath.Join(base, "s1", archive.MediaDirName),
	}
	for key, path := range paths {
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatal(err)
		}
		if key != "fresh" {
			if err := os.Chtimes(path, old, old); err != nil {
				t.Fatal(err)
			}
		}
	}

	active := map[string]struct{}{paths["active"]: {}}
	result := archive.CleanStale(context.Background(), base, time.Hour, active, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != paths["stale"] {
		t.Fatalf("unexpected removals %v", result.Removed)
	}
	for _, key := range []string{"active", "fresh", "media"} {
		if _, err := os.Stat(paths[key]); err != nil {
			t.Fatalf("%s directory should survive: %v", key, err)
		}
	}
}

func TestCleanStaleMissingBaseDir(t *testing.T) {
	result := archive.CleanStale(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Hour, nil, logging.NewNop())
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
