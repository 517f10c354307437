package deps

import (
	"os"
	"path/filepath"
	"testing"

	"docbot/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tools.XvfbRun = ""
	cfg.Tools.MarkdownBackends = []string{"pandoc", "unknown"}

	reqs := Requirements(cfg)
	names := make(map[string]Requirement, len(reqs))
	for _, req := range reqs {
		names[req.Name] = req
	}
	for _, want := range []string{"Ghostscript", "LibreOffice", "Scanner", "Markdown (pandoc)"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing requirement %s in %v", want, reqs)
		}
	}
	if _, ok := names["xvfb-run"]; ok {
		t.Fatal("xvfb-run should be skipped when not configured")
	}
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requirements, got %d", len(reqs))
	}
	if !names["Markdown (pandoc)"].Optional {
		t.Fatal("markdown backends are optional individually")
	}
}

func TestMarkdownAvailable(t *testing.T) {
	statuses := []Status{
		{Name: "Ghostscript", Available: true},
		{Name: "Markdown (pandoc)", Available: false},
	}
	if MarkdownAvailable(statuses) {
		t.Fatal("no markdown backend resolved")
	}
	statuses = append(statuses, Status{Name: "Markdown (md2pdf)", Available: true})
	if !MarkdownAvailable(statuses) {
		t.Fatal("md2pdf resolved")
	}
}
