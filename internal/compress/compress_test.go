package compress_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docbot/internal/compress"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]compress.Level{
		"1":      compress.LevelLow,
		" 2 ":    compress.LevelMedium,
		"HIGH":   compress.LevelHigh,
		"4":      compress.LevelMax,
		"max":    compress.LevelMax,
		"auto":   compress.LevelAuto,
		"Medium": compress.LevelMedium,
	}
	for input, want := range tests {
		got, err := compress.ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseLevelListsOptions(t *testing.T) {
	_, err := compress.ParseLevel("5")
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	for _, fragment := range []string{"'5'", "1 (low)", "4 (max)", "auto"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestPresetTable(t *testing.T) {
	want := map[compress.Level]struct {
		dpi, quality int
		settings     string
	}{
		compress.LevelLow:    {150, 90, "/printer"},
		compress.LevelMedium: {120, 80, "/ebook"},
		compress.LevelHigh:   {96, 70, "/screen"},
		compress.LevelMax:    {72, 60, "/ebook"},
	}
	for level, w := range want {
		p, ok := compress.Lookup(level)
		if !ok {
			t.Fatalf("missing preset %s", level)
		}
		if p.DPI != w.dpi || p.JPEGQuality != w.quality || p.PDFSettings != w.settings {
			t.Fatalf("preset %s = %+v", level, p)
		}
	}
}

func TestAutoSelection(t *testing.T) {
	th := compress.DefaultThresholds()
	tests := []struct {
		size int64
		want compress.Level
	}{
		{100 << 10, compress.LevelLow},
		{1 << 20, compress.LevelMedium},
		{(5 << 20) - 1, compress.LevelMedium},
		{10 << 20, compress.LevelHigh},
		{50 << 20, compress.LevelMax},
	}
	for _, tc := range tests {
		if got := th.Resolve(compress.LevelAuto, tc.size).Level; got != tc.want {
			t.Fatalf("auto for %d bytes = %s, want %s", tc.size, got, tc.want)
		}
	}
	custom := compress.ThresholdsFromKB(10, 20, 30)
	if got := custom.Select(25 * 1024); got != compress.LevelHigh {
		t.Fatalf("custom thresholds selected %s", got)
	}
	if got := th.Resolve(compress.LevelLow, 50<<20).Level; got != compress.LevelLow {
		t.Fatalf("explicit level must win over auto, got %s", got)
	}
}

func TestFinishNeverReportsLargerOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	original := bytes.Repeat([]byte("a"), 1000)
	if err := os.WriteFile(input, original, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(output, bytes.Repeat([]byte("b"), 1500), 0o644); err != nil {
		t.Fatal(err)
	}
	outcome, err := compress.Finish(input, output)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if !outcome.UsedOriginal || outcome.CompressedSize != outcome.OriginalSize || outcome.Reduction != 0 {
		t.Fatalf("expected original fallback, got %+v", outcome)
	}
	data, _ := os.ReadFile(output)
	if !bytes.Equal(data, original) {
		t.Fatal("expected output to be replaced with original bytes")
	}
	if !strings.Contains(outcome.Summary(), "No size reduction") {
		t.Fatalf("unexpected summary %q", outcome.Summary())
	}

	if err := os.WriteFile(output, bytes.Repeat([]byte("c"), 250), 0o644); err != nil {
		t.Fatal(err)
	}
	outcome, err = compress.Finish(input, output)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if outcome.UsedOriginal || outcome.CompressedSize != 250 || outcome.Reduction != 75 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !strings.Contains(outcome.Summary(), "75.0% reduction") {
		t.Fatalf("unexpected summary %q", outcome.Summary())
	}

	if err := os.Remove(output); err != nil {
		t.Fatal(err)
	}
	outcome, err = compress.Finish(input, output)
	if err != nil || !outcome.UsedOriginal {
		t.Fatalf("missing output should fall back to original: %+v %v", outcome, err)
	}
}

func TestOptionsMessage(t *testing.T) {
	msg := compress.OptionsMessage(2 << 20)
	for _, fragment := range []string{"PDF received - Original size: 2.0 MiB", "1. low", "4. max", "(75% reduction)", "Reply with 1, 2, 3, or 4"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in options message:\n%s", fragment, msg)
		}
	}
}
