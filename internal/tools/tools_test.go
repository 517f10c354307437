package tools_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docbot/internal/compress"
	"docbot/internal/logging"
	"docbot/internal/pdfrange"
	"docbot/internal/services"
	"docbot/internal/tools"
)

type fakeExecutor struct {
	calls []tools.Command
	run   func(cmd tools.Command) (tools.Output, error)
}

func (f *fakeExecutor) Run(_ context.Context, cmd tools.Command) (tools.Output, error) {
	f.calls = append(f.calls, cmd)
	if f.run == nil {
		return tools.Output{}, nil
	}
	return f.run(cmd)
}

func TestRunnerClassifiesFailures(t *testing.T) {
	tests := []struct {
		name  string
		out   tools.Output
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "missing binary",
			err:  &services.ToolNotFoundError{Name: "gs"},
			check: func(t *testing.T, err error) {
				var nf *services.ToolNotFoundError
				if !errors.As(err, &nf) || nf.Name != "gs" {
					t.Fatalf("expected ToolNotFoundError, got %v", err)
				}
			},
		},
		{
			name: "known stderr pattern",
			out:  tools.Output{ExitCode: 1, Stderr: "GPL Ghostscript\nError: /invalidfont in findfont\n"},
			check: func(t *testing.T, err error) {
				var toolErr *services.ExternalToolError
				if !errors.As(err, &toolErr) {
					t.Fatalf("expected ExternalToolError, got %v", err)
				}
				if toolErr.Tool != services.ToolGhostscript || toolErr.ExitCode != 1 {
					t.Fatalf("unexpected tool error %+v", toolErr)
				}
				if toolErr.Message != "Ghostscript error: Invalid font error in document" {
					t.Fatalf("unexpected message %q", toolErr.Message)
				}
				if services.Retryable(err) {
					t.Fatal("tool failures must not be retried")
				}
			},
		},
		{
			name: "unknown stderr",
			out:  tools.Output{ExitCode: 2},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "Unknown error") {
					t.Fatalf("expected unknown error detail, got %v", err)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{run: func(tools.Command) (tools.Output, error) { return tc.out, tc.err }}
			runner := tools.NewRunner(services.ToolGhostscript, exec, time.Second, logging.NewNop())
			_, err := runner.Run(context.Background(), tools.Command{Binary: "gs"})
			if err == nil {
				t.Fatal("expected error")
			}
			tc.check(t, err)
		})
	}
}

func TestRunnerTimeoutIsRetryable(t *testing.T) {
	exec := &fakeExecutor{run: func(tools.Command) (tools.Output, error) {
		time.Sleep(30 * time.Millisecond)
		return tools.Output{ExitCode: -1}, errors.New("signal: killed")
	}}
	runner := tools.NewRunner(services.ToolLibreOffice, exec, 10*time.Millisecond, logging.NewNop())
	_, err := runner.Run(context.Background(), tools.Command{Binary: "soffice"})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("timeouts should be retryable")
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		tool   services.ToolKind
		stderr string
		want   string
	}{
		{services.ToolLibreOffice, "Error: source file could not be loaded", "Source file could not be loaded"},
		{services.ToolScanner, "Traceback...\nFileNotFoundError: x", "Scanner could not find the required file"},
		{services.ToolMarkdown, "Error: Could not find data file templates/default.latex", "Could not find required template or data file"},
		{services.ToolGeneric, "warming up\nfatal error: disk full\n", "fatal error: disk full"},
		{services.ToolGhostscript, "   ", ""},
	}
	for _, tc := range tests {
		if got := tools.Diagnose(tc.tool, tc.stderr); got != tc.want {
			t.Errorf("Diagnose(%s, %q) = %q, want %q", tc.tool, tc.stderr, got, tc.want)
		}
	}
}

func TestCompressArgsUsePreset(t *testing.T) {
	preset, _ := compress.Lookup(compress.LevelHigh)
	args := strings.Join(tools.CompressArgs("in.pdf", "out.pdf", preset), " ")
	for _, want := range []string{"-dPDFSETTINGS=/screen", "-dColorImageResolution=96", "-dJPEGQ=70", "-sOutputFile=out.pdf"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, " in.pdf") {
		t.Fatalf("input must be last: %q", args)
	}
}

func TestLibreOfficeFallsBackToXvfb(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "report.docx")
	if err := os.WriteFile(input, []byte("doc"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	exec := &fakeExecutor{}
	exec.run = func(cmd tools.Command) (tools.Output, error) {
		if cmd.Binary == "soffice" {
			return tools.Output{ExitCode: 1, Stderr: "Can't open display"}, nil
		}
		return tools.Output{}, os.WriteFile(filepath.Join(outDir, "report.pdf"), []byte("%PDF"), 0o644)
	}
	office := tools.NewLibreOffice("soffice", "xvfb-run", tools.NewRunner(services.ToolLibreOffice, exec, time.Second, logging.NewNop()))

	out, err := office.Convert(context.Background(), input, outDir, tools.FormatWord)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if filepath.Base(out) != "report.pdf" {
		t.Fatalf("unexpected output %s", out)
	}
	if len(exec.calls) != 2 || exec.calls[1].Binary != "xvfb-run" {
		t.Fatalf("expected xvfb fallback, got %+v", exec.calls)
	}
	first := strings.Join(exec.calls[0].Args, " ")
	if !strings.Contains(first, "--convert-to pdf:writer_pdf_Export") {
		t.Fatalf("expected writer filter, got %q", first)
	}
	if !containsEnv(exec.calls[0].Env, "SAL_USE_VCLPLUGIN=svp") {
		t.Fatalf("expected headless environment, got %v", exec.calls[0].Env)
	}
}

func TestLibreOfficeMissingOutputIsToolError(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "deck.pptx")
	_ = os.WriteFile(input, []byte("ppt"), 0o644)
	office := tools.NewLibreOffice("soffice", "", tools.NewRunner(services.ToolLibreOffice, &fakeExecutor{}, time.Second, logging.NewNop()))
	_, err := office.Convert(context.Background(), input, dir, tools.FormatPresentation)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestOfficeFormatAccepts(t *testing.T) {
	if !tools.FormatSpreadsheet.Accepts("Budget.CSV") {
		t.Fatal("csv should be a spreadsheet")
	}
	if tools.FormatWord.Accepts("slides.pptx") {
		t.Fatal("pptx is not a word document")
	}
	if tools.OfficeFormatByName("powerpoint").Filter != "pdf:impress_pdf_Export" {
		t.Fatal("unexpected powerpoint filter")
	}
}

func TestMarkdownChainFallsThrough(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "combined_content.md")
	_ = os.WriteFile(mdPath, []byte("# Title\n\nbody"), 0o644)
	pdfPath := filepath.Join(dir, "document.pdf")

	exec := &fakeExecutor{}
	exec.run = func(cmd tools.Command) (tools.Output, error) {
		switch cmd.Binary {
		case "md2pdf":
			return tools.Output{}, &services.ToolNotFoundError{Name: "md2pdf"}
		case "pandoc":
			return tools.Output{}, os.WriteFile(pdfPath, []byte("%PDF"), 0o644)
		}
		return tools.Output{ExitCode: 1, Stderr: "Error: boom"}, nil
	}
	md := tools.NewMarkdown([]string{"md2pdf", "pandoc", "wkhtmltopdf"}, "", tools.NewRunner(services.ToolMarkdown, exec, time.Second, logging.NewNop()), logging.NewNop())

	backend, err := md.Convert(context.Background(), mdPath, pdfPath)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if backend != "pandoc" || len(exec.calls) != 2 {
		t.Fatalf("expected pandoc after md2pdf, got %s with %d calls", backend, len(exec.calls))
	}
}

func TestMarkdownChainAllFail(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "in.md")
	_ = os.WriteFile(mdPath, []byte("text"), 0o644)
	exec := &fakeExecutor{run: func(tools.Command) (tools.Output, error) {
		return tools.Output{ExitCode: 1, Stderr: "Error: nope"}, nil
	}}
	md := tools.NewMarkdown([]string{"md2pdf", "wkhtmltopdf"}, "", tools.NewRunner(services.ToolMarkdown, exec, time.Second, logging.NewNop()), logging.NewNop())
	_, err := md.Convert(context.Background(), mdPath, filepath.Join(dir, "out.pdf"))
	var toolErr *services.ExternalToolError
	if !errors.As(err, &toolErr) || toolErr.Tool != services.ToolMarkdown {
		t.Fatalf("expected markdown tool error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "temp_markdown.html")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("temporary html should be removed")
	}
}

func TestRenderHTML(t *testing.T) {
	md := tools.NewMarkdown(nil, "", nil, logging.NewNop())
	page, err := md.RenderHTML([]byte("# Heading\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n**bold**"))
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	html := string(page)
	for _, want := range []string{"<h1>Heading</h1>", "<table>", "<strong>bold</strong>", "font-family: Arial"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in rendered page", want)
		}
	}
}

func TestScannerReportsExistingVersions(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "MSG1.jpg")
	_ = os.WriteFile(image, []byte("jpg"), 0o644)
	exec := &fakeExecutor{run: func(cmd tools.Command) (tools.Output, error) {
		return tools.Output{}, os.WriteFile(filepath.Join(dir, "MSG1_BW.jpg"), []byte("bw"), 0o644)
	}}
	scanner := tools.NewScanner("docscan", tools.NewRunner(services.ToolScanner, exec, time.Second, logging.NewNop()))

	versions, err := scanner.Scan(context.Background(), image, dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if versions["original"] != "MSG1.jpg" || versions["bw"] != "MSG1_BW.jpg" {
		t.Fatalf("unexpected versions %v", versions)
	}
	if _, ok := versions["bw_direct"]; ok {
		t.Fatal("missing renditions must be omitted")
	}
	if got := strings.Join(exec.calls[0].Args, " "); got != "--image "+image+" --output "+dir {
		t.Fatalf("unexpected scanner args %q", got)
	}
}

func TestPDFRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var images []string
	for i, c := range []color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}} {
		path := filepath.Join(dir, "img"+string(rune('a'+i))+".png")
		writePNG(t, path, c)
		images = append(images, path)
	}
	pdf := tools.NewPDF()
	ctx := context.Background()

	scanned := filepath.Join(dir, "scan.pdf")
	if err := pdf.ImagesToPDF(ctx, images, scanned); err != nil {
		t.Fatalf("ImagesToPDF failed: %v", err)
	}
	if n, err := pdf.PageCount(scanned); err != nil || n != 3 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}

	part := filepath.Join(dir, "part.pdf")
	if err := pdf.Extract(ctx, scanned, part, pdfrange.Range{Start: 2, End: 3}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n, _ := pdf.PageCount(part); n != 2 {
		t.Fatalf("expected 2 extracted pages, got %d", n)
	}

	merged := filepath.Join(dir, "merged.pdf")
	if err := pdf.Merge(ctx, []string{scanned, part}, merged); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if n, _ := pdf.PageCount(merged); n != 5 {
		t.Fatalf("expected 5 merged pages, got %d", n)
	}

	err := pdf.Merge(ctx, []string{scanned, filepath.Join(dir, "gone.pdf")}, merged)
	if !errors.Is(err, services.ErrFileProcessing) {
		t.Fatalf("expected file processing error for missing input, got %v", err)
	}
}

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 30))
	for x := 0; x < 20; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, c)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func containsEnv(env []string, want string) bool {
	for _, entry := range env {
		if entry == want {
			return true
		}
	}
	return false
}
