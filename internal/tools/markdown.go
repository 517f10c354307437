package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/services"
)

// Markdown backend names accepted in tools.markdown_backends.
const (
	BackendMdToPDF     = "md-to-pdf"
	BackendMd2PDF      = "md2pdf"
	BackendPandoc      = "pandoc"
	BackendWkhtmltopdf = "wkhtmltopdf"
)

// Markdown renders a markdown file to PDF by trying each configured backend
// in order until one produces output.
type Markdown struct {
	backends []string
	chromium string
	runner   *Runner
	renderer goldmark.Markdown
	logger   *slog.Logger
}

// NewMarkdown constructs the backend chain.
func NewMarkdown(backends []string, chromium string, runner *Runner, logger *slog.Logger) *Markdown {
	if len(backends) == 0 {
		backends = []string{BackendMdToPDF, BackendMd2PDF, BackendPandoc, BackendWkhtmltopdf}
	}
	return &Markdown{
		backends: append([]string(nil), backends...),
		chromium: chromium,
		runner:   runner,
		renderer: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		logger: logging.NewComponentLogger(logger, "markdown"),
	}
}

// Convert renders mdPath to pdfPath and returns the backend that succeeded.
func (m *Markdown) Convert(ctx context.Context, mdPath, pdfPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	logger := logging.WithContext(ctx, m.logger)
	var failures []string
	var lastErr error
	for _, backend := range m.backends {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		_ = os.Remove(pdfPath)
		err := m.convertWith(ctx, backend, mdPath, pdfPath)
		if err == nil && fileutil.Exists(pdfPath) {
			logger.Info("markdown rendered", logging.String("backend", backend))
			return backend, nil
		}
		if err == nil {
			err = fmt.Errorf("%s produced no output", backend)
		}
		lastErr = err
		failures = append(failures, backend+": "+err.Error())
		logger.Info("markdown backend failed; trying next",
			logging.String("backend", backend),
			logging.Error(err),
		)
	}
	return "", &services.ExternalToolError{
		Tool:    services.ToolMarkdown,
		Message: "All markdown to PDF conversion methods failed",
		Stderr:  strings.Join(failures, "\n"),
		Err:     lastErr,
	}
}

func (m *Markdown) convertWith(ctx context.Context, backend, mdPath, pdfPath string) error {
	switch backend {
	case BackendMdToPDF:
		return m.mdToPDF(ctx, mdPath, pdfPath)
	case BackendMd2PDF:
		_, err := m.runner.Run(ctx, Command{Binary: "md2pdf", Args: []string{mdPath, pdfPath}})
		return err
	case BackendPandoc:
		_, err := m.runner.Run(ctx, Command{Binary: "pandoc", Args: []string{mdPath, "-o", pdfPath}})
		return err
	case BackendWkhtmltopdf:
		return m.wkhtmltopdf(ctx, mdPath, pdfPath)
	default:
		return fmt.Errorf("unsupported markdown backend %q", backend)
	}
}

// md-to-pdf writes its output next to the input file.
func (m *Markdown) mdToPDF(ctx context.Context, mdPath, pdfPath string) error {
	chromium := m.chromium
	if chromium == "" {
		chromium = "/usr/bin/chromium-browser"
	}
	launch, err := json.Marshal(map[string]any{
		"executablePath": chromium,
		"args":           []string{"--no-sandbox", "--disable-setuid-sandbox"},
	})
	if err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, Command{
		Binary: "md-to-pdf",
		Args:   []string{"--launch-options", string(launch), filepath.Base(mdPath)},
		Dir:    filepath.Dir(mdPath),
	}); err != nil {
		return err
	}
	produced := strings.TrimSuffix(mdPath, filepath.Ext(mdPath)) + ".pdf"
	if produced == pdfPath {
		return nil
	}
	if !fileutil.Exists(produced) {
		return errors.New("md-to-pdf produced no output")
	}
	return fileutil.MoveFile(produced, pdfPath)
}

func (m *Markdown) wkhtmltopdf(ctx context.Context, mdPath, pdfPath string) error {
	source, err := os.ReadFile(mdPath)
	if err != nil {
		return fmt.Errorf("read markdown: %w", err)
	}
	page, err := m.RenderHTML(source)
	if err != nil {
		return err
	}
	htmlPath := filepath.Join(filepath.Dir(pdfPath), "temp_markdown.html")
	if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	defer os.Remove(htmlPath)
	_, err = m.runner.Run(ctx, Command{
		Binary: "wkhtmltopdf",
		Args:   []string{"--enable-local-file-access", "--quiet", htmlPath, pdfPath},
	})
	return err
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Markdown Document</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 2em; max-width: 800px; }
h1 { color: #333366; }
h2 { color: #333366; border-bottom: 1px solid #eaecef; }
pre { background-color: #f6f8fa; padding: 16px; border-radius: 6px; }
code { font-family: Consolas, monospace; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; }
th { background-color: #f2f2f2; }
img { max-width: 100%; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))

// RenderHTML converts markdown to a styled standalone HTML page.
func (m *Markdown) RenderHTML(source []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := m.renderer.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, template.HTML(body.String())); err != nil { //nolint:gosec
		return nil, fmt.Errorf("render page: %w", err)
	}
	return page.Bytes(), nil
}
