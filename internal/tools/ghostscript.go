package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"docbot/internal/compress"
)

// Ghostscript rewrites PDFs with downsampled images.
type Ghostscript struct {
	binary string
	runner *Runner
}

// NewGhostscript constructs the compressor around the gs binary.
func NewGhostscript(binary string, runner *Runner) *Ghostscript {
	if binary == "" {
		binary = "gs"
	}
	return &Ghostscript{binary: binary, runner: runner}
}

// Compress writes input to output using preset's resolution, JPEG quality and
// PDFSETTINGS. It does not enforce the never-larger rule; callers pass the
// result through compress.Finish.
func (g *Ghostscript) Compress(ctx context.Context, input, output string, preset compress.Preset) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	_, err := g.runner.Run(ctx, Command{Binary: g.binary, Args: CompressArgs(input, output, preset)})
	return err
}

// CompressArgs builds the Ghostscript argument list for preset.
func CompressArgs(input, output string, preset compress.Preset) []string {
	dpi := strconv.Itoa(preset.DPI)
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=" + preset.PDFSettings,
		"-dColorImageResolution=" + dpi,
		"-dGrayImageResolution=" + dpi,
		"-dMonoImageResolution=" + dpi,
		"-dJPEGQ=" + strconv.Itoa(preset.JPEGQuality),
		"-dColorImageDownsampleType=/Bicubic",
		"-dGrayImageDownsampleType=/Bicubic",
		"-dMonoImageDownsampleType=/Bicubic",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile=" + output,
		input,
	}
}
