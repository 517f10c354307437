package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docbot/internal/fileutil"
	"docbot/internal/pdfrange"
	"docbot/internal/services"
)

// PDF performs page level operations in process with pdfcpu.
type PDF struct {
	conf *model.Configuration
}

// NewPDF constructs the pdfcpu wrapper with relaxed validation so slightly
// malformed user files still open.
func NewPDF() *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{conf: conf}
}

// PageCount returns the number of pages in path.
func (p *PDF) PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, pdfError("Failed to read PDF page count", path, err)
	}
	return count, nil
}

// Merge concatenates inputs into output in order. Every input must exist.
func (p *PDF) Merge(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("no PDFs to merge")
	}
	for _, input := range inputs {
		if !fileutil.Exists(input) {
			return services.NewPDFProcessingError("", filepath.Base(input), "PDF file missing for merge", os.ErrNotExist)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareOutput(output); err != nil {
		return err
	}
	if err := api.MergeCreateFile(inputs, output, false, p.conf); err != nil {
		return pdfError("Failed to merge PDFs", output, err)
	}
	return nil
}

// Extract writes the pages of r from input to output.
func (p *PDF) Extract(ctx context.Context, input, output string, r pdfrange.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareOutput(output); err != nil {
		return err
	}
	if err := api.TrimFile(input, output, []string{r.String()}, p.conf); err != nil {
		return pdfError("Failed to extract pages "+r.String(), input, err)
	}
	return nil
}

// ImagesToPDF builds a PDF with one page per image, in order.
func (p *PDF) ImagesToPDF(ctx context.Context, images []string, output string) error {
	if len(images) == 0 {
		return errors.New("no images to convert")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareOutput(output); err != nil {
		return err
	}
	if err := api.ImportImagesFile(images, output, pdfcpu.DefaultImportConfig(), p.conf); err != nil {
		return pdfError("Failed to create PDF from images", output, err)
	}
	return nil
}

func prepareOutput(output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale output: %w", err)
	}
	return nil
}

func pdfError(message, path string, err error) error {
	return &services.ExternalToolError{
		Tool:    services.ToolPDF,
		Message: "PDF processing error: " + message + " (" + filepath.Base(path) + ")",
		Err:     err,
	}
}
