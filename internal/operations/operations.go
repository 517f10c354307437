// Package operations defines the background operations workflows submit to
// the task dispatcher, together with their argument and result types.
//
// Arguments and results are plain JSON structs so a task can be enqueued by
// the serve process and executed by a separate worker process.
package operations

import (
	"context"
	"fmt"
	"path/filepath"

	"docbot/internal/compress"
	"docbot/internal/fileutil"
	"docbot/internal/pdfrange"
	"docbot/internal/services"
	"docbot/internal/tasks"
	"docbot/internal/tools"
)

// Operation names.
const (
	CompressPDF     = "compress_pdf"
	ConvertDocument = "convert_document"
	ScanImage       = "scan_image"
	MarkdownToPDF   = "markdown_to_pdf"
	MergePDFs       = "merge_pdfs"
	SplitPDF        = "split_pdf"
	ImagesToPDF     = "images_to_pdf"
	PageCount       = "page_count"
)

type CompressArgs struct {
	Input  string         `json:"input"`
	Output string         `json:"output"`
	Level  compress.Level `json:"level"`
}

type CompressResult struct {
	Output string         `json:"output"`
	Level  compress.Level `json:"level"`
	compress.Outcome
}

type ConvertArgs struct {
	Input  string `json:"input"`
	OutDir string `json:"out_dir"`
	Format string `json:"format"`
}

type ConvertResult struct {
	Output string `json:"output"`
}

type ScanArgs struct {
	Image  string `json:"image"`
	OutDir string `json:"out_dir"`
}

// ScanResult maps version names (original, bw, bw_direct) to file names in
// the output directory.
type ScanResult struct {
	Versions map[string]string `json:"versions"`
}

type MarkdownArgs struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type MarkdownResult struct {
	Output  string `json:"output"`
	Backend string `json:"backend"`
}

type MergeArgs struct {
	Inputs []string `json:"inputs"`
	Output string   `json:"output"`
}

type ImagesArgs struct {
	Images []string `json:"images"`
	Output string   `json:"output"`
}

// FileResult is returned by operations producing a single file.
type FileResult struct {
	Output string `json:"output"`
}

// SplitArgs selects the pages to export. TotalPages is read from Input when
// zero; IncludeRest also exports the pages between and around Ranges.
type SplitArgs struct {
	Input       string           `json:"input"`
	OutDir      string           `json:"out_dir"`
	Base        string           `json:"base"`
	Ranges      []pdfrange.Range `json:"ranges"`
	TotalPages  int              `json:"total_pages,omitempty"`
	IncludeRest bool             `json:"include_rest,omitempty"`
}

// SplitPart is one exported range. Filler parts were not requested by the user.
type SplitPart struct {
	Range  pdfrange.Range `json:"range"`
	Path   string         `json:"path"`
	Filler bool           `json:"filler,omitempty"`
}

// SplitFailure is a range that could not be exported.
type SplitFailure struct {
	Range pdfrange.Range `json:"range"`
	Error string         `json:"error"`
}

type SplitResult struct {
	Parts  []SplitPart    `json:"parts"`
	Failed []SplitFailure `json:"failed,omitempty"`
}

type PageCountArgs struct {
	Input string `json:"input"`
}

type PageCountResult struct {
	Pages int `json:"pages"`
}

// SplitPartName returns the file name of an exported range.
func SplitPartName(base string, r pdfrange.Range) string {
	return fmt.Sprintf("%s_pages_%d-%d.pdf", base, r.Start, r.End)
}

// Registry builds the operation table backed by kit.
func Registry(kit *tools.Kit, thresholds compress.Thresholds) (*tasks.Registry, error) {
	return tasks.NewRegistry(
		tasks.Define(CompressPDF, func(ctx context.Context, args CompressArgs) (CompressResult, error) {
			return compressPDF(ctx, kit, thresholds, args)
		}),
		tasks.Define(ConvertDocument, func(ctx context.Context, args ConvertArgs) (ConvertResult, error) {
			out, err := kit.Office.Convert(ctx, args.Input, args.OutDir, tools.OfficeFormatByName(args.Format))
			return ConvertResult{Output: out}, err
		}),
		tasks.Define(ScanImage, func(ctx context.Context, args ScanArgs) (ScanResult, error) {
			versions, err := kit.Scanner.Scan(ctx, args.Image, args.OutDir)
			return ScanResult{Versions: versions}, err
		}),
		tasks.Define(MarkdownToPDF, func(ctx context.Context, args MarkdownArgs) (MarkdownResult, error) {
			backend, err := kit.Markdown.Convert(ctx, args.Input, args.Output)
			return MarkdownResult{Output: args.Output, Backend: backend}, err
		}),
		tasks.Define(MergePDFs, func(ctx context.Context, args MergeArgs) (FileResult, error) {
			return FileResult{Output: args.Output}, kit.PDF.Merge(ctx, args.Inputs, args.Output)
		}),
		tasks.Define(ImagesToPDF, func(ctx context.Context, args ImagesArgs) (FileResult, error) {
			return FileResult{Output: args.Output}, kit.PDF.ImagesToPDF(ctx, args.Images, args.Output)
		}),
		tasks.Define(SplitPDF, func(ctx context.Context, args SplitArgs) (SplitResult, error) {
			return splitPDF(ctx, kit, args)
		}),
		tasks.Define(PageCount, func(_ context.Context, args PageCountArgs) (PageCountResult, error) {
			pages, err := kit.PDF.PageCount(args.Input)
			return PageCountResult{Pages: pages}, err
		}),
	)
}

func compressPDF(ctx context.Context, kit *tools.Kit, thresholds compress.Thresholds, args CompressArgs) (CompressResult, error) {
	size, err := fileutil.Size(args.Input)
	if err != nil {
		return CompressResult{}, services.NewPDFProcessingError("compress", filepath.Base(args.Input), "PDF not readable", err)
	}
	level := args.Level
	if level == "" {
		level = compress.DefaultLevel
	}
	preset := thresholds.Resolve(level, size)
	if err := kit.Ghostscript.Compress(ctx, args.Input, args.Output, preset); err != nil {
		return CompressResult{}, err
	}
	outcome, err := compress.Finish(args.Input, args.Output)
	if err != nil {
		return CompressResult{}, services.NewPDFProcessingError("compress", filepath.Base(args.Input), "finalize compressed PDF", err)
	}
	return CompressResult{Output: args.Output, Level: preset.Level, Outcome: outcome}, nil
}

// splitPDF exports every satisfiable range. Failing ranges are reported in
// the result; an error is returned only when no part could be written.
func splitPDF(ctx context.Context, kit *tools.Kit, args SplitArgs) (SplitResult, error) {
	if len(args.Ranges) == 0 {
		return SplitResult{}, &services.InvalidInputError{Message: "Please specify valid page ranges"}
	}
	base := args.Base
	if base == "" {
		base = "split"
	}
	total := args.TotalPages
	if total <= 0 {
		pages, err := kit.PDF.PageCount(args.Input)
		if err != nil {
			return SplitResult{}, err
		}
		total = pages
	}

	var result SplitResult
	var valid []pdfrange.Range
	for _, r := range args.Ranges {
		if r.Start < 1 || r.Start > r.End || r.End > total {
			result.Failed = append(result.Failed, SplitFailure{
				Range: r,
				Error: fmt.Sprintf("outside the document (%d pages)", total),
			})
			continue
		}
		valid = append(valid, r)
	}

	var firstErr error
	for _, def := range pdfrange.FillGaps(valid, total) {
		if !def.Requested && !args.IncludeRest {
			continue
		}
		if err := ctx.Err(); err != nil {
			return SplitResult{}, err
		}
		out := filepath.Join(args.OutDir, SplitPartName(base, def.Range))
		if err := kit.PDF.Extract(ctx, args.Input, out, def.Range); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Failed = append(result.Failed, SplitFailure{Range: def.Range, Error: err.Error()})
			continue
		}
		result.Parts = append(result.Parts, SplitPart{Range: def.Range, Path: out, Filler: !def.Requested})
	}

	if len(result.Parts) == 0 {
		if firstErr != nil {
			return SplitResult{}, firstErr
		}
		return SplitResult{}, &services.InvalidInputError{
			Message: fmt.Sprintf("None of the requested pages exist. The PDF has %d pages.", total),
		}
	}
	return result, nil
}
