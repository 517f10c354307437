package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"docbot/internal/operations"
	"docbot/internal/pdfrange"
	"docbot/internal/services"
	"docbot/internal/textutil"
)

type splitPayload struct {
	Phase        Phase            `json:"phase"`
	SourceID     string           `json:"source_id,omitempty"`
	SourceName   string           `json:"source_name,omitempty"`
	OriginalName string           `json:"original_name,omitempty"`
	TotalPages   int              `json:"total_pages,omitempty"`
	Ranges       []pdfrange.Range `json:"ranges,omitempty"`
	IncludeRest  bool             `json:"include_rest,omitempty"`
}

type splitWorkflow struct {
	base    Base
	env     *Env
	payload splitPayload
	failed  []operations.SplitFailure
}

func newSplit(base Base, env *Env, payload splitPayload) Workflow {
	if payload.Phase == "" {
		payload.Phase = PhaseStarted
	}
	return &splitWorkflow{base: base, env: env, payload: payload}
}

func (w *splitWorkflow) Kind() Kind   { return KindSplit }
func (w *splitWorkflow) Phase() Phase { return w.payload.Phase }
func (w *splitWorkflow) Payload() any { return w.payload }

func (w *splitWorkflow) Inputs() []string {
	if w.payload.SourceName == "" {
		return nil
	}
	return []string{w.payload.SourceName}
}

func (w *splitWorkflow) HandleFile(_ context.Context, file IncomingFile) (FileResult, error) {
	if !file.IsPDF() {
		return FileResult{Reply: "Please send a PDF file to split."}, nil
	}
	if w.payload.SourceID == file.MessageID {
		return FileResult{Accepted: true}, nil
	}
	if w.payload.SourceID != "" {
		return FileResult{Reply: "PDF already received. Reply to it with page ranges or start new task."}, nil
	}
	w.payload.SourceID = file.MessageID
	w.payload.SourceName = file.Name
	w.payload.OriginalName = file.OriginalName
	w.payload.Phase = PhaseAwaitingCommand
	return FileResult{Accepted: true, Reply: "PDF received. Reply to it with page ranges (e.g., '1-10, 15, 20-25')"}, nil
}

func (w *splitWorkflow) HandleCommand(ctx context.Context, cmd Command) (bool, string, error) {
	text := strings.TrimSpace(cmd.Text)
	if w.payload.SourceID == "" {
		return false, "Please send the PDF file to split first.", nil
	}
	if cmd.QuotedID != w.payload.SourceID || text == "" {
		return false, "Reply to the PDF you sent with page ranges (e.g., '1-10, 15, 20-25').", nil
	}

	if w.payload.TotalPages == 0 {
		var count operations.PageCountResult
		source := filepath.Join(w.base.TaskDir, w.payload.SourceName)
		if err := w.env.Exec(ctx, operations.PageCount, operations.PageCountArgs{Input: source}, &count); err != nil {
			return false, "", services.NewPDFProcessingError(string(KindSplit), w.payload.SourceName,
				"Could not read the PDF. Please send it again.", err)
		}
		w.payload.TotalPages = count.Pages
	}

	text, includeRest := cutRestKeyword(text)
	ranges, err := pdfrange.Parse(text, w.payload.TotalPages)
	if err != nil {
		var parseErr *pdfrange.ParseError
		if errors.As(err, &parseErr) {
			return false, "Invalid page range: " + parseErr.Message, nil
		}
		return false, "", err
	}
	if len(ranges) == 0 {
		return false, "Please specify valid page ranges", nil
	}
	w.payload.Ranges = ranges
	w.payload.IncludeRest = includeRest
	return true, "", nil
}

func (w *splitWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	if w.payload.SourceName == "" || len(w.payload.Ranges) == 0 {
		return nil, nil
	}
	base := textutil.BaseName(w.payload.OriginalName)
	if base == "" {
		base = textutil.BaseName(w.payload.SourceName)
	}
	base = textutil.SanitizeFileName(base)

	var result operations.SplitResult
	err := w.env.Exec(ctx, operations.SplitPDF, operations.SplitArgs{
		Input:       filepath.Join(w.base.TaskDir, w.payload.SourceName),
		OutDir:      w.base.TaskDir,
		Base:        base,
		Ranges:      w.payload.Ranges,
		TotalPages:  w.payload.TotalPages,
		IncludeRest: w.payload.IncludeRest,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", w.payload.SourceName, err)
	}

	w.failed = result.Failed
	outputs := make([]Output, 0, len(result.Parts))
	for _, part := range result.Parts {
		caption := "Pages " + part.Range.String()
		if part.Filler {
			caption += " (remaining)"
		}
		outputs = append(outputs, Output{
			Path:     part.Path,
			Caption:  caption,
			FileName: filepath.Base(part.Path),
		})
	}
	return outputs, nil
}

func (w *splitWorkflow) Report() string {
	if len(w.failed) == 0 {
		return ""
	}
	lines := make([]string, 0, len(w.failed)+1)
	lines = append(lines, "Some page ranges could not be split:")
	for _, failure := range w.failed {
		lines = append(lines, fmt.Sprintf("- %s: %s", failure.Range, failure.Error))
	}
	return strings.Join(lines, "\n")
}

// cutRestKeyword strips a standalone "rest" token, which asks for the pages
// outside the selection as extra parts.
func cutRestKeyword(text string) (string, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	kept := fields[:0]
	found := false
	for _, field := range fields {
		if strings.EqualFold(field, "rest") {
			found = true
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, ","), found
}
