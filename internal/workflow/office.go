package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/operations"
	"docbot/internal/textutil"
	"docbot/internal/tools"
)

// officeProfile parameterises the Office conversion workflow per document
// family.
type officeProfile struct {
	kind       Kind
	format     tools.OfficeFormat
	label      string
	noun       string
	plural     string
	extensions string
	mergedName string
}

var (
	wordProfile = officeProfile{
		kind:       KindWordToPDF,
		format:     tools.FormatWord,
		label:      "Word",
		noun:       "document",
		plural:     "documents",
		extensions: ".doc or .docx",
		mergedName: "Merged_Documents.pdf",
	}
	powerPointProfile = officeProfile{
		kind:       KindPowerPointToPDF,
		format:     tools.FormatPresentation,
		label:      "PowerPoint",
		noun:       "presentation",
		plural:     "presentations",
		extensions: ".ppt, .pptx, .pps, or .ppsx",
		mergedName: "Merged_Presentations.pdf",
	}
	excelProfile = officeProfile{
		kind:       KindExcelToPDF,
		format:     tools.FormatSpreadsheet,
		label:      "Excel",
		noun:       "spreadsheet",
		plural:     "spreadsheets",
		extensions: ".xls, .xlsx, .xlsm, .xlsb, or .csv",
		mergedName: "Merged_Spreadsheets.pdf",
	}
)

type officePayload struct {
	Phase         Phase             `json:"phase"`
	Files         []string          `json:"files,omitempty"`
	Names         map[string]string `json:"names,omitempty"`
	OriginalNames map[string]string `json:"original_filenames,omitempty"`
	Converted     map[string]string `json:"converted_files,omitempty"`
	Tracker       Tracker           `json:"tracker"`
}

type officeWorkflow struct {
	base    Base
	env     *Env
	profile officeProfile
	payload officePayload
}

func officeBuilder(profile officeProfile) func(Base, *Env, officePayload) Workflow {
	return func(base Base, env *Env, payload officePayload) Workflow {
		if payload.Names == nil {
			payload.Names = make(map[string]string)
		}
		if payload.OriginalNames == nil {
			payload.OriginalNames = make(map[string]string)
		}
		if payload.Converted == nil {
			payload.Converted = make(map[string]string)
		}
		if payload.Phase == "" {
			payload.Phase = PhaseStarted
		}
		return &officeWorkflow{base: base, env: env, profile: profile, payload: payload}
	}
}

func (w *officeWorkflow) Kind() Kind   { return w.profile.kind }
func (w *officeWorkflow) Phase() Phase { return w.payload.Phase }
func (w *officeWorkflow) Payload() any { return w.payload }

func (w *officeWorkflow) Inputs() []string {
	inputs := make([]string, 0, len(w.payload.Files))
	for _, id := range w.payload.Files {
		inputs = append(inputs, w.payload.Names[id])
	}
	return inputs
}

func (w *officeWorkflow) displayName(id string) string {
	if name := w.payload.OriginalNames[id]; name != "" {
		return name
	}
	return w.payload.Names[id]
}

func (w *officeWorkflow) apply(task *TrackedTask) {
	if !task.Succeeded() {
		w.env.Logger.Warn("office conversion failed",
			logging.String("message_id", task.Key),
			logging.String("error", task.Error),
			logging.String(logging.FieldWorkflow, string(w.profile.kind)),
			logging.String(logging.FieldEventType, "office_convert_failed"),
			logging.String(logging.FieldErrorHint, "check the soffice binary and the source document"),
			logging.String(logging.FieldImpact, "the document is not delivered"),
		)
		return
	}
	var result operations.ConvertResult
	if err := task.Decode(&result); err == nil {
		w.payload.Converted[task.Key] = result.Output
	}
}

func (w *officeWorkflow) HandleFile(ctx context.Context, file IncomingFile) (FileResult, error) {
	name := file.OriginalName
	if name == "" {
		name = file.Name
	}
	if !w.profile.format.Accepts(name) {
		return FileResult{Reply: fmt.Sprintf("File %s is not a %s %s. Please send a %s file.",
			name, w.profile.label, w.profile.noun, w.profile.extensions)}, nil
	}
	if _, seen := w.payload.Names[file.MessageID]; seen {
		return FileResult{Accepted: true}, nil
	}
	w.payload.Files = append(w.payload.Files, file.MessageID)
	w.payload.Names[file.MessageID] = file.Name
	w.payload.OriginalNames[file.MessageID] = name

	args := operations.ConvertArgs{Input: file.Path, OutDir: w.base.TaskDir, Format: w.profile.format.Name}
	task, err := w.env.Run(ctx, &w.payload.Tracker, file.MessageID, operations.ConvertDocument, args, w.apply)
	w.payload.Phase = phaseFor(true, &w.payload.Tracker)
	switch {
	case err != nil:
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"Sorry, I couldn't convert %s to PDF. Please try again with a different file.", name)}, nil
	case task.Outstanding():
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"%s %s received. Converting to PDF in the background.\nType 'status' to check conversion progress or 'done' when finished.",
			w.profile.label, w.profile.noun)}, nil
	default:
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"%s %s %s converted to PDF successfully. The PDF will be available when you type 'done'.",
			w.profile.label, w.profile.noun, name)}, nil
	}
}

func (w *officeWorkflow) HandleCommand(ctx context.Context, cmd Command) (bool, string, error) {
	switch {
	case isKeyword(cmd.Text, doneKeyword):
		return true, fmt.Sprintf("Processing your %s...", w.profile.plural), nil
	case isKeyword(cmd.Text, statusKeyword):
		w.env.Refresh(ctx, &w.payload.Tracker, w.apply)
		w.payload.Phase = phaseFor(len(w.payload.Files) > 0, &w.payload.Tracker)
		return false, statusReport(w.profile.label+" to PDF conversion status:", &w.payload.Tracker,
			func(task *TrackedTask) string { return w.displayName(task.Key) },
			"All conversions complete. Type 'done' to finish and receive your PDFs."), nil
	case isKeyword(cmd.Text, cancelKeyword):
		n := w.env.Cancel(ctx, &w.payload.Tracker)
		w.payload.Phase = phaseFor(len(w.payload.Files) > 0, &w.payload.Tracker)
		return false, cancelReply(n, "conversion"), nil
	}
	return false, fmt.Sprintf("Send me %s %s (%s files) to convert to PDF, or type 'done' to finish.",
		w.profile.label, w.profile.plural, w.profile.extensions), nil
}

func (w *officeWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	w.env.Await(ctx, &w.payload.Tracker, w.apply)

	var (
		outputs []Output
		pdfs    []string
	)
	for _, id := range w.payload.Files {
		path := w.payload.Converted[id]
		if path == "" || !fileutil.Exists(path) {
			continue
		}
		name := textutil.SanitizeFileName(textutil.BaseName(w.displayName(id))) + ".pdf"
		outputs = append(outputs, Output{
			Path:     path,
			Caption:  fmt.Sprintf("Here is your converted %s: %s", w.profile.noun, name),
			FileName: name,
		})
		pdfs = append(pdfs, path)
	}
	if len(pdfs) < 2 {
		return outputs, nil
	}

	merged := filepath.Join(w.base.TaskDir, w.profile.mergedName)
	if err := w.env.Exec(ctx, operations.MergePDFs, operations.MergeArgs{Inputs: pdfs, Output: merged}, nil); err != nil {
		w.env.logger(ctx).Warn("merging converted PDFs failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "office_merge_failed"),
			logging.String(logging.FieldErrorHint, "check the ghostscript binary"),
			logging.String(logging.FieldImpact, "only the individual PDFs are delivered"),
		)
		return outputs, nil
	}
	return append(outputs, Output{
		Path:     merged,
		Caption:  fmt.Sprintf("Here are all your %s merged into one PDF.", w.profile.plural),
		FileName: w.profile.mergedName,
	}), nil
}
