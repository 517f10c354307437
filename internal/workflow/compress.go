package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docbot/internal/compress"
	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/operations"
	"docbot/internal/textutil"
)

type compressPayload struct {
	Phase         Phase                                `json:"phase"`
	Files         []string                             `json:"files,omitempty"`
	Names         map[string]string                    `json:"names,omitempty"`
	OriginalNames map[string]string                    `json:"original_filenames,omitempty"`
	OriginalSizes map[string]int64                     `json:"original_sizes,omitempty"`
	Levels        map[string]compress.Level            `json:"quality_settings,omitempty"`
	Results       map[string]operations.CompressResult `json:"processed_files,omitempty"`
	Failures      map[string]string                    `json:"failures,omitempty"`
	Tracker       Tracker                              `json:"tracker"`
}

type compressWorkflow struct {
	base    Base
	env     *Env
	payload compressPayload
}

func newCompress(base Base, env *Env, payload compressPayload) Workflow {
	if payload.Names == nil {
		payload.Names = make(map[string]string)
	}
	if payload.OriginalNames == nil {
		payload.OriginalNames = make(map[string]string)
	}
	if payload.OriginalSizes == nil {
		payload.OriginalSizes = make(map[string]int64)
	}
	if payload.Levels == nil {
		payload.Levels = make(map[string]compress.Level)
	}
	if payload.Results == nil {
		payload.Results = make(map[string]operations.CompressResult)
	}
	if payload.Failures == nil {
		payload.Failures = make(map[string]string)
	}
	if payload.Phase == "" {
		payload.Phase = PhaseStarted
	}
	return &compressWorkflow{base: base, env: env, payload: payload}
}

func (w *compressWorkflow) Kind() Kind   { return KindCompress }
func (w *compressWorkflow) Phase() Phase { return w.payload.Phase }
func (w *compressWorkflow) Payload() any { return w.payload }

func (w *compressWorkflow) Inputs() []string {
	inputs := make([]string, 0, len(w.payload.Files))
	for _, id := range w.payload.Files {
		inputs = append(inputs, w.payload.Names[id])
	}
	return inputs
}

func (w *compressWorkflow) displayName(id string) string {
	if name := w.payload.OriginalNames[id]; name != "" {
		return name
	}
	if name := w.payload.Names[id]; name != "" {
		return name
	}
	return "File " + id
}

func (w *compressWorkflow) outputPath(id string) string {
	return filepath.Join(w.base.TaskDir, textutil.SanitizeToken(id)+"_compressed.pdf")
}

func (w *compressWorkflow) apply(task *TrackedTask) {
	if !task.Succeeded() {
		w.payload.Failures[task.Key] = trimDetail(task.Error)
		return
	}
	var result operations.CompressResult
	if err := task.Decode(&result); err != nil {
		w.payload.Failures[task.Key] = "unreadable result"
		return
	}
	delete(w.payload.Failures, task.Key)
	w.payload.Results[task.Key] = result
}

func (w *compressWorkflow) HandleFile(_ context.Context, file IncomingFile) (FileResult, error) {
	if !file.IsPDF() {
		return FileResult{Reply: "Please send PDF files to compress."}, nil
	}
	if _, seen := w.payload.Names[file.MessageID]; seen {
		return FileResult{Accepted: true}, nil
	}
	size, err := fileutil.Size(file.Path)
	if err != nil {
		return FileResult{Reply: "Failed to save the PDF file: " + file.Name}, nil
	}
	w.payload.Files = append(w.payload.Files, file.MessageID)
	w.payload.Names[file.MessageID] = file.Name
	w.payload.OriginalSizes[file.MessageID] = size
	if file.OriginalName != "" {
		w.payload.OriginalNames[file.MessageID] = file.OriginalName
	}
	w.payload.Phase = PhaseAwaitingCommand
	reply := fmt.Sprintf("📄 Received: %s\n\n%s", w.displayName(file.MessageID), compress.OptionsMessage(size))
	return FileResult{Accepted: true, Reply: reply}, nil
}

func (w *compressWorkflow) HandleCommand(ctx context.Context, cmd Command) (bool, string, error) {
	text := strings.ToLower(strings.TrimSpace(cmd.Text))
	defer func() { w.payload.Phase = phaseFor(len(w.payload.Files) > 0, &w.payload.Tracker) }()

	switch {
	case text == statusKeyword:
		if len(w.payload.Tracker.Tasks) == 0 {
			return false, "No compression tasks are in progress.", nil
		}
		w.env.Refresh(ctx, &w.payload.Tracker, w.apply)
		return false, statusReport("Compression tasks status:", &w.payload.Tracker, w.statusLabel,
			"All tasks complete. Type 'done' to finish and receive your files."), nil
	case text == cancelKeyword:
		return false, cancelReply(w.env.Cancel(ctx, &w.payload.Tracker), "compression"), nil
	}

	if _, quoted := w.payload.Names[cmd.QuotedID]; cmd.QuotedID != "" && quoted {
		level, err := compress.ParseLevel(text)
		if err != nil {
			return false, err.Error() + "\n\n" + compress.OptionsMessage(w.payload.OriginalSizes[cmd.QuotedID]), nil
		}
		return false, w.compressOne(ctx, cmd.QuotedID, level), nil
	}

	if text == doneKeyword {
		if len(w.payload.Files) == 0 {
			return false, "You haven't sent any PDF files yet. Please send PDFs to compress.", nil
		}
		return true, "Compressing PDF files now...", nil
	}
	if level, err := compress.ParseLevel(text); err == nil {
		if len(w.payload.Files) == 0 {
			return false, "Please send a PDF file first before selecting a compression level.", nil
		}
		started := 0
		for _, id := range w.payload.Files {
			if _, done := w.payload.Results[id]; done {
				continue
			}
			if task := w.payload.Tracker.Get(id); task != nil && task.Outstanding() {
				continue
			}
			w.compressOne(ctx, id, level)
			started++
		}
		return true, fmt.Sprintf("Applied %s compression to %d PDF file(s). Processing now...", level, started), nil
	}
	return false, "Please send a PDF file to compress, or reply to a PDF with compression level (1-4 or low/medium/high/max).", nil
}

// compressOne submits one file and returns the reply for it.
func (w *compressWorkflow) compressOne(ctx context.Context, id string, level compress.Level) string {
	w.payload.Levels[id] = level
	delete(w.payload.Results, id)
	args := operations.CompressArgs{
		Input:  filepath.Join(w.base.TaskDir, w.payload.Names[id]),
		Output: w.outputPath(id),
		Level:  level,
	}
	task, err := w.env.Run(ctx, &w.payload.Tracker, id, operations.CompressPDF, args, w.apply)
	switch {
	case err != nil:
		return "Failed to compress PDF: " + userFacing(err)
	case task.Outstanding():
		return fmt.Sprintf("Compression task started with %s quality.\nThis may take a moment to complete.\nYou can check status by typing 'status'.", level)
	}
	result := w.payload.Results[id]
	return fmt.Sprintf("PDF compressed successfully with %s quality.\n%s\nReply to another PDF with a level, or send 'done' to receive your files.",
		result.Level, result.Summary())
}

func (w *compressWorkflow) statusLabel(task *TrackedTask) string {
	label := w.displayName(task.Key)
	if result, ok := w.payload.Results[task.Key]; ok && task.Succeeded() {
		return fmt.Sprintf("%s (%.1f%% reduction)", label, result.Reduction)
	}
	return label
}

func (w *compressWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	w.env.Await(ctx, &w.payload.Tracker, w.apply)

	for _, id := range w.payload.Files {
		if _, chosen := w.payload.Levels[id]; chosen {
			continue
		}
		input := filepath.Join(w.base.TaskDir, w.payload.Names[id])
		if !fileutil.Exists(input) {
			continue
		}
		var result operations.CompressResult
		args := operations.CompressArgs{Input: input, Output: w.outputPath(id), Level: compress.DefaultLevel}
		if err := w.env.Exec(ctx, operations.CompressPDF, args, &result); err != nil {
			w.payload.Failures[id] = userFacing(err)
			w.env.logger(ctx).Warn("default compression failed",
				logging.String("message_id", id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "compress_failed"),
				logging.String(logging.FieldErrorHint, "check the ghostscript binary and the input PDF"),
				logging.String(logging.FieldImpact, "the file is not delivered"),
			)
			continue
		}
		w.payload.Results[id] = result
	}

	var outputs []Output
	for _, id := range w.payload.Files {
		result, ok := w.payload.Results[id]
		if !ok || !fileutil.Exists(result.Output) {
			continue
		}
		stem := textutil.SanitizeFileName(textutil.BaseName(w.displayName(id)))
		if stem == "" {
			stem = textutil.SanitizeToken(id)
		}
		outputs = append(outputs, Output{
			Path:     result.Output,
			Caption:  fmt.Sprintf("Compressed PDF (%s level): %s", result.Level, result.Summary()),
			FileName: stem + "_compressed.pdf",
		})
	}
	return outputs, nil
}
