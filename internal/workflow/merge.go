package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docbot/internal/fileutil"
	"docbot/internal/operations"
	"docbot/internal/ordermap"
	"docbot/internal/services"
)

const mergedFileName = "Merged_pdf.pdf"

type mergePayload struct {
	Phase    Phase             `json:"phase"`
	Received map[string]string `json:"received,omitempty"`
}

type mergeWorkflow struct {
	base    Base
	env     *Env
	payload mergePayload
}

func newMerge(base Base, env *Env, payload mergePayload) Workflow {
	if payload.Received == nil {
		payload.Received = make(map[string]string)
	}
	if payload.Phase == "" {
		payload.Phase = PhaseStarted
	}
	return &mergeWorkflow{base: base, env: env, payload: payload}
}

func (w *mergeWorkflow) Kind() Kind   { return KindMerge }
func (w *mergeWorkflow) Phase() Phase { return w.payload.Phase }
func (w *mergeWorkflow) Payload() any { return w.payload }

func (w *mergeWorkflow) Inputs() []string {
	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return nil
	}
	return order.Sorted()
}

func (w *mergeWorkflow) HandleFile(_ context.Context, file IncomingFile) (FileResult, error) {
	if !file.IsPDF() {
		return FileResult{Reply: "Please send PDF files only."}, nil
	}
	if _, seen := w.payload.Received[file.MessageID]; seen {
		return FileResult{Accepted: true}, nil
	}
	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return FileResult{}, err
	}
	order.Add(file.Name)
	if err := order.Save(w.base.TaskDir); err != nil {
		return FileResult{}, err
	}
	w.payload.Received[file.MessageID] = file.Name
	w.payload.Phase = PhaseAwaitingCommand
	return FileResult{Accepted: true}, nil
}

func (w *mergeWorkflow) HandleCommand(_ context.Context, cmd Command) (bool, string, error) {
	if isKeyword(cmd.Text, doneKeyword) {
		return true, "", nil
	}
	if cmd.QuotedID != "" && ordermap.IsPosition(cmd.Text) {
		reply, err := reorder(w.base.TaskDir, w.payload.Received[cmd.QuotedID], cmd.Text,
			"Cannot reorder the quoted message. Please reply directly to a PDF sent for this task.",
			"file")
		return false, reply, err
	}
	return false, "", nil
}

func (w *mergeWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return nil, err
	}
	names := order.Sorted()
	if len(names) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(names))
	var missing []string
	for _, name := range names {
		path := filepath.Join(w.base.TaskDir, name)
		if !fileutil.Exists(path) {
			missing = append(missing, name)
			continue
		}
		inputs = append(inputs, path)
	}
	if len(missing) > 0 {
		return nil, &services.FileProcessingError{
			Workflow: string(KindMerge),
			Filename: strings.Join(missing, ", "),
			Message:  "Some PDFs could not be found, so nothing was merged. Please start again and resend them.",
			PDF:      true,
		}
	}

	output := filepath.Join(w.base.TaskDir, mergedFileName)
	var result operations.FileResult
	if err := w.env.Exec(ctx, operations.MergePDFs, operations.MergeArgs{Inputs: inputs, Output: output}, &result); err != nil {
		return nil, &services.WorkflowError{Workflow: string(KindMerge), Message: "Failed to merge PDFs: " + userFacing(err), Err: err}
	}
	return []Output{{Path: result.Output, Caption: "Here is your merged PDF.", FileName: mergedFileName}}, nil
}

// reorder applies a quoted reorder request to the order file in dir. name is
// the stored file the quoted message refers to ("" when unknown).
func reorder(dir, name, text, unknownReply, noun string) (string, error) {
	order, err := ordermap.Load(dir)
	if err != nil {
		return "", err
	}
	if _, ok := order[name]; name == "" || !ok {
		return unknownReply, nil
	}
	position, err := ordermap.ParsePosition(text)
	if err != nil {
		return err.Error(), nil
	}
	updated, err := order.Reorder(name, position)
	if err != nil {
		return unknownReply, nil
	}
	if err := updated.Save(dir); err != nil {
		return "Failed to update order file.", nil
	}
	return fmt.Sprintf("Order updated. The %s is now number %d.", noun, updated[name]), nil
}
