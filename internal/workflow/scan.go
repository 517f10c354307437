package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"docbot/internal/fileutil"
	"docbot/internal/logging"
	"docbot/internal/operations"
	"docbot/internal/ordermap"
	"docbot/internal/services"
	"docbot/internal/tools"
)

type scanPayload struct {
	Phase    Phase                        `json:"phase"`
	Received map[string]string            `json:"received,omitempty"`
	Versions map[string]map[string]string `json:"versions,omitempty"`
	Tracker  Tracker                      `json:"tracker"`
}

type scanWorkflow struct {
	base    Base
	env     *Env
	payload scanPayload
}

func newScan(base Base, env *Env, payload scanPayload) Workflow {
	if payload.Received == nil {
		payload.Received = make(map[string]string)
	}
	if payload.Versions == nil {
		payload.Versions = make(map[string]map[string]string)
	}
	if payload.Phase == "" {
		payload.Phase = PhaseStarted
	}
	return &scanWorkflow{base: base, env: env, payload: payload}
}

func (w *scanWorkflow) Kind() Kind   { return KindScan }
func (w *scanWorkflow) Phase() Phase { return w.payload.Phase }
func (w *scanWorkflow) Payload() any { return w.payload }

func (w *scanWorkflow) Inputs() []string {
	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return nil
	}
	return order.Sorted()
}

func (w *scanWorkflow) apply(task *TrackedTask) {
	if !task.Succeeded() {
		w.env.Logger.Warn("scan enhancement failed; original image kept",
			logging.String("message_id", task.Key),
			logging.String("error", task.Error),
			logging.String(logging.FieldEventType, "scan_failed"),
			logging.String(logging.FieldErrorHint, "check the scanner command in tools.scanner"),
			logging.String(logging.FieldImpact, "only the original version includes this page"),
		)
		return
	}
	var result operations.ScanResult
	if err := task.Decode(&result); err == nil {
		w.payload.Versions[task.Key] = result.Versions
	}
}

func (w *scanWorkflow) HandleFile(ctx context.Context, file IncomingFile) (FileResult, error) {
	if !file.Image {
		return FileResult{Reply: "Please send images of the document pages."}, nil
	}
	if _, seen := w.payload.Received[file.MessageID]; seen {
		return FileResult{Accepted: true}, nil
	}
	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return FileResult{}, err
	}
	position := order.Add(file.Name)
	if err := order.Save(w.base.TaskDir); err != nil {
		return FileResult{}, err
	}
	w.payload.Received[file.MessageID] = file.Name

	task, runErr := w.env.Run(ctx, &w.payload.Tracker, file.MessageID, operations.ScanImage,
		operations.ScanArgs{Image: file.Path, OutDir: w.base.TaskDir}, w.apply)
	w.payload.Phase = phaseFor(true, &w.payload.Tracker)
	switch {
	case runErr != nil:
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"Image %d received, but enhancement failed (%s). The original will be used. Send another or type 'done'.",
			position, userFacing(runErr))}, nil
	case task.Outstanding():
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"Image %d received. Processing in the background; send another, type 'status', or type 'done'.", position)}, nil
	default:
		return FileResult{Accepted: true, Reply: fmt.Sprintf(
			"Image %d received and processed. Send another or type 'done'.", position)}, nil
	}
}

func (w *scanWorkflow) HandleCommand(ctx context.Context, cmd Command) (bool, string, error) {
	switch {
	case isKeyword(cmd.Text, doneKeyword):
		return true, "", nil
	case isKeyword(cmd.Text, statusKeyword):
		w.env.Refresh(ctx, &w.payload.Tracker, w.apply)
		w.payload.Phase = phaseFor(len(w.payload.Received) > 0, &w.payload.Tracker)
		return false, statusReport("Image processing status:", &w.payload.Tracker, w.label,
			"All images processed. Type 'done' to receive your PDFs."), nil
	case isKeyword(cmd.Text, cancelKeyword):
		n := w.env.Cancel(ctx, &w.payload.Tracker)
		w.payload.Phase = PhaseReceivingInput
		return false, cancelReply(n, "image"), nil
	case cmd.QuotedID != "" && ordermap.IsPosition(cmd.Text):
		reply, err := reorder(w.base.TaskDir, w.payload.Received[cmd.QuotedID], cmd.Text,
			"Cannot reorder the quoted message. Please reply directly to an image sent for this task.",
			"image")
		return false, reply, err
	}
	return false, "", nil
}

func (w *scanWorkflow) label(task *TrackedTask) string {
	return "Image " + w.payload.Received[task.Key]
}

func (w *scanWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	w.env.Await(ctx, &w.payload.Tracker, w.apply)

	order, err := ordermap.Load(w.base.TaskDir)
	if err != nil {
		return nil, err
	}
	images := order.Sorted()
	if len(images) == 0 {
		return nil, nil
	}

	logger := w.env.logger(ctx)
	var outputs []Output
	for _, version := range tools.ScanVersions {
		pages := w.versionPages(images, version)
		if len(pages) == 0 {
			continue
		}
		name := "Scanned_Document_" + version.Name + ".pdf"
		output := filepath.Join(w.base.TaskDir, name)
		if err := w.env.Exec(ctx, operations.ImagesToPDF, operations.ImagesArgs{Images: pages, Output: output}, nil); err != nil {
			logger.Warn("scan version PDF failed",
				logging.String("version", version.Name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_pdf_failed"),
				logging.String(logging.FieldErrorHint, "inspect the page images in the task directory"),
				logging.String(logging.FieldImpact, "this version is not delivered"),
			)
			continue
		}
		outputs = append(outputs, Output{Path: output, Caption: "Scanned document - " + name, FileName: name})
	}
	if len(outputs) == 0 {
		return nil, &services.WorkflowError{Workflow: string(KindScan), Message: "Failed to create PDFs from images."}
	}
	return outputs, nil
}

func (w *scanWorkflow) versionPages(images []string, version tools.ScanVersion) []string {
	ids := make(map[string]string, len(w.payload.Received))
	for id, name := range w.payload.Received {
		ids[name] = id
	}
	var pages []string
	for _, image := range images {
		path := filepath.Join(w.base.TaskDir, image)
		if version.Suffix != "" {
			path = tools.VersionPath(w.base.TaskDir, image, version)
			if recorded, ok := w.payload.Versions[ids[image]][version.Name]; ok {
				path = filepath.Join(w.base.TaskDir, recorded)
			}
		}
		if fileutil.Exists(path) {
			pages = append(pages, path)
		}
	}
	return pages
}
