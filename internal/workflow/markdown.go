package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docbot/internal/fileutil"
	"docbot/internal/operations"
	"docbot/internal/services"
	"docbot/internal/textutil"
)

const (
	markdownSource   = "content.md"
	markdownFileName = "Markdown_Document.pdf"
)

type markdownPart struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type markdownPayload struct {
	Phase Phase          `json:"phase"`
	Parts []markdownPart `json:"parts,omitempty"`
}

type markdownWorkflow struct {
	base    Base
	env     *Env
	payload markdownPayload
}

func newMarkdown(base Base, env *Env, payload markdownPayload) Workflow {
	if payload.Phase == "" {
		payload.Phase = PhaseStarted
	}
	return &markdownWorkflow{base: base, env: env, payload: payload}
}

func (w *markdownWorkflow) Kind() Kind   { return KindMarkdownToPDF }
func (w *markdownWorkflow) Phase() Phase { return w.payload.Phase }
func (w *markdownWorkflow) Payload() any { return w.payload }

func (w *markdownWorkflow) Inputs() []string {
	if fileutil.Exists(filepath.Join(w.base.TaskDir, w.sourceName())) {
		return []string{w.sourceName()}
	}
	return nil
}

// sourceName carries the task id so archived sources never collide.
func (w *markdownWorkflow) sourceName() string {
	if w.base.TaskID == "" {
		return markdownSource
	}
	return w.base.TaskID + "_" + markdownSource
}

func (w *markdownWorkflow) HandleFile(_ context.Context, _ IncomingFile) (FileResult, error) {
	return FileResult{Reply: "Please send markdown as text messages, not files."}, nil
}

func (w *markdownWorkflow) HandleCommand(_ context.Context, cmd Command) (bool, string, error) {
	if isKeyword(cmd.Text, doneKeyword) {
		if len(w.payload.Parts) == 0 {
			return false, "You haven't sent any markdown text yet. Send your content first, then 'done'.", nil
		}
		return true, "", nil
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return false, "", nil
	}
	for _, part := range w.payload.Parts {
		if cmd.MessageID != "" && part.ID == cmd.MessageID {
			return false, "", nil
		}
	}
	w.payload.Parts = append(w.payload.Parts, markdownPart{ID: cmd.MessageID, Text: cmd.Text})
	w.payload.Phase = PhaseAwaitingCommand
	n := len(w.payload.Parts)
	return false, fmt.Sprintf("Markdown content received (%d %s). Send more markdown text or 'done' to generate PDF.",
		n, textutil.Plural(n, "message", "messages")), nil
}

// Content joins the received messages in arrival order.
func (w *markdownWorkflow) Content() string {
	texts := make([]string, 0, len(w.payload.Parts))
	for _, part := range w.payload.Parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n\n")
}

func (w *markdownWorkflow) Finalize(ctx context.Context) ([]Output, error) {
	w.payload.Phase = PhaseFinalizing
	if len(w.payload.Parts) == 0 {
		return nil, nil
	}
	source := filepath.Join(w.base.TaskDir, w.sourceName())
	if err := fileutil.WriteFileAtomic(source, []byte(w.Content()), 0o644); err != nil {
		return nil, services.Wrap(services.ErrFileProcessing, string(KindMarkdownToPDF), "write markdown", "could not store markdown content", err)
	}
	output := filepath.Join(w.base.TaskDir, markdownFileName)
	var result operations.MarkdownResult
	if err := w.env.Exec(ctx, operations.MarkdownToPDF, operations.MarkdownArgs{Input: source, Output: output}, &result); err != nil {
		return nil, &services.WorkflowError{
			Workflow: string(KindMarkdownToPDF),
			Message:  "Failed to convert markdown to PDF: " + userFacing(err),
			Err:      err,
		}
	}
	return []Output{{Path: result.Output, Caption: "Here is your PDF generated from markdown text.", FileName: markdownFileName}}, nil
}
