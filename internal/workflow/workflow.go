package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docbot/internal/statestore"
)

// ErrUnknownKind reports persisted state tagged with a kind no definition
// handles.
var ErrUnknownKind = errors.New("unknown workflow kind")

// Base carries the identifiers assigned when a conversation starts. They are
// stored beside the payload, never inside it.
type Base struct {
	TaskID   string
	TaskDir  string
	SenderID string
}

// IncomingFile is an attachment already written into the task directory.
type IncomingFile struct {
	MessageID    string
	Name         string
	Path         string
	OriginalName string
	MimeType     string
	Image        bool
}

// IsPDF reports whether the attachment is a PDF document.
func (f IncomingFile) IsPDF() bool {
	return f.MimeType == "application/pdf" || strings.EqualFold(filepath.Ext(f.Name), ".pdf")
}

// FileResult is the outcome of HandleFile.
type FileResult struct {
	Accepted bool
	Reply    string
}

// Command is one text turn.
type Command struct {
	Text      string
	QuotedID  string
	MessageID string
}

// Output is a file to deliver to the user.
type Output struct {
	Path     string
	Caption  string
	FileName string
}

// Reporter is implemented by workflows that have a follow-up message once
// their outputs are delivered, such as partial failures.
type Reporter interface {
	Report() string
}

// Workflow is one active conversation.
type Workflow interface {
	Kind() Kind
	Phase() Phase
	// HandleFile consumes an attachment. Duplicate message ids are accepted
	// without side effects.
	HandleFile(ctx context.Context, file IncomingFile) (FileResult, error)
	// HandleCommand processes a text turn; done asks the Manager to finalize.
	HandleCommand(ctx context.Context, cmd Command) (done bool, reply string, err error)
	// Finalize waits for outstanding work and returns whatever outputs exist.
	Finalize(ctx context.Context) ([]Output, error)
	// Inputs lists the consumed source files (relative to the task dir).
	Inputs() []string
	// Payload returns the persisted, JSON serializable state.
	Payload() any
}

// Definition holds the class-level data of a workflow kind.
type Definition struct {
	Kind         Kind
	StartCommand string
	Instructions string
	// Processing is sent before Finalize when set.
	Processing string
	// Empty is sent when Finalize yields no outputs.
	Empty string
	// Failure is sent when Finalize fails without a user-facing message.
	Failure    string
	Completion func(sent int) string
	Start      func(base Base, env *Env) Workflow
	Restore    func(base Base, env *Env, payload json.RawMessage) (Workflow, error)
}

// restoreInto builds a Restore function that decodes payload into P.
func restoreInto[P any](build func(Base, *Env, P) Workflow) func(Base, *Env, json.RawMessage) (Workflow, error) {
	return func(base Base, env *Env, raw json.RawMessage) (Workflow, error) {
		var payload P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return build(base, env, payload), nil
	}
}

func fixedText(text string) func(int) string {
	return func(int) string { return text }
}

// Registry is the immutable table of workflow definitions.
type Registry struct {
	defs  map[Kind]Definition
	order []Kind
}

// NewRegistry validates and indexes defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[Kind]Definition, len(defs))}
	commands := make(map[string]Kind, len(defs))
	for _, def := range defs {
		if def.Kind == "" || def.Start == nil || def.Restore == nil {
			return nil, fmt.Errorf("workflow definition %q incomplete", def.Kind)
		}
		if _, exists := r.defs[def.Kind]; exists {
			return nil, fmt.Errorf("duplicate workflow kind %q", def.Kind)
		}
		cmd := normalizeCommand(def.StartCommand)
		if cmd != "" {
			if other, exists := commands[cmd]; exists {
				return nil, fmt.Errorf("start command %q used by %s and %s", cmd, other, def.Kind)
			}
			commands[cmd] = def.Kind
		}
		r.defs[def.Kind] = def
		r.order = append(r.order, def.Kind)
	}
	return r, nil
}

// Lookup returns the definition for kind.
func (r *Registry) Lookup(kind Kind) (Definition, bool) {
	def, ok := r.defs[kind]
	return def, ok
}

// ForCommand returns the definition started by text, matched case-insensitively.
func (r *Registry) ForCommand(text string) (Definition, bool) {
	cmd := normalizeCommand(text)
	if cmd == "" {
		return Definition{}, false
	}
	for _, kind := range r.order {
		def := r.defs[kind]
		if normalizeCommand(def.StartCommand) == cmd {
			return def, true
		}
	}
	return Definition{}, false
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.defs[kind])
	}
	return out
}

func normalizeCommand(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Encode converts a workflow into its persisted record.
func Encode(base Base, wf Workflow) (statestore.Record, error) {
	payload, err := json.Marshal(wf.Payload())
	if err != nil {
		return statestore.Record{}, fmt.Errorf("encode %s payload: %w", wf.Kind(), err)
	}
	return statestore.Record{
		TaskID:       base.TaskID,
		TaskDir:      base.TaskDir,
		WorkflowType: string(wf.Kind()),
		Payload:      payload,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

// Decode rebuilds the workflow stored in rec. Unknown kinds are rejected.
func Decode(registry *Registry, env *Env, sender string, rec statestore.Record) (Workflow, Definition, Base, error) {
	base := Base{TaskID: rec.TaskID, TaskDir: rec.TaskDir, SenderID: sender}
	def, ok := registry.Lookup(Kind(rec.WorkflowType))
	if !ok {
		return nil, Definition{}, base, fmt.Errorf("%w: %q", ErrUnknownKind, rec.WorkflowType)
	}
	wf, err := def.Restore(base, env, rec.Payload)
	if err != nil {
		return nil, def, base, fmt.Errorf("restore %s: %w", def.Kind, err)
	}
	return wf, def, base, nil
}
