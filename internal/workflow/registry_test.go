package workflow_test

import (
	"encoding/json"
	"errors"
	"testing"

	"docbot/internal/logging"
	"docbot/internal/statestore"
	"docbot/internal/workflow"
)

func TestForCommandNormalizesText(t *testing.T) {
	registry := workflow.DefaultRegistry()
	def, ok := registry.ForCommand("  Word   TO pdf ")
	if !ok || def.Kind != workflow.KindWordToPDF {
		t.Fatalf("ForCommand = %v, %v", def.Kind, ok)
	}
	if _, ok := registry.ForCommand("merge"); ok {
		t.Fatal("partial commands must not match")
	}
	if len(registry.Definitions()) != 8 {
		t.Fatalf("expected eight workflow kinds, got %d", len(registry.Definitions()))
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	defs := workflow.Definitions()
	if _, err := workflow.NewRegistry(defs[0], defs[0]); err == nil {
		t.Fatal("expected duplicate kind error")
	}
	clash := defs[1]
	clash.StartCommand = defs[0].StartCommand
	if _, err := workflow.NewRegistry(defs[0], clash); err == nil {
		t.Fatal("expected duplicate command error")
	}
}

func TestKindDisplayName(t *testing.T) {
	if got := workflow.KindPowerPointToPDF.DisplayName(); got != "Powerpoint To Pdf" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := newHarness(t, false)
	registry := workflow.DefaultRegistry()
	def, _ := registry.Lookup(workflow.KindSplit)
	base := workflow.Base{TaskID: "t1", TaskDir: t.TempDir(), SenderID: sender}
	wf := def.Start(base, h.env)

	rec, err := workflow.Encode(base, wf)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if rec.WorkflowType != "split" || rec.TaskID != "t1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	restored, restoredDef, restoredBase, err := workflow.Decode(registry, h.env, sender, rec)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if restored.Kind() != workflow.KindSplit || restoredDef.Kind != workflow.KindSplit || restoredBase != base {
		t.Fatalf("round trip lost identity: %v %v %+v", restored.Kind(), restoredDef.Kind, restoredBase)
	}
	if restored.Phase() != workflow.PhaseStarted {
		t.Fatalf("Phase = %s", restored.Phase())
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	rec := statestore.Record{TaskID: "t", WorkflowType: "fax", Payload: json.RawMessage(`{}`)}
	env := &workflow.Env{Logger: logging.NewNop()}
	_, _, _, err := workflow.Decode(workflow.DefaultRegistry(), env, sender, rec)
	if !errors.Is(err, workflow.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeRejectsCorruptPayload(t *testing.T) {
	rec := statestore.Record{TaskID: "t", WorkflowType: "merge", Payload: json.RawMessage(`{"received": 5}`)}
	_, _, _, err := workflow.Decode(workflow.DefaultRegistry(), &workflow.Env{}, sender, rec)
	if err == nil {
		t.Fatal("expected a decode error")
	}
}
