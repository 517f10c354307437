package statestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"docbot/internal/services"
)

func TestMemoryCorruptRecordStaysLocal(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(time.Hour)
	if err := store.Save(ctx, "healthy", Record{TaskID: "t1", WorkflowType: "merge"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	store.entries["broken"] = memoryEntry{data: []byte("{not json")}

	_, found, err := store.Load(ctx, "broken")
	if found || !errors.Is(err, ErrCorruptRecord) || !errors.Is(err, services.ErrStateManagement) {
		t.Fatalf("Load(broken) = found %v, err %v", found, err)
	}

	active, err := store.AllActive(ctx)
	if err != nil {
		t.Fatalf("AllActive failed: %v", err)
	}
	if len(active) != 1 || active["healthy"].TaskID != "t1" {
		t.Fatalf("unexpected active set %v", active)
	}
}
