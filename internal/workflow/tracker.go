package workflow

import (
	"encoding/json"
	"errors"

	"docbot/internal/tasks"
)

// TrackedTask is one operation a workflow submitted, keyed by the message id
// of the input it belongs to. Only the background task id is persisted, never
// a live handle.
type TrackedTask struct {
	Key          string          `json:"key"`
	Operation    string          `json:"operation"`
	Args         json.RawMessage `json:"args"`
	HandleID     string          `json:"handle_id,omitempty"`
	Status       tasks.Status    `json:"status"`
	Materialized bool            `json:"materialized"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Outstanding reports whether a background worker still owns the task.
func (t *TrackedTask) Outstanding() bool {
	return t.HandleID != "" && !t.Materialized
}

// Succeeded reports whether the result was applied successfully.
func (t *TrackedTask) Succeeded() bool {
	return t.Materialized && t.Status == tasks.StatusSuccess
}

// Failed reports whether the task finished without a usable result.
func (t *TrackedTask) Failed() bool {
	return t.Materialized && t.Status != tasks.StatusSuccess
}

// Decode unmarshals a successful result into v.
func (t *TrackedTask) Decode(v any) error {
	if !t.Succeeded() {
		return errors.New("task has no result")
	}
	return json.Unmarshal(t.Result, v)
}

// Tracker is the persisted list of submitted operations. StatusChecks counts
// status queries so waiting is bounded by attempts rather than wall-clock
// time, which a restart would reset.
type Tracker struct {
	Tasks        []*TrackedTask `json:"tasks,omitempty"`
	StatusChecks int            `json:"status_checks,omitempty"`
}

// Get returns the task recorded for key, or nil.
func (t *Tracker) Get(key string) *TrackedTask {
	for _, task := range t.Tasks {
		if task.Key == key {
			return task
		}
	}
	return nil
}

func (t *Tracker) put(task *TrackedTask) {
	for i, existing := range t.Tasks {
		if existing.Key == task.Key {
			t.Tasks[i] = task
			return
		}
	}
	t.Tasks = append(t.Tasks, task)
}

func (t *Tracker) byHandle(id string) *TrackedTask {
	for _, task := range t.Tasks {
		if task.HandleID == id {
			return task
		}
	}
	return nil
}

// Outstanding lists tasks still running in the background.
func (t *Tracker) Outstanding() []*TrackedTask {
	var out []*TrackedTask
	for _, task := range t.Tasks {
		if task.Outstanding() {
			out = append(out, task)
		}
	}
	return out
}

// Unmaterialized lists tasks whose result has not been applied yet.
func (t *Tracker) Unmaterialized() []*TrackedTask {
	var out []*TrackedTask
	for _, task := range t.Tasks {
		if !task.Materialized {
			out = append(out, task)
		}
	}
	return out
}

// Counts returns the number of completed, pending and failed tasks.
func (t *Tracker) Counts() (complete, pending, failed int) {
	for _, task := range t.Tasks {
		switch {
		case task.Succeeded():
			complete++
		case task.Failed():
			failed++
		default:
			pending++
		}
	}
	return complete, pending, failed
}
