package tasks

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusRetry   Status = "RETRY"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusRevoked Status = "REVOKED"
)

var allStatuses = []Status{
	StatusPending,
	StatusStarted,
	StatusRetry,
	StatusSuccess,
	StatusFailure,
	StatusRevoked,
}

// AllStatuses returns every task status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Ready reports whether the status is terminal.
func (s Status) Ready() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// Outstanding reports whether the task may still produce a result.
func (s Status) Outstanding() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRetry:
		return true
	default:
		return false
	}
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Task is a job row persisted in SQLite.
type Task struct {
	ID           string
	Operation    string
	Args         json.RawMessage
	Status       Status
	Result       json.RawMessage
	ErrorKind    string
	ErrorMessage string
	Attempts     int
	WorkerID     string
	NotBefore    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Snapshot converts the row into the status view handed to callers.
func (t *Task) Snapshot() Snapshot {
	return Snapshot{
		ID:        t.ID,
		Operation: t.Operation,
		Status:    t.Status,
		Result:    t.Result,
		ErrorKind: t.ErrorKind,
		Error:     t.ErrorMessage,
		Attempts:  t.Attempts,
	}
}

// WorkerInfo describes a worker process registered in the task database.
type WorkerInfo struct {
	ID          string
	Hostname    string
	PID         int
	Concurrency int
	StartedAt   time.Time
	LastSeen    time.Time
}

// Summary aggregates task counts for diagnostics.
type Summary struct {
	Total       int
	Outstanding int
	Succeeded   int
	Failed      int
	Revoked     int
	LiveWorkers int
}
