package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, operation, args_json, status, result_json, error_kind, error_message, attempts, worker_id, not_before, created_at, updated_at, started_at, finished_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task        Task
		argsJSON    string
		statusStr   string
		resultJSON  sql.NullString
		errorKind   sql.NullString
		errorMsg    sql.NullString
		workerID    sql.NullString
		notBefore   sql.NullString
		createdRaw  string
		updatedRaw  string
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Operation,
		&argsJSON,
		&statusStr,
		&resultJSON,
		&errorKind,
		&errorMsg,
		&task.Attempts,
		&workerID,
		&notBefore,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	task.Args = json.RawMessage(argsJSON)
	task.Status = Status(statusStr)
	if resultJSON.Valid && resultJSON.String != "" {
		task.Result = json.RawMessage(resultJSON.String)
	}
	task.ErrorKind = errorKind.String
	task.ErrorMessage = errorMsg.String
	task.WorkerID = workerID.String
	if created, err := parseTime(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	task.NotBefore = optionalTime(notBefore)
	task.StartedAt = optionalTime(startedRaw)
	task.FinishedAt = optionalTime(finishedRaw)
	return &task, nil
}

func optionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTime(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

// Enqueue inserts a PENDING task for the named operation.
func (s *Store) Enqueue(ctx context.Context, operation string, args json.RawMessage) (*Task, error) {
	if len(args) == 0 {
		args = json.RawMessage("null")
	}
	id := uuid.NewString()
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (id, operation, args_json, status, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, operation, string(args), StatusPending, now, now,
	); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", operation, err)
	}
	return s.Get(ctx, id)
}

// Get fetches a task by id. Unknown ids return ErrTaskNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Claim atomically moves the oldest runnable task to STARTED for workerID.
// It returns nil when nothing is runnable.
func (s *Store) Claim(ctx context.Context, workerID string) (*Task, error) {
	ctx = ensureContext(ctx)
	now := s.timestamp()
	var task *Task
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE tasks
             SET status = ?, worker_id = ?, attempts = attempts + 1, started_at = ?, updated_at = ?, not_before = NULL
             WHERE id = (
                 SELECT id FROM tasks
                 WHERE status IN (?, ?) AND (not_before IS NULL OR not_before <= ?)
                 ORDER BY created_at
                 LIMIT 1
             ) AND status IN (?, ?)
             RETURNING `+taskColumns,
			StatusStarted, workerID, now, now,
			StatusPending, StatusRetry, now,
			StatusPending, StatusRetry,
		)
		claimed, scanErr := scanTask(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			task = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		task = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Complete records a successful result. Tasks revoked or reclaimed in the
// meantime are left untouched and false is returned.
func (s *Store) Complete(ctx context.Context, id, workerID string, result json.RawMessage) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, result_json = ?, error_kind = NULL, error_message = NULL,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND worker_id = ?`,
		StatusSuccess, nullableString(string(result)), now, now, id, StatusStarted, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Fail records a failed attempt. A non-nil retryAt schedules another attempt
// (status RETRY); otherwise the task finishes with FAILURE.
func (s *Store) Fail(ctx context.Context, id, workerID, kind, message string, retryAt *time.Time) (bool, error) {
	now := s.timestamp()
	var (
		res sql.Result
		err error
	)
	if retryAt != nil {
		res, err = s.execWithRetry(ctx,
			`UPDATE tasks SET status = ?, error_kind = ?, error_message = ?, worker_id = NULL,
                 not_before = ?, updated_at = ?
             WHERE id = ? AND status = ? AND worker_id = ?`,
			StatusRetry, kind, message, formatTime(*retryAt), now, id, StatusStarted, workerID,
		)
	} else {
		res, err = s.execWithRetry(ctx,
			`UPDATE tasks SET status = ?, error_kind = ?, error_message = ?, finished_at = ?, updated_at = ?
             WHERE id = ? AND status = ? AND worker_id = ?`,
			StatusFailure, kind, message, now, now, id, StatusStarted, workerID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Revoke marks an outstanding task REVOKED. It reports whether the task was
// still outstanding.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		StatusRevoked, now, now, id, StatusPending, StatusStarted, StatusRetry,
	)
	if err != nil {
		return false, fmt.Errorf("revoke task: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// List returns tasks filtered by status, newest first. No statuses lists all.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Purge removes finished tasks last updated before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM tasks WHERE status IN (?, ?, ?) AND updated_at < ?`,
		StatusSuccess, StatusFailure, StatusRevoked, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every task regardless of status.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}
