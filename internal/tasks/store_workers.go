package tasks

import (
	"context"
	"fmt"
	"time"
)

// Heartbeat registers the worker or refreshes its last_seen timestamp.
func (s *Store) Heartbeat(ctx context.Context, info WorkerInfo) error {
	now := s.timestamp()
	started := now
	if !info.StartedAt.IsZero() {
		started = formatTime(info.StartedAt)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO workers (id, hostname, pid, concurrency, started_at, last_seen)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen, concurrency = excluded.concurrency`,
		info.ID, info.Hostname, info.PID, info.Concurrency, started, now,
	); err != nil {
		return fmt.Errorf("worker heartbeat: %w", err)
	}
	return nil
}

// RemoveWorker deletes the worker registration on shutdown.
func (s *Store) RemoveWorker(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM workers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove worker: %w", err)
	}
	return nil
}

// LiveWorkers counts workers seen at or after cutoff.
func (s *Store) LiveWorkers(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM workers WHERE last_seen >= ?`, formatTime(cutoff),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count live workers: %w", err)
	}
	return count, nil
}

// Workers lists registered workers, most recently seen first.
func (s *Store) Workers(ctx context.Context) ([]WorkerInfo, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, hostname, pid, concurrency, started_at, last_seen FROM workers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []WorkerInfo
	for rows.Next() {
		var (
			info       WorkerInfo
			startedRaw string
			seenRaw    string
		)
		if err := rows.Scan(&info.ID, &info.Hostname, &info.PID, &info.Concurrency, &startedRaw, &seenRaw); err != nil {
			return nil, err
		}
		info.StartedAt, _ = parseTime(startedRaw)
		info.LastSeen, _ = parseTime(seenRaw)
		out = append(out, info)
	}
	return out, rows.Err()
}

// ReclaimOrphaned returns STARTED tasks owned by workers not seen since cutoff
// to RETRY so a live worker picks them up again.
func (s *Store) ReclaimOrphaned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, worker_id = NULL, updated_at = ?
         WHERE status = ? AND (worker_id IS NULL OR worker_id NOT IN (
             SELECT id FROM workers WHERE last_seen >= ?
         ))`,
		StatusRetry, s.timestamp(), StatusStarted, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim orphaned tasks: %w", err)
	}
	return res.RowsAffected()
}

// PruneWorkers removes registrations not seen since cutoff.
func (s *Store) PruneWorkers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM workers WHERE last_seen < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune workers: %w", err)
	}
	return res.RowsAffected()
}

// Summarize aggregates task and worker counts for diagnostics.
func (s *Store) Summarize(ctx context.Context, workerCutoff time.Time) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	for status, count := range stats {
		summary.Total += count
		switch {
		case status.Outstanding():
			summary.Outstanding += count
		case status == StatusSuccess:
			summary.Succeeded += count
		case status == StatusFailure:
			summary.Failed += count
		case status == StatusRevoked:
			summary.Revoked += count
		}
	}
	live, err := s.LiveWorkers(ctx, workerCutoff)
	if err != nil {
		return Summary{}, err
	}
	summary.LiveWorkers = live
	return summary, nil
}
