package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docbot/internal/config"
	"docbot/internal/tasks"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect the background task database",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksWorkersCommand(ctx))
	tasksCmd.AddCommand(newTasksPurgeCommand(ctx))
	return tasksCmd
}

func withTaskStore(ctx *commandContext, fn func(*config.Config, *tasks.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := tasks.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task database: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func parseStatuses(values []string) ([]tasks.Status, error) {
	var statuses []tasks.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.ToUpper(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			status := tasks.Status(trimmed)
			switch status {
			case tasks.StatusPending, tasks.StatusStarted, tasks.StatusRetry,
				tasks.StatusSuccess, tasks.StatusFailure, tasks.StatusRevoked:
				statuses = append(statuses, status)
			default:
				return nil, fmt.Errorf("unknown task status %q", part)
			}
		}
	}
	return statuses, nil
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return withTaskStore(ctx, func(_ *config.Config, store *tasks.Store) error {
				items, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, task := range items {
					rows = append(rows, []string{
						task.ID[:8],
						task.Operation,
						string(task.Status),
						strconv.Itoa(task.Attempts),
						humanize.Time(task.CreatedAt),
						taskErrorSummary(task),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Operation", "Status", "Attempts", "Created", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (PENDING, STARTED, RETRY, SUCCESS, FAILURE, REVOKED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum tasks to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func taskErrorSummary(task *tasks.Task) string {
	if task.ErrorMessage == "" {
		return ""
	}
	if task.ErrorKind == "" {
		return task.ErrorMessage
	}
	return task.ErrorKind + ": " + task.ErrorMessage
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task with its arguments and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTaskStore(ctx, func(_ *config.Config, store *tasks.Store) error {
				task, err := resolveTask(cmd, store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, task)
			})
		},
	}
}

// resolveTask accepts a full id or the unique prefix shown by "tasks list".
func resolveTask(cmd *cobra.Command, store *tasks.Store, id string) (*tasks.Task, error) {
	id = strings.TrimSpace(id)
	task, err := store.Get(cmd.Context(), id)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, tasks.ErrTaskNotFound) {
		return nil, err
	}
	items, listErr := store.List(cmd.Context(), 0)
	if listErr != nil {
		return nil, listErr
	}
	var match *tasks.Task
	for _, candidate := range items {
		if !strings.HasPrefix(candidate.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("task id prefix %q is ambiguous", id)
		}
		match = candidate
	}
	if match == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return match, nil
}

func newTasksWorkersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTaskStore(ctx, func(cfg *config.Config, store *tasks.Store) error {
				workers, err := store.Workers(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(workers) == 0 {
					fmt.Fprintln(out, "No workers registered; operations run inline in the daemon")
					return nil
				}
				cutoff := time.Now().Add(-time.Duration(cfg.Tasks.WorkerTimeoutSeconds) * time.Second)
				rows := make([][]string, 0, len(workers))
				for _, w := range workers {
					rows = append(rows, []string{
						w.ID[:8],
						w.Hostname,
						strconv.Itoa(w.PID),
						strconv.Itoa(w.Concurrency),
						humanize.Time(w.LastSeen),
						yesNo(!w.LastSeen.Before(cutoff)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Host", "PID", "Slots", "Last Seen", "Live"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newTasksPurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withTaskStore(ctx, func(cfg *config.Config, store *tasks.Store) error {
				var (
					removed int64
					err     error
				)
				if all {
					removed, err = store.Clear(cmd.Context())
				} else {
					age := olderThan
					if age <= 0 {
						age = time.Duration(cfg.Tasks.RetentionHours) * time.Hour
					}
					removed, err = store.Purge(cmd.Context(), time.Now().Add(-age))
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s)\n", removed)
				return nil
			})
			if all && errors.Is(err, tasks.ErrSchemaMismatch) {
				return recreateTaskStore(ctx, cmd)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age of finished tasks to remove (defaults to tasks.retention_hours)")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every task, including outstanding ones")
	return cmd
}

// recreateTaskStore replaces a database written by an incompatible version
// with an empty one.
func recreateTaskStore(ctx *commandContext, cmd *cobra.Command) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := tasks.RemoveDatabase(cfg.Tasks.DBPath); err != nil {
		return err
	}
	store, err := tasks.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task database: %w", err)
	}
	_ = store.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "Task database had an incompatible schema; recreated it empty")
	return nil
}
