package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docbot/internal/config"
	"docbot/internal/statestore"
	"docbot/internal/workflow"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and reset conversation state",
	}
	stateCmd.AddCommand(newStateListCommand(ctx))
	stateCmd.AddCommand(newStateClearCommand(ctx))
	return stateCmd
}

// openStateStore connects to the configured backend. Unlike the daemon the
// CLI does not fall back to memory: an empty in-memory store would misreport
// the live conversations.
func openStateStore(ctx context.Context, cfg *config.Config) (statestore.Store, error) {
	if cfg.State.Backend != "redis" {
		return nil, errors.New("state.backend is memory; conversation state lives inside the running daemon (see /api/sessions)")
	}
	store := statestore.NewRedis(statestore.RedisOptions{
		Addr:     cfg.State.RedisAddr,
		Password: cfg.State.RedisPassword,
		DB:       cfg.State.RedisDB,
		Prefix:   cfg.State.Prefix,
		TTL:      cfg.StateTTL(),
		Timeout:  time.Duration(cfg.State.TimeoutSeconds) * time.Second,
	})
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.State.RedisAddr, err)
	}
	return store, nil
}

func newStateListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openStateStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.AllActive(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, sessions)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No active conversations")
				return nil
			}

			senders := make([]string, 0, len(sessions))
			for sender := range sessions {
				senders = append(senders, sender)
			}
			sort.Strings(senders)
			rows := make([][]string, 0, len(senders))
			for _, sender := range senders {
				rec := sessions[sender]
				rows = append(rows, []string{
					sender,
					workflow.Kind(rec.WorkflowType).DisplayName(),
					rec.TaskID,
					humanize.Time(rec.UpdatedAt),
					rec.TaskDir,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Sender", "Workflow", "Task", "Updated", "Directory"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newStateClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [sender...]",
		Short: "Delete conversation state for senders",
		Long:  "Delete conversation state so the sender starts fresh. Task directories are left\nfor the stale cleanup to collect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("specify one or more senders or --all")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openStateStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			senders := args
			if all {
				sessions, err := store.AllActive(cmd.Context())
				if err != nil {
					return err
				}
				senders = senders[:0:0]
				for sender := range sessions {
					senders = append(senders, sender)
				}
				sort.Strings(senders)
			}

			out := cmd.OutOrStdout()
			cleared := 0
			for _, sender := range senders {
				deleted, err := store.Delete(cmd.Context(), sender)
				if err != nil {
					return fmt.Errorf("clear %s: %w", sender, err)
				}
				if deleted {
					cleared++
					fmt.Fprintf(out, "Cleared %s\n", sender)
				} else {
					fmt.Fprintf(out, "No state for %s\n", sender)
				}
			}
			fmt.Fprintf(out, "Cleared %d conversation(s)\n", cleared)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear every active conversation")
	return cmd
}
