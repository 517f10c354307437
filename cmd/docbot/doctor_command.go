package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docbot/internal/config"
	"docbot/internal/deps"
	"docbot/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check converters, directories and backing services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines, problems := doctorReport(cmd, cfg, colorize)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			return nil
		},
	}
}

func doctorReport(cmd *cobra.Command, cfg *config.Config, colorize bool) ([]string, int) {
	var lines []string
	problems := 0

	lines = append(lines, renderSectionHeader("Converters", colorize)...)
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		switch {
		case status.Available:
			lines = append(lines, renderStatusLine(status.Name, statusOK, status.Detail, colorize))
		case status.Optional:
			lines = append(lines, renderStatusLine(status.Name, statusInfo, status.Detail, colorize))
		default:
			problems++
			lines = append(lines, renderStatusLine(status.Name, statusError, status.Detail, colorize))
		}
	}
	if !deps.MarkdownAvailable(statuses) {
		problems++
		lines = append(lines, renderStatusLine("Markdown", statusError, "no markdown backend installed", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Services", colorize)...)
	for _, result := range preflight.RunAll(cmd.Context(), cfg) {
		if result.Passed {
			lines = append(lines, renderStatusLine(result.Name, statusOK, result.Detail, colorize))
			continue
		}
		problems++
		lines = append(lines, renderStatusLine(result.Name, statusError, result.Detail, colorize))
	}
	if cfg.State.Backend != "redis" {
		lines = append(lines, renderStatusLine("State store", statusWarn, "memory (state is lost on restart)", colorize))
	}
	if !cfg.Tasks.AsyncEnabled {
		lines = append(lines, renderStatusLine("Task database", statusInfo, "disabled; operations run inline", colorize))
	}
	if strings.TrimSpace(cfg.Transport.BaseURL) == "" {
		lines = append(lines, renderStatusLine("Messaging gateway", statusWarn, "not configured; replies are only logged", colorize))
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		lines = append(lines, renderStatusLine("Operator alerts", statusInfo, "ntfy topic not configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Operator alerts", statusOK, "ntfy", colorize))
	}
	if cfg.MirrorEnabled() {
		lines = append(lines, renderStatusLine("Blob mirror", statusInfo, "container "+cfg.Archive.AzureContainer, colorize))
	}
	return lines, problems
}
