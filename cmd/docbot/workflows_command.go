package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docbot/internal/workflow"
)

func newWorkflowsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "workflows",
		Short:       "List the conversations users can start",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := workflow.DefaultRegistry().Definitions()
			if asJSON {
				type entry struct {
					Kind         string `json:"kind"`
					Name         string `json:"name"`
					StartCommand string `json:"start_command"`
					Instructions string `json:"instructions"`
				}
				entries := make([]entry, 0, len(defs))
				for _, def := range defs {
					entries = append(entries, entry{
						Kind:         string(def.Kind),
						Name:         def.Kind.DisplayName(),
						StartCommand: def.StartCommand,
						Instructions: def.Instructions,
					})
				}
				return writeJSON(cmd, entries)
			}
			rows := make([][]string, 0, len(defs))
			for _, def := range defs {
				rows = append(rows, []string{def.Kind.DisplayName(), def.StartCommand})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Workflow", "Start Command"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
