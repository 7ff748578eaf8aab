package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"marquee/internal/workflow"
)

func newModesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "modes",
		Short:       "List run modes and their steps",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, mode := range workflow.Modes() {
				rows = append(rows, []string{mode.Name, describeSteps(mode.Steps), mode.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Mode", "Steps", "Description"}, rows, nil))
			return nil
		},
	}
}

func describeSteps(steps []workflow.Step) string {
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		label := step.Stage
		var notes []string
		if step.Limit > 0 {
			notes = append(notes, fmt.Sprintf("limit %d", step.Limit))
		}
		if step.UpdateStale {
			notes = append(notes, "stale")
		}
		if !step.Enabled {
			notes = append(notes, "off")
		}
		if len(notes) > 0 {
			label += " (" + strings.Join(notes, ", ") + ")"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " > ")
}
