package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"marquee/internal/catalog"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.Mode,
					statusLabel(run.Status, colorize),
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					formatRunDuration(run),
					fmt.Sprintf("%d/%d/%d", run.StepsCompleted, run.StepsFailed, run.StepsSkipped),
					formatCalls(run.ProviderCalls),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Mode", "Status", "Started", "Duration", "OK/Fail/Skip", "Calls"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.AddCommand(newRunsShowCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			run, err := store.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			if jsonOutput {
				return writeJSON(cmd, run)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Duration: %s\n", formatRunDuration(run))
			printRunSummary(out, run, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func renderStepTable(run *catalog.Run) string {
	rows := make([][]string, 0, len(run.Steps))
	for _, step := range run.Steps {
		duration := ""
		if step.Outcome != "skipped" {
			duration = (time.Duration(step.DurationMS) * time.Millisecond).Round(time.Second).String()
		}
		rows = append(rows, []string{step.Stage, step.Outcome, fmt.Sprintf("%d", step.ExitCode), duration})
	}
	return renderTable(
		[]string{"Stage", "Outcome", "Exit", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	)
}

func formatRunDuration(run *catalog.Run) string {
	if run.FinishedAt == nil {
		return "running"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func formatCalls(calls map[string]int64) string {
	if len(calls) == 0 {
		return "-"
	}
	providers := make([]string, 0, len(calls))
	for provider := range calls {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	parts := make([]string, 0, len(providers))
	for _, provider := range providers {
		parts = append(parts, fmt.Sprintf("%s=%d", provider, calls[provider]))
	}
	return strings.Join(parts, " ")
}
