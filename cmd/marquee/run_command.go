package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"marquee/internal/catalog"
	"marquee/internal/preflight"
	"marquee/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		opts      workflow.RunOptions
		stageName string
	)

	cmd := &cobra.Command{
		Use:   "run [mode]",
		Short: "Run the pipeline for a mode (default: daily)",
		Long: "Run every enabled step of a run mode, each as an isolated `marquee stage` process.\n" +
			"Use `marquee modes` to list the available modes.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var mode workflow.Mode
			switch {
			case stageName != "":
				mode, err = workflow.SingleStage(stageName, opts.Limit, false)
			case len(args) == 1:
				mode, err = workflow.LookupMode(args[0])
			default:
				mode, err = workflow.LookupMode(workflow.ModeDaily)
			}
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := preflight.Error(preflight.RunAll(cmd.Context(), cfg, store, preflight.Options{})); err != nil {
				return err
			}
			executor, err := workflow.NewProcessExecutor(
				workflow.WithConfigPath(ctx.workerConfigPath()),
				workflow.WithTimeout(cfg.StageTimeout()),
				workflow.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
				workflow.WithExecutorLogger(logger),
			)
			if err != nil {
				return err
			}

			manager := workflow.NewManager(cfg, store, executor, logger)
			run, runErr := manager.Run(cmd.Context(), mode, opts)
			if run != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				printRunSummary(out, run, shouldColorize(out))
			}
			if runErr != nil {
				return runErr
			}
			if workflow.Failed(run) {
				return fmt.Errorf("run %s failed", run.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Pass --dry-run to every stage")
	cmd.Flags().BoolVar(&opts.StopOnFailure, "stop-on-failure", false, "Skip the remaining steps after the first failure")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Override every step's item limit")
	cmd.Flags().StringVar(&stageName, "stage", "", "Run only this stage under the orchestrator")
	return cmd
}

func printRunSummary(out io.Writer, run *catalog.Run, colorize bool) {
	fmt.Fprintf(out, "Run %s (%s): %s\n", run.ID, run.Mode, statusLabel(run.Status, colorize))
	fmt.Fprintln(out, renderStepTable(run))
	if len(run.ProviderCalls) > 0 {
		fmt.Fprintf(out, "Provider calls: %s\n", formatCalls(run.ProviderCalls))
	}
	for _, msg := range run.Errors {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
}
