package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marquee/internal/metrics"
	"marquee/internal/stage"
	"marquee/internal/stageexec"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	var opts stage.Options

	cmd := &cobra.Command{
		Use:   "stage <name>",
		Short: "Run a single pipeline stage once",
		Long: "Run a single pipeline stage once. This is the worker the orchestrator launches for each step;\n" +
			"exit code 0 means the stage passed, 1 that it failed, 2 that it could not start.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return withExitCode(stageexec.ExitUnusable, err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return withExitCode(stageexec.ExitUnusable, err)
			}
			store, err := ctx.openStore()
			if err != nil {
				return withExitCode(stageexec.ExitUnusable, err)
			}

			opts.Now = time.Now()
			res, code, err := stageexec.Run(cmd.Context(), stageexec.Options{
				Config:  cfg,
				Store:   store,
				Logger:  logger,
				Metrics: metrics.New(),
				Name:    args[0],
				Stage:   opts,
			})
			if res.Attempted > 0 || code == stageexec.ExitPassed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], res.Summary())
			}
			if code != stageexec.ExitPassed {
				_ = ctx.close()
				return withExitCode(code, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Run identifier recorded with provider usage")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum items to process (0 uses the stage default)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Select and compute without writing")
	cmd.Flags().BoolVar(&opts.UpdateStale, "update-stale", false, "Also refresh items older than the staleness threshold")
	return cmd
}

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and their readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			registry := stageexec.NewRegistry(cfg, store, logger)
			rows := make([][]string, 0, len(stage.Names()))
			for i, name := range stage.Names() {
				ready, detail := false, ""
				handler, err := registry.Build(cmd.Context(), name)
				if err != nil {
					detail = err.Error()
				} else {
					health := handler.HealthCheck(cmd.Context())
					ready, detail = health.Ready, health.Detail
				}
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, yesNo(ready), detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Stage", "Ready", "Detail"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
