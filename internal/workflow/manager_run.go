package workflow

import (
	"context"
	"fmt"

	"marquee/internal/catalog"
	"marquee/internal/logging"
	"marquee/internal/services"
)

// Step outcomes recorded in the run ledger.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Run executes mode and returns the finished ledger record. The record is
// returned even when the sequence was interrupted.
func (m *Manager) Run(ctx context.Context, mode Mode, opts RunOptions) (*catalog.Run, error) {
	if err := m.lock.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.lock.release(); err != nil {
			m.logger.Warn("failed to release run lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no run is active"),
			)
		}
	}()

	run := catalog.Run{
		ID:        m.newID(),
		Mode:      mode.Name,
		StartedAt: m.now(),
		Status:    catalog.RunRunning,
	}
	if err := m.ledger.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, m.logger).With(logging.String("mode", mode.Name))
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("steps", len(mode.Steps)),
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("stop_on_failure", opts.StopOnFailure),
	)

	stopped := false
	for _, step := range mode.Steps {
		if !step.Enabled || stopped || ctx.Err() != nil {
			run.StepsSkipped++
			run.Steps = append(run.Steps, catalog.RunStep{Stage: step.Stage, Outcome: OutcomeSkipped})
			logger.Info("step skipped",
				logging.String(logging.FieldStage, step.Stage),
				logging.String(logging.FieldEventType, "step_skipped"),
				logging.Bool("enabled", step.Enabled),
			)
			continue
		}

		req := StepRequest{
			RunID:       run.ID,
			Stage:       step.Stage,
			Limit:       step.Limit,
			DryRun:      opts.DryRun,
			UpdateStale: step.UpdateStale,
		}
		if opts.Limit > 0 {
			req.Limit = opts.Limit
		}
		outcome := m.executor.Execute(ctx, req)
		record := catalog.RunStep{
			Stage:      step.Stage,
			ExitCode:   outcome.ExitCode,
			DurationMS: outcome.Duration.Milliseconds(),
		}
		if outcome.Passed() {
			run.StepsCompleted++
			record.Outcome = OutcomePassed
			logger.Info("step passed",
				logging.String(logging.FieldStage, step.Stage),
				logging.String(logging.FieldEventType, "step_complete"),
				logging.Duration("duration", outcome.Duration),
			)
		} else {
			run.StepsFailed++
			record.Outcome = OutcomeFailed
			message := stepError(step.Stage, outcome)
			record.Error = message
			run.Errors = append(run.Errors, message)
			logging.ErrorWithContext(logger, "step failed", "step_failure",
				logging.String(logging.FieldStage, step.Stage),
				logging.Int("exit_code", outcome.ExitCode),
				logging.String("error_message", message),
				logging.String(logging.FieldErrorHint, "see the stage worker log lines for item-level detail"),
			)
			if opts.StopOnFailure {
				stopped = true
			}
		}
		run.Steps = append(run.Steps, record)
	}

	// The ledger is finalized even when the run was interrupted.
	finishCtx := context.WithoutCancel(ctx)
	calls, err := m.ledger.UsageForRun(finishCtx, run.ID)
	if err != nil {
		logging.WarnWithContext(logger, "provider usage unavailable", "usage_read_failed", logging.Error(err))
		calls = map[string]int64{}
	}
	run.ProviderCalls = calls
	if ctx.Err() != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("run interrupted: %v", ctx.Err()))
	}
	run.Status = RunStatus(run.StepsCompleted, run.StepsFailed)
	if ctx.Err() != nil && run.Status == catalog.RunSuccess {
		run.Status = catalog.RunPartial
	}
	finished := m.now()
	run.FinishedAt = &finished
	if err := m.ledger.FinishRun(finishCtx, run); err != nil {
		return &run, fmt.Errorf("record run finish: %w", err)
	}

	attrs := []logging.Attr{
		logging.String("status", string(run.Status)),
		logging.Int("steps_completed", run.StepsCompleted),
		logging.Int("steps_failed", run.StepsFailed),
		logging.Int("steps_skipped", run.StepsSkipped),
		logging.Any("provider_calls", run.ProviderCalls),
		logging.Duration("duration", finished.Sub(run.StartedAt)),
	}
	if run.Status == catalog.RunSuccess {
		attrs = append(attrs, logging.String(logging.FieldEventType, "run_complete"))
		logger.Info("run completed", logging.Args(attrs...)...)
	} else {
		logging.WarnWithContext(logger, "run finished with failures", "run_incomplete",
			append(attrs, logging.String(logging.FieldErrorHint, "inspect `marquee runs show "+run.ID+"`"))...)
	}
	if err := ctx.Err(); err != nil {
		return &run, err
	}
	return &run, nil
}

// RunStatus derives the ledger status from step counters: success when no
// step failed, failed when nothing succeeded, partial otherwise.
func RunStatus(completed, failed int) catalog.RunStatus {
	switch {
	case failed == 0:
		return catalog.RunSuccess
	case completed == 0:
		return catalog.RunFailed
	default:
		return catalog.RunPartial
	}
}

func stepError(stage string, outcome StepOutcome) string {
	if outcome.Err != nil {
		return outcome.Err.Error()
	}
	return fmt.Sprintf("stage %s exited with code %d", stage, outcome.ExitCode)
}

// Failed reports whether a finished run should make the orchestrator exit
// non-zero.
func Failed(run *catalog.Run) bool {
	return run == nil || run.Status == catalog.RunFailed
}
