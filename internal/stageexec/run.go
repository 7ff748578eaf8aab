// Package stageexec runs one stage once. It is the worker side of the
// orchestrator's process boundary: the outcome is reduced to an exit code
// and everything else lives in the catalog.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/metrics"
	"marquee/internal/services"
	"marquee/internal/stage"
)

// Exit codes reported by a stage worker.
const (
	ExitPassed = 0
	ExitFailed = 1
	// ExitUnusable means the stage could not start: unknown name, missing
	// configuration or an unhealthy dependency.
	ExitUnusable = 2
)

// Options controls one stage execution.
type Options struct {
	Config  *config.Config
	Store   *catalog.Store
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// Registry overrides the handler registry. Nil builds one from Config.
	Registry *Registry
	Name     string
	Stage    stage.Options
}

// Run builds, health-checks and executes the named stage, then records the
// provider calls it made against the run. The returned exit code is what a
// worker process should exit with.
func Run(ctx context.Context, opts Options) (stage.Result, int, error) {
	res := stage.NewResult(opts.Name)
	if opts.Config == nil || opts.Store == nil {
		return res, ExitUnusable, errors.New("stageexec: config and store are required")
	}
	if !stage.Valid(opts.Name) {
		return res, ExitUnusable, services.Wrap(services.ErrValidation, opts.Name, "run", fmt.Sprintf("unknown stage %q; known stages: %v", opts.Name, stage.Names()), nil)
	}

	ctx = services.WithStage(ctx, opts.Name)
	ctx = services.WithRunID(ctx, opts.Stage.RunID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "stage"))

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(opts.Config, opts.Store, logger, WithMetrics(opts.Metrics))
	}

	handler, err := registry.Build(ctx, opts.Name)
	if err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check provider keys with `marquee config validate`"),
		)
		return res, ExitUnusable, err
	}
	if health := handler.HealthCheck(ctx); !health.Ready {
		err := services.Wrap(services.ErrConfiguration, opts.Name, "health", health.Detail, nil)
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `marquee check` to inspect the catalog"),
		)
		return res, ExitUnusable, err
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("limit", opts.Stage.Limit),
		logging.Bool("dry_run", opts.Stage.DryRun),
		logging.Bool("update_stale", opts.Stage.UpdateStale),
	)

	res, err = handler.Run(ctx, opts.Stage)
	if res.Stage == "" {
		res.Stage = opts.Name
	}
	res.Finished = time.Now()

	// Usage is recorded even when the stage was cancelled so quota
	// accounting stays honest.
	recordCtx := context.WithoutCancel(ctx)
	recordUsage(recordCtx, opts.Store, registry, opts.Name, opts.Stage.RunID, logger)
	recordMetrics(recordCtx, opts, res, logger)

	threshold := opts.Config.Pipeline.FailureThreshold
	code := ExitCode(res, err, threshold)
	attrs := []logging.Attr{
		logging.Int("attempted", res.Attempted),
		logging.Int("succeeded", res.Succeeded),
		logging.Int("failed", res.Failed),
		logging.Int("invalid", res.Invalid),
		logging.Int("skipped", res.Skipped),
		logging.Float64("failure_rate", res.FailureRate()),
		logging.Duration("duration", res.Duration()),
	}
	if res.Halted {
		attrs = append(attrs, logging.String("halt_reason", res.HaltReason))
	}
	if code == ExitPassed {
		attrs = append(attrs, logging.String(logging.FieldEventType, "stage_complete"))
		logger.Info("stage completed", logging.Args(attrs...)...)
		return res, code, nil
	}

	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	if res.Aborted {
		attrs = append(attrs, logging.String("abort_reason", res.AbortReason))
	}
	attrs = append(attrs, logging.String(logging.FieldErrorHint, failureHint(res, err)))
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
	if err == nil {
		err = fmt.Errorf("stage %s failed: %s", opts.Name, res.Summary())
	}
	return res, code, err
}

// ExitCode maps a stage outcome onto a worker exit code.
func ExitCode(res stage.Result, err error, threshold float64) int {
	if err != nil {
		switch services.Classify(err) {
		case services.KindConfiguration, services.KindValidation:
			return ExitUnusable
		}
		return ExitFailed
	}
	if res.Passed(threshold) {
		return ExitPassed
	}
	return ExitFailed
}

func failureHint(res stage.Result, err error) string {
	switch {
	case err != nil && services.HaltsBatch(err):
		return "wait for the provider quota to reset or check the api key"
	case res.Aborted:
		return "inspect the abort reason; the stage did not complete"
	default:
		return "failure rate reached the configured threshold; items are queued for retry"
	}
}

func recordUsage(ctx context.Context, store *catalog.Store, registry *Registry, name, runID string, logger *slog.Logger) {
	now := time.Now()
	for provider, calls := range registry.Usage() {
		usage := catalog.Usage{RunID: runID, Stage: name, Provider: provider, Calls: calls}
		if err := store.RecordUsage(ctx, usage, now); err != nil {
			logging.WarnWithContext(logger, "usage not recorded", "usage_record_failed",
				logging.String(logging.FieldProvider, provider),
				logging.Int64("calls", calls),
				logging.Error(err),
			)
		}
	}
}

func recordMetrics(ctx context.Context, opts Options, res stage.Result, logger *slog.Logger) {
	m := opts.Metrics
	if m == nil {
		return
	}
	m.StageItems(opts.Name, "succeeded", res.Succeeded)
	m.StageItems(opts.Name, "failed", res.Failed)
	m.StageItems(opts.Name, "invalid", res.Invalid)
	m.StageItems(opts.Name, "skipped", res.Skipped)
	m.StageDuration(opts.Name, res.Duration())
	if err := m.Push(ctx, opts.Config.Metrics.PushgatewayURL, opts.Config.Metrics.Job, opts.Stage.RunID, opts.Name); err != nil {
		logging.WarnWithContext(logger, "metrics push failed", "metrics_push_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.pushgateway_url"),
		)
	}
}
