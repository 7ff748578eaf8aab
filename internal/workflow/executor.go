package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"marquee/internal/logging"
)

var commandContext = exec.CommandContext

// StepRequest describes one stage invocation.
type StepRequest struct {
	RunID       string
	Stage       string
	Limit       int
	DryRun      bool
	UpdateStale bool
}

// Args renders the worker command line for the request.
func (r StepRequest) Args() []string {
	args := []string{"stage", r.Stage, "--run-id", r.RunID}
	if r.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(r.Limit))
	}
	if r.DryRun {
		args = append(args, "--dry-run")
	}
	if r.UpdateStale {
		args = append(args, "--update-stale")
	}
	return args
}

// StepOutcome is what the orchestrator learns about a step: its exit code and
// a short error description.
type StepOutcome struct {
	ExitCode int
	Err      error
	Duration time.Duration
}

// Passed reports whether the step exited cleanly.
func (o StepOutcome) Passed() bool {
	return o.Err == nil && o.ExitCode == 0
}

// Executor runs one stage in isolation.
type Executor interface {
	Execute(ctx context.Context, req StepRequest) StepOutcome
}

// ProcessExecutor runs each stage as a child process of the marquee binary.
type ProcessExecutor struct {
	binary     string
	configPath string
	timeout    time.Duration
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

// ProcessOption configures a ProcessExecutor.
type ProcessOption func(*ProcessExecutor)

// WithBinary overrides the executable; the default is the running binary.
func WithBinary(path string) ProcessOption {
	return func(e *ProcessExecutor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithConfigPath forwards --config to every worker.
func WithConfigPath(path string) ProcessOption {
	return func(e *ProcessExecutor) { e.configPath = path }
}

// WithTimeout kills a worker that runs longer than d. Zero disables it.
func WithTimeout(d time.Duration) ProcessOption {
	return func(e *ProcessExecutor) { e.timeout = d }
}

// WithOutput sends worker stdout and stderr to the given writers.
func WithOutput(stdout, stderr io.Writer) ProcessOption {
	return func(e *ProcessExecutor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ProcessOption {
	return func(e *ProcessExecutor) { e.logger = logger }
}

// NewProcessExecutor constructs a ProcessExecutor.
func NewProcessExecutor(opts ...ProcessOption) (*ProcessExecutor, error) {
	e := &ProcessExecutor{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(e)
	}
	if e.binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve marquee executable: %w", err)
		}
		e.binary = self
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	return e, nil
}

// Execute launches the worker and waits for it. A non-zero exit, a signal or
// the timeout all count as failure.
func (e *ProcessExecutor) Execute(ctx context.Context, req StepRequest) StepOutcome {
	start := time.Now()
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := req.Args()
	if e.configPath != "" {
		args = append([]string{"--config", e.configPath}, args...)
	}
	cmd := commandContext(runCtx, e.binary, args...) //nolint:gosec
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.WaitDelay = 10 * time.Second

	e.logger.Debug("launching stage worker",
		logging.String(logging.FieldStage, req.Stage),
		logging.String("binary", e.binary),
		logging.Any("args", args),
	)
	err := cmd.Run()
	outcome := StepOutcome{Duration: time.Since(start)}
	if err == nil {
		return outcome
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome.ExitCode = -1
		outcome.Err = fmt.Errorf("stage %s timed out after %s", req.Stage, e.timeout)
	case ctx.Err() != nil:
		outcome.ExitCode = -1
		outcome.Err = fmt.Errorf("stage %s interrupted: %w", req.Stage, ctx.Err())
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
		if outcome.ExitCode < 0 {
			outcome.Err = fmt.Errorf("stage %s terminated: %s", req.Stage, exitErr.String())
		} else {
			outcome.Err = fmt.Errorf("stage %s exited with code %d", req.Stage, outcome.ExitCode)
		}
	default:
		outcome.ExitCode = -1
		outcome.Err = fmt.Errorf("start stage %s: %w", req.Stage, err)
	}
	return outcome
}

var _ Executor = (*ProcessExecutor)(nil)
