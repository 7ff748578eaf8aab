package workflow

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func setHelperCommand(t *testing.T, mode string, seen *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if seen != nil {
			*seen = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "MARQUEE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func newTestExecutor(t *testing.T, opts ...ProcessOption) *ProcessExecutor {
	t.Helper()
	opts = append([]ProcessOption{WithBinary("/usr/local/bin/marquee"), WithOutput(io.Discard, io.Discard)}, opts...)
	e, err := NewProcessExecutor(opts...)
	if err != nil {
		t.Fatalf("NewProcessExecutor: %v", err)
	}
	return e
}

func TestProcessExecutorPassesOnZeroExit(t *testing.T) {
	var seen []string
	setHelperCommand(t, "success", &seen)
	e := newTestExecutor(t, WithConfigPath("/etc/marquee.toml"))

	outcome := e.Execute(context.Background(), StepRequest{RunID: "r1", Stage: "scores", Limit: 25, UpdateStale: true})
	if !outcome.Passed() {
		t.Fatalf("expected pass, got %+v", outcome)
	}
	got := strings.Join(seen, " ")
	want := "/usr/local/bin/marquee --config /etc/marquee.toml stage scores --run-id r1 --limit 25 --update-stale"
	if got != want {
		t.Fatalf("unexpected command line\n got: %s\nwant: %s", got, want)
	}
}

func TestProcessExecutorReportsExitCode(t *testing.T) {
	setHelperCommand(t, "failure", nil)
	e := newTestExecutor(t)

	outcome := e.Execute(context.Background(), StepRequest{RunID: "r1", Stage: "ratings"})
	if outcome.Passed() {
		t.Fatal("expected failure")
	}
	if outcome.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", outcome.ExitCode)
	}
}

func TestProcessExecutorKillsOnTimeout(t *testing.T) {
	setHelperCommand(t, "hang", nil)
	e := newTestExecutor(t, WithTimeout(200*time.Millisecond))

	outcome := e.Execute(context.Background(), StepRequest{RunID: "r1", Stage: "embeddings"})
	if outcome.Passed() {
		t.Fatal("expected timeout failure")
	}
	if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", outcome.Err)
	}
	if outcome.Duration > 5*time.Second {
		t.Fatalf("worker was not killed promptly: %s", outcome.Duration)
	}
}

func TestStepRequestArgs(t *testing.T) {
	args := StepRequest{RunID: "abc", Stage: "discover", DryRun: true}.Args()
	got := strings.Join(args, " ")
	if got != "stage discover --run-id abc --dry-run" {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("MARQUEE_HELPER_MODE") {
	case "success":
		os.Exit(0)
	case "failure":
		os.Exit(1)
	case "hang":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
