package stage

import (
	"fmt"
	"time"
)

const maxResultErrors = 20

// Result summarizes one stage execution.
type Result struct {
	Stage     string
	Attempted int
	Succeeded int
	Failed    int
	// Invalid counts items the provider no longer resolves. They are moved to
	// the error status and are not failures of the stage.
	Invalid int
	Skipped int
	// Halted is set when a rate limit or quota stopped the batch early.
	Halted     bool
	HaltReason string
	// Aborted marks a stage-wide failure regardless of item counts.
	Aborted     bool
	AbortReason string
	Errors      []string
	Started     time.Time
	Finished    time.Time
}

// NewResult starts a result for stage.
func NewResult(stage string) Result {
	return Result{Stage: stage, Started: time.Now()}
}

// AddError records an item-level error message, keeping at most a handful.
func (r *Result) AddError(format string, args ...any) {
	if len(r.Errors) >= maxResultErrors {
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Halt marks the batch as stopped early.
func (r *Result) Halt(reason string) {
	r.Halted = true
	r.HaltReason = reason
}

// Abort marks the stage as failed outright.
func (r *Result) Abort(reason string) {
	r.Aborted = true
	r.AbortReason = reason
}

// FailureRate is Failed / Attempted, or 0 when nothing was attempted.
func (r Result) FailureRate() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Attempted)
}

// Passed applies the threshold judgment: the stage passes unless it was
// aborted or its failure rate reached threshold.
func (r Result) Passed(threshold float64) bool {
	if r.Aborted {
		return false
	}
	return r.FailureRate() < threshold
}

// Duration returns the elapsed run time.
func (r Result) Duration() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

// Summary is a one-line description for logs and CLI output.
func (r Result) Summary() string {
	s := fmt.Sprintf("attempted=%d succeeded=%d failed=%d invalid=%d skipped=%d",
		r.Attempted, r.Succeeded, r.Failed, r.Invalid, r.Skipped)
	if r.Halted {
		s += " halted=" + r.HaltReason
	}
	if r.Aborted {
		s += " aborted=" + r.AbortReason
	}
	return s
}
