// Package logging assembles structured slog loggers and formatting helpers used
// across Marquee stages and the orchestrator.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so stage code can tag log lines with the run ID,
// stage name, and provider item ID. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
