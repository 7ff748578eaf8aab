// Package workflow sequences pipeline stages for a named run mode.
//
// The Manager resolves a Mode into its ordered steps, launches each enabled
// step through an Executor (by default a separate `marquee stage` process),
// and classifies the outcome purely by exit code. Failed steps are logged and
// the sequence continues unless StopOnFailure is set. When the sequence ends
// the manager writes one PipelineRun row with the step counters, the errors
// collected along the way and the provider calls the workers recorded under
// the run ID.
//
// The manager never reads stage-internal data. Stages communicate through
// the catalog; the orchestrator only sees pass or fail. An exclusive file
// lock keeps two orchestrators from interleaving stages against the same
// catalog.
package workflow
