// Package main hosts the marquee CLI entrypoint and command graph.
//
// One binary plays both roles of the pipeline: `marquee run` is the
// orchestrator and `marquee stage <name>` is the isolated worker it launches
// for each step. The remaining commands inspect the catalog and the run
// ledger or scaffold configuration.
//
// Keep this package lean: behavior belongs in the internal packages, and the
// commands here only resolve configuration, open the catalog and render
// output.
package main
