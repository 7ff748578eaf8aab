// Package preflight provides readiness checks for the filesystem, the catalog
// and the external providers marquee depends on.
//
// These checks run in two contexts:
//   - `marquee run` calls RunAll before launching any stage worker. A failed
//     required check aborts the run before a ledger row is written.
//   - `marquee check` prints every result, optionally probing provider
//     reachability over the network.
//
// Provider keys are reported but not required here: each stage enforces the
// key it needs when it starts.
package preflight
