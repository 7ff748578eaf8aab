// Package services defines the error taxonomy and context helpers shared by
// the provider clients, the stage handlers and the orchestrator.
//
// Key responsibilities:
//   - Sentinel markers (not found, rate limited, quota exceeded, transient,
//     data quality, configuration, validation) plus the Wrap helper that keeps
//     both the marker and the underlying cause reachable through errors.Is.
//   - Classification helpers stages use to decide between marking an item
//     invalid, halting the batch, or queuing a retry.
//   - Context helpers that stamp run IDs, stage names and item IDs for logging.
//
// Provider clients live in subpackages (apiclient, tmdb, omdb, embedder).
package services
