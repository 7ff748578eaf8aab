package stage

import (
	"context"
	"time"
)

// Stage names, in pipeline order.
const (
	Discover   = "discover"
	Metadata   = "metadata"
	Taxonomy   = "taxonomy"
	Credits    = "credits"
	CastStats  = "cast_stats"
	Ratings    = "ratings"
	Scores     = "scores"
	Embeddings = "embeddings"
	Moods      = "moods"
)

// Names returns every stage name in pipeline order.
func Names() []string {
	return []string{Discover, Metadata, Taxonomy, Credits, CastStats, Ratings, Scores, Embeddings, Moods}
}

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Options is the small flag surface every stage accepts.
type Options struct {
	// Limit caps the number of items processed. Zero means the stage default.
	Limit int
	// DryRun selects and computes without writing.
	DryRun bool
	// UpdateStale widens selection to items whose data is older than the
	// staleness threshold.
	UpdateStale bool
	RunID       string
	// Now is the reference time for staleness and retry eligibility.
	Now time.Time
}

// Clock returns opts.Now, or the current time when unset.
func (o Options) Clock() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// LimitOr returns the requested limit, or fallback when none was given.
func (o Options) LimitOr(fallback int) int {
	if o.Limit > 0 {
		return o.Limit
	}
	return fallback
}

// Handler describes the contract the stage runner needs from each stage.
// Run returns an error only for failures that prevent the stage from running
// at all; per-item failures are reported through Result.
type Handler interface {
	Name() string
	Run(ctx context.Context, opts Options) (Result, error)
	HealthCheck(ctx context.Context) Health
}
