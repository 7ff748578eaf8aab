package preflight

import (
	"context"
	"fmt"
	"strings"

	"marquee/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Required bool
	Detail   string
}

// Pinger is the catalog surface the catalog check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options selects optional checks.
type Options struct {
	// Probe adds a network reachability check per configured provider.
	Probe bool
}

// RunAll executes the preflight checks for cfg. store may be nil, in which
// case the catalog check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if store != nil {
		results = append(results, required(CheckCatalog(ctx, store)))
	}

	providers := []struct {
		name    string
		baseURL string
		err     error
	}{
		{"TMDB", cfg.TMDB.BaseURL, cfg.RequireTMDB()},
		{"OMDb", cfg.OMDb.BaseURL, cfg.RequireOMDb()},
		{"Embeddings", cfg.Embeddings.BaseURL, cfg.RequireEmbeddings()},
	}
	for _, p := range providers {
		results = append(results, CheckKey(p.name+" key", p.err))
		if opts.Probe && p.err == nil {
			results = append(results, CheckReachable(ctx, p.name, p.baseURL))
		}
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Error summarizes failed required checks, or returns nil.
func Error(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}

func required(r Result) Result {
	r.Required = true
	return r
}
