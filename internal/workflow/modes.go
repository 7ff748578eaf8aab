package workflow

import (
	"fmt"
	"sort"

	"marquee/internal/stage"
)

// Mode names.
const (
	ModeFull     = "full"
	ModeDaily    = "daily"
	ModeEnrich   = "enrich"
	ModeRefresh  = "refresh"
	ModeScores   = "scores"
	ModeDiscover = "discover"
)

// Step is one entry in a run mode.
type Step struct {
	Stage   string
	Enabled bool
	// Limit overrides the stage's default item limit when positive.
	Limit       int
	UpdateStale bool
}

// Mode is a named, ordered list of steps.
type Mode struct {
	Name        string
	Description string
	Steps       []Step
}

// Daily runs keep each stage small enough to finish inside the providers'
// free-tier quotas.
const (
	dailyDiscoverLimit = 100
	dailyEnrichLimit   = 200
)

func enabled(names ...string) []Step {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		steps = append(steps, Step{Stage: name, Enabled: true})
	}
	return steps
}

func limited(limit int, names ...string) []Step {
	steps := enabled(names...)
	for i := range steps {
		steps[i].Limit = limit
	}
	return steps
}

var modes = map[string]Mode{
	ModeFull: {
		Name:        ModeFull,
		Description: "every stage with default limits",
		Steps:       enabled(stage.Names()...),
	},
	ModeDaily: {
		Name:        ModeDaily,
		Description: "every stage with small limits for a scheduled run",
		Steps: append(
			limited(dailyDiscoverLimit, stage.Discover),
			limited(dailyEnrichLimit, stage.Names()[1:]...)...,
		),
	},
	ModeEnrich: {
		Name:        ModeEnrich,
		Description: "enrich already-discovered items without discovering new ones",
		Steps:       enabled(stage.Names()[1:]...),
	},
	ModeRefresh: {
		Name:        ModeRefresh,
		Description: "refetch stale metadata and recompute what depends on it",
		Steps: []Step{
			{Stage: stage.Metadata, Enabled: true, UpdateStale: true},
			{Stage: stage.Taxonomy, Enabled: true},
			{Stage: stage.Credits, Enabled: true},
			{Stage: stage.CastStats, Enabled: true},
			{Stage: stage.Scores, Enabled: true},
			{Stage: stage.Moods, Enabled: true},
		},
	},
	ModeScores: {
		Name:        ModeScores,
		Description: "recompute cast statistics, scores and mood matches only",
		Steps:       enabled(stage.CastStats, stage.Scores, stage.Moods),
	},
	ModeDiscover: {
		Name:        ModeDiscover,
		Description: "discover new items only",
		Steps:       enabled(stage.Discover),
	},
}

// LookupMode returns a copy of the named mode.
func LookupMode(name string) (Mode, error) {
	mode, ok := modes[name]
	if !ok {
		return Mode{}, fmt.Errorf("unknown mode %q; known modes: %v", name, ModeNames())
	}
	mode.Steps = append([]Step(nil), mode.Steps...)
	return mode, nil
}

// ModeNames returns every mode name, sorted.
func ModeNames() []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modes returns every mode, sorted by name.
func Modes() []Mode {
	out := make([]Mode, 0, len(modes))
	for _, name := range ModeNames() {
		mode, _ := LookupMode(name)
		out = append(out, mode)
	}
	return out
}

// SingleStage builds an ad-hoc mode running one stage.
func SingleStage(name string, limit int, updateStale bool) (Mode, error) {
	if !stage.Valid(name) {
		return Mode{}, fmt.Errorf("unknown stage %q; known stages: %v", name, stage.Names())
	}
	return Mode{
		Name:  "stage:" + name,
		Steps: []Step{{Stage: name, Enabled: true, Limit: limit, UpdateStale: updateStale}},
	}, nil
}
