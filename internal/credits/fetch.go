// Package credits implements the cast/crew fetch stage and the cast
// statistics aggregation stage.
package credits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/metadata"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
)

// Fetcher retrieves an item's credits.
type Fetcher interface {
	MovieCredits(ctx context.Context, movieID int64) (*tmdb.Credits, error)
}

// FetchStore is the persistence the fetch stage needs.
type FetchStore interface {
	stage.FailureStore
	ItemsNeedingCredits(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	ReplaceCredits(ctx context.Context, itemID int64, cast []catalog.CastCredit, crew []catalog.CrewCredit, director string, fetchedAt time.Time) error
}

// FetchStage stores the top billed cast and crew for each item.
type FetchStage struct {
	client    Fetcher
	store     FetchStore
	cfg       config.Pipeline
	staleness time.Duration
	logger    *slog.Logger
}

var _ stage.Handler = (*FetchStage)(nil)

// NewFetchStage builds the credits fetch stage.
func NewFetchStage(client Fetcher, store FetchStore, cfg config.Pipeline, logger *slog.Logger) *FetchStage {
	return &FetchStage{
		client:    client,
		store:     store,
		cfg:       cfg,
		staleness: time.Duration(cfg.StalenessDays) * 24 * time.Hour,
		logger:    logging.NewComponentLogger(logger, stage.Credits),
	}
}

// Name implements stage.Handler.
func (s *FetchStage) Name() string { return stage.Credits }

// HealthCheck implements stage.Handler.
func (s *FetchStage) HealthCheck(context.Context) stage.Health {
	if s.client == nil {
		return stage.Unhealthy(stage.Credits, "metadata client unavailable")
	}
	return stage.Healthy(stage.Credits)
}

// Run implements stage.Handler.
func (s *FetchStage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Credits)
	now := opts.Clock()

	sel := catalog.Selection{Limit: opts.LimitOr(s.cfg.DefaultLimit), Stage: stage.Credits, Now: now}
	if opts.UpdateStale && s.staleness > 0 {
		cutoff := now.Add(-s.staleness)
		sel.StaleBefore = &cutoff
	}
	items, err := s.store.ItemsNeedingCredits(ctx, sel)
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	policy := stage.FailurePolicy{
		Stage:       stage.Credits,
		Store:       s.store,
		MaxAttempts: s.cfg.MaxRetryAttempts,
		DryRun:      opts.DryRun,
		Logger:      s.logger,
		Now:         opts.Clock,
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		itemCtx := services.WithItemID(ctx, item.ProviderID)
		if err := s.processItem(itemCtx, item, opts.DryRun, now); err != nil {
			if policy.Handle(itemCtx, item, err, &res) {
				break
			}
			continue
		}
		policy.Succeeded(itemCtx, item, &res)
	}
	return res, nil
}

func (s *FetchStage) processItem(ctx context.Context, item *catalog.Item, dryRun bool, now time.Time) error {
	credits, err := s.client.MovieCredits(ctx, item.ProviderID)
	if err != nil {
		return err
	}
	cast := TopCast(credits.Cast, s.cfg.CastLimit)
	crew := TopCrew(credits.Crew, s.cfg.CrewLimit)
	director := metadata.Director(credits.Crew)

	if dryRun {
		return nil
	}
	if err := s.store.ReplaceCredits(ctx, item.ID, cast, crew, director, now); err != nil {
		return services.Wrap(services.ErrTransient, stage.Credits, "store credits", "", err)
	}
	logging.WithContext(ctx, s.logger).Debug("credits stored",
		logging.Int("cast", len(cast)),
		logging.Int("crew", len(crew)),
	)
	return nil
}

// TopCast returns up to limit cast members in billing order.
func TopCast(cast []tmdb.CastMember, limit int) []catalog.CastCredit {
	sorted := make([]tmdb.CastMember, 0, len(cast))
	for _, c := range cast {
		if strings.TrimSpace(c.Name) != "" {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]catalog.CastCredit, 0, len(sorted))
	for i, c := range sorted {
		out = append(out, catalog.CastCredit{
			Order:      i,
			PersonID:   c.ID,
			Name:       c.Name,
			Character:  c.Character,
			Popularity: c.Popularity,
		})
	}
	return out
}

// TopCrew returns up to limit crew credits, directors and writers first.
func TopCrew(crew []tmdb.CrewMember, limit int) []catalog.CrewCredit {
	sorted := make([]tmdb.CrewMember, 0, len(crew))
	for _, c := range crew {
		if strings.TrimSpace(c.Name) != "" {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := crewRank(sorted[i]), crewRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Popularity > sorted[j].Popularity
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]catalog.CrewCredit, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, catalog.CrewCredit{
			PersonID:   c.ID,
			Name:       c.Name,
			Job:        c.Job,
			Department: c.Department,
		})
	}
	return out
}

func crewRank(c tmdb.CrewMember) int {
	switch {
	case strings.EqualFold(c.Job, "Director"):
		return 0
	case strings.EqualFold(c.Department, "Writing"):
		return 1
	case strings.EqualFold(c.Job, "Original Music Composer"), strings.EqualFold(c.Job, "Director of Photography"):
		return 2
	case strings.EqualFold(c.Job, "Producer"):
		return 3
	default:
		return 4
	}
}
