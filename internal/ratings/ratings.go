// Package ratings implements the secondary-ratings stage. A provider miss is
// stored as a row with Found=false so the item is not asked again.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/services/omdb"
	"marquee/internal/stage"
)

// Looker fetches secondary ratings by cross-reference ID.
type Looker interface {
	Lookup(ctx context.Context, imdbID string) (*omdb.Ratings, error)
}

// Store is the persistence the ratings stage needs.
type Store interface {
	stage.FailureStore
	ItemsNeedingRatings(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	UpsertSecondaryRating(ctx context.Context, r catalog.SecondaryRating) error
}

// Stage fetches secondary ratings.
type Stage struct {
	client    Looker
	store     Store
	cfg       config.Pipeline
	staleness time.Duration
	logger    *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// New builds the ratings stage.
func New(client Looker, store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	return &Stage{
		client:    client,
		store:     store,
		cfg:       cfg,
		staleness: time.Duration(cfg.StalenessDays) * 24 * time.Hour,
		logger:    logging.NewComponentLogger(logger, stage.Ratings),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Ratings }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.client == nil {
		return stage.Unhealthy(stage.Ratings, "ratings client unavailable")
	}
	return stage.Healthy(stage.Ratings)
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Ratings)
	now := opts.Clock()

	sel := catalog.Selection{Limit: opts.LimitOr(s.cfg.DefaultLimit), Stage: stage.Ratings, Now: now}
	if opts.UpdateStale && s.staleness > 0 {
		cutoff := now.Add(-s.staleness)
		sel.StaleBefore = &cutoff
	}
	items, err := s.store.ItemsNeedingRatings(ctx, sel)
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	policy := stage.FailurePolicy{
		Stage:       stage.Ratings,
		Store:       s.store,
		MaxAttempts: s.cfg.MaxRetryAttempts,
		DryRun:      opts.DryRun,
		Logger:      s.logger,
		Now:         opts.Clock,
	}
	missing := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		itemCtx := services.WithItemID(ctx, item.ProviderID)
		found, err := s.processItem(itemCtx, item, opts.DryRun, now)
		if err != nil {
			if policy.Handle(itemCtx, item, err, &res) {
				break
			}
			continue
		}
		if !found {
			missing++
		}
		policy.Succeeded(itemCtx, item, &res)
	}
	if res.Attempted > 0 {
		s.logger.Info("secondary ratings fetched",
			logging.Int("items", res.Succeeded),
			logging.Int("not_found", missing),
		)
	}
	return res, nil
}

// processItem reports whether the provider knew the title.
func (s *Stage) processItem(ctx context.Context, item *catalog.Item, dryRun bool, now time.Time) (bool, error) {
	rating := catalog.SecondaryRating{ItemID: item.ID, FetchedAt: now}
	ratings, err := s.client.Lookup(ctx, item.IMDbID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		rating.Found = false
	case err != nil:
		return false, err
	default:
		rating.Found = true
		rating.IMDbRating = ratings.IMDbRating
		rating.IMDbVotes = ratings.IMDbVotes
		rating.RottenTomatoes = ratings.RottenTomatoes
		rating.Metacritic = ratings.Metacritic
	}
	if dryRun {
		return rating.Found, nil
	}
	if err := s.store.UpsertSecondaryRating(ctx, rating); err != nil {
		return false, services.Wrap(services.ErrTransient, stage.Ratings, "store rating", "", err)
	}
	return rating.Found, nil
}
