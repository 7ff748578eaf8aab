// Package metadata implements the detail fetch stage. Each selected item costs
// one provider call; the response is flattened into the item row.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
)

// Fetcher retrieves one provider detail record.
type Fetcher interface {
	MovieDetails(ctx context.Context, movieID int64) (*tmdb.MovieDetails, error)
}

// Store is the persistence the metadata stage needs.
type Store interface {
	stage.FailureStore
	ItemsNeedingMetadata(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	UpdateMetadata(ctx context.Context, id int64, md catalog.Metadata, fetchedAt time.Time) error
}

// Stage fetches and normalizes item metadata.
type Stage struct {
	client    Fetcher
	store     Store
	cfg       config.Pipeline
	staleness time.Duration
	logger    *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// New builds the metadata stage.
func New(client Fetcher, store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	return &Stage{
		client:    client,
		store:     store,
		cfg:       cfg,
		staleness: time.Duration(cfg.StalenessDays) * 24 * time.Hour,
		logger:    logging.NewComponentLogger(logger, stage.Metadata),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Metadata }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.client == nil {
		return stage.Unhealthy(stage.Metadata, "metadata client unavailable")
	}
	return stage.Healthy(stage.Metadata)
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Metadata)
	now := opts.Clock()

	sel := catalog.Selection{Limit: opts.LimitOr(s.cfg.DefaultLimit), Stage: stage.Metadata, Now: now}
	if opts.UpdateStale && s.staleness > 0 {
		cutoff := now.Add(-s.staleness)
		sel.StaleBefore = &cutoff
	}
	items, err := s.store.ItemsNeedingMetadata(ctx, sel)
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	policy := stage.FailurePolicy{
		Stage:       stage.Metadata,
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
		if err := s.processItem(itemCtx, item, opts, now); err != nil {
			if policy.Handle(itemCtx, item, err, &res) {
				break
			}
			continue
		}
		policy.Succeeded(itemCtx, item, &res)
	}
	return res, nil
}

func (s *Stage) processItem(ctx context.Context, item *catalog.Item, opts stage.Options, now time.Time) error {
	details, err := s.client.MovieDetails(ctx, item.ProviderID)
	if err != nil {
		return err
	}
	md, warnings := Normalize(details)
	logger := logging.WithContext(ctx, s.logger)
	for _, w := range warnings {
		logging.WarnWithContext(logger, "nested metadata unusable", "item_skipped",
			logging.String("title", item.DisplayTitle()),
			logging.Error(w),
			logging.String(logging.FieldErrorHint, "affected fields left empty; the rest of the record is stored"),
		)
	}
	if md.Title == "" {
		md.Title = item.Title
	}
	if opts.DryRun {
		logger.Debug("dry run: metadata not written", logging.String("title", md.Title))
		return nil
	}
	if err := s.store.UpdateMetadata(ctx, item.ID, md, now); err != nil {
		return services.Wrap(services.ErrTransient, stage.Metadata, "store metadata", "", err)
	}
	logger.Debug("metadata stored",
		logging.String("title", md.Title),
		logging.Int("genres", len(md.Genres)),
		logging.Int("keywords", len(md.Keywords)),
	)
	return nil
}
