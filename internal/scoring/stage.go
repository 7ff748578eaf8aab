package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/stage"
)

// Store is the persistence the scoring stage needs.
type Store interface {
	ItemsNeedingScores(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	GetCastStats(ctx context.Context, itemID int64) (*catalog.CastStats, error)
	GetSecondaryRating(ctx context.Context, itemID int64) (*catalog.SecondaryRating, error)
	SaveScoreSet(ctx context.Context, set catalog.ScoreSet) error
}

// Stage computes and stores score sets. It makes no provider calls.
type Stage struct {
	store  Store
	cfg    config.Pipeline
	logger *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// NewStage builds the scoring stage.
func NewStage(store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	return &Stage{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stage.Scores),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Scores }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.Scores)
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Scores)
	now := opts.Clock()
	items, err := s.store.ItemsNeedingScores(ctx, catalog.Selection{
		Limit: opts.LimitOr(s.cfg.DefaultLimit),
		Now:   now,
	})
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	withoutComposite := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		set, err := s.score(ctx, item, opts)
		if err != nil {
			res.Failed++
			res.AddError("%d: %v", item.ProviderID, err)
			logging.WarnWithContext(logging.WithContext(services.WithItemID(ctx, item.ProviderID), s.logger),
				"scoring failed", "item_failure",
				logging.String("title", item.DisplayTitle()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "item stays selected and is retried next run"),
			)
			continue
		}
		if set.Composite == nil {
			withoutComposite++
		}
		res.Succeeded++
	}
	if res.Attempted > 0 {
		s.logger.Info("scores computed",
			logging.Int("items", res.Succeeded),
			logging.Int("without_composite", withoutComposite),
		)
	}
	return res, nil
}

func (s *Stage) score(ctx context.Context, item *catalog.Item, opts stage.Options) (catalog.ScoreSet, error) {
	cast, err := s.store.GetCastStats(ctx, item.ID)
	if err != nil {
		return catalog.ScoreSet{}, err
	}
	ratings, err := s.store.GetSecondaryRating(ctx, item.ID)
	if err != nil {
		return catalog.ScoreSet{}, err
	}
	now := opts.Clock()
	set := Compute(InputFor(item, cast, ratings, now))
	set.ItemID = item.ID
	set.ComputedAt = now
	if opts.DryRun {
		return set, nil
	}
	return set, s.store.SaveScoreSet(ctx, set)
}
