package credits

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

// AggregateStore is the persistence the aggregation stage needs.
type AggregateStore interface {
	ItemsNeedingCastStats(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	CastCredits(ctx context.Context, itemID int64) ([]catalog.CastCredit, error)
	UpsertCastStats(ctx context.Context, stats catalog.CastStats) error
}

// AggregateStage computes cast statistics from stored credits. It makes no
// provider calls.
type AggregateStage struct {
	store  AggregateStore
	cfg    config.Pipeline
	logger *slog.Logger
}

var _ stage.Handler = (*AggregateStage)(nil)

// NewAggregateStage builds the cast statistics stage.
func NewAggregateStage(store AggregateStore, cfg config.Pipeline, logger *slog.Logger) *AggregateStage {
	return &AggregateStage{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stage.CastStats),
	}
}

// Name implements stage.Handler.
func (s *AggregateStage) Name() string { return stage.CastStats }

// HealthCheck implements stage.Handler.
func (s *AggregateStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.CastStats)
}

// Run implements stage.Handler.
func (s *AggregateStage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.CastStats)
	items, err := s.store.ItemsNeedingCastStats(ctx, catalog.Selection{
		Limit: opts.LimitOr(s.cfg.DefaultLimit),
		Now:   opts.Clock(),
	})
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	tiers := make(map[string]int)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		stats, err := s.aggregate(ctx, item, opts)
		if err != nil {
			res.Failed++
			res.AddError("%d: %v", item.ProviderID, err)
			logging.WarnWithContext(logging.WithContext(services.WithItemID(ctx, item.ProviderID), s.logger),
				"cast aggregation failed", "item_failure",
				logging.String("title", item.DisplayTitle()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "item stays selected and is retried next run"),
			)
			continue
		}
		tiers[stats.StarPowerTier]++
		res.Succeeded++
	}

	if res.Succeeded > 0 {
		s.logger.Info("cast statistics computed",
			logging.Int("items", res.Succeeded),
			logging.Int(TierMegaStar, tiers[TierMegaStar]),
			logging.Int(TierAList, tiers[TierAList]),
			logging.Int(TierNone, tiers[TierNone]),
		)
	}
	return res, nil
}

func (s *AggregateStage) aggregate(ctx context.Context, item *catalog.Item, opts stage.Options) (catalog.CastStats, error) {
	cast, err := s.store.CastCredits(ctx, item.ID)
	if err != nil {
		return catalog.CastStats{}, err
	}
	stats := Aggregate(item.ID, cast)
	stats.ComputedAt = opts.Clock()
	if opts.DryRun {
		return stats, nil
	}
	return stats, s.store.UpsertCastStats(ctx, stats)
}
