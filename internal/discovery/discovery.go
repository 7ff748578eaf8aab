// Package discovery implements the first pipeline stage: union the candidate
// IDs from every discovery strategy, drop the ones already cataloged and
// insert the rest as pending items.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
)

// Lister is the slice of the metadata provider discovery uses.
type Lister interface {
	NowPlaying(ctx context.Context, page int) (*tmdb.Page, error)
	Popular(ctx context.Context, page int) (*tmdb.Page, error)
	TrendingWeek(ctx context.Context, page int) (*tmdb.Page, error)
	Discover(ctx context.Context, opts tmdb.DiscoverOptions, page int) (*tmdb.Page, error)
}

// Store is the persistence discovery needs.
type Store interface {
	ExistingProviderIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	InsertItems(ctx context.Context, items []catalog.NewItem) (int, error)
}

// Stage discovers new catalog items.
type Stage struct {
	client     Lister
	store      Store
	cfg        config.Pipeline
	logger     *slog.Logger
	strategies func(stage.Options) []Strategy
}

var _ stage.Handler = (*Stage)(nil)

// New builds the discovery stage.
func New(client Lister, store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	s := &Stage{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stage.Discover),
	}
	s.strategies = func(opts stage.Options) []Strategy {
		return Strategies(s.client, opts.Clock())
	}
	return s
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Discover }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.client == nil {
		return stage.Unhealthy(stage.Discover, "metadata client unavailable")
	}
	if s.store == nil {
		return stage.Unhealthy(stage.Discover, "catalog store unavailable")
	}
	return stage.Healthy(stage.Discover)
}

type candidate struct {
	result   tmdb.Result
	strategy string
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Discover)

	candidates, order, failed := s.collect(ctx, opts, &res)
	strategies := len(s.strategies(opts))
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if failed == strategies {
		res.Abort("every discovery strategy failed")
		return res, nil
	}

	fresh, err := s.filterExisting(ctx, order)
	if err != nil {
		return res, err
	}

	limit := opts.LimitOr(s.cfg.DiscoveryInsertCap)
	if limit > 0 && len(fresh) > limit {
		res.Skipped += len(fresh) - limit
		fresh = fresh[:limit]
	}
	res.Attempted = len(fresh)

	s.logger.Info("discovery candidates",
		logging.Int("candidates", len(order)),
		logging.Int("new", len(fresh)),
		logging.Int("strategies_failed", failed),
	)

	if opts.DryRun {
		res.Succeeded = len(fresh)
		return res, nil
	}

	batchSize := s.cfg.InsertBatchSize
	if batchSize <= 0 {
		batchSize = len(fresh)
	}
	for start := 0; start < len(fresh); start += batchSize {
		end := min(start+batchSize, len(fresh))
		batch := make([]catalog.NewItem, 0, end-start)
		for _, id := range fresh[start:end] {
			c := candidates[id]
			batch = append(batch, catalog.NewItem{
				ProviderID:   id,
				Title:        c.result.Title,
				ReleaseDate:  c.result.ReleaseDate,
				Popularity:   c.result.Popularity,
				VoteAverage:  c.result.VoteAverage,
				VoteCount:    c.result.VoteCount,
				DiscoveredBy: c.strategy,
			})
		}
		inserted, err := s.store.InsertItems(ctx, batch)
		if err != nil {
			res.Failed += len(batch)
			res.AddError("insert batch at %d: %v", start, err)
			logging.WarnWithContext(s.logger, "insert batch failed", "batch_failure",
				logging.Int("batch_size", len(batch)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database health; candidates will be rediscovered next run"),
			)
			continue
		}
		res.Succeeded += inserted
		res.Skipped += len(batch) - inserted
	}
	return res, nil
}

// collect runs every strategy and unions the results. The returned order is
// first-seen order across strategies.
func (s *Stage) collect(ctx context.Context, opts stage.Options, res *stage.Result) (map[int64]candidate, []int64, int) {
	candidates := make(map[int64]candidate)
	var order []int64
	failed := 0
	pages := s.cfg.DiscoveryPages
	if pages <= 0 {
		pages = 1
	}

	for _, strategy := range s.strategies(opts) {
		if ctx.Err() != nil || res.Halted {
			failed++
			continue
		}
		found, err := s.runStrategy(ctx, strategy, pages, func(r tmdb.Result) {
			if r.ID <= 0 {
				return
			}
			if _, seen := candidates[r.ID]; seen {
				return
			}
			candidates[r.ID] = candidate{result: r, strategy: strategy.Name}
			order = append(order, r.ID)
		})
		if err != nil {
			failed++
			res.AddError("%s: %v", strategy.Name, err)
			logging.WarnWithContext(s.logger, "discovery strategy failed", "strategy_failure",
				logging.String("strategy", strategy.Name),
				logging.Int("found_before_failure", found),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "other strategies continue; partial results are kept"),
			)
			if services.HaltsBatch(err) {
				res.Halt(string(services.Classify(err)))
			}
			continue
		}
		s.logger.Debug("discovery strategy finished",
			logging.String("strategy", strategy.Name),
			logging.Int("found", found),
		)
	}
	return candidates, order, failed
}

func (s *Stage) runStrategy(ctx context.Context, strategy Strategy, pages int, add func(tmdb.Result)) (int, error) {
	found := 0
	for page := 1; page <= pages; page++ {
		resp, err := strategy.Fetch(ctx, page)
		if err != nil {
			return found, fmt.Errorf("page %d: %w", page, err)
		}
		for _, r := range resp.Results {
			add(r)
			found++
		}
		if resp.TotalPages > 0 && page >= resp.TotalPages {
			break
		}
	}
	return found, nil
}

// filterExisting returns the IDs in order that are not yet cataloged, checking
// in bounded batches.
func (s *Stage) filterExisting(ctx context.Context, order []int64) ([]int64, error) {
	batchSize := s.cfg.LookupBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	fresh := make([]int64, 0, len(order))
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		existing, err := s.store.ExistingProviderIDs(ctx, order[start:end])
		if err != nil {
			return nil, fmt.Errorf("check existing items: %w", err)
		}
		for _, id := range order[start:end] {
			if _, ok := existing[id]; !ok {
				fresh = append(fresh, id)
			}
		}
	}
	return fresh, nil
}
